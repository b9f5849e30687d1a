package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := runOrder(&buf); err != nil {
		t.Fatalf("runOrder() error: %v", err)
	}

	out := buf.String()
	symbols := strings.Index(out, "stock_symbol")
	daily := strings.Index(out, "daily_chart")
	if symbols < 0 || daily < 0 {
		t.Fatalf("output missing entities:\n%s", out)
	}
	if symbols > daily {
		t.Errorf("stock_symbol listed after daily_chart:\n%s", out)
	}
	if !strings.HasPrefix(out, "LEVEL") {
		t.Errorf("output missing header:\n%s", out)
	}
}

func TestHumanBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range tests {
		if got := humanBytes(in); got != want {
			t.Errorf("humanBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
