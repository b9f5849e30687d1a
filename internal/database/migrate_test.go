package database

import (
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 || len(files)%2 != 0 {
		t.Fatalf("migrations = %v, want up/down pairs", files)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("iofs.New: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if first != 1 {
		t.Errorf("first version = %d, want 1", first)
	}

	up, _, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("ReadUp: %v", err)
	}
	defer up.Close()

	data, err := io.ReadAll(up)
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}

	for _, table := range []string{"import_jobs", "import_checkpoints", "watermarks"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("up migration does not create %s", table)
		}
	}

	next, err := src.Next(first)
	if err != nil {
		t.Fatalf("Next(%d): %v", first, err)
	}
	up2, _, err := src.ReadUp(next)
	if err != nil {
		t.Fatalf("ReadUp(%d): %v", next, err)
	}
	defer up2.Close()
	data, err = io.ReadAll(up2)
	if err != nil {
		t.Fatalf("read up migration %d: %v", next, err)
	}
	for _, col := range []string{"committed_pages", "failed_pages"} {
		if !strings.Contains(string(data), col) {
			t.Errorf("migration %d does not add import_checkpoints.%s", next, col)
		}
	}
}
