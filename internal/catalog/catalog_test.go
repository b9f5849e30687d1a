package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/rickgao/fmp-data/internal/model"
)

func entity(id string, deps ...string) *model.EntityType {
	return &model.EntityType{
		ID:        id,
		Fields:    []model.FieldDef{{Name: "symbol", Kind: model.KindString, Required: true}},
		Key:       []string{"symbol"},
		DependsOn: deps,
	}
}

func TestNew_Valid(t *testing.T) {
	c, err := New(entity("a"), entity("b", "a"), entity("c", "a", "b"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	list := c.List()
	if len(list) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].ID != want {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].ID, want)
		}
	}

	got, err := c.Get("b")
	if err != nil {
		t.Fatalf("Get(b) error = %v", err)
	}
	if got.ID != "b" {
		t.Errorf("Get(b).ID = %s, want b", got.ID)
	}

	deps := c.Dependents("a")
	if len(deps) != 2 || deps[0] != "b" || deps[1] != "c" {
		t.Errorf("Dependents(a) = %v, want [b c]", deps)
	}
}

func TestGet_NotFound(t *testing.T) {
	c := MustNew(entity("a"))

	_, err := c.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	c := MustNew(entity("a"), entity("b"))

	list := c.List()
	list[0] = nil

	if c.List()[0] == nil {
		t.Error("List() exposed internal slice")
	}
}

func TestNew_Invalid(t *testing.T) {
	ts := func() *model.EntityType {
		return &model.EntityType{
			ID: "bars",
			Fields: []model.FieldDef{
				{Name: "symbol", Kind: model.KindString},
				{Name: "date", Kind: model.KindDate},
			},
			Key:         []string{"symbol", "date"},
			TimeSeries:  true,
			TimeField:   "date",
			SymbolField: "symbol",
		}
	}

	tests := []struct {
		name     string
		entities []*model.EntityType
		wantErr  string
	}{
		{"empty id", []*model.EntityType{entity("")}, "id is required"},
		{"duplicate", []*model.EntityType{entity("a"), entity("a")}, "duplicate entity type"},
		{"unknown dependency", []*model.EntityType{entity("a", "ghost")}, `unknown dependency "ghost"`},
		{"self dependency", []*model.EntityType{entity("a", "a")}, "depends on itself"},
		{
			"undeclared key",
			[]*model.EntityType{{ID: "a", Fields: []model.FieldDef{{Name: "x"}}, Key: []string{"y"}}},
			`key field "y"`,
		},
		{
			"reference without dependency",
			[]*model.EntityType{entity("a"), func() *model.EntityType {
				e := entity("b")
				e.References = []model.Reference{{Column: "symbol", Entity: "a"}}
				return e
			}()},
			"must also be a dependency",
		},
		{
			"time field not temporal",
			[]*model.EntityType{func() *model.EntityType {
				e := ts()
				e.Fields[1].Kind = model.KindString
				return e
			}()},
			"time field",
		},
		{
			"time-series key order",
			[]*model.EntityType{func() *model.EntityType {
				e := ts()
				e.Key = []string{"date", "symbol"}
				return e
			}()},
			"time-series key",
		},
		{
			"per-symbol without universe",
			[]*model.EntityType{func() *model.EntityType {
				e := entity("p")
				e.Source = model.SourcePerSymbol
				return e
			}()},
			"symbol universe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entities...)
			if err == nil {
				t.Fatal("New() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default()

	ids := make([]string, 0)
	for _, e := range c.List() {
		ids = append(ids, e.ID)
	}
	want := []string{StockSymbol, CompanyProfile, SP500Constituent, NasdaqConstituent, DailyChart, Dividend, KeyMetrics}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("Default ids = %v, want %v", ids, want)
	}

	chart, err := c.Get(DailyChart)
	if err != nil {
		t.Fatalf("Get(daily_chart) error = %v", err)
	}
	if !chart.TimeSeries || chart.TimeField != "date" {
		t.Errorf("daily_chart TimeSeries=%v TimeField=%q", chart.TimeSeries, chart.TimeField)
	}
	if chart.ItemsPath != "historical" {
		t.Errorf("daily_chart ItemsPath = %q, want historical", chart.ItemsPath)
	}
}

func TestDefaultEntities_FreshCopies(t *testing.T) {
	a := DefaultEntities()
	a[1].SymbolBatch = 7

	b := DefaultEntities()
	if b[1].SymbolBatch != DefaultSymbolBatch {
		t.Errorf("SymbolBatch = %d, want %d", b[1].SymbolBatch, DefaultSymbolBatch)
	}
}
