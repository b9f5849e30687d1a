package depgraph

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/rickgao/fmp-data/internal/catalog"
	"github.com/rickgao/fmp-data/internal/model"
)

func e(id string, deps ...string) *model.EntityType {
	return &model.EntityType{ID: id, DependsOn: deps}
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name     string
		entities []*model.EntityType
		want     []string
	}{
		{
			name:     "no dependencies keeps declaration order",
			entities: []*model.EntityType{e("c"), e("a"), e("b")},
			want:     []string{"c", "a", "b"},
		},
		{
			name:     "dependency declared after dependent",
			entities: []*model.EntityType{e("profile", "symbols"), e("symbols")},
			want:     []string{"symbols", "profile"},
		},
		{
			name: "symbols profile daily bar",
			entities: []*model.EntityType{
				e("Symbols"),
				e("CompanyProfile", "Symbols"),
				e("DailyBar", "Symbols"),
			},
			want: []string{"Symbols", "CompanyProfile", "DailyBar"},
		},
		{
			name: "diamond",
			entities: []*model.EntityType{
				e("d", "b", "c"),
				e("c", "a"),
				e("b", "a"),
				e("a"),
			},
			want: []string{"a", "c", "b", "d"},
		},
		{
			name: "independent entity is not delayed",
			entities: []*model.EntityType{
				e("late", "base"),
				e("free"),
				e("base"),
			},
			want: []string{"free", "base", "late"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Order(tt.entities)
			if err != nil {
				t.Fatalf("Order() error = %v", err)
			}
			if ids := IDs(got); !slices.Equal(ids, tt.want) {
				t.Errorf("Order() = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestOrder_DependenciesPrecede(t *testing.T) {
	entities := catalog.Default().List()

	ordered, err := Order(entities)
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}

	pos := make(map[string]int)
	for i, et := range ordered {
		pos[et.ID] = i
	}
	for _, et := range ordered {
		for _, dep := range et.DependsOn {
			if pos[dep] >= pos[et.ID] {
				t.Errorf("%s (pos %d) does not precede %s (pos %d)", dep, pos[dep], et.ID, pos[et.ID])
			}
		}
	}

	again, _ := Order(entities)
	if !slices.Equal(IDs(ordered), IDs(again)) {
		t.Errorf("Order() not deterministic: %v vs %v", IDs(ordered), IDs(again))
	}
}

func TestOrder_Cycle(t *testing.T) {
	tests := []struct {
		name     string
		entities []*model.EntityType
		wantIDs  []string
	}{
		{
			name:     "two node cycle",
			entities: []*model.EntityType{e("A", "B"), e("B", "A")},
			wantIDs:  []string{"A", "B"},
		},
		{
			name:     "cycle behind a valid prefix",
			entities: []*model.EntityType{e("root"), e("x", "root", "z"), e("y", "x"), e("z", "y")},
			wantIDs:  []string{"x", "y", "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Order(tt.entities)
			if got != nil {
				t.Errorf("Order() = %v, want nil on cycle", IDs(got))
			}

			var cycErr *CyclicDependencyError
			if !errors.As(err, &cycErr) {
				t.Fatalf("Order() error = %v, want *CyclicDependencyError", err)
			}
			if !slices.Equal(cycErr.IDs, tt.wantIDs) {
				t.Errorf("IDs = %v, want %v", cycErr.IDs, tt.wantIDs)
			}
			for _, id := range tt.wantIDs {
				if !strings.Contains(err.Error(), id) {
					t.Errorf("error %q does not name %s", err, id)
				}
			}
		})
	}
}

func TestLevels(t *testing.T) {
	ordered, err := Order(catalog.Default().List())
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}

	levels := Levels(ordered)
	if len(levels) != 3 {
		t.Fatalf("len(Levels) = %d, want 3", len(levels))
	}

	want := [][]string{
		{catalog.StockSymbol},
		{catalog.CompanyProfile, catalog.DailyChart, catalog.Dividend, catalog.KeyMetrics},
		{catalog.SP500Constituent, catalog.NasdaqConstituent},
	}
	for i, w := range want {
		if !slices.Equal(levels[i].Entities, w) {
			t.Errorf("level %d = %v, want %v", i, levels[i].Entities, w)
		}
		if levels[i].Depth != i {
			t.Errorf("level %d Depth = %d", i, levels[i].Depth)
		}
	}
}
