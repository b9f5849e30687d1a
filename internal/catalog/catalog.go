// Package catalog holds the static description of every entity type the
// pipeline imports: schema, provider endpoint and dependency edges.
//
// A Catalog is immutable after New. Adding an index or market is done by
// declaring one more EntityType with the right DependsOn.
package catalog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rickgao/fmp-data/internal/model"
)

// ErrNotFound is returned by Get for unknown entity ids.
var ErrNotFound = errors.New("entity type not found")

// Catalog is a read-only set of entity types in declaration order.
type Catalog struct {
	entities []*model.EntityType
	byID     map[string]*model.EntityType
}

// New validates the entity types and builds a catalog.
// Cycles are not rejected here; depgraph.Order reports them.
func New(entities ...*model.EntityType) (*Catalog, error) {
	c := &Catalog{
		entities: make([]*model.EntityType, 0, len(entities)),
		byID:     make(map[string]*model.EntityType, len(entities)),
	}

	for _, e := range entities {
		if e == nil || e.ID == "" {
			return nil, errors.New("entity type id is required")
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("duplicate entity type %q", e.ID)
		}
		if err := validateEntity(e); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.ID, err)
		}
		c.entities = append(c.entities, e)
		c.byID[e.ID] = e
	}

	for _, e := range c.entities {
		for _, dep := range e.DependsOn {
			if _, ok := c.byID[dep]; !ok {
				return nil, fmt.Errorf("entity %s: unknown dependency %q", e.ID, dep)
			}
		}
		if e.SymbolsFrom != "" {
			if _, ok := c.byID[e.SymbolsFrom]; !ok {
				return nil, fmt.Errorf("entity %s: unknown symbol source %q", e.ID, e.SymbolsFrom)
			}
		}
	}

	return c, nil
}

// MustNew is New for package-level declarations; it panics on error.
func MustNew(entities ...*model.EntityType) *Catalog {
	c, err := New(entities...)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns all entity types in declaration order.
func (c *Catalog) List() []*model.EntityType {
	return slices.Clone(c.entities)
}

// Get returns the entity type with the given id.
func (c *Catalog) Get(id string) (*model.EntityType, error) {
	e, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Dependents returns the ids of entities that depend directly on id.
func (c *Catalog) Dependents(id string) []string {
	var out []string
	for _, e := range c.entities {
		if slices.Contains(e.DependsOn, id) {
			out = append(out, e.ID)
		}
	}
	return out
}

func validateEntity(e *model.EntityType) error {
	if len(e.Fields) == 0 {
		return errors.New("no fields")
	}
	if len(e.Key) == 0 {
		return errors.New("natural key is required")
	}

	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return errors.New("field name is required")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}

	for _, k := range e.Key {
		if !seen[k] {
			return fmt.Errorf("key field %q is not declared", k)
		}
	}

	if slices.Contains(e.DependsOn, e.ID) {
		return errors.New("entity depends on itself")
	}

	for _, ref := range e.References {
		if !seen[ref.Column] {
			return fmt.Errorf("reference column %q is not declared", ref.Column)
		}
		if !slices.Contains(e.DependsOn, ref.Entity) {
			return fmt.Errorf("reference to %q must also be a dependency", ref.Entity)
		}
	}

	if e.TimeSeries {
		tf, ok := e.Field(e.TimeField)
		if !ok || !tf.Kind.IsTemporal() {
			return fmt.Errorf("time field %q must be a declared date or timestamp", e.TimeField)
		}
		if !seen[e.SymbolField] {
			return fmt.Errorf("symbol field %q is not declared", e.SymbolField)
		}
		if !slices.Equal(e.Key, []string{e.SymbolField, e.TimeField}) {
			return fmt.Errorf("time-series key must be (%s, %s)", e.SymbolField, e.TimeField)
		}
	}

	if e.Source == model.SourcePerSymbol && e.SymbolsFrom == "" {
		return errors.New("per-symbol source needs a symbol universe entity")
	}

	return nil
}
