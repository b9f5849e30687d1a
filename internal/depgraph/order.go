// Package depgraph computes the creation and population order of entity
// types from their dependency edges.
package depgraph

import (
	"fmt"
	"strings"

	"github.com/rickgao/fmp-data/internal/model"
)

// CyclicDependencyError names every entity left unresolved by a cycle.
type CyclicDependencyError struct {
	IDs []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency among entity types: %s", strings.Join(e.IDs, ", "))
}

// Order returns the entities so that every entity follows all of its
// dependencies. Entities with no ordering constraint between them keep
// their input order, so the result is deterministic.
//
// Dependencies on ids absent from the input are ignored; the catalog
// rejects them before they get here.
func Order(entities []*model.EntityType) ([]*model.EntityType, error) {
	index := make(map[string]int, len(entities))
	for i, e := range entities {
		index[e.ID] = i
	}

	indegree := make([]int, len(entities))
	dependents := make([][]int, len(entities))
	for i, e := range entities {
		for _, dep := range e.DependsOn {
			j, ok := index[dep]
			if !ok {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// The ready set is scanned in declaration order on every step. Catalogs
	// hold a handful of entities so the quadratic scan is fine.
	placed := make([]bool, len(entities))
	out := make([]*model.EntityType, 0, len(entities))
	for len(out) < len(entities) {
		next := -1
		for i := range entities {
			if !placed[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}

		placed[next] = true
		out = append(out, entities[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}

	if len(out) < len(entities) {
		var ids []string
		for i, e := range entities {
			if !placed[i] {
				ids = append(ids, e.ID)
			}
		}
		return nil, &CyclicDependencyError{IDs: ids}
	}

	return out, nil
}

// IDs returns the ids of entities in order.
func IDs(entities []*model.EntityType) []string {
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}

// Level is one tier of the schedule. Entities in a level depend only on
// entities in earlier levels.
type Level struct {
	Depth    int      `json:"depth"`
	Entities []string `json:"entities"`
}

// Levels groups an ordered schedule into dependency tiers.
// The input must come from Order.
func Levels(ordered []*model.EntityType) []Level {
	depth := make(map[string]int, len(ordered))
	var levels []Level

	for _, e := range ordered {
		d := 0
		for _, dep := range e.DependsOn {
			if dd, ok := depth[dep]; ok && dd+1 > d {
				d = dd + 1
			}
		}
		depth[e.ID] = d

		for len(levels) <= d {
			levels = append(levels, Level{Depth: len(levels)})
		}
		levels[d].Entities = append(levels[d].Entities, e.ID)
	}

	return levels
}
