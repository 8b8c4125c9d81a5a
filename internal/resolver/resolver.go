// Package resolver orders entities so that every entity referenced through
// a natural key is exported before the entities that depend on it.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/internal/registry"
	"github.com/micurley/chunkdata/pkg/types"
)

// Lookup resolves an entity label to its descriptor.
type Lookup interface {
	Entity(label string) (*types.Entity, error)
}

// Candidate is an entity paired with the entities it depends on.
type Candidate struct {
	Entity *types.Entity
	Deps   []*types.Entity
}

// Dependencies derives the dependency list of e: the declared natural key
// dependencies (only when e has a natural key itself) followed by the
// target of every reference field whose target has a natural key.
// Self references and labels the lookup cannot resolve are skipped.
func Dependencies(e *types.Entity, lookup Lookup) []*types.Entity {
	var deps []*types.Entity
	if e.HasNaturalKey() {
		for _, label := range e.NaturalKeyDependencies {
			if d, err := lookup.Entity(label); err == nil && d != e {
				deps = append(deps, d)
			}
		}
	}
	for _, f := range e.Fields {
		if !f.IsRef() {
			continue
		}
		target, err := lookup.Entity(f.Ref)
		if err != nil || target == e {
			continue
		}
		if target.HasNaturalKey() {
			deps = append(deps, target)
		}
	}
	return deps
}

// Resolve orders candidates by repeated promotion. Each pass scans the
// remaining candidates in order and promotes every candidate whose
// dependencies are all either already promoted or outside the candidate
// set. A pass that promotes nothing means the remainder is circular.
func Resolve(candidates []Candidate) ([]*types.Entity, error) {
	inSet := make(map[*types.Entity]bool, len(candidates))
	for _, c := range candidates {
		inSet[c.Entity] = true
	}

	ordered := make([]*types.Entity, 0, len(candidates))
	done := make(map[*types.Entity]bool, len(candidates))
	remaining := candidates

	for len(remaining) > 0 {
		var skipped []Candidate
		changed := false
		for _, c := range remaining {
			if done[c.Entity] {
				// duplicate candidate
				changed = true
				continue
			}
			if satisfied(c.Deps, inSet, done) {
				ordered = append(ordered, c.Entity)
				done[c.Entity] = true
				changed = true
			} else {
				skipped = append(skipped, c)
			}
		}
		if !changed {
			return nil, circularError(skipped)
		}
		remaining = skipped
	}
	return ordered, nil
}

func satisfied(deps []*types.Entity, inSet, done map[*types.Entity]bool) bool {
	for _, d := range deps {
		if inSet[d] && !done[d] {
			return false
		}
	}
	return true
}

func circularError(skipped []Candidate) error {
	entities := make([]*types.Entity, len(skipped))
	for i, c := range skipped {
		entities[i] = c.Entity
	}
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Name != entities[j].Name {
			return entities[i].Name < entities[j].Name
		}
		return entities[i].Namespace < entities[j].Namespace
	})

	labels := make([]string, len(entities))
	for i, e := range entities {
		labels[i] = e.Label()
	}
	err := cerrors.NewCircularDependencyError(fmt.Sprintf(
		"can't resolve dependencies for %s in serialized app list", strings.Join(labels, ", ")))
	return err.WithDetails(map[string]interface{}{"entities": labels})
}

// Sort expands the selections into candidates, in selection order, and
// resolves them into a single export order.
func Sort(selections []registry.Selection, lookup Lookup) ([]*types.Entity, error) {
	var candidates []Candidate
	for _, sel := range selections {
		for _, e := range sel.Expand() {
			candidates = append(candidates, Candidate{Entity: e, Deps: Dependencies(e, lookup)})
		}
	}
	return Resolve(candidates)
}
