package registry

import (
	"strings"

	"github.com/micurley/chunkdata/pkg/types"
)

// Selection is one namespace picked for export. A nil Entities slice means
// every entity of the namespace.
type Selection struct {
	Namespace *types.Namespace
	Entities  []*types.Entity
}

// All reports whether the whole namespace is selected.
func (s Selection) All() bool {
	return s.Entities == nil
}

// Expand returns the selected entities in declaration order.
func (s Selection) Expand() []*types.Entity {
	if s.All() {
		return s.Namespace.Entities
	}
	return s.Entities
}

// Exclusions holds namespaces and entities omitted from an export.
type Exclusions struct {
	Namespaces map[string]bool // keyed by lower-cased namespace name
	Entities   map[string]bool // keyed by entity key
}

// HasNamespace reports whether the namespace is excluded.
func (x Exclusions) HasNamespace(ns *types.Namespace) bool {
	return x.Namespaces[strings.ToLower(ns.Name)]
}

// HasEntity reports whether the entity is excluded.
func (x Exclusions) HasEntity(e *types.Entity) bool {
	return x.Entities[e.Key()]
}

// ParseExclusions resolves "namespace" and "namespace.Entity" labels.
// Unknown labels fail with an unknown namespace or unknown entity error.
func (r *Registry) ParseExclusions(labels []string) (Exclusions, error) {
	x := Exclusions{
		Namespaces: make(map[string]bool),
		Entities:   make(map[string]bool),
	}
	for _, label := range labels {
		if strings.Contains(label, ".") {
			e, err := r.Entity(label)
			if err != nil {
				return Exclusions{}, err
			}
			x.Entities[e.Key()] = true
			continue
		}
		ns, err := r.Namespace(label)
		if err != nil {
			return Exclusions{}, err
		}
		x.Namespaces[strings.ToLower(ns.Name)] = true
	}
	return x, nil
}

// Select turns requested labels into an ordered list of selections.
// With no labels every non-excluded namespace is selected whole. A label
// naming a whole namespace widens any earlier per-entity selection of it;
// selections keep the position of their first mention.
func (r *Registry) Select(labels []string, x Exclusions) ([]Selection, error) {
	var out []Selection
	if len(labels) == 0 {
		for _, ns := range r.namespaces {
			if !x.HasNamespace(ns) {
				out = append(out, Selection{Namespace: ns})
			}
		}
		return out, nil
	}

	index := make(map[*types.Namespace]int)
	for _, label := range labels {
		nsName, entityName, qualified := strings.Cut(label, ".")
		ns, err := r.Namespace(nsName)
		if err != nil {
			return nil, err
		}
		if x.HasNamespace(ns) {
			continue
		}

		if !qualified {
			if i, ok := index[ns]; ok {
				out[i].Entities = nil
			} else {
				index[ns] = len(out)
				out = append(out, Selection{Namespace: ns})
			}
			continue
		}

		e, err := r.Entity(ns.Name + "." + entityName)
		if err != nil {
			return nil, err
		}
		i, ok := index[ns]
		if !ok {
			index[ns] = len(out)
			out = append(out, Selection{Namespace: ns, Entities: []*types.Entity{e}})
			continue
		}
		if out[i].All() || containsEntity(out[i].Entities, e) {
			continue
		}
		out[i].Entities = append(out[i].Entities, e)
	}
	return out, nil
}

func containsEntity(list []*types.Entity, e *types.Entity) bool {
	for _, c := range list {
		if c == e {
			return true
		}
	}
	return false
}
