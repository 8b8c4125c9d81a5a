// Package registry holds the entity descriptors known to chunkdata.
// Descriptors are registered once at start-up from a schema file and looked
// up by label afterwards; nothing is discovered at runtime.
package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/pkg/types"
)

// Registry is an ordered collection of namespaces and their entities.
type Registry struct {
	namespaces []*types.Namespace
	byName     map[string]*types.Namespace
	byKey      map[string]*types.Entity
}

// schemaFile is the on-disk layout of a schema file.
type schemaFile struct {
	Namespaces []*types.Namespace `yaml:"namespaces"`
}

// Load reads and parses a YAML schema file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML schema data.
func Parse(data []byte) (*Registry, error) {
	var sf schemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCategoryRegistry, cerrors.CodeInvalidSchema, "failed to parse schema", err)
	}
	return New(sf.Namespaces)
}

// New registers the given namespaces, filling defaults and validating
// every reference. The namespaces are modified in place.
func New(namespaces []*types.Namespace) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*types.Namespace),
		byKey:  make(map[string]*types.Entity),
	}

	for _, ns := range namespaces {
		if ns == nil || ns.Name == "" {
			return nil, cerrors.NewSchemaError("namespace name is required")
		}
		if strings.Contains(ns.Name, ".") {
			return nil, cerrors.NewSchemaError(fmt.Sprintf("namespace name %q must not contain '.'", ns.Name))
		}
		nsKey := strings.ToLower(ns.Name)
		if _, dup := r.byName[nsKey]; dup {
			return nil, cerrors.NewSchemaError(fmt.Sprintf("duplicate namespace %q", ns.Name))
		}
		r.byName[nsKey] = ns
		r.namespaces = append(r.namespaces, ns)

		for _, e := range ns.Entities {
			if e == nil || e.Name == "" {
				return nil, cerrors.NewSchemaError(fmt.Sprintf("entity in namespace %q has no name", ns.Name))
			}
			e.Namespace = ns.Name
			applyDefaults(e)
			if _, dup := r.byKey[e.Key()]; dup {
				return nil, cerrors.NewSchemaError(fmt.Sprintf("duplicate entity %q", e.Label()))
			}
			r.byKey[e.Key()] = e
		}
	}

	for _, e := range r.Entities() {
		if err := r.validate(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func applyDefaults(e *types.Entity) {
	if e.Table == "" {
		e.Table = strings.ToLower(e.Namespace + "_" + e.Name)
	}
	if e.PrimaryKey == "" {
		e.PrimaryKey = "id"
	}
	for i := range e.Fields {
		f := &e.Fields[i]
		if f.Type == "" {
			if f.IsRef() {
				f.Type = types.FieldInteger
			} else {
				f.Type = types.FieldText
			}
		}
		if f.Many && f.Through == "" {
			f.Through = e.Table + "_" + f.Name
		}
	}
}

func (r *Registry) validate(e *types.Entity) error {
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return cerrors.NewSchemaError(fmt.Sprintf("%s: field name is required", e.Label()))
		}
		if seen[f.Name] || f.Name == e.PrimaryKey {
			return cerrors.NewSchemaError(fmt.Sprintf("%s: duplicate field %q", e.Label(), f.Name))
		}
		seen[f.Name] = true

		switch f.Type {
		case types.FieldText, types.FieldInteger, types.FieldReal, types.FieldBoolean, types.FieldBlob, types.FieldDateTime:
		default:
			return cerrors.NewSchemaError(fmt.Sprintf("%s.%s: unknown field type %q", e.Label(), f.Name, f.Type))
		}

		if f.Many && !f.IsRef() {
			return cerrors.NewSchemaError(fmt.Sprintf("%s.%s: many requires ref", e.Label(), f.Name))
		}
		if f.IsRef() {
			if _, err := r.Entity(f.Ref); err != nil {
				return cerrors.NewSchemaError(fmt.Sprintf("%s.%s: unknown ref %q", e.Label(), f.Name, f.Ref))
			}
		}
	}

	for _, name := range e.NaturalKey {
		if name == e.PrimaryKey {
			continue
		}
		f, ok := e.Field(name)
		if !ok {
			return cerrors.NewSchemaError(fmt.Sprintf("%s: natural key field %q is not declared", e.Label(), name))
		}
		if f.Many {
			return cerrors.NewSchemaError(fmt.Sprintf("%s: natural key field %q is multi-valued", e.Label(), name))
		}
	}
	for _, dep := range e.NaturalKeyDependencies {
		if _, err := r.Entity(dep); err != nil {
			return cerrors.NewSchemaError(fmt.Sprintf("%s: unknown natural key dependency %q", e.Label(), dep))
		}
	}
	return nil
}

// Namespaces returns all namespaces in registration order.
func (r *Registry) Namespaces() []*types.Namespace {
	return r.namespaces
}

// Entities returns every entity, namespace by namespace, in registration order.
func (r *Registry) Entities() []*types.Entity {
	var out []*types.Entity
	for _, ns := range r.namespaces {
		out = append(out, ns.Entities...)
	}
	return out
}

// Namespace looks up a namespace by name, case-insensitively.
func (r *Registry) Namespace(name string) (*types.Namespace, error) {
	ns, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, cerrors.NewUnknownNamespaceError(name)
	}
	return ns, nil
}

// Entity looks up an entity by its "namespace.Name" label, case-insensitively.
func (r *Registry) Entity(label string) (*types.Entity, error) {
	e, ok := r.byKey[strings.ToLower(label)]
	if !ok {
		return nil, cerrors.NewUnknownEntityError(label)
	}
	return e, nil
}
