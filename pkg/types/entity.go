// Package types provides the core data types shared by chunkdata packages.
package types

import "strings"

// FieldType is the storage type of an entity field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldInteger  FieldType = "integer"
	FieldReal     FieldType = "real"
	FieldBoolean  FieldType = "boolean"
	FieldBlob     FieldType = "blob"
	FieldDateTime FieldType = "datetime"
)

// Namespace groups entities, the way an application groups its models.
type Namespace struct {
	// Name is the namespace label used on the command line
	Name string `json:"name" yaml:"name"`

	// FixtureDirs are directories searched for this namespace's fixtures
	FixtureDirs []string `json:"fixture_dirs,omitempty" yaml:"fixture_dirs,omitempty"`

	// Entities are kept in declaration order
	Entities []*Entity `json:"entities" yaml:"entities"`
}

// Entity describes one record kind (a table).
type Entity struct {
	// Namespace is filled in from the enclosing Namespace at registration
	Namespace string `json:"-" yaml:"-"`

	// Name is the local entity name, e.g. "TestPerson"
	Name string `json:"name" yaml:"name"`

	// Table is the backing table; defaults to namespace_name lower-cased
	Table string `json:"table,omitempty" yaml:"table,omitempty"`

	// PrimaryKey is the primary key column; defaults to "id"
	PrimaryKey string `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`

	// Fields are the non-primary-key fields in declaration order
	Fields []Field `json:"fields" yaml:"fields"`

	// NaturalKey lists the fields forming the entity's natural identity.
	// A non-empty list is what marks an entity as having one.
	NaturalKey []string `json:"natural_key,omitempty" yaml:"natural_key,omitempty"`

	// NaturalKeyDependencies are labels of entities whose natural keys
	// must be loadable before this entity's natural key can be resolved
	NaturalKeyDependencies []string `json:"natural_key_dependencies,omitempty" yaml:"natural_key_dependencies,omitempty"`

	// Proxy marks view-only entities that share another entity's table
	Proxy bool `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// Databases restricts which connection aliases the entity syncs to.
	// Empty means every alias.
	Databases []string `json:"databases,omitempty" yaml:"databases,omitempty"`

	// DefaultFilter is a SQL predicate applied to queries unless the base
	// manager is requested
	DefaultFilter string `json:"default_filter,omitempty" yaml:"default_filter,omitempty"`
}

// Field describes one column or reference of an entity.
type Field struct {
	// Name is the field name used in serialized records
	Name string `json:"name" yaml:"name"`

	// Column is the backing column; defaults to Name
	Column string `json:"column,omitempty" yaml:"column,omitempty"`

	// Type is the storage type; references default to integer
	Type FieldType `json:"type,omitempty" yaml:"type,omitempty"`

	// Nullable allows NULL values
	Nullable bool `json:"nullable,omitempty" yaml:"nullable,omitempty"`

	// Ref is the label of the referenced entity, empty for plain fields
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty"`

	// Many marks a multi-valued reference stored in a through table
	Many bool `json:"many,omitempty" yaml:"many,omitempty"`

	// Through is the join table of a multi-valued reference
	Through string `json:"through,omitempty" yaml:"through,omitempty"`
}

// Label returns the qualified "namespace.Name" label.
func (e *Entity) Label() string {
	return e.Namespace + "." + e.Name
}

// Key returns the lower-cased label used as the record model identifier.
func (e *Entity) Key() string {
	return strings.ToLower(e.Label())
}

// HasNaturalKey reports whether the entity can be identified by its
// natural key instead of its primary key.
func (e *Entity) HasNaturalKey() bool {
	return len(e.NaturalKey) > 0
}

// AllowsDatabase reports whether the entity may be synced to alias.
func (e *Entity) AllowsDatabase(alias string) bool {
	if len(e.Databases) == 0 {
		return true
	}
	for _, db := range e.Databases {
		if db == alias {
			return true
		}
	}
	return false
}

// Field returns the field with the given name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ColumnName returns the backing column of the field.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// IsRef reports whether the field references another entity.
func (f Field) IsRef() bool {
	return f.Ref != ""
}
