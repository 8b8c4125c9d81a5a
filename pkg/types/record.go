package types

// Record is one serialized entity instance.
type Record struct {
	// Model is the entity key, e.g. "testapp.testperson"
	Model string `json:"model" yaml:"model"`

	// PK is the primary key value
	PK interface{} `json:"pk" yaml:"pk"`

	// Fields maps field names to values. Single references hold the
	// target's primary key (or its natural key as a list), multi-valued
	// references hold a list of those.
	Fields map[string]interface{} `json:"fields" yaml:"fields"`
}

// EntityCount pairs an entity with the number of records it will export.
type EntityCount struct {
	Entity *Entity
	Count  int
}
