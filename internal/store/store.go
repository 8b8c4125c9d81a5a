// Package store reads and writes entity records in a relational database.
package store

import (
	"context"

	"github.com/micurley/chunkdata/pkg/types"
)

// DefaultAlias is the connection alias used when none is given.
const DefaultAlias = "default"

// QueryOptions controls how records are read.
type QueryOptions struct {
	// UseBaseManager skips the entity's default filter.
	UseBaseManager bool

	// UseNaturalKeys renders references to entities with a natural key as
	// the target's natural key instead of its primary key.
	UseNaturalKeys bool
}

// Store is a record store bound to one database.
type Store interface {
	// Count returns how many records of e a Fetch would see.
	Count(ctx context.Context, e *types.Entity, opts QueryOptions) (int, error)

	// Fetch returns up to limit records of e ordered by primary key,
	// skipping the first offset. A limit below zero means no limit.
	Fetch(ctx context.Context, e *types.Entity, opts QueryOptions, offset, limit int) ([]types.Record, error)

	// BeginLoad starts a write transaction.
	BeginLoad(ctx context.Context) (LoadTx, error)

	// Close releases the underlying database.
	Close() error
}

// LoadTx writes records inside a single transaction. Foreign keys are
// checked at commit, so records may arrive in any order within it.
type LoadTx interface {
	// Write upserts records and returns how many were written.
	Write(ctx context.Context, records []types.Record) (int, error)
	Commit() error
	Rollback() error
}

// Schema resolves record model identifiers to entities.
type Schema interface {
	Entity(label string) (*types.Entity, error)
}

// RecordSource adapts a Store to a fixed set of query options.
type RecordSource struct {
	Store   Store
	Options QueryOptions
}

// Fetch reads a page of records of e.
func (s RecordSource) Fetch(ctx context.Context, e *types.Entity, offset, limit int) ([]types.Record, error) {
	return s.Store.Fetch(ctx, e, s.Options, offset, limit)
}
