// Package testutil builds the testapp schema and seeded databases used by
// package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/micurley/chunkdata/internal/registry"
	"github.com/micurley/chunkdata/internal/store"
	"github.com/micurley/chunkdata/pkg/types"
)

// Seed sizes of the standard testapp fixture.
const (
	People    = 1000
	Locations = 1013
)

// TestApp returns a registry with the testapp namespace: TestPerson and
// TestLocation, in that order. fixtureDir becomes the namespace fixture
// directory when non-empty.
func TestApp(t testing.TB, fixtureDir string) *registry.Registry {
	t.Helper()

	ns := &types.Namespace{
		Name: "testapp",
		Entities: []*types.Entity{
			{
				Name: "TestPerson",
				Fields: []types.Field{
					{Name: "first_name"},
					{Name: "last_name"},
				},
			},
			{
				Name: "TestLocation",
				Fields: []types.Field{
					{Name: "name"},
					{Name: "address"},
					{Name: "city"},
					{Name: "state"},
					{Name: "postal_code"},
				},
			},
		},
	}
	if fixtureDir != "" {
		ns.FixtureDirs = []string{fixtureDir}
	}

	reg, err := registry.New([]*types.Namespace{ns})
	require.NoError(t, err)
	return reg
}

// OpenStore opens a fresh SQLite database in a temp dir with tables for
// every entity of reg. The store is closed when the test ends.
func OpenStore(t testing.TB, reg *registry.Registry) *store.SQLiteStore {
	t.Helper()

	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.sqlite3"), reg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.EnsureSchema(context.Background(), reg))
	return s
}

// PersonRecords returns n TestPerson records with primary keys 1..n.
func PersonRecords(n int) []types.Record {
	records := make([]types.Record, n)
	for i := range records {
		records[i] = types.Record{
			Model: "testapp.testperson",
			PK:    int64(i + 1),
			Fields: map[string]interface{}{
				"first_name": fmt.Sprintf("First%d", i+1),
				"last_name":  fmt.Sprintf("Last%d", i+1),
			},
		}
	}
	return records
}

// LocationRecords returns n TestLocation records with primary keys 1..n.
func LocationRecords(n int) []types.Record {
	records := make([]types.Record, n)
	for i := range records {
		records[i] = types.Record{
			Model: "testapp.testlocation",
			PK:    int64(i + 1),
			Fields: map[string]interface{}{
				"name":        fmt.Sprintf("Location %d", i+1),
				"address":     fmt.Sprintf("%d Main St", i+1),
				"city":        "Springfield",
				"state":       "IL",
				"postal_code": "62701",
			},
		}
	}
	return records
}

// Load writes records to s in one transaction.
func Load(t testing.TB, s store.Store, records []types.Record) {
	t.Helper()

	ctx := context.Background()
	tx, err := s.BeginLoad(ctx)
	require.NoError(t, err)
	n, err := tx.Write(ctx, records)
	if err != nil {
		tx.Rollback()
	}
	require.NoError(t, err)
	require.Equal(t, len(records), n)
	require.NoError(t, tx.Commit())
}

// Seeded returns a testapp registry and a store holding People persons
// and Locations locations.
func Seeded(t testing.TB, fixtureDir string) (*registry.Registry, *store.SQLiteStore) {
	t.Helper()

	reg := TestApp(t, fixtureDir)
	s := OpenStore(t, reg)
	Load(t, s, PersonRecords(People))
	Load(t, s, LocationRecords(Locations))
	return reg, s
}

// Count returns the number of records of the labeled entity in s.
func Count(t testing.TB, reg *registry.Registry, s store.Store, label string) int {
	t.Helper()

	e, err := reg.Entity(label)
	require.NoError(t, err)
	n, err := s.Count(context.Background(), e, store.QueryOptions{UseBaseManager: true})
	require.NoError(t, err)
	return n
}
