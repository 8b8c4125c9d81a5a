package store

import (
	"context"
	"fmt"
	"strings"

	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/pkg/types"
)

// EntityLister yields every registered entity.
type EntityLister interface {
	Entities() []*types.Entity
	Schema
}

// EnsureSchema creates the tables of every non-proxy entity, plus join
// tables for multi-valued references, if they do not exist yet.
func (s *SQLiteStore) EnsureSchema(ctx context.Context, reg EntityLister) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerrors.NewStorageError(cerrors.CodeWriteFailed, "failed to begin schema transaction", err)
	}
	defer tx.Rollback()

	for _, e := range reg.Entities() {
		if e.Proxy {
			continue
		}
		stmts, err := createStatements(e, reg)
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return cerrors.NewStorageError(cerrors.CodeWriteFailed,
					fmt.Sprintf("failed to create table for %s", e.Label()), err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return cerrors.NewStorageError(cerrors.CodeWriteFailed, "failed to commit schema", err)
	}
	return nil
}

func createStatements(e *types.Entity, reg Schema) ([]string, error) {
	defs := []string{quote(e.PrimaryKey) + " INTEGER PRIMARY KEY"}
	var fks, stmts []string

	for _, f := range e.Fields {
		if f.Many {
			target, err := reg.Entity(f.Ref)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s (from_id INTEGER NOT NULL REFERENCES %s(%s), "+
					"to_id INTEGER NOT NULL REFERENCES %s(%s), PRIMARY KEY (from_id, to_id))",
				quote(f.Through), quote(e.Table), quote(e.PrimaryKey), quote(target.Table), quote(target.PrimaryKey)))
			continue
		}

		def := quote(f.ColumnName()) + " " + columnType(f.Type)
		if !f.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)

		if f.IsRef() {
			target, err := reg.Entity(f.Ref)
			if err != nil {
				return nil, err
			}
			fks = append(fks, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
				quote(f.ColumnName()), quote(target.Table), quote(target.PrimaryKey)))
		}
	}

	table := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quote(e.Table), strings.Join(append(defs, fks...), ", "))
	return append([]string{table}, stmts...), nil
}

// columnType returns the declared SQLite type. The driver uses declared
// types to return booleans and timestamps as Go values.
func columnType(t types.FieldType) string {
	switch t {
	case types.FieldInteger:
		return "INTEGER"
	case types.FieldReal:
		return "REAL"
	case types.FieldBoolean:
		return "BOOLEAN"
	case types.FieldBlob:
		return "BLOB"
	case types.FieldDateTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}
