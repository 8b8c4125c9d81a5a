package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/pkg/types"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLiteStore implements Store on a SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	schema Schema
}

// OpenSQLite opens (creating if needed) the database at path with foreign
// key enforcement on.
func OpenSQLite(ctx context.Context, path string, schema Schema) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	// Single writer; the deferred foreign key pragma is per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to ping database: %w", err)
	}
	return &SQLiteStore{db: db, path: path, schema: schema}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Count returns the number of visible records of e.
func (s *SQLiteStore) Count(ctx context.Context, e *types.Entity, opts QueryOptions) (int, error) {
	query := "SELECT COUNT(*) FROM " + quote(e.Table) + whereClause(e, opts)
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, cerrors.NewStorageError(cerrors.CodeQueryFailed, "failed to count "+e.Label(), err)
	}
	return n, nil
}

// Fetch returns a page of records of e ordered by primary key.
func (s *SQLiteStore) Fetch(ctx context.Context, e *types.Entity, opts QueryOptions, offset, limit int) ([]types.Record, error) {
	records, err := s.fetch(ctx, e, opts, offset, limit)
	if err != nil {
		return nil, cerrors.NewStorageError(cerrors.CodeQueryFailed, "failed to fetch "+e.Label(), err)
	}
	return records, nil
}

func (s *SQLiteStore) fetch(ctx context.Context, e *types.Entity, opts QueryOptions, offset, limit int) ([]types.Record, error) {
	fields := columnFields(e)
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, quote(e.PrimaryKey))
	for _, f := range fields {
		cols = append(cols, quote(f.ColumnName()))
	}

	if limit < 0 {
		limit = -1
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT ? OFFSET ?",
		strings.Join(cols, ", "), quote(e.Table), whereClause(e, opts), quote(e.PrimaryKey))

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}

	var records []types.Record
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			rows.Close()
			return nil, err
		}
		r := types.Record{
			Model:  e.Key(),
			PK:     fromColumn(types.FieldInteger, values[0]),
			Fields: make(map[string]interface{}, len(e.Fields)),
		}
		for i, f := range fields {
			r.Fields[f.Name] = fromColumn(f.Type, values[i+1])
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Follow-up queries run after the cursor is closed; the pool holds a
	// single connection.
	nk := newNaturalKeys(s.db, s.schema)
	for i := range records {
		if err := s.fillRefs(ctx, nk, e, opts, &records[i]); err != nil {
			return nil, err
		}
	}
	if records == nil {
		records = []types.Record{}
	}
	return records, nil
}

// fillRefs loads multi-valued references and applies natural key
// rendering to every reference of r.
func (s *SQLiteStore) fillRefs(ctx context.Context, nk *naturalKeys, e *types.Entity, opts QueryOptions, r *types.Record) error {
	for _, f := range e.Fields {
		if !f.IsRef() {
			continue
		}
		target, err := s.schema.Entity(f.Ref)
		if err != nil {
			return err
		}
		natural := opts.UseNaturalKeys && target.HasNaturalKey()

		if f.Many {
			ids, err := s.throughIDs(ctx, f, r.PK)
			if err != nil {
				return err
			}
			values := make([]interface{}, len(ids))
			for i, id := range ids {
				values[i] = id
				if natural {
					if values[i], err = nk.keyOf(ctx, target, id); err != nil {
						return err
					}
				}
			}
			r.Fields[f.Name] = values
			continue
		}

		if natural && r.Fields[f.Name] != nil {
			key, err := nk.keyOf(ctx, target, r.Fields[f.Name])
			if err != nil {
				return err
			}
			r.Fields[f.Name] = key
		}
	}
	return nil
}

func (s *SQLiteStore) throughIDs(ctx context.Context, f types.Field, from interface{}) ([]interface{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT to_id FROM "+quote(f.Through)+" WHERE from_id = ? ORDER BY to_id", from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []interface{}{}
	for rows.Next() {
		var id interface{}
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, fromColumn(types.FieldInteger, id))
	}
	return ids, rows.Err()
}

// BeginLoad starts a transaction with foreign key checks deferred to
// commit.
func (s *SQLiteStore) BeginLoad(ctx context.Context) (LoadTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, cerrors.NewStorageError(cerrors.CodeLoadFailed, "failed to begin transaction", err)
	}
	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		tx.Rollback()
		return nil, cerrors.NewStorageError(cerrors.CodeLoadFailed, "failed to defer foreign keys", err)
	}
	return &sqliteTx{tx: tx, schema: s.schema, nk: newNaturalKeys(tx, s.schema)}, nil
}

type sqliteTx struct {
	tx     *sql.Tx
	schema Schema
	nk     *naturalKeys
}

func (t *sqliteTx) Write(ctx context.Context, records []types.Record) (int, error) {
	for i, r := range records {
		e, err := t.schema.Entity(r.Model)
		if err != nil {
			return i, err
		}
		if err := t.write(ctx, e, r); err != nil {
			return i, cerrors.NewStorageError(cerrors.CodeLoadFailed,
				fmt.Sprintf("failed to load %s(pk=%v)", e.Key(), r.PK), err)
		}
	}
	return len(records), nil
}

func (t *sqliteTx) write(ctx context.Context, e *types.Entity, r types.Record) error {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		cols []string
		args []interface{}
		many []types.Field
	)
	if r.PK != nil {
		cols = append(cols, quote(e.PrimaryKey))
		args = append(args, r.PK)
	}
	for _, name := range names {
		f, ok := e.Field(name)
		if !ok {
			return fmt.Errorf("unknown field %q", name)
		}
		if f.Many {
			many = append(many, f)
			continue
		}
		v, err := t.toColumn(ctx, f, r.Fields[name])
		if err != nil {
			return err
		}
		cols = append(cols, quote(f.ColumnName()))
		args = append(args, v)
	}

	res, err := t.tx.ExecContext(ctx, upsertStatement(e, cols), args...)
	if err != nil {
		return err
	}
	pk := r.PK
	if pk == nil {
		if pk, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	for _, f := range many {
		if err := t.writeThrough(ctx, f, pk, r.Fields[f.Name]); err != nil {
			return err
		}
	}
	return nil
}

// toColumn converts a decoded field value to what the driver stores,
// resolving natural keys of references.
func (t *sqliteTx) toColumn(ctx context.Context, f types.Field, v interface{}) (interface{}, error) {
	if f.IsRef() {
		return t.resolveRef(ctx, f, v)
	}
	return toColumn(f.Type, v)
}

func (t *sqliteTx) resolveRef(ctx context.Context, f types.Field, v interface{}) (interface{}, error) {
	key, ok := v.([]interface{})
	if !ok {
		return v, nil
	}
	target, err := t.schema.Entity(f.Ref)
	if err != nil {
		return nil, err
	}
	return t.nk.pkOf(ctx, target, key)
}

func (t *sqliteTx) writeThrough(ctx context.Context, f types.Field, from, v interface{}) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+quote(f.Through)+" WHERE from_id = ?", from); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("field %q: expected a list, got %T", f.Name, v)
	}
	insert := "INSERT OR IGNORE INTO " + quote(f.Through) + " (from_id, to_id) VALUES (?, ?)"
	for _, item := range items {
		to, err := t.resolveRef(ctx, f, item)
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(ctx, insert, from, to); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return cerrors.NewStorageError(cerrors.CodeLoadFailed, "failed to commit", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// upsertStatement inserts a row, updating the given columns when the
// primary key already exists.
func upsertStatement(e *types.Entity, cols []string) string {
	table := quote(e.Table)
	if len(cols) == 0 {
		return "INSERT INTO " + table + " DEFAULT VALUES"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)

	pk := quote(e.PrimaryKey)
	if cols[0] != pk {
		return stmt
	}
	if len(cols) == 1 {
		return stmt + " ON CONFLICT(" + pk + ") DO NOTHING"
	}
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	return stmt + " ON CONFLICT(" + pk + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

func whereClause(e *types.Entity, opts QueryOptions) string {
	if opts.UseBaseManager || e.DefaultFilter == "" {
		return ""
	}
	return " WHERE " + e.DefaultFilter
}

// columnFields returns the fields stored as columns of the entity table.
func columnFields(e *types.Entity) []types.Field {
	fields := make([]types.Field, 0, len(e.Fields))
	for _, f := range e.Fields {
		if !f.Many {
			fields = append(fields, f)
		}
	}
	return fields
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
