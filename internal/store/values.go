package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/micurley/chunkdata/pkg/types"
)

// timeLayouts are accepted for datetime fields on load.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// fromColumn maps a scanned column value onto the record value type.
func fromColumn(t types.FieldType, v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case int64:
		if t == types.FieldBoolean {
			return x != 0
		}
		if t == types.FieldReal {
			return float64(x)
		}
		return x
	case []byte:
		if t == types.FieldBlob {
			out := make([]byte, len(x))
			copy(out, x)
			return out
		}
		return string(x)
	case time.Time:
		return x.UTC()
	default:
		return x
	}
}

// toColumn maps a decoded record value onto what the driver stores.
func toColumn(t types.FieldType, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case types.FieldBlob:
		if s, ok := v.(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 blob: %w", err)
			}
			return b, nil
		}
	case types.FieldDateTime:
		if s, ok := v.(string); ok {
			for _, layout := range timeLayouts {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts.UTC(), nil
				}
			}
			return nil, fmt.Errorf("invalid datetime %q", s)
		}
	case types.FieldBoolean:
		if i, ok := v.(int64); ok {
			return i != 0, nil
		}
	case types.FieldReal:
		if i, ok := v.(int64); ok {
			return float64(i), nil
		}
	}
	switch v.(type) {
	case []interface{}, map[string]interface{}:
		return nil, fmt.Errorf("unexpected %T for a %s field", v, t)
	}
	return v, nil
}

// naturalKeys translates between primary keys and natural keys, caching
// lookups for the life of one fetch or load.
type naturalKeys struct {
	q      querier
	schema Schema
	keys   map[string][]interface{}
	pks    map[string]interface{}
}

func newNaturalKeys(q querier, schema Schema) *naturalKeys {
	return &naturalKeys{
		q:      q,
		schema: schema,
		keys:   make(map[string][]interface{}),
		pks:    make(map[string]interface{}),
	}
}

// keyOf returns the natural key of the target record with primary key pk.
func (n *naturalKeys) keyOf(ctx context.Context, target *types.Entity, pk interface{}) ([]interface{}, error) {
	cacheKey := fmt.Sprintf("%s/%v", target.Key(), pk)
	if key, ok := n.keys[cacheKey]; ok {
		return key, nil
	}

	fields, err := keyFields(target)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quote(f.ColumnName())
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(cols, ", "), quote(target.Table), quote(target.PrimaryKey))

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := n.q.QueryRowContext(ctx, query, pk).Scan(ptrs...); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s(pk=%v) does not exist", target.Label(), pk)
		}
		return nil, err
	}

	key := make([]interface{}, len(fields))
	for i, f := range fields {
		key[i] = fromColumn(f.Type, values[i])
		if ts, ok := key[i].(time.Time); ok {
			key[i] = ts.Format(time.RFC3339Nano)
		}
	}
	n.keys[cacheKey] = key
	return key, nil
}

// pkOf resolves a natural key of target back to its primary key.
func (n *naturalKeys) pkOf(ctx context.Context, target *types.Entity, key []interface{}) (interface{}, error) {
	fields, err := keyFields(target)
	if err != nil {
		return nil, err
	}
	if len(key) != len(fields) {
		return nil, fmt.Errorf("%s: natural key %v has %d values, want %d", target.Label(), key, len(key), len(fields))
	}

	cacheKey := fmt.Sprintf("%s/%v", target.Key(), key)
	if pk, ok := n.pks[cacheKey]; ok {
		return pk, nil
	}

	conds := make([]string, len(fields))
	args := make([]interface{}, len(fields))
	for i, f := range fields {
		conds[i] = quote(f.ColumnName()) + " = ?"
		v, err := toColumn(f.Type, key[i])
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		quote(target.PrimaryKey), quote(target.Table), strings.Join(conds, " AND "))

	var pk interface{}
	if err := n.q.QueryRowContext(ctx, query, args...).Scan(&pk); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s matching natural key %v does not exist", target.Label(), key)
		}
		return nil, err
	}
	pk = fromColumn(types.FieldInteger, pk)
	n.pks[cacheKey] = pk
	return pk, nil
}

func keyFields(e *types.Entity) ([]types.Field, error) {
	fields := make([]types.Field, len(e.NaturalKey))
	for i, name := range e.NaturalKey {
		if name == e.PrimaryKey {
			fields[i] = types.Field{Name: name, Type: types.FieldInteger}
			continue
		}
		f, ok := e.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s: natural key field %q is not defined", e.Label(), name)
		}
		fields[i] = f
	}
	return fields, nil
}
