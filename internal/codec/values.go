package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/micurley/chunkdata/pkg/types"
)

// maxExactFloat is the largest integer a float64 holds exactly.
const maxExactFloat = 1 << 53

// normalize maps decoded values onto the small set of Go types the store
// understands: int64, float64, string, bool, nil, []interface{} and
// map[string]interface{}. Integral floats become int64.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return normalize(f)
		}
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= maxExactFloat {
			return int64(x)
		}
		return x
	case float32:
		return normalize(float64(x))
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x)
		}
		return float64(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = normalize(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = normalize(item)
		}
		return out
	default:
		return v
	}
}

// wireValue converts stored values into types every codec can carry.
// Blobs travel as base64 text and timestamps as RFC 3339 strings.
func wireValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x
	case int:
		return int64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = wireValue(item)
		}
		return out
	default:
		return fmt.Sprint(x)
	}
}

// toMap flattens a record into a generic map for codecs that work on
// dynamic trees.
func toMap(r types.Record) map[string]interface{} {
	fields := make(map[string]interface{}, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = wireValue(v)
	}
	return map[string]interface{}{
		"model":  r.Model,
		"pk":     wireValue(r.PK),
		"fields": fields,
	}
}

// fromMap is the inverse of toMap.
func fromMap(m map[string]interface{}) (types.Record, error) {
	model, ok := m["model"].(string)
	if !ok || model == "" {
		return types.Record{}, fmt.Errorf("record has no model")
	}
	r := types.Record{Model: model, PK: normalize(m["pk"]), Fields: map[string]interface{}{}}
	if raw, ok := m["fields"]; ok && raw != nil {
		fields, ok := raw.(map[string]interface{})
		if !ok {
			return types.Record{}, fmt.Errorf("%s: fields is %T, not an object", model, raw)
		}
		for k, v := range fields {
			r.Fields[k] = normalize(v)
		}
	}
	return r, nil
}

// prepare returns a non-nil copy of records with wire-safe values, so
// encoders never emit null for an empty list or a missing fields map.
func prepare(records []types.Record) []types.Record {
	out := make([]types.Record, len(records))
	for i, r := range records {
		fields := make(map[string]interface{}, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = wireValue(v)
		}
		out[i] = types.Record{Model: r.Model, PK: wireValue(r.PK), Fields: fields}
	}
	return out
}
