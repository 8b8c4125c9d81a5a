package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/micurley/chunkdata/pkg/types"
)

// JSON encodes records as a JSON array of {"model", "pk", "fields"} objects.
type JSON struct{}

// Name returns "json".
func (JSON) Name() string { return "json" }

// Encode serializes records, pretty-printed when opts.Indent > 0.
func (JSON) Encode(records []types.Record, opts Options) ([]byte, error) {
	prepared := prepare(records)
	var (
		data []byte
		err  error
	)
	if opts.Indent > 0 {
		data, err = json.MarshalIndent(prepared, "", strings.Repeat(" ", opts.Indent))
	} else {
		data, err = json.Marshal(prepared)
	}
	if err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array of records, keeping integers exact.
func (JSON) Decode(data []byte) ([]types.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	records := make([]types.Record, 0, len(raw))
	for i, m := range raw {
		r, err := fromMap(m)
		if err != nil {
			return nil, fmt.Errorf("codec: json: object %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}
