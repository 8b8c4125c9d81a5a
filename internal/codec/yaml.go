package codec

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/micurley/chunkdata/pkg/types"
)

// YAML encodes records as a YAML sequence.
type YAML struct{}

// Name returns "yaml".
func (YAML) Name() string { return "yaml" }

// Encode serializes records; opts.Indent sets the nesting width.
func (YAML) Encode(records []types.Record, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if opts.Indent > 0 {
		enc.SetIndent(opts.Indent)
	}
	if err := enc.Encode(prepare(records)); err != nil {
		return nil, fmt.Errorf("codec: yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("codec: yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a YAML sequence of records.
func (YAML) Decode(data []byte) ([]types.Record, error) {
	var raw []map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("codec: yaml: %w", err)
	}
	records := make([]types.Record, 0, len(raw))
	for i, m := range raw {
		r, err := fromMap(m)
		if err != nil {
			return nil, fmt.Errorf("codec: yaml: item %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}
