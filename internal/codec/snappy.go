package codec

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/micurley/chunkdata/pkg/types"
)

// Snappy is the JSON codec with snappy block compression applied.
type Snappy struct{}

// Name returns "snappy".
func (Snappy) Name() string { return "snappy" }

// Encode serializes records as compact JSON and compresses the result.
func (Snappy) Encode(records []types.Record, _ Options) ([]byte, error) {
	data, err := JSON{}.Encode(records, Options{})
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

// Decode decompresses and parses the JSON payload.
func (Snappy) Decode(data []byte) ([]types.Record, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("codec: snappy: %w", err)
	}
	return JSON{}.Decode(raw)
}
