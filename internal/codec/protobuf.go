package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/micurley/chunkdata/pkg/types"
)

// Protobuf encodes records as a binary google.protobuf.ListValue of
// Struct messages. Numbers travel as doubles, so integers beyond 2^53 lose
// precision.
type Protobuf struct{}

// Name returns "pb".
func (Protobuf) Name() string { return "pb" }

// Encode serializes records; indentation does not apply.
func (Protobuf) Encode(records []types.Record, _ Options) ([]byte, error) {
	items := make([]interface{}, len(records))
	for i, r := range records {
		items[i] = toMap(r)
	}
	list, err := structpb.NewList(items)
	if err != nil {
		return nil, fmt.Errorf("codec: pb: %w", err)
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("codec: pb: %w", err)
	}
	return data, nil
}

// Decode parses a serialized ListValue.
func (Protobuf) Decode(data []byte) ([]types.Record, error) {
	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("codec: pb: %w", err)
	}
	items := list.AsSlice()
	records := make([]types.Record, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("codec: pb: item %d is %T, not a struct", i, item)
		}
		r, err := fromMap(m)
		if err != nil {
			return nil, fmt.Errorf("codec: pb: item %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}
