// Package partition splits an ordered record stream into bounded chunks.
//
// Planning works from record counts alone, so the total number of chunks,
// and with it every file name, is known before a single record is fetched.
package partition

import (
	"context"
	"fmt"

	"github.com/micurley/chunkdata/pkg/types"
)

// Segment is a contiguous slice of one entity's records.
type Segment struct {
	Entity *types.Entity
	Offset int
	Limit  int
}

// Batch is one planned chunk: segments in export order.
type Batch struct {
	// Index is the 1-based emission order of the batch
	Index    int
	Segments []Segment
	Size     int
}

// RecordSource fetches a window of an entity's records in a stable order.
type RecordSource interface {
	Fetch(ctx context.Context, e *types.Entity, offset, limit int) ([]types.Record, error)
}

// Plan partitions entity record counts into batches of at most threshold
// records. A threshold of 0 disables chunking and yields exactly one batch
// holding every record.
//
// With a threshold, entities accumulate into the current batch while they
// fit. An entity that would overflow a non-empty batch flushes it first.
// An entity larger than the threshold on an empty batch is emitted alone
// as consecutive threshold-sized slices.
func Plan(counts []types.EntityCount, threshold int) []Batch {
	if threshold <= 0 {
		b := Batch{Index: 1}
		for _, c := range counts {
			if c.Count > 0 {
				b.Segments = append(b.Segments, Segment{Entity: c.Entity, Limit: c.Count})
				b.Size += c.Count
			}
		}
		return []Batch{b}
	}

	var batches []Batch
	var acc Batch
	emit := func(b Batch) {
		b.Index = len(batches) + 1
		batches = append(batches, b)
	}

	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		if acc.Size > 0 && acc.Size+c.Count > threshold {
			emit(acc)
			acc = Batch{}
		}
		if acc.Size == 0 && c.Count > threshold {
			for off := 0; off < c.Count; off += threshold {
				limit := threshold
				if off+limit > c.Count {
					limit = c.Count - off
				}
				emit(Batch{Segments: []Segment{{Entity: c.Entity, Offset: off, Limit: limit}}, Size: limit})
			}
			continue
		}
		acc.Segments = append(acc.Segments, Segment{Entity: c.Entity, Limit: c.Count})
		acc.Size += c.Count
	}
	if acc.Size > 0 {
		emit(acc)
	}
	return batches
}

// Materialize fetches the records of a planned batch in segment order.
func Materialize(ctx context.Context, src RecordSource, b Batch) ([]types.Record, error) {
	records := make([]types.Record, 0, b.Size)
	for _, seg := range b.Segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := src.Fetch(ctx, seg.Entity, seg.Offset, seg.Limit)
		if err != nil {
			return nil, err
		}
		if len(recs) != seg.Limit {
			return nil, fmt.Errorf("partition: %s changed during export: expected %d records at offset %d, got %d",
				seg.Entity.Label(), seg.Limit, seg.Offset, len(recs))
		}
		records = append(records, recs...)
	}
	return records, nil
}
