package partition

import (
	"github.com/micurley/chunkdata/pkg/types"
)

// SegmentStats summarizes a run of same-model records within one chunk.
type SegmentStats struct {
	Model   string
	Count   int
	FirstPK interface{}
	LastPK  interface{}
}

// StatsTracker accumulates per-model statistics while a chunk is built.
type StatsTracker struct {
	rowCount int
	segments []SegmentStats
}

// NewStatsTracker creates a new statistics tracker.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{}
}

// Update records one more record. Records of the same model are expected
// to arrive contiguously and ordered by primary key.
func (s *StatsTracker) Update(r types.Record) {
	s.rowCount++

	if n := len(s.segments); n > 0 && s.segments[n-1].Model == r.Model {
		s.segments[n-1].Count++
		s.segments[n-1].LastPK = r.PK
		return
	}
	s.segments = append(s.segments, SegmentStats{Model: r.Model, Count: 1, FirstPK: r.PK, LastPK: r.PK})
}

// Segments returns the collected per-model statistics in arrival order.
func (s *StatsTracker) Segments() []SegmentStats {
	out := make([]SegmentStats, len(s.segments))
	copy(out, s.segments)
	return out
}

// RowCount returns the number of records tracked.
func (s *StatsTracker) RowCount() int {
	return s.rowCount
}

// Summarize returns the segment statistics of records.
func Summarize(records []types.Record) []SegmentStats {
	t := NewStatsTracker()
	for _, r := range records {
		t.Update(r)
	}
	return t.Segments()
}
