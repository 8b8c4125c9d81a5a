package partition

import (
	"testing"

	"github.com/micurley/chunkdata/pkg/types"
)

func TestStatsTracker_Segments(t *testing.T) {
	records := []types.Record{
		{Model: "testapp.testperson", PK: int64(999)},
		{Model: "testapp.testperson", PK: int64(1000)},
		{Model: "testapp.testlocation", PK: int64(1)},
	}

	tracker := NewStatsTracker()
	for _, r := range records {
		tracker.Update(r)
	}
	if tracker.RowCount() != 3 {
		t.Errorf("RowCount = %d, want 3", tracker.RowCount())
	}

	segs := tracker.Segments()
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0] != (SegmentStats{Model: "testapp.testperson", Count: 2, FirstPK: int64(999), LastPK: int64(1000)}) {
		t.Errorf("segment 0 = %+v", segs[0])
	}
	if segs[1].Count != 1 || segs[1].FirstPK != int64(1) {
		t.Errorf("segment 1 = %+v", segs[1])
	}

	if got := Summarize(nil); len(got) != 0 {
		t.Errorf("Summarize(nil) = %v", got)
	}
}
