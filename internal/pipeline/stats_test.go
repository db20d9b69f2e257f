package pipeline

import (
	"testing"
	"time"
)

func TestStatsSnapshotPercentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for i, ms := range []int64{100, 200, 300, 400, 500} {
		stats.Record(ParseSample{DurationMs: ms, Entries: 10, Errors: i % 2})
	}

	snap := stats.Snapshot()
	if snap.Documents != 5 {
		t.Fatalf("expected documents=5, got %d", snap.Documents)
	}
	if snap.Entries != 50 || snap.BlockErrors != 2 {
		t.Fatalf("expected entries=50 errors=2, got %d %d", snap.Entries, snap.BlockErrors)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got %d %d", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestStatsPrunesExpiredSamples(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stats := NewStats(time.Minute)
	stats.now = func() time.Time { return now }

	stats.Record(ParseSample{DurationMs: 100})
	now = now.Add(2 * time.Minute)

	if snap := stats.Snapshot(); snap.Documents != 0 {
		t.Fatalf("expected documents=0 after prune, got %d", snap.Documents)
	}

	stats.Record(ParseSample{DurationMs: 200, Entries: 3})
	snap := stats.Snapshot()
	if snap.Documents != 1 || snap.Entries != 3 {
		t.Fatalf("expected one fresh sample, got %+v", snap)
	}
	if snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(ParseSample{DurationMs: -10})
	snap := stats.Snapshot()
	if snap.Documents != 1 {
		t.Fatalf("expected documents=1, got %d", snap.Documents)
	}
	if snap.MinMs != 0 || snap.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestStatsEmptySnapshot(t *testing.T) {
	if snap := NewStats(0).Snapshot(); snap != (StatsSnapshot{}) {
		t.Errorf("expected zero snapshot, got %+v", snap)
	}
}
