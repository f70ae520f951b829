package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDetail(t *testing.T) {
	tests := []struct {
		name   string
		cached bool
		shared bool
		label  string
	}{
		{name: "fetched", label: "fetched"},
		{name: "cached", cached: true, label: "cached"},
		{name: "shared", shared: true, label: "shared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(DetailRequests.WithLabelValues(tt.label))
			RecordDetail(tt.cached, tt.shared)
			after := testutil.ToFloat64(DetailRequests.WithLabelValues(tt.label))
			if after-before != 1 {
				t.Errorf("expected %s counter to grow by 1, got %v", tt.label, after-before)
			}
		})
	}
}

func TestRecordSkipped(t *testing.T) {
	before := testutil.ToFloat64(SkippedEvents.WithLabelValues("topsports"))
	RecordSkipped("topsports", 3)
	RecordSkipped("topsports", 0)
	after := testutil.ToFloat64(SkippedEvents.WithLabelValues("topsports"))
	if after-before != 3 {
		t.Errorf("expected skipped counter to grow by 3, got %v", after-before)
	}
}

func TestRecordFetchFailureAndTracked(t *testing.T) {
	before := testutil.ToFloat64(FetchFailures.WithLabelValues("supabase"))
	RecordFetchFailure("supabase")
	if got := testutil.ToFloat64(FetchFailures.WithLabelValues("supabase")) - before; got != 1 {
		t.Errorf("fetch failures grew by %v, want 1", got)
	}

	before = testutil.ToFloat64(TrackedEvents.WithLabelValues("dropped"))
	RecordTracked("dropped")
	if got := testutil.ToFloat64(TrackedEvents.WithLabelValues("dropped")) - before; got != 1 {
		t.Errorf("tracked dropped grew by %v, want 1", got)
	}
}
