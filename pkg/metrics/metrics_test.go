package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWritePrometheus(t *testing.T) {
	QueueLength.Set(3)
	ItemsTotal.WithLabelValues("photo", "synced").Inc()
	BoolGauge(Online, true)

	var buf bytes.Buffer
	if err := WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, name := range []string{"scopekit_sync_queue_length 3", "scopekit_sync_items_total", "scopekit_sync_online 1"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing %q", name)
		}
	}
}

func TestBoolGauge(t *testing.T) {
	BoolGauge(Syncing, true)
	if v := testutil.ToFloat64(Syncing); v != 1 {
		t.Errorf("Syncing = %v, want 1", v)
	}
	BoolGauge(Syncing, false)
	if v := testutil.ToFloat64(Syncing); v != 0 {
		t.Errorf("Syncing = %v, want 0", v)
	}
}
