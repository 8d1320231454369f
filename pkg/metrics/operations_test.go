package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationMetricsRecord(t *testing.T) {
	sink := NewOperationMetrics()

	sink.Record("save", true, 10*time.Millisecond)
	sink.Record("save", true, 30*time.Millisecond)
	sink.Record("save", false, 20*time.Millisecond)
	sink.Record("search", true, 5*time.Millisecond)

	snapshot := sink.Snapshot()

	save := snapshot["save"]
	assert.EqualValues(t, 3, save.Count)
	assert.EqualValues(t, 1, save.Failures)
	assert.Equal(t, 20*time.Millisecond, save.AvgLatency)

	search := snapshot["search"]
	assert.EqualValues(t, 1, search.Count)
	assert.EqualValues(t, 0, search.Failures)
	assert.Equal(t, 5*time.Millisecond, search.AvgLatency)
}

func TestOperationMetricsEmptySnapshot(t *testing.T) {
	sink := NewOperationMetrics()
	assert.Empty(t, sink.Snapshot())
}

func TestOperationMetricsReset(t *testing.T) {
	sink := NewOperationMetrics()

	sink.Record("save", true, time.Millisecond)
	assert.Len(t, sink.Snapshot(), 1)

	sink.Reset()
	assert.Empty(t, sink.Snapshot())
}

func TestOperationMetricsConcurrentRecord(t *testing.T) {
	sink := NewOperationMetrics()
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				sink.Record("save", true, time.Microsecond)
			}

			done <- struct{}{}
		}()
	}

	for i := 0; i < 4; i++ {
		<-done
	}

	assert.EqualValues(t, 400, sink.Snapshot()["save"].Count)
}
