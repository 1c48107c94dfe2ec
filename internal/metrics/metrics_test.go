package metrics

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	labels := map[string]string{"outcome": "success"}

	r.IncrementCounter(ForwardOutcomes, labels, "Forward outcomes")
	r.IncrementCounter(ForwardOutcomes, labels, "Forward outcomes")
	r.AddToCounter(ForwardOutcomes, 3, labels, "Forward outcomes")

	assert.Equal(t, 5.0, r.CounterValue(ForwardOutcomes, labels))
	assert.Zero(t, r.CounterValue(ForwardOutcomes, map[string]string{"outcome": "hard_failure"}))
}

func TestRegistry_LabelOrderDoesNotMatter(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter(ForwardOutcomes, map[string]string{"a": "1", "b": "2"}, "")
	r.IncrementCounter(ForwardOutcomes, map[string]string{"b": "2", "a": "1"}, "")

	assert.Equal(t, 2.0, r.CounterValue(ForwardOutcomes, map[string]string{"a": "1", "b": "2"}))
	assert.Len(t, r.Snapshot().Counters, 1)
}

func TestRegistry_Timers(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 20; i++ {
		r.RecordTimer(ForwardDuration, time.Duration(i)*time.Millisecond, nil, "")
	}

	snap := r.Snapshot()
	timer, ok := snap.Timers[ForwardDuration]
	require.True(t, ok)
	assert.Equal(t, int64(20), timer.Count)
	assert.InDelta(t, 1.0, timer.Min, 0.001)
	assert.InDelta(t, 20.0, timer.Max, 0.001)
	assert.InDelta(t, 10.5, timer.Average, 0.001)
	assert.InDelta(t, 20.0, timer.P95, 0.001)
	assert.Equal(t, int64(20), r.TimerCount(ForwardDuration, nil))
}

func TestRegistry_Gauges(t *testing.T) {
	r := NewRegistry()

	r.SetGauge(QueueDepth, 4, nil, "Items waiting")
	r.SetGauge(QueueDepth, 1, nil, "Items waiting")

	assert.Equal(t, 1.0, r.GaugeValue(QueueDepth, nil))
}

func TestRegistry_SnapshotIsDetached(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter(ItemsEnqueued, nil, "")

	snap := r.Snapshot()
	r.IncrementCounter(ItemsEnqueued, nil, "")

	assert.Equal(t, 1.0, snap.Counters[ItemsEnqueued].Value)
	assert.Equal(t, 2.0, r.CounterValue(ItemsEnqueued, nil))

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"queue_items_enqueued_total"`)
	assert.Contains(t, string(data), `"uptime_ms"`)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.IncrementCounter(FilterDecisions, map[string]string{"decision": "enqueued"}, "")
			r.RecordTimer(ForwardDuration, time.Millisecond, nil, "")
			r.SetGauge(QueueDepth, 1, nil, "")
			_ = r.Snapshot()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, r.CounterValue(FilterDecisions, map[string]string{"decision": "enqueued"}))
}
