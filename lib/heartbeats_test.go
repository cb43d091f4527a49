package lib

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/padm/dwh/lib/telemetry/metrics"
)

type countingMetrics struct {
	metrics.NullMetricsProvider
	gauges atomic.Int32
}

func (c *countingMetrics) Gauge(_ string, _ float64, _ map[string]string) {
	c.gauges.Add(1)
}

func TestHeartbeats_BeatsAfterInitialDelayAndInterval(t *testing.T) {
	client := &countingMetrics{}
	stop := NewHeartbeats(50*time.Millisecond, 30*time.Millisecond, "bronze.running", map[string]string{"phase": "extract"}, client).Start()
	defer stop()

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, client.gauges.Load(), int32(2))
}

func TestHeartbeats_StopsOnCancel(t *testing.T) {
	client := &countingMetrics{}
	stop := NewHeartbeats(10*time.Millisecond, 20*time.Millisecond, "bronze.running", nil, client).Start()
	time.Sleep(40 * time.Millisecond)
	stop()

	// Let a beat that was already in flight finish.
	time.Sleep(5 * time.Millisecond)
	before := client.gauges.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, client.gauges.Load())
}

func TestHeartbeats_NothingBeforeInitialDelay(t *testing.T) {
	client := &countingMetrics{}
	stop := NewHeartbeats(100*time.Millisecond, 50*time.Millisecond, "bronze.running", nil, client).Start()
	defer stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, client.gauges.Load())
}

func TestHeartbeats_StopTwice(t *testing.T) {
	stop := NewHeartbeats(time.Minute, time.Minute, "bronze.running", nil, nil).Start()
	stop()
	assert.NotPanics(t, stop)
}
