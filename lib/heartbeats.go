package lib

import (
	"log/slog"
	"sync"
	"time"

	"github.com/padm/dwh/lib/telemetry/metrics/base"
)

// Heartbeats reports that a long running phase is still going, so a slow source query does not look like a hang.
type Heartbeats struct {
	startTime time.Time
	// [initialDelay] - The time to wait before the first heartbeat.
	initialDelay time.Duration
	// [intervalTicker] - The interval between heartbeats.
	intervalTicker time.Duration

	metric  string
	tags    map[string]string
	metrics base.Client
}

func NewHeartbeats(initialDelay time.Duration, intervalTicker time.Duration, metric string, tags map[string]string, metrics base.Client) *Heartbeats {
	return &Heartbeats{
		initialDelay:   initialDelay,
		intervalTicker: intervalTicker,
		metric:         metric,
		tags:           tags,
		metrics:        metrics,
	}
}

// Start begins heartbeating in the background, the returned func stops it and may be called more than once.
func (h *Heartbeats) Start() func() {
	h.startTime = time.Now()
	done := make(chan struct{})
	go h.start(done)
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (h *Heartbeats) start(done <-chan struct{}) {
	timer := time.NewTimer(h.initialDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-done:
		return
	}

	ticker := time.NewTicker(h.intervalTicker)
	defer ticker.Stop()

	for {
		h.beat()
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

func (h *Heartbeats) beat() {
	elapsed := time.Since(h.startTime)
	slog.Info("Still running", slog.String("metric", h.metric), slog.Any("tags", h.tags), slog.Duration("duration", elapsed))
	if h.metrics != nil {
		h.metrics.Gauge(h.metric, elapsed.Seconds(), h.tags)
	}
}
