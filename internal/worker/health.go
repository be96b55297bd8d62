package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Health is a point-in-time view of the pipeline's throughput since the
// last reset. Degraded means more than half of all dispositions failed.
type Health struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Degraded  bool  `json:"degraded"`
}

// Monitor aggregates processed/failed counters for external alerting.
// It is purely advisory and never halts the consumer.
type Monitor struct {
	processed atomic.Int64
	failed    atomic.Int64
	interval  time.Duration
}

func NewMonitor(interval time.Duration) *Monitor {
	return &Monitor{interval: interval}
}

func (m *Monitor) RecordProcessed() {
	m.processed.Add(1)
}

func (m *Monitor) RecordFailure() {
	m.failed.Add(1)
}

func (m *Monitor) Snapshot() Health {
	p := m.processed.Load()
	f := m.failed.Load()
	return Health{
		Processed: p,
		Failed:    f,
		Degraded:  p+f > 0 && f*2 > p+f,
	}
}

func (m *Monitor) Reset() {
	m.processed.Store(0)
	m.failed.Store(0)
}

// Run reports the snapshot on every tick and resets the window.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h := m.Snapshot()
			if h.Degraded {
				slog.Warn("pipeline degraded", "processed", h.Processed, "failed", h.Failed)
			} else {
				slog.Info("pipeline health", "processed", h.Processed, "failed", h.Failed)
			}
			m.Reset()
		}
	}
}
