package framebus

import (
	"context"
	"log/slog"
	"time"
)

// StatsSource is anything that can report bus statistics.
type StatsSource interface {
	Stats() BusStats
}

// Alert describes a subscriber whose health changed for the worse.
type Alert struct {
	SubscriberID string
	Health       SubscriberHealth
	DropRate     float64
	Dropped      uint64
}

// Monitor periodically inspects bus stats and reports subscribers that turn
// degraded or saturated. Each subscriber is reported once per transition.
type Monitor struct {
	source   StatsSource
	interval time.Duration
	onAlert  func(Alert)

	last map[string]SubscriberHealth
}

// NewMonitor creates a monitor polling source every interval (10s if <= 0).
// onAlert may be nil, in which case alerts are only logged.
func NewMonitor(source StatsSource, interval time.Duration, onAlert func(Alert)) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		source:   source,
		interval: interval,
		onAlert:  onAlert,
		last:     make(map[string]SubscriberHealth),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-ctx.Done():
			return
		}
	}
}

// Check inspects the current stats once and returns the alerts raised.
func (m *Monitor) Check() []Alert {
	stats := m.source.Stats()

	var alerts []Alert
	for id, sub := range stats.Subscribers {
		h := Health(stats, id)
		prev := m.last[id]
		m.last[id] = h

		if h <= prev || (h != HealthDegraded && h != HealthSaturated) {
			continue
		}

		a := Alert{
			SubscriberID: id,
			Health:       h,
			DropRate:     CalculateSubscriberDropRate(stats, id),
			Dropped:      sub.Dropped,
		}
		alerts = append(alerts, a)

		slog.Warn("framebus: subscriber falling behind",
			"subscriber_id", id,
			"health", h.String(),
			"drop_rate", a.DropRate,
			"dropped", a.Dropped,
		)
		if m.onAlert != nil {
			m.onAlert(a)
		}
	}

	for id := range m.last {
		if _, ok := stats.Subscribers[id]; !ok {
			delete(m.last, id)
		}
	}
	return alerts
}
