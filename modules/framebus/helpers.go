package framebus

import "sort"

// SubscriberHealth classifies a subscriber by its drop rate.
type SubscriberHealth int

const (
	HealthUnknown   SubscriberHealth = iota // no activity or not subscribed
	HealthHealthy                           // < 50% drops
	HealthDegraded                          // 50-90% drops
	HealthSaturated                         // >= 90% drops
)

func (h SubscriberHealth) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthSaturated:
		return "saturated"
	default:
		return "unknown"
	}
}

// CalculateDropRate returns the drop rate as a fraction (0.0 to 1.0).
// Returns 0.0 if no items have been sent or dropped.
func CalculateDropRate(stats BusStats) float64 {
	total := stats.TotalSent + stats.TotalDropped
	if total == 0 {
		return 0.0
	}
	return float64(stats.TotalDropped) / float64(total)
}

// CalculateSubscriberDropRate returns the drop rate for a specific subscriber.
// Returns 0.0 if subscriber not found or if nothing has been sent or dropped.
func CalculateSubscriberDropRate(stats BusStats, subscriberID string) float64 {
	sub, exists := stats.Subscribers[subscriberID]
	if !exists {
		return 0.0
	}

	total := sub.Sent + sub.Dropped
	if total == 0 {
		return 0.0
	}
	return float64(sub.Dropped) / float64(total)
}

// Health classifies one subscriber of a stats snapshot.
func Health(stats BusStats, subscriberID string) SubscriberHealth {
	sub, exists := stats.Subscribers[subscriberID]
	if !exists || sub.Sent+sub.Dropped == 0 {
		return HealthUnknown
	}

	rate := CalculateSubscriberDropRate(stats, subscriberID)
	switch {
	case rate >= 0.9:
		return HealthSaturated
	case rate >= 0.5:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// UnhealthySubscribers returns the ids of degraded or saturated subscribers,
// sorted.
func UnhealthySubscribers(stats BusStats) []string {
	ids := []string{}
	for id := range stats.Subscribers {
		switch Health(stats, id) {
		case HealthDegraded, HealthSaturated:
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
