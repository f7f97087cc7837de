package framebus

import (
	"math"
	"testing"
)

// bitmapStats models a viewer keeping up, a snapshot writer on a slow disk
// and a freshly attached recorder.
var bitmapStats = BusStats{
	TotalSent:    130,
	TotalDropped: 70,
	Subscribers: map[string]SubscriberStats{
		"viewer":   {Policy: DropOld, Sent: 95, Dropped: 5},
		"snapshot": {Policy: DropNew, Sent: 35, Dropped: 65},
		"recorder": {Policy: DropNew},
	},
}

func TestDropRates(t *testing.T) {
	if got := CalculateDropRate(bitmapStats); math.Abs(got-0.35) > 1e-9 {
		t.Errorf("CalculateDropRate = %v, want 0.35", got)
	}
	if got := CalculateDropRate(BusStats{}); got != 0 {
		t.Errorf("CalculateDropRate(empty) = %v, want 0", got)
	}
	if got := CalculateDropRate(BusStats{TotalDropped: 4}); got != 1 {
		t.Errorf("CalculateDropRate(all dropped) = %v, want 1", got)
	}

	tests := []struct {
		id   string
		want float64
	}{
		{"viewer", 0.05},
		{"snapshot", 0.65},
		{"recorder", 0},
		{"detached", 0},
	}
	for _, tt := range tests {
		got := CalculateSubscriberDropRate(bitmapStats, tt.id)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CalculateSubscriberDropRate(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestSubscriberHealth(t *testing.T) {
	stats := BusStats{Subscribers: map[string]SubscriberStats{
		"viewer":   {Sent: 60, Dropped: 40},
		"snapshot": {Sent: 50, Dropped: 50},
		"archive":  {Sent: 10, Dropped: 90},
		"recorder": {},
	}}

	tests := []struct {
		id   string
		want SubscriberHealth
	}{
		{"viewer", HealthHealthy},
		{"snapshot", HealthDegraded},
		{"archive", HealthSaturated},
		{"recorder", HealthUnknown},
		{"detached", HealthUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := Health(stats, tt.id)
			if got != tt.want {
				t.Errorf("Health = %s, want %s", got, tt.want)
			}
		})
	}

	got := UnhealthySubscribers(stats)
	if len(got) != 2 || got[0] != "archive" || got[1] != "snapshot" {
		t.Errorf("UnhealthySubscribers = %v, want [archive snapshot]", got)
	}
	if got := UnhealthySubscribers(BusStats{}); len(got) != 0 {
		t.Errorf("UnhealthySubscribers(empty) = %v", got)
	}
}
