package gstsource

import (
	"math"
	"sync"
	"time"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a
	// fraction of mean FPS for a stream to count as stable.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of
	// the expected inter-frame interval.
	jitterStabilityThreshold = 0.20

	arrivalWindowSize = 128
)

// ArrivalStats summarizes frame arrival times.
type ArrivalStats struct {
	Frames       int
	Duration     time.Duration
	FPSMean      float64
	FPSStdDev    float64
	FPSMin       float64
	FPSMax       float64
	JitterMean   float64 // seconds
	JitterStdDev float64 // seconds
	JitterMax    float64 // seconds
	IsStable     bool    // stddev < 15% of mean AND jitter < 20% of interval
}

// CalculateArrivalStats derives rate and jitter statistics from arrival
// times observed over total.
func CalculateArrivalStats(times []time.Time, total time.Duration) ArrivalStats {
	n := len(times)
	s := ArrivalStats{Frames: n, Duration: total}
	if n == 0 || total <= 0 {
		return s
	}
	s.FPSMean = float64(n) / total.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if d := times[i].Sub(times[i-1]).Seconds(); d > 0 {
			intervals = append(intervals, d)
		}
	}
	if len(intervals) == 0 {
		return s
	}

	var fpsSq float64
	s.FPSMin = math.Inf(1)
	for _, d := range intervals {
		fps := 1 / d
		s.FPSMin = math.Min(s.FPSMin, fps)
		s.FPSMax = math.Max(s.FPSMax, fps)
		fpsSq += (fps - s.FPSMean) * (fps - s.FPSMean)
	}
	s.FPSStdDev = math.Sqrt(fpsSq / float64(len(intervals)))

	expected := 1 / s.FPSMean
	var jitterSum float64
	for _, d := range intervals {
		j := math.Abs(d - expected)
		jitterSum += j
		s.JitterMax = math.Max(s.JitterMax, j)
	}
	s.JitterMean = jitterSum / float64(len(intervals))

	var jitterSq float64
	for _, d := range intervals {
		j := math.Abs(d-expected) - s.JitterMean
		jitterSq += j * j
	}
	s.JitterStdDev = math.Sqrt(jitterSq / float64(len(intervals)))

	s.IsStable = s.FPSStdDev < s.FPSMean*fpsStabilityThreshold &&
		s.JitterMean < expected*jitterStabilityThreshold
	return s
}

// arrivalWindow keeps the most recent arrival times.
type arrivalWindow struct {
	mu    sync.Mutex
	times [arrivalWindowSize]time.Time
	next  int
	count int
}

func (w *arrivalWindow) add(t time.Time) {
	w.mu.Lock()
	w.times[w.next] = t
	w.next = (w.next + 1) % arrivalWindowSize
	if w.count < arrivalWindowSize {
		w.count++
	}
	w.mu.Unlock()
}

// since returns the retained arrivals at or after t, oldest first.
func (w *arrivalWindow) since(t time.Time) []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]time.Time, 0, w.count)
	start := (w.next - w.count + arrivalWindowSize) % arrivalWindowSize
	for i := 0; i < w.count; i++ {
		at := w.times[(start+i)%arrivalWindowSize]
		if !at.Before(t) {
			out = append(out, at)
		}
	}
	return out
}

// stats computes ArrivalStats over the whole window.
func (w *arrivalWindow) stats() ArrivalStats {
	times := w.since(time.Time{})
	if len(times) < 2 {
		return ArrivalStats{Frames: len(times)}
	}
	return CalculateArrivalStats(times, times[len(times)-1].Sub(times[0]))
}
