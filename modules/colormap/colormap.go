// Package colormap holds the named color-map definitions used to colorize
// single-channel images.
//
// A color map is static lookup data: an ordered sequence of stops, each an
// (r, g, b[, a]) tuple with components in [0, 1]. Stop i is the color shown
// for 8-bit sample value i, so most maps carry 256 stops.
//
// The package ships a fixed default set (Monochrome, Inverted, Hot, Cool, Jet)
// and can load additional maps from YAML:
//
//	maps:
//	  - name: Traffic
//	    stops:
//	      - [0, 1, 0]
//	      - [1, 1, 0]
//	      - [1, 0, 0, 0.5]
package colormap

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Names of the built-in maps.
const (
	Monochrome = "Monochrome"
	Inverted   = "Inverted"
	Hot        = "Hot"
	Cool       = "Cool"
	Jet        = "Jet"
	Bone       = "Bone"
)

// DefaultName is the map selected when nothing else is configured.
const DefaultName = Monochrome

// stopCount is the number of stops generated for built-in maps.
const stopCount = 256

var (
	ErrUnknownMap   = errors.New("colormap: unknown color map")
	ErrDuplicateMap = errors.New("colormap: color map already registered")
	ErrInvalidStop  = errors.New("colormap: invalid stop")
)

// Stop is one entry of a color map. A nil A means fully opaque.
type Stop struct {
	R, G, B float64
	A       *float64
}

// Alpha returns the stop's alpha, defaulting to 1.
func (s Stop) Alpha() float64 {
	if s.A == nil {
		return 1
	}
	return *s.A
}

// Validate reports whether every component lies in [0, 1].
func (s Stop) Validate() error {
	for _, v := range []float64{s.R, s.G, s.B, s.Alpha()} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: component %v outside [0,1]", ErrInvalidStop, v)
		}
	}
	return nil
}

// Map is a named, ordered list of stops.
type Map struct {
	Name  string
	Stops []Stop
}

// Registry is an ordered set of color maps keyed by name.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	maps  map[string]Map
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{maps: make(map[string]Map)}
}

// Default returns a fresh registry holding the built-in maps.
func Default() *Registry {
	r := NewRegistry()
	for _, m := range builtins() {
		_ = r.Add(m)
	}
	return r
}

// Add registers m. Names are case-sensitive and must be unique.
func (r *Registry) Add(m Map) error {
	if m.Name == "" {
		return fmt.Errorf("colormap: map name is required")
	}
	for i, s := range m.Stops {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("map %q stop %d: %w", m.Name, i, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.maps[m.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateMap, m.Name)
	}
	r.maps[m.Name] = m
	r.order = append(r.order, m.Name)
	return nil
}

// Get returns the map registered under name.
func (r *Registry) Get(name string) (Map, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.maps[name]
	if !ok {
		return Map{}, fmt.Errorf("%w: %q", ErrUnknownMap, name)
	}
	return m, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.maps[name]
	return ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// SortedNames returns the registered names alphabetically.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

func builtins() []Map {
	return []Map{
		generate(Monochrome, func(t float64) (float64, float64, float64) {
			return t, t, t
		}),
		generate(Inverted, func(t float64) (float64, float64, float64) {
			return 1 - t, 1 - t, 1 - t
		}),
		generate(Hot, func(t float64) (float64, float64, float64) {
			return clamp01(3 * t), clamp01(3*t - 1), clamp01(3*t - 2)
		}),
		generate(Cool, func(t float64) (float64, float64, float64) {
			return t, 1 - t, 1
		}),
		generate(Jet, func(t float64) (float64, float64, float64) {
			return clamp01(1.5 - math.Abs(4*t-3)),
				clamp01(1.5 - math.Abs(4*t-2)),
				clamp01(1.5 - math.Abs(4*t-1))
		}),
		generate(Bone, func(t float64) (float64, float64, float64) {
			// grey with a blue tint in the shadows
			return clamp01((7*t + clamp01(3*t-2)) / 8),
				clamp01((7*t + clamp01(3*t-1)) / 8),
				clamp01((7*t + clamp01(3*t)) / 8)
		}),
	}
}

func generate(name string, fn func(t float64) (r, g, b float64)) Map {
	stops := make([]Stop, stopCount)
	for i := range stops {
		r, g, b := fn(float64(i) / float64(stopCount-1))
		stops[i] = Stop{R: r, G: g, B: b}
	}
	return Map{Name: name, Stops: stops}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
