// Package showcase sequences data layers into the timed, narrated overlay
// presentation: it preloads the script's layers, installs exactly one map
// overlay at a time, drives toggle flashes and frame animation on a clock,
// and reports step, progress, and completion to an injected observer.
package showcase

import (
	"time"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/helioviz/solar-layer-engine/internal/layers"
)

// Step is one entry of the showcase script. Steps are static configuration,
// read-only at runtime.
type Step struct {
	Layer     domain.LayerID
	DayOfYear int // hourlyShade only
	Duration  time.Duration
	Toggle    bool // flash the overlay to draw attention
}

// Key returns the cache key for the step's layer.
func (s Step) Key() layers.Key {
	return layers.Key{ID: s.Layer, DayOfYear: s.DayOfYear}
}

// Summer and winter solstice days-of-year used by the default script.
const (
	summerSolstice = 172 // June 21
	winterSolstice = 355 // December 21
)

// DefaultScript is the fixed 8-step narration: aerial photo, roof shape,
// flashed footprint, yearly and monthly sunlight, hourly shadows at both
// solstices, and a closing return to the roof shape.
func DefaultScript() []Step {
	return []Step{
		{Layer: domain.LayerRGB, Duration: 4 * time.Second},
		{Layer: domain.LayerDSM, Duration: 4 * time.Second},
		{Layer: domain.LayerMask, Duration: 9 * time.Second, Toggle: true},
		{Layer: domain.LayerAnnualFlux, Duration: 5 * time.Second},
		{Layer: domain.LayerMonthlyFlux, Duration: 6 * time.Second},
		{Layer: domain.LayerHourlyShade, DayOfYear: summerSolstice, Duration: 16 * time.Second},
		{Layer: domain.LayerHourlyShade, DayOfYear: winterSolstice, Duration: 16 * time.Second},
		{Layer: domain.LayerDSM, Duration: 4 * time.Second},
	}
}

// scriptKeys returns the distinct cache keys a script needs, in step order.
func scriptKeys(script []Step) []layers.Key {
	seen := make(map[layers.Key]bool, len(script))
	keys := make([]layers.Key, 0, len(script))
	for _, s := range script {
		k := s.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
