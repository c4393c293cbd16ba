package browseraction

import "math"

// DefaultViewportWidth and DefaultViewportHeight are used whenever a worker
// does not configure an explicit viewport.
const (
	DefaultViewportWidth  = 1440
	DefaultViewportHeight = 900
)

// Denormalize converts a coordinate in the LLM's normalized 0..999 space to
// a viewport pixel offset: px = floor(v/1000 * dim).
func Denormalize(v float64, dim int) int {
	return int(math.Floor(v / 1000.0 * float64(dim)))
}

// Normalize is the inverse of Denormalize, used only by tests to check the
// round-trip bound in spec §8 ("normalized→denormalized→normalized...
// differs by at most one pixel/999-unit").
func Normalize(px int, dim int) float64 {
	return float64(px) / float64(dim) * 1000.0
}
