// SPDX-License-Identifier: Apache-2.0

package provider

// SizeConstraints are the provider's geometric requirements: dimensions must
// be multiples of Granularity and each side must land in [MinSide, MaxSide].
type SizeConstraints struct {
	Granularity int
	MinSide     int
	MaxSide     int
}

// DefaultSizeConstraints matches the hosted render API.
var DefaultSizeConstraints = SizeConstraints{
	Granularity: 64,
	MinSide:     256,
	MaxSide:     2048,
}

// NormalizeSize maps arbitrary input dimensions onto working dimensions the
// provider accepts, preserving aspect ratio as closely as the granularity
// allows. Pure arithmetic; no I/O.
func NormalizeSize(width, height int, c SizeConstraints) (int, int) {
	if width <= 0 || height <= 0 {
		return c.MinSide, c.MinSide
	}

	w, h := float64(width), float64(height)

	// Scale down so the long side fits, then up so the short side fits.
	// The second scale can push the long side past MaxSide for extreme
	// aspect ratios; the provider's limit wins, so clamp after rounding.
	if long := max(w, h); long > float64(c.MaxSide) {
		f := float64(c.MaxSide) / long
		w, h = w*f, h*f
	}
	if short := min(w, h); short < float64(c.MinSide) {
		f := float64(c.MinSide) / short
		w, h = w*f, h*f
	}

	outW := roundToGranule(w, c)
	outH := roundToGranule(h, c)
	return clampSide(outW, c), clampSide(outH, c)
}

func roundToGranule(v float64, c SizeConstraints) int {
	g := c.Granularity
	if g <= 1 {
		return int(v + 0.5)
	}
	n := int(v/float64(g) + 0.5)
	if n < 1 {
		n = 1
	}
	return n * g
}

func clampSide(v int, c SizeConstraints) int {
	if v < c.MinSide {
		return c.MinSide
	}
	if v > c.MaxSide {
		return c.MaxSide
	}
	return v
}
