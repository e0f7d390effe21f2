// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// maxAnalysisSide bounds the working resolution. Heuristics stay stable and
// cheap when every photo is analyzed at roughly the same scale.
const maxAnalysisSide = 512

// edgeGradientThreshold is the luminance step (out of 255) that counts as an
// edge between neighboring pixels.
const edgeGradientThreshold = 24.0

// region describes an image band in relative coordinates.
type region struct {
	x0, y0, x1, y1 float64
}

var (
	wholeFrame = region{0, 0, 1, 1}

	// wallBand covers the upper-middle wall area where hung decor shows up.
	wallBand = region{0.15, 0.10, 0.85, 0.45}

	// window bands hug the left and right frame edges where curtain panels
	// and drapes hang.
	windowBandLeft  = region{0.00, 0.05, 0.12, 0.60}
	windowBandRight = region{0.88, 0.05, 1.00, 0.60}

	// floorBand is the central walkway area in front of the camera.
	floorBand = region{0.25, 0.75, 0.75, 1.00}
)

// frame is a decoded image reduced to analysis form: a luminance plane plus
// per-channel means.
type frame struct {
	w, h int
	lum  []float64
	mean [3]float64
}

func decodeFrame(data []byte) (*frame, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty image")
	}

	if w > maxAnalysisSide || h > maxAnalysisSide {
		scale := float64(maxAnalysisSide) / float64(w)
		if h > w {
			scale = float64(maxAnalysisSide) / float64(h)
		}
		sw, sh := int(float64(w)*scale), int(float64(h)*scale)
		if sw < 1 {
			sw = 1
		}
		if sh < 1 {
			sh = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)
		src, b = scaled, scaled.Bounds()
		w, h = sw, sh
	}

	rgba, ok := src.(*image.RGBA)
	if !ok {
		converted := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(converted, converted.Bounds(), src, b.Min, draw.Src)
		rgba = converted
	}

	f := &frame{w: w, h: h, lum: make([]float64, w*h)}
	var sum [3]float64
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		for x := 0; x < w; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			b := float64(row[x*4+2])
			sum[0] += r
			sum[1] += g
			sum[2] += b
			f.lum[y*w+x] = 0.299*r + 0.587*g + 0.114*b
		}
	}
	n := float64(w * h)
	for i := range sum {
		f.mean[i] = sum[i] / n
	}
	return f, nil
}

// edgeDensity returns the fraction of sampled pixels in the region whose
// luminance gradient to the right or down neighbor exceeds the edge
// threshold.
func (f *frame) edgeDensity(r region) float64 {
	x0 := int(r.x0 * float64(f.w))
	y0 := int(r.y0 * float64(f.h))
	x1 := int(r.x1 * float64(f.w))
	y1 := int(r.y1 * float64(f.h))

	// Leave headroom for the right/down neighbor lookup.
	if x1 > f.w-1 {
		x1 = f.w - 1
	}
	if y1 > f.h-1 {
		y1 = f.h - 1
	}
	if x1 <= x0 || y1 <= y0 {
		return 0
	}

	edges, total := 0, 0
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			v := f.lum[y*f.w+x]
			grad := abs(f.lum[y*f.w+x+1]-v) + abs(f.lum[(y+1)*f.w+x]-v)
			if grad >= edgeGradientThreshold {
				edges++
			}
			total++
		}
	}
	return float64(edges) / float64(total)
}

// edgeDensityDelta is the increase in edge density between frames for a
// region; negative deltas clamp to zero because removed detail never counts
// as added furnishing.
func edgeDensityDelta(before, after *frame, r region) float64 {
	d := after.edgeDensity(r) - before.edgeDensity(r)
	if d < 0 {
		return 0
	}
	return d
}

// colorDrift is the largest per-channel relative deviation of mean intensity
// between frames.
func colorDrift(before, after *frame) float64 {
	worst := 0.0
	for i := 0; i < 3; i++ {
		base := before.mean[i]
		if base < 1 {
			base = 1
		}
		dev := abs(after.mean[i]-before.mean[i]) / base
		if dev > worst {
			worst = dev
		}
	}
	return worst
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
