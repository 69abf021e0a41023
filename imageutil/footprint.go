package imageutil

import diffim "github.com/LSST/ip-diffim"

// DenseFootprint is a boolean-grid-backed diffim.Footprint. Flatten
// visits pixels in row-major order (top-to-bottom, left-to-right),
// matching the stable span order the original SpanSet-based flatten
// produces.
type DenseFootprint struct {
	originX, originY int
	width, height    int
	set              []bool
}

func (f *DenseFootprint) index(x, y int) (int, bool) {
	lx, ly := x-f.originX, y-f.originY
	if lx < 0 || lx >= f.width || ly < 0 || ly >= f.height {
		return 0, false
	}
	return ly*f.width + lx, true
}

// Contains reports whether (x,y) is in the footprint.
func (f *DenseFootprint) Contains(x, y int) bool {
	idx, ok := f.index(x, y)
	return ok && f.set[idx]
}

// Area returns the number of pixels in the footprint.
func (f *DenseFootprint) Area() int {
	n := 0
	for _, v := range f.set {
		if v {
			n++
		}
	}
	return n
}

// Grow returns a new footprint dilated by n pixels using Chebyshev
// (box) distance, approximating the original's circular footprint
// growth closely enough for mask-gating purposes: every pixel within n
// pixels of a set pixel, in either axis, becomes set.
func (f *DenseFootprint) Grow(n int) diffim.Footprint {
	if n <= 0 {
		out := *f
		out.set = append([]bool(nil), f.set...)
		return &out
	}
	grown := make([]bool, len(f.set))
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			if !f.set[y*f.width+x] {
				continue
			}
			for dy := -n; dy <= n; dy++ {
				ny := y + dy
				if ny < 0 || ny >= f.height {
					continue
				}
				for dx := -n; dx <= n; dx++ {
					nx := x + dx
					if nx < 0 || nx >= f.width {
						continue
					}
					grown[ny*f.width+nx] = true
				}
			}
		}
	}
	return &DenseFootprint{originX: f.originX, originY: f.originY, width: f.width, height: f.height, set: grown}
}

// Flatten returns img's pixel values at every footprint pixel, in
// row-major order.
func (f *DenseFootprint) Flatten(img diffim.Image) []float64 {
	out := make([]float64, 0, f.Area())
	for y := f.originY; y < f.originY+f.height; y++ {
		for x := f.originX; x < f.originX+f.width; x++ {
			if f.Contains(x, y) {
				out = append(out, img.At(x, y))
			}
		}
	}
	return out
}
