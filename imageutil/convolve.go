package imageutil

import (
	"sort"

	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
)

// DirectConvolver applies a kernel by brute-force direct correlation.
// It is not the numerical core's concern to be fast; the basis kernels
// solved for here are small (a handful to a few dozen pixels across).
type DirectConvolver struct{}

// Convolve computes dst(x,y) = sum_{j,i} kernel(i,j) * src(x+i-cx, y+j-cy)
// over src's bounds, zero-padding reads that fall outside src. If
// normalize is set, kernel values are rescaled to unit sum first.
func (DirectConvolver) Convolve(src diffim.Image, kernel diffim.Image, centerX, centerY int, normalize bool) (diffim.Image, error) {
	const op = "imageutil.DirectConvolver.Convolve"
	kb := kernel.Bounds()
	if kb.Area() == 0 {
		return nil, diffimerr.New(op, diffimerr.InvalidInput, "empty kernel")
	}

	scale := 1.0
	if normalize {
		sum := 0.0
		for y := kb.MinY; y <= kb.MaxY; y++ {
			for x := kb.MinX; x <= kb.MaxX; x++ {
				sum += kernel.At(x, y)
			}
		}
		if sum != 0 {
			scale = 1.0 / sum
		}
	}

	sb := src.Bounds()
	out := make([]float64, sb.Width()*sb.Height())
	idx := 0
	for y := sb.MinY; y <= sb.MaxY; y++ {
		for x := sb.MinX; x <= sb.MaxX; x++ {
			var sum float64
			for ky := kb.MinY; ky <= kb.MaxY; ky++ {
				sy := y + (ky - centerY)
				if sy < sb.MinY || sy > sb.MaxY {
					continue
				}
				for kx := kb.MinX; kx <= kb.MaxX; kx++ {
					sx := x + (kx - centerX)
					if sx < sb.MinX || sx > sb.MaxX {
						continue
					}
					sum += kernel.At(kx, ky) * scale * src.At(sx, sy)
				}
			}
			out[idx] = sum
			idx++
		}
	}
	return NewDenseImageAt(sb.MinX, sb.MinY, sb.Width(), sb.Height(), out)
}

// MedianMinStatistics computes median and minimum over an image's full bounds.
type MedianMinStatistics struct{}

func (MedianMinStatistics) values(img diffim.Image) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Area())
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			out = append(out, img.At(x, y))
		}
	}
	return out
}

func (s MedianMinStatistics) Median(img diffim.Image) float64 {
	v := s.values(img)
	if len(v) == 0 {
		return 0
	}
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return v[mid]
	}
	return (v[mid-1] + v[mid]) / 2
}

func (s MedianMinStatistics) Min(img diffim.Image) float64 {
	v := s.values(img)
	if len(v) == 0 {
		return 0
	}
	min := v[0]
	for _, x := range v[1:] {
		if x < min {
			min = x
		}
	}
	return min
}
