package spatialsolution

import (
	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
	"github.com/LSST/ip-diffim/kernelbasis"
)

// SpatialKernelAndBackground is the finalized output of
// Solution.Solve: per-basis spatial kernel coefficients, spatial
// background coefficients, and the kernel sum at the nominal position
// (0,0). Its coefficient slices are its own, but it holds the same
// spatial function objects that were passed to New, not copies:
// KernelCoeffsAt and BackgroundAt install coefficients on them with
// SetParams before evaluating. It is therefore not safe to evaluate
// concurrently, nor while those function objects are used elsewhere.
type SpatialKernelAndBackground struct {
	basis             kernelbasis.KernelBasis
	spatialKernelFunc diffim.SpatialFunction
	background        diffim.SpatialFunction
	constantFirstTerm bool
	fitForBackground  bool

	KCoeffs  [][]float64
	BgCoeffs []float64
	kSum     float64
}

// KernelCoeffsAt evaluates each basis's spatially-varying coefficient
// at (x,y): coeffs[i] = Σ_j KCoeffs[i][j]*φ_j(x,y), or KCoeffs[0][0]
// unconditionally for the constant first term.
func (r *SpatialKernelAndBackground) KernelCoeffsAt(x, y float64) []float64 {
	coeffs := make([]float64, len(r.KCoeffs))
	for i, kc := range r.KCoeffs {
		if i == 0 && r.constantFirstTerm {
			coeffs[i] = kc[0]
			continue
		}
		r.spatialKernelFunc.SetParams(kc)
		coeffs[i] = r.spatialKernelFunc.Eval(x, y)
	}
	return coeffs
}

// BackgroundAt evaluates the spatial background function at (x,y), or
// 0 if this result did not fit a background.
func (r *SpatialKernelAndBackground) BackgroundAt(x, y float64) float64 {
	if !r.fitForBackground {
		return 0
	}
	r.background.SetParams(r.BgCoeffs)
	return r.background.Eval(x, y)
}

// Ksum returns the kernel's pixel sum at the nominal position (0,0).
func (r *SpatialKernelAndBackground) Ksum() float64 { return r.kSum }

// MakeKernelImage renders the kernel — the linear combination of basis
// kernels weighted by KernelCoeffsAt(x,y) — as a dense image over the
// first basis kernel's own bounds.
func (r *SpatialKernelAndBackground) MakeKernelImage(x, y float64) (diffim.Image, error) {
	if len(r.basis.Kernels) == 0 {
		return nil, diffimerr.New("spatialsolution.SpatialKernelAndBackground.MakeKernelImage", diffimerr.NotSolved, "empty kernel basis")
	}
	coeffs := r.KernelCoeffsAt(x, y)
	b := r.basis.Kernels[0].Bounds()
	data := make([]float64, b.Area())
	idx := 0
	for py := b.MinY; py <= b.MaxY; py++ {
		for px := b.MinX; px <= b.MaxX; px++ {
			var v float64
			for i, k := range r.basis.Kernels {
				v += coeffs[i] * k.At(px, py)
			}
			data[idx] = v
			idx++
		}
	}
	return kernelImage{bounds: b, data: data}, nil
}

// kernelImage is a minimal diffim.Image so this package need not
// depend on imageutil for its own rendered kernel output.
type kernelImage struct {
	bounds diffim.Rect
	data   []float64
}

func (k kernelImage) Width() int          { return k.bounds.Width() }
func (k kernelImage) Height() int         { return k.bounds.Height() }
func (k kernelImage) Bounds() diffim.Rect { return k.bounds }
func (k kernelImage) At(x, y int) float64 {
	return k.data[(y-k.bounds.MinY)*k.bounds.Width()+(x-k.bounds.MinX)]
}
func (k kernelImage) SubImage(r diffim.Rect) (diffim.Image, error) {
	if !k.bounds.ContainsRect(r) {
		return nil, diffimerr.New("spatialsolution.kernelImage.SubImage", diffimerr.InvalidInput, "rectangle not contained in image bounds")
	}
	out := make([]float64, r.Area())
	idx := 0
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			out[idx] = k.At(x, y)
			idx++
		}
	}
	return kernelImage{bounds: r, data: out}, nil
}
