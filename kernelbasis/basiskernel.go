// Package kernelbasis defines BasisKernel and KernelBasis, the small
// fixed image-plane kernels a solved kernel is a linear combination of.
package kernelbasis

import (
	"math"

	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
)

// BasisKernel is a small, fixed 2-D kernel image with odd dimensions and
// a defined center pixel. It implements diffim.Image so it can be
// passed directly to a diffim.Convolver.
type BasisKernel struct {
	width, height     int
	centerX, centerY  int
	data              []float64 // row-major, len == width*height
}

// NewBasisKernel builds a BasisKernel from row-major data of length
// width*height, with the given center pixel. Dimensions must be odd
// and the center must lie inside the kernel; it need not sit at the
// geometric middle (ShrinkBBox trims each side by the center's actual
// distance to that edge).
func NewBasisKernel(width, height, centerX, centerY int, data []float64) (*BasisKernel, error) {
	const op = "kernelbasis.NewBasisKernel"
	if width <= 0 || height <= 0 || width%2 == 0 || height%2 == 0 {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "kernel dimensions must be positive and odd, got %dx%d", width, height)
	}
	if len(data) != width*height {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "data length %d does not match %dx%d", len(data), width, height)
	}
	if centerX < 0 || centerX >= width || centerY < 0 || centerY >= height {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "center (%d,%d) out of bounds for %dx%d kernel", centerX, centerY, width, height)
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return &BasisKernel{width: width, height: height, centerX: centerX, centerY: centerY, data: buf}, nil
}

// NewDeltaFunctionKernel builds an odd-sized kernel that is 1 at its
// center and 0 elsewhere, the basis used by the delta-function kernel
// basis set.
func NewDeltaFunctionKernel(size int) (*BasisKernel, error) {
	if size <= 0 || size%2 == 0 {
		return nil, diffimerr.Newf("kernelbasis.NewDeltaFunctionKernel", diffimerr.InvalidInput, "size must be positive and odd, got %d", size)
	}
	data := make([]float64, size*size)
	c := size / 2
	data[c*size+c] = 1.0
	return NewBasisKernel(size, size, c, c, data)
}

// NewGaussianKernel builds an odd-sized, unit-sum isotropic Gaussian
// kernel of the given standard deviation.
func NewGaussianKernel(size int, sigma float64) (*BasisKernel, error) {
	if size <= 0 || size%2 == 0 {
		return nil, diffimerr.Newf("kernelbasis.NewGaussianKernel", diffimerr.InvalidInput, "size must be positive and odd, got %d", size)
	}
	if sigma <= 0 {
		return nil, diffimerr.New("kernelbasis.NewGaussianKernel", diffimerr.InvalidInput, "sigma must be positive")
	}
	c := size / 2
	data := make([]float64, size*size)
	sum := 0.0
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			dx := float64(col - c)
			dy := float64(row - c)
			v := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			data[row*size+col] = v
			sum += v
		}
	}
	for i := range data {
		data[i] /= sum
	}
	return NewBasisKernel(size, size, c, c, data)
}

// Width returns the kernel's width in pixels.
func (k *BasisKernel) Width() int { return k.width }

// Height returns the kernel's height in pixels.
func (k *BasisKernel) Height() int { return k.height }

// CenterX returns the center column.
func (k *BasisKernel) CenterX() int { return k.centerX }

// CenterY returns the center row.
func (k *BasisKernel) CenterY() int { return k.centerY }

// Bounds returns the kernel's own pixel rectangle, [0,width)x[0,height).
func (k *BasisKernel) Bounds() diffim.Rect { return diffim.NewRect(0, 0, k.width, k.height) }

// At returns the kernel value at local pixel (x,y).
func (k *BasisKernel) At(x, y int) float64 { return k.data[y*k.width+x] }

// SubImage is only meaningful for the kernel's own bounds; it exists so
// BasisKernel satisfies diffim.Image.
func (k *BasisKernel) SubImage(r diffim.Rect) (diffim.Image, error) {
	if !k.Bounds().ContainsRect(r) {
		return nil, diffimerr.New("kernelbasis.BasisKernel.SubImage", diffimerr.InvalidInput, "rectangle not contained in kernel bounds")
	}
	out := make([]float64, r.Width()*r.Height())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			out[(y-r.MinY)*r.Width()+(x-r.MinX)] = k.At(x, y)
		}
	}
	k2, err := NewBasisKernel(r.Width(), r.Height(), 0, 0, out)
	if err != nil {
		return nil, err
	}
	return k2, nil
}

// ShrinkBBox returns box shrunk by the kernel's half-width on each side
// (the "good region" produced by convolving an image of shape box with
// this kernel without edge effects).
func (k *BasisKernel) ShrinkBBox(box diffim.Rect) diffim.Rect {
	left := k.centerX
	right := k.width - k.centerX - 1
	top := k.centerY
	bottom := k.height - k.centerY - 1
	return diffim.Rect{
		MinX: box.MinX + left,
		MinY: box.MinY + top,
		MaxX: box.MaxX - right,
		MaxY: box.MaxY - bottom,
	}
}

// KernelBasis is an ordered sequence of BasisKernel. Order is
// meaningful: the spatial model may designate the first element as
// spatially constant.
type KernelBasis struct {
	Kernels []*BasisKernel
}

// NewKernelBasis validates that every kernel shares the same center
// offsets (required so that a single good region applies to all of
// them) and returns the basis.
func NewKernelBasis(kernels []*BasisKernel) (KernelBasis, error) {
	const op = "kernelbasis.NewKernelBasis"
	if len(kernels) == 0 {
		return KernelBasis{}, diffimerr.New(op, diffimerr.InvalidInput, "kernel basis must have at least one kernel")
	}
	cx, cy := kernels[0].centerX, kernels[0].centerY
	for i, k := range kernels[1:] {
		if k.centerX != cx || k.centerY != cy {
			return KernelBasis{}, diffimerr.Newf(op, diffimerr.InvalidInput,
				"basis kernel %d has center (%d,%d), expected (%d,%d) matching the first kernel", i+1, k.centerX, k.centerY, cx, cy)
		}
	}
	return KernelBasis{Kernels: kernels}, nil
}

// Len returns the number of kernels in the basis.
func (b KernelBasis) Len() int { return len(b.Kernels) }

// GoodRegion shrinks box by the first kernel's half-width, per spec:
// the first kernel determines the good region for the whole basis.
func (b KernelBasis) GoodRegion(box diffim.Rect) diffim.Rect {
	return b.Kernels[0].ShrinkBBox(box)
}

// HalfWidth returns the first kernel's half-width (used for mask-footprint growth).
func (b KernelBasis) HalfWidth() int {
	return b.Kernels[0].centerX
}

// KSum returns the pixel sum of the linear combination Σ coeffs[i]*Kernels[i],
// evaluated over the first kernel's own bounds. coeffs must have length Len().
func KSum(b KernelBasis, coeffs []float64) float64 {
	if len(b.Kernels) == 0 {
		return 0
	}
	bounds := b.Kernels[0].Bounds()
	var sum float64
	for y := bounds.MinY; y <= bounds.MaxY; y++ {
		for x := bounds.MinX; x <= bounds.MaxX; x++ {
			for i, k := range b.Kernels {
				sum += coeffs[i] * k.At(x, y)
			}
		}
	}
	return sum
}
