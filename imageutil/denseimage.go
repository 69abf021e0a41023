// Package imageutil provides concrete, dense-array implementations of
// the collaborator contracts declared in package diffim: images, masks,
// footprints, convolution and statistics. None of this is part of the
// numerical core; it exists so the core is exercisable end to end
// without any external imaging library, mirroring how the original
// implementation's afw::image types sit outside ip_diffim proper.
package imageutil

import (
	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
)

// DenseImage is a row-major, float64-backed diffim.Image with an
// arbitrary integer origin (its XY0, in LSST terms).
type DenseImage struct {
	originX, originY int
	width, height    int
	data             []float64
}

// NewDenseImage builds a width x height image with origin (0,0),
// initialized from data (row-major, len == width*height) or to all
// zeros if data is nil.
func NewDenseImage(width, height int, data []float64) (*DenseImage, error) {
	return NewDenseImageAt(0, 0, width, height, data)
}

// NewDenseImageAt is NewDenseImage with an explicit origin.
func NewDenseImageAt(minX, minY, width, height int, data []float64) (*DenseImage, error) {
	const op = "imageutil.NewDenseImageAt"
	if width <= 0 || height <= 0 {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "width and height must be positive, got %dx%d", width, height)
	}
	buf := make([]float64, width*height)
	if data != nil {
		if len(data) != width*height {
			return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "data length %d does not match %dx%d", len(data), width, height)
		}
		copy(buf, data)
	}
	return &DenseImage{originX: minX, originY: minY, width: width, height: height, data: buf}, nil
}

// NewFilledDenseImage builds a width x height image with every pixel
// set to value.
func NewFilledDenseImage(width, height int, value float64) (*DenseImage, error) {
	img, err := NewDenseImage(width, height, nil)
	if err != nil {
		return nil, err
	}
	img.Fill(value)
	return img, nil
}

func (img *DenseImage) Width() int  { return img.width }
func (img *DenseImage) Height() int { return img.height }

func (img *DenseImage) Bounds() diffim.Rect {
	return diffim.NewRect(img.originX, img.originY, img.width, img.height)
}

func (img *DenseImage) index(x, y int) (int, bool) {
	lx, ly := x-img.originX, y-img.originY
	if lx < 0 || lx >= img.width || ly < 0 || ly >= img.height {
		return 0, false
	}
	return ly*img.width + lx, true
}

// At returns the pixel value at (x,y). It panics if (x,y) is out of
// bounds, matching the teacher's convention of panicking on caller
// invariant violations rather than threading an error through a hot
// accessor.
func (img *DenseImage) At(x, y int) float64 {
	idx, ok := img.index(x, y)
	if !ok {
		panic("imageutil.DenseImage.At: coordinate out of bounds")
	}
	return img.data[idx]
}

// Set writes value at (x,y). Used for building test fixtures; not part
// of the diffim.Image contract.
func (img *DenseImage) Set(x, y int, value float64) {
	idx, ok := img.index(x, y)
	if !ok {
		panic("imageutil.DenseImage.Set: coordinate out of bounds")
	}
	img.data[idx] = value
}

// Fill sets every pixel to value.
func (img *DenseImage) Fill(value float64) {
	for i := range img.data {
		img.data[i] = value
	}
}

// AddScalar adds value to every pixel in place.
func (img *DenseImage) AddScalar(value float64) {
	for i := range img.data {
		img.data[i] += value
	}
}

// SubImage returns a copy of the pixels within r, which must be
// contained in img's bounds.
func (img *DenseImage) SubImage(r diffim.Rect) (diffim.Image, error) {
	if !img.Bounds().ContainsRect(r) {
		return nil, diffimerr.Newf("imageutil.DenseImage.SubImage", diffimerr.InvalidInput,
			"rectangle (%d,%d)-(%d,%d) not contained in image bounds (%d,%d)-(%d,%d)",
			r.MinX, r.MinY, r.MaxX, r.MaxY, img.Bounds().MinX, img.Bounds().MinY, img.Bounds().MaxX, img.Bounds().MaxY)
	}
	out := make([]float64, r.Width()*r.Height())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			idx, _ := img.index(x, y)
			out[(y-r.MinY)*r.Width()+(x-r.MinX)] = img.data[idx]
		}
	}
	return NewDenseImageAt(r.MinX, r.MinY, r.Width(), r.Height(), out)
}

// Clone returns an independent copy of img.
func (img *DenseImage) Clone() *DenseImage {
	out := *img
	out.data = make([]float64, len(img.data))
	copy(out.data, img.data)
	return &out
}
