// Package imagematrix implements the ImageMatrix adapter (spec
// component C1): a read-only dense-matrix view of an image rectangle,
// and the corresponding inverse-variance view.
package imagematrix

import (
	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense view of an image rectangle with element (row,col)
// corresponding to pixel (x=col, y=row) within that rectangle.
type Matrix struct {
	*mat.Dense
}

// New builds a Matrix over box, which must be contained in img's bounds.
func New(img diffim.Image, box diffim.Rect) (*Matrix, error) {
	const op = "imagematrix.New"
	if !img.Bounds().ContainsRect(box) {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "rectangle not contained in image bounds")
	}
	rows, cols := box.Height(), box.Width()
	data := make([]float64, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			data[row*cols+col] = img.At(box.MinX+col, box.MinY+row)
		}
	}
	return &Matrix{mat.NewDense(rows, cols, data)}, nil
}

// NewInverseVariance builds the element-wise inverse-variance matrix
// over box. It fails if any selected pixel is <= 0, since a
// non-positive variance cannot be inverse-variance weighted.
func NewInverseVariance(varImg diffim.Image, box diffim.Rect) (*Matrix, error) {
	const op = "imagematrix.NewInverseVariance"
	if !varImg.Bounds().ContainsRect(box) {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "rectangle not contained in image bounds")
	}
	rows, cols := box.Height(), box.Width()
	data := make([]float64, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			v := varImg.At(box.MinX+col, box.MinY+row)
			if v < 0 {
				return nil, diffimerr.New(op, diffimerr.InvalidInput, "variance less than zero")
			}
			if v == 0 {
				return nil, diffimerr.New(op, diffimerr.InvalidInput, "variance equals zero, cannot inverse variance weight")
			}
			data[row*cols+col] = 1.0 / v
		}
	}
	return &Matrix{mat.NewDense(rows, cols, data)}, nil
}
