// Package convolvebasis implements the BasisConvolver (spec component
// C2): it convolves a template image with each kernel of a basis and
// flattens the "good region" of each result into a column vector.
package convolvebasis

import (
	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
	"github.com/LSST/ip-diffim/kernelbasis"
)

// Column is one basis kernel's convolved, flattened contribution: the
// good region of Convolve(template, basis[i]), flattened column-major
// (outer loop over x, inner loop over y), length P.
type Column []float64

// Convolve convolves tmpl with every kernel in basis using conv, and
// returns one Column per basis kernel plus the good region they were
// extracted from (tmpl's bounds shrunk by the first kernel's
// half-width, per spec).
func Convolve(tmpl diffim.Image, basis kernelbasis.KernelBasis, conv diffim.Convolver) ([]Column, diffim.Rect, error) {
	const op = "convolvebasis.Convolve"
	goodRegion := basis.GoodRegion(tmpl.Bounds())
	if goodRegion.Area() <= 0 {
		return nil, diffim.Rect{}, diffimerr.New(op, diffimerr.InvalidInput, "template too small for basis kernel half-width")
	}

	columns := make([]Column, basis.Len())
	for i, k := range basis.Kernels {
		convolved, err := conv.Convolve(tmpl, k, k.CenterX(), k.CenterY(), false)
		if err != nil {
			return nil, diffim.Rect{}, diffimerr.Newf(op, diffimerr.InvalidInput, "convolving basis kernel %d: %v", i, err)
		}
		sub, err := convolved.SubImage(goodRegion)
		if err != nil {
			return nil, diffim.Rect{}, diffimerr.Newf(op, diffimerr.InvalidInput, "restricting basis kernel %d to good region: %v", i, err)
		}
		columns[i] = FlattenColumnMajor(sub, goodRegion)
	}
	return columns, goodRegion, nil
}

// FlattenColumnMajor reads img over box with x as the outer loop and y
// as the inner loop, matching the column-major storage order the
// original implementation relied on (Eigen::MatrixXd.resize keeps
// column-major order).
func FlattenColumnMajor(img diffim.Image, box diffim.Rect) Column {
	out := make(Column, box.Area())
	idx := 0
	for x := box.MinX; x <= box.MaxX; x++ {
		for y := box.MinY; y <= box.MaxY; y++ {
			out[idx] = img.At(x, y)
			idx++
		}
	}
	return out
}
