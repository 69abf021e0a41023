// Package stampsolution implements the StampBuilder (spec component
// C3): it forms the weighted least-squares normal equations M=CᵀVC,
// b=CᵀVY for a single stamp, and owns the resulting StaticSolution.
package stampsolution

import (
	"sync/atomic"

	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/convolvebasis"
	"github.com/LSST/ip-diffim/diffimerr"
	"github.com/LSST/ip-diffim/diffimlog"
	"github.com/LSST/ip-diffim/imagematrix"
	"github.com/LSST/ip-diffim/kernelbasis"
	"github.com/LSST/ip-diffim/linsolve"
	"gonum.org/v1/gonum/mat"
)

var solutionCounter atomic.Int64

// NextSolutionID returns the next value of the process-wide monotonic
// solution-id counter. Safe for concurrent use from multiple goroutines
// building stamps in parallel.
func NextSolutionID() int64 {
	return solutionCounter.Add(1)
}

// Stamp is a single co-registered (template, science, variance) triple
// at one sky location, with an optional pixel mask. All three images
// must share shape and coordinate origin.
type Stamp struct {
	Template, Science, Variance diffim.Image
	Mask                        diffim.Mask
	CenterX, CenterY            float64
}

// StaticSolution owns the design system (C,V,Y,M,b,a), the solved
// kernel/background/kSum, and the basis it was built against. It is
// immutable once Solve has succeeded.
type StaticSolution struct {
	ID               int64
	Basis            kernelbasis.KernelBasis
	FitForBackground bool
	GoodRegion       diffim.Rect

	// C is the design matrix: rows = used pixels, cols = nKernel + (1 if background).
	C *mat.Dense
	// V holds the diagonal of the inverse-variance weight matrix.
	V []float64
	// Y is the target vector of science pixels.
	Y *mat.VecDense
	M *mat.SymDense
	B *mat.VecDense

	A        *mat.VecDense
	SolvedBy linsolve.SolvedBy

	kernelCoeffs []float64
	background   float64
	kSum         float64
	solved       bool
}

// Build forms the standard design system over the good region (the
// template's bounds shrunk by the basis's half-width), with no masking.
func Build(tmpl, sci, variance diffim.Image, stats diffim.Statistics, basis kernelbasis.KernelBasis, conv diffim.Convolver, fitForBackground bool) (*StaticSolution, error) {
	const op = "stampsolution.Build"
	if err := checkVariance(op, variance, stats); err != nil {
		return nil, err
	}

	columns, goodRegion, err := convolvebasis.Convolve(tmpl, basis, conv)
	if err != nil {
		return nil, err
	}

	y := convolvebasis.FlattenColumnMajor(sci, goodRegion)
	invVar, err := inverseVarianceColumnMajor(variance, goodRegion)
	if err != nil {
		return nil, err
	}

	return assemble(basis, fitForBackground, goodRegion, columns, y, invVar)
}

// BuildWithMask is Build but excludes every pixel whose mask value
// bit-ANDs non-zero against {BAD,SAT,NO_DATA,EDGE}, after growing that
// footprint by the basis's half-width.
func BuildWithMask(tmpl, sci, variance diffim.Image, mask diffim.Mask, stats diffim.Statistics, basis kernelbasis.KernelBasis, conv diffim.Convolver, fitForBackground bool) (*StaticSolution, error) {
	const op = "stampsolution.BuildWithMask"
	if err := checkVariance(op, variance, stats); err != nil {
		return nil, err
	}

	bitmask, err := maskBitSet(op, mask)
	if err != nil {
		return nil, err
	}
	bad := mask.Threshold(bitmask)
	grown := bad.Grow(basis.HalfWidth())

	goodRegion := basis.GoodRegion(tmpl.Bounds())
	var xs, ys []int
	for y := goodRegion.MinY; y <= goodRegion.MaxY; y++ {
		for x := goodRegion.MinX; x <= goodRegion.MaxX; x++ {
			if !grown.Contains(x, y) {
				xs = append(xs, x)
				ys = append(ys, y)
			}
		}
	}
	if len(xs) == 0 {
		return nil, diffimerr.New(op, diffimerr.InvalidInput, "no unmasked pixels remain")
	}

	gather := func(img diffim.Image) []float64 {
		out := make([]float64, len(xs))
		for i := range xs {
			out[i] = img.At(xs[i], ys[i])
		}
		return out
	}

	y := gather(sci)
	// The unmasked pixel set here is a scatter, not a rectangle, so it
	// can't route through imagematrix's rectangle-shaped inverse-variance
	// adapter; the invert-and-reject-non-positive check is repeated
	// inline instead.
	rawVar := gather(variance)
	invVar := make([]float64, len(rawVar))
	for i, v := range rawVar {
		if v <= 0 {
			return nil, diffimerr.New(op, diffimerr.InvalidInput, "variance less than or equal to zero in good region")
		}
		invVar[i] = 1.0 / v
	}

	columns := make([]convolvebasis.Column, basis.Len())
	for i, k := range basis.Kernels {
		convolved, err := conv.Convolve(tmpl, k, k.CenterX(), k.CenterY(), false)
		if err != nil {
			return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "convolving basis kernel %d: %v", i, err)
		}
		columns[i] = gather(convolved)
	}

	return assemble(basis, fitForBackground, diffim.Rect{}, columns, y, invVar)
}

// BuildSingle excludes a single axis-aligned rectangle maskBox and
// retains the four surrounding rectangles (top, bottom, left, right of
// maskBox, clipped to the good region), concatenated in that order.
func BuildSingle(tmpl, sci, variance diffim.Image, maskBox diffim.Rect, stats diffim.Statistics, basis kernelbasis.KernelBasis, conv diffim.Convolver, fitForBackground bool) (*StaticSolution, error) {
	const op = "stampsolution.BuildSingle"
	if err := checkVariance(op, variance, stats); err != nil {
		return nil, err
	}

	goodRegion := basis.GoodRegion(tmpl.Bounds())
	rects := surroundingRects(goodRegion, maskBox)

	y := flattenRects(sci, rects)
	invVar, err := inverseVarianceRects(variance, rects)
	if err != nil {
		return nil, err
	}

	columns := make([]convolvebasis.Column, basis.Len())
	for i, k := range basis.Kernels {
		convolved, err := conv.Convolve(tmpl, k, k.CenterX(), k.CenterY(), false)
		if err != nil {
			return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "convolving basis kernel %d: %v", i, err)
		}
		columns[i] = flattenRects(convolved, rects)
	}

	return assemble(basis, fitForBackground, goodRegion, columns, y, invVar)
}

// surroundingRects partitions goodRegion \ maskBox into the four
// non-overlapping rectangles above, below, left of, and right of
// maskBox, clipped to goodRegion; empty rectangles are omitted.
func surroundingRects(goodRegion, maskBox diffim.Rect) []diffim.Rect {
	top := diffim.Rect{MinX: goodRegion.MinX, MinY: goodRegion.MinY, MaxX: goodRegion.MaxX, MaxY: maskBox.MinY - 1}
	bottom := diffim.Rect{MinX: goodRegion.MinX, MinY: maskBox.MaxY + 1, MaxX: goodRegion.MaxX, MaxY: goodRegion.MaxY}
	left := diffim.Rect{MinX: goodRegion.MinX, MinY: maskBox.MinY, MaxX: maskBox.MinX - 1, MaxY: maskBox.MaxY}
	right := diffim.Rect{MinX: maskBox.MaxX + 1, MinY: maskBox.MinY, MaxX: goodRegion.MaxX, MaxY: maskBox.MaxY}

	var out []diffim.Rect
	for _, r := range []diffim.Rect{top, bottom, left, right} {
		r = r.Intersect(goodRegion)
		if r.Area() > 0 {
			out = append(out, r)
		}
	}
	return out
}

func flattenRects(img diffim.Image, rects []diffim.Rect) []float64 {
	var out []float64
	for _, r := range rects {
		out = append(out, convolvebasis.FlattenColumnMajor(img, r)...)
	}
	return out
}

// inverseVarianceRects builds the inverse-variance weights for each rect
// via imagematrix (spec component C1), the single owner of the
// invert-and-reject-non-positive concern, concatenated in rect order and
// flattened to match FlattenColumnMajor's (outer x, inner y) order.
func inverseVarianceRects(variance diffim.Image, rects []diffim.Rect) ([]float64, error) {
	var out []float64
	for _, r := range rects {
		m, err := imagematrix.NewInverseVariance(variance, r)
		if err != nil {
			return nil, err
		}
		out = append(out, flattenMatrixColumnMajor(m, r)...)
	}
	return out, nil
}

// inverseVarianceColumnMajor is inverseVarianceRects for the single-box case.
func inverseVarianceColumnMajor(variance diffim.Image, box diffim.Rect) ([]float64, error) {
	m, err := imagematrix.NewInverseVariance(variance, box)
	if err != nil {
		return nil, err
	}
	return flattenMatrixColumnMajor(m, box), nil
}

// flattenMatrixColumnMajor reads an imagematrix.Matrix over box with x as
// the outer loop and y as the inner loop, mirroring
// convolvebasis.FlattenColumnMajor's order over the same box.
func flattenMatrixColumnMajor(m *imagematrix.Matrix, box diffim.Rect) []float64 {
	rows, cols := box.Height(), box.Width()
	out := make([]float64, rows*cols)
	idx := 0
	for col := 0; col < cols; col++ {
		for row := 0; row < rows; row++ {
			out[idx] = m.At(row, col)
			idx++
		}
	}
	return out
}

func checkVariance(op string, variance diffim.Image, stats diffim.Statistics) error {
	min := stats.Min(variance)
	if min < 0 {
		return diffimerr.New(op, diffimerr.InvalidInput, "variance less than 0.0")
	}
	if min == 0 {
		return diffimerr.New(op, diffimerr.InvalidInput, "variance equals 0.0, cannot inverse variance weight")
	}
	return nil
}

func maskBitSet(op string, mask diffim.Mask) (uint16, error) {
	var bits uint16
	for _, name := range []string{"BAD", "SAT", "NO_DATA", "EDGE"} {
		b, err := mask.PlaneBitMask(name)
		if err != nil {
			return 0, diffimerr.Newf(op, diffimerr.InvalidInput, "mask plane %s: %v", name, err)
		}
		bits |= b
	}
	return bits, nil
}

// assemble builds C, V, Y, M, b from basis columns and flattened
// science/inverse-variance vectors, all of length P. If
// fitForBackground, an all-ones column is appended to C.
func assemble(basis kernelbasis.KernelBasis, fitForBackground bool, goodRegion diffim.Rect, columns []convolvebasis.Column, y, invVar []float64) (*StaticSolution, error) {
	const op = "stampsolution.assemble"
	p := len(y)
	if p == 0 {
		return nil, diffimerr.New(op, diffimerr.InvalidInput, "no pixels available to build the design system")
	}
	for i, col := range columns {
		if len(col) != p {
			return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "basis column %d has length %d, expected %d", i, len(col), p)
		}
	}
	if len(invVar) != p {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "inverse variance has length %d, expected %d", len(invVar), p)
	}

	nKernel := basis.Len()
	nParams := nKernel
	if fitForBackground {
		nParams++
	}

	cData := make([]float64, p*nParams)
	for row := 0; row < p; row++ {
		for col := 0; col < nKernel; col++ {
			cData[row*nParams+col] = columns[col][row]
		}
		if fitForBackground {
			cData[row*nParams+nKernel] = 1.0
		}
	}
	C := mat.NewDense(p, nParams, cData)
	Y := mat.NewVecDense(p, y)

	M, B := normalEquations(C, invVar, Y)

	diffimlog.Debug("stampsolution: assembled design system", "pixels", p, "params", nParams)

	return &StaticSolution{
		ID:               NextSolutionID(),
		Basis:            basis,
		FitForBackground: fitForBackground,
		GoodRegion:       goodRegion,
		C:                C,
		V:                invVar,
		Y:                Y,
		M:                M,
		B:                B,
	}, nil
}

// normalEquations computes M=CᵀVC and b=CᵀVY for a diagonal V given by
// its entries invVar.
func normalEquations(C *mat.Dense, invVar []float64, Y *mat.VecDense) (*mat.SymDense, *mat.VecDense) {
	p, n := C.Dims()
	VC := mat.NewDense(p, n, nil)
	VC.Apply(func(i, j int, v float64) float64 { return v }, C)
	for i := 0; i < p; i++ {
		for j := 0; j < n; j++ {
			VC.Set(i, j, C.At(i, j)*invVar[i])
		}
	}
	var Mdense mat.Dense
	Mdense.Mul(C.T(), VC)
	M := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			M.SetSym(i, j, Mdense.At(i, j))
		}
	}

	VY := mat.NewVecDense(p, nil)
	for i := 0; i < p; i++ {
		VY.SetVec(i, Y.AtVec(i)*invVar[i])
	}
	b := mat.NewVecDense(n, nil)
	b.MulVec(C.T(), VY)

	return M, b
}

// Solve solves M*a=b via linsolve.Solve and unpacks the result into the
// kernel coefficients, background, and kernel sum.
func (s *StaticSolution) Solve(tol float64) error {
	result, err := linsolve.Solve(s.M, s.B, tol)
	if err != nil {
		return err
	}
	return s.FinalizeSolution(result)
}

// FinalizeSolution installs a linsolve.Result computed externally (by
// the regularized solver, which solves M+λH rather than M) onto this
// solution. It is exported so regsolve can reuse the same unpacking
// logic after solving its own, regularized system.
func (s *StaticSolution) FinalizeSolution(result linsolve.Result) error {
	s.SolvedBy = result.SolvedBy
	s.A = result.A

	n := s.A.Len()
	nKernel := s.Basis.Len()
	coeffs := make([]float64, nKernel)
	for i := 0; i < nKernel; i++ {
		coeffs[i] = s.A.AtVec(i)
	}
	s.kernelCoeffs = coeffs
	if s.FitForBackground {
		s.background = s.A.AtVec(n - 1)
	} else {
		s.background = 0
	}
	s.kSum = kernelbasis.KSum(s.Basis, coeffs)
	s.solved = true
	return nil
}

// GetKernel returns the solved kernel's coefficients (not a rendered
// image); see MakeKernelImage for the rendered form.
func (s *StaticSolution) GetKernel() ([]float64, error) {
	if !s.solved {
		return nil, diffimerr.New("stampsolution.StaticSolution.GetKernel", diffimerr.NotSolved, "kernel not solved; cannot return solution")
	}
	out := make([]float64, len(s.kernelCoeffs))
	copy(out, s.kernelCoeffs)
	return out, nil
}

// GetBackground returns the solved differential background.
func (s *StaticSolution) GetBackground() (float64, error) {
	if !s.solved {
		return 0, diffimerr.New("stampsolution.StaticSolution.GetBackground", diffimerr.NotSolved, "kernel not solved; cannot return background")
	}
	return s.background, nil
}

// GetKsum returns the solved kernel's pixel sum.
func (s *StaticSolution) GetKsum() (float64, error) {
	if !s.solved {
		return 0, diffimerr.New("stampsolution.StaticSolution.GetKsum", diffimerr.NotSolved, "kernel not solved; cannot return ksum")
	}
	return s.kSum, nil
}

// MakeKernelImage renders the solved kernel as a single dense image
// over the first basis kernel's own bounds.
func (s *StaticSolution) MakeKernelImage() (diffim.Image, error) {
	if !s.solved {
		return nil, diffimerr.New("stampsolution.StaticSolution.MakeKernelImage", diffimerr.NotSolved, "kernel not solved; cannot return image")
	}
	b := s.Basis.Kernels[0].Bounds()
	data := make([]float64, b.Area())
	idx := 0
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			var v float64
			for i, k := range s.Basis.Kernels {
				v += s.kernelCoeffs[i] * k.At(x, y)
			}
			data[idx] = v
			idx++
		}
	}
	return imageFrom(b, data)
}

// GetConditionNumber reports M's condition number by the requested metric.
func (s *StaticSolution) GetConditionNumber(t linsolve.ConditionNumberType) (float64, error) {
	return linsolve.ConditionNumber(s.M, t)
}

// GetM returns the normal-equation matrix M. includeRegularization is
// ignored at this layer, which has no λH term; regsolve.GetM returns
// M+λH for the regularized case.
func (s *StaticSolution) GetM(includeRegularization bool) *mat.SymDense {
	return s.M
}

// GetB returns the normal-equation right-hand side b.
func (s *StaticSolution) GetB() *mat.VecDense {
	return s.B
}

// imageFrom is a tiny local helper so this package need not import
// imageutil (the core stays independent of its own reference adapter).
type denseImage struct {
	bounds diffim.Rect
	data   []float64
}

func imageFrom(b diffim.Rect, data []float64) (diffim.Image, error) {
	return &denseImage{bounds: b, data: data}, nil
}

func (d *denseImage) Width() int          { return d.bounds.Width() }
func (d *denseImage) Height() int         { return d.bounds.Height() }
func (d *denseImage) Bounds() diffim.Rect { return d.bounds }
func (d *denseImage) At(x, y int) float64 {
	return d.data[(y-d.bounds.MinY)*d.bounds.Width()+(x-d.bounds.MinX)]
}
func (d *denseImage) SubImage(r diffim.Rect) (diffim.Image, error) {
	if !d.bounds.ContainsRect(r) {
		return nil, diffimerr.New("stampsolution.denseImage.SubImage", diffimerr.InvalidInput, "rectangle not contained in image bounds")
	}
	out := make([]float64, r.Area())
	idx := 0
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			out[idx] = d.At(x, y)
			idx++
		}
	}
	return imageFrom(r, out)
}
