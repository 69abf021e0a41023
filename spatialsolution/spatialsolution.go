// Package spatialsolution implements the SpatialAggregator (spec
// component C6): it accumulates many stamps' local (Q,w) normal
// equations into one block-structured system over spatial x kernel
// indices and solves it for spatially varying kernel and background
// coefficients.
package spatialsolution

import (
	"errors"

	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
	"github.com/LSST/ip-diffim/diffimlog"
	"github.com/LSST/ip-diffim/kernelbasis"
	"github.com/LSST/ip-diffim/linsolve"
	"gonum.org/v1/gonum/mat"
)

// Solution accumulates constraints from addConstraint calls into a
// block normal-equation system (M,b) of size nt, and is finalized by
// Solve into a SpatialKernelAndBackground.
type Solution struct {
	basis             kernelbasis.KernelBasis
	spatialKernelFunc diffim.SpatialFunction
	background        diffim.SpatialFunction
	fitForBackground  bool
	constantFirstTerm bool

	nBases, nKt, nBt, nt int

	M *mat.SymDense
	B *mat.VecDense

	A        *mat.VecDense
	SolvedBy linsolve.SolvedBy
}

// New builds an empty Solution. spatialKernelFunc is shared by every
// non-constant basis term (each gets its own coefficient vector of
// length spatialKernelFunc.NumParams()); background, when
// fitForBackground, supplies the spatial background's own parameter
// count. If constantFirstTerm, the first basis has no spatial
// variation (a single coefficient rather than nKt of them).
func New(basis kernelbasis.KernelBasis, spatialKernelFunc, background diffim.SpatialFunction, fitForBackground, constantFirstTerm bool) (*Solution, error) {
	const op = "spatialsolution.New"
	nBases := basis.Len()
	if nBases == 0 {
		return nil, diffimerr.New(op, diffimerr.InvalidInput, "kernel basis must have at least one kernel")
	}
	nKt := spatialKernelFunc.NumParams()
	if nKt <= 0 {
		return nil, diffimerr.New(op, diffimerr.InvalidInput, "spatial kernel function must have at least one parameter")
	}
	nBt := 0
	if fitForBackground {
		nBt = background.NumParams()
		if nBt <= 0 {
			return nil, diffimerr.New(op, diffimerr.InvalidInput, "spatial background function must have at least one parameter")
		}
	}
	var nt int
	if constantFirstTerm {
		nt = (nBases-1)*nKt + 1 + nBt
	} else {
		nt = nBases*nKt + nBt
	}

	diffimlog.Debug("spatialsolution: initializing", "nkt", nKt, "nbt", nBt, "nt", nt, "constantFirstTerm", constantFirstTerm)

	return &Solution{
		basis:             basis,
		spatialKernelFunc: spatialKernelFunc,
		background:        background,
		fitForBackground:  fitForBackground,
		constantFirstTerm: constantFirstTerm,
		nBases:            nBases,
		nKt:               nKt,
		nBt:               nBt,
		nt:                nt,
		M:                 mat.NewSymDense(nt, nil),
		B:                 mat.NewVecDense(nt, nil),
	}, nil
}

// AddConstraint accumulates one stamp's local system (Q,w), evaluated
// at (x,y), into the global block system. Q must be (nBases+hasBg) x
// (nBases+hasBg); w must have length nBases+hasBg. Calls are not
// commutative at floating-point precision; callers needing
// bit-reproducibility across runs must call AddConstraint in a stable
// order.
func (s *Solution) AddConstraint(x, y float64, Q mat.Matrix, w mat.Vector) error {
	const op = "spatialsolution.Solution.AddConstraint"
	hasBg := 0
	if s.fitForBackground {
		hasBg = 1
	}
	expected := s.nBases + hasBg
	qr, qc := Q.Dims()
	if qr != expected || qc != expected {
		return diffimerr.Newf(op, diffimerr.InvalidInput, "Q is %dx%d, expected %dx%d", qr, qc, expected, expected)
	}
	if w.Len() != expected {
		return diffimerr.Newf(op, diffimerr.InvalidInput, "w has length %d, expected %d", w.Len(), expected)
	}

	diffimlog.Debug("spatialsolution: adding constraint", "x", x, "y", y)

	pK := evalBasisVector(s.spatialKernelFunc, x, y)
	var pB *mat.VecDense
	if s.fitForBackground {
		pB = evalBasisVector(s.background, x, y)
	}

	m0, dm := 0, 0
	mb := s.nt - s.nBt
	if s.constantFirstTerm {
		m0, dm = 1, s.nKt-1

		s.addM(0, 0, Q.At(0, 0))
		for m2 := 1; m2 < s.nBases; m2++ {
			colStart := m2*s.nKt - dm
			for j := 0; j < s.nKt; j++ {
				s.addM(0, colStart+j, Q.At(0, m2)*pK.AtVec(j))
			}
		}
		s.addB(0, w.AtVec(0))

		if s.fitForBackground {
			for j := 0; j < s.nBt; j++ {
				s.addM(0, mb+j, Q.At(0, s.nBases)*pB.AtVec(j))
			}
		}
	}

	for m1 := m0; m1 < s.nBases; m1++ {
		base1 := m1*s.nKt - dm

		for i := 0; i < s.nKt; i++ {
			for j := i; j < s.nKt; j++ {
				s.addM(base1+i, base1+j, Q.At(m1, m1)*pK.AtVec(i)*pK.AtVec(j))
			}
		}

		for m2 := m1 + 1; m2 < s.nBases; m2++ {
			base2 := m2*s.nKt - dm
			for i := 0; i < s.nKt; i++ {
				for j := 0; j < s.nKt; j++ {
					s.addM(base1+i, base2+j, Q.At(m1, m2)*pK.AtVec(i)*pK.AtVec(j))
				}
			}
		}

		if s.fitForBackground {
			for i := 0; i < s.nKt; i++ {
				for j := 0; j < s.nBt; j++ {
					s.addM(base1+i, mb+j, Q.At(m1, s.nBases)*pK.AtVec(i)*pB.AtVec(j))
				}
			}
		}

		for i := 0; i < s.nKt; i++ {
			s.addB(base1+i, w.AtVec(m1)*pK.AtVec(i))
		}
	}

	if s.fitForBackground {
		for i := 0; i < s.nBt; i++ {
			for j := i; j < s.nBt; j++ {
				s.addM(mb+i, mb+j, Q.At(s.nBases, s.nBases)*pB.AtVec(i)*pB.AtVec(j))
			}
		}
		for i := 0; i < s.nBt; i++ {
			s.addB(mb+i, w.AtVec(s.nBases)*pB.AtVec(i))
		}
	}

	return nil
}

func (s *Solution) addM(i, j int, v float64) {
	s.M.SetSym(i, j, s.M.At(i, j)+v)
}

func (s *Solution) addB(i int, v float64) {
	s.B.SetVec(i, s.B.AtVec(i)+v)
}

// evalBasisVector evaluates each unit-parameter response of f at
// (x,y): the i-th entry is f.Eval(x,y) with Params()[i]=1 and every
// other parameter 0. Since every diffim.SpatialFunction implementation
// in this module is linear in its parameters, this recovers the i-th
// basis function's value at (x,y) without a dedicated basis-evaluation
// method on the interface. f's parameters are left zeroed afterward.
func evalBasisVector(f diffim.SpatialFunction, x, y float64) *mat.VecDense {
	n := f.NumParams()
	params := make([]float64, n)
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		params[i] = 1.0
		f.SetParams(params)
		out.SetVec(i, f.Eval(x, y))
		params[i] = 0.0
	}
	f.SetParams(params)
	return out
}

// Solve solves the accumulated system via linsolve and unpacks the
// result into a SpatialKernelAndBackground. A NaN coefficient is a
// Numerical error whose message embeds the condition number, whether
// linsolve reports it or one of the three unpacking checks below
// (constant first term, other kernel terms, background) finds it.
func (s *Solution) Solve(tol float64) (*SpatialKernelAndBackground, error) {
	const op = "spatialsolution.Solution.Solve"

	result, err := linsolve.Solve(s.M, s.B, tol)
	if err != nil {
		var derr *diffimerr.Error
		if errors.As(err, &derr) && derr.Kind == diffimerr.Numerical {
			cNumber, _ := linsolve.ConditionNumber(s.M, linsolve.Eigenvalue)
			return nil, derr.WithConditionNumber(cNumber)
		}
		return nil, err
	}
	s.A = result.A
	s.SolvedBy = result.SolvedBy

	cNumber, _ := linsolve.ConditionNumber(s.M, linsolve.Eigenvalue)

	kCoeffs := make([][]float64, s.nBases)
	idx := 0
	for i := 0; i < s.nBases; i++ {
		if i == 0 && s.constantFirstTerm {
			v := s.A.AtVec(idx)
			if isNaN(v) {
				return nil, diffimerr.Newf(op, diffimerr.Numerical, "unable to determine spatial kernel solution %d (nan)", idx).WithConditionNumber(cNumber)
			}
			kCoeffs[i] = []float64{v}
			idx++
			continue
		}
		kCoeffs[i] = make([]float64, s.nKt)
		for j := 0; j < s.nKt; j++ {
			v := s.A.AtVec(idx)
			if isNaN(v) {
				return nil, diffimerr.Newf(op, diffimerr.Numerical, "unable to determine spatial kernel solution %d (nan)", idx).WithConditionNumber(cNumber)
			}
			kCoeffs[i][j] = v
			idx++
		}
	}

	var bgCoeffs []float64
	if s.fitForBackground {
		bgCoeffs = make([]float64, s.nBt)
		for i := 0; i < s.nBt; i++ {
			v := s.A.AtVec(s.nt - s.nBt + i)
			if isNaN(v) {
				return nil, diffimerr.Newf(op, diffimerr.Numerical, "unable to determine spatial background solution %d (nan)", i).WithConditionNumber(cNumber)
			}
			bgCoeffs[i] = v
		}
	}

	out := &SpatialKernelAndBackground{
		basis:             s.basis,
		spatialKernelFunc: s.spatialKernelFunc,
		background:        s.background,
		constantFirstTerm: s.constantFirstTerm,
		fitForBackground:  s.fitForBackground,
		KCoeffs:           kCoeffs,
		BgCoeffs:          bgCoeffs,
	}
	out.kSum = out.kernelCoeffsAt(0, 0)
	return out, nil
}

func isNaN(v float64) bool { return v != v }

// kernelCoeffsAt computes this result's per-basis coefficients at
// (x,y) and reduces them through the basis to a scalar kernel sum,
// used once to populate kSum at the nominal position (0,0).
func (r *SpatialKernelAndBackground) kernelCoeffsAt(x, y float64) float64 {
	coeffs := r.KernelCoeffsAt(x, y)
	return kernelbasis.KSum(r.basis, coeffs)
}
