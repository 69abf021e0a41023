// Package linsolve implements the LinearSolver (spec component C4):
// solve a symmetric positive (semi-)definite system M*a=b by LU, with
// automatic fallback to a truncated eigendecomposition pseudo-inverse,
// plus condition-number reporting by eigenvalue or SVD ratio.
package linsolve

import (
	"math"

	"github.com/LSST/ip-diffim/diffimerr"
	"github.com/LSST/ip-diffim/diffimlog"
	"gonum.org/v1/gonum/mat"
)

// SolvedBy records which method produced a's coefficients.
type SolvedBy int

const (
	None SolvedBy = iota
	LU
	Eigenvector
)

func (s SolvedBy) String() string {
	switch s {
	case LU:
		return "LU"
	case Eigenvector:
		return "EIGENVECTOR"
	default:
		return "NONE"
	}
}

// ConditionNumberType selects how ConditionNumber computes its ratio.
type ConditionNumberType int

const (
	Eigenvalue ConditionNumberType = iota
	SVD
)

// Result is the outcome of a Solve call.
type Result struct {
	A        *mat.VecDense
	SolvedBy SolvedBy
}

// Solve attempts an LU solve of M*a=b with mat.Dense.Solve, which uses
// partial pivoting, not full pivoting. If that solve returns any error
// (M singular, or near singular by gonum's condition estimate) it
// falls back to a symmetric eigendecomposition: a = R * diag(e~) * Rᵀ * b
// where e~ inverts every eigenvalue with |e| > tol and zeroes the rest
// (tol defaults to 0 if the caller passes 0, matching the original's
// undocumented zero-tolerance convention — see spec.md §9's open
// question on this point). Any NaN in the returned coefficients is a
// Numerical error.
func Solve(M mat.Symmetric, b *mat.VecDense, tol float64) (Result, error) {
	const op = "linsolve.Solve"
	n, _ := M.Dims()
	if rb, _ := b.Dims(); rb != n {
		return Result{SolvedBy: None}, diffimerr.Newf(op, diffimerr.InvalidInput, "M is %dx%d but b has length %d", n, n, rb)
	}

	dense := mat.NewDense(n, n, nil)
	dense.Copy(M)

	var a mat.Dense
	if err := a.Solve(dense, b); err == nil {
		av := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			av.SetVec(i, a.At(i, 0))
		}
		if hasNaN(av) {
			return Result{SolvedBy: LU}, diffimerr.New(op, diffimerr.Numerical, "LU solve produced a NaN coefficient")
		}
		return Result{A: av, SolvedBy: LU}, nil
	}

	diffimlog.Debug("linsolve: LU solve failed, falling back to eigendecomposition")

	var eig mat.EigenSym
	if ok := eig.Factorize(M, true); !ok {
		return Result{SolvedBy: None}, diffimerr.New(op, diffimerr.Numerical, "unable to determine kernel solution: eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	inv := make([]float64, n)
	for i, e := range values {
		if e == 0.0 || math.Abs(e) <= tol {
			inv[i] = 0
		} else {
			inv[i] = 1.0 / e
		}
	}

	// a = R * diag(inv) * Rᵀ * b
	var rtb mat.VecDense
	rtb.MulVec(vectors.T(), b)
	for i := 0; i < n; i++ {
		rtb.SetVec(i, rtb.AtVec(i)*inv[i])
	}
	av := mat.NewVecDense(n, nil)
	av.MulVec(&vectors, &rtb)

	if hasNaN(av) {
		return Result{SolvedBy: Eigenvector}, diffimerr.New(op, diffimerr.Numerical, "eigenvector solve produced a NaN coefficient")
	}
	return Result{A: av, SolvedBy: Eigenvector}, nil
}

func hasNaN(v *mat.VecDense) bool {
	n := v.Len()
	for i := 0; i < n; i++ {
		if math.IsNaN(v.AtVec(i)) {
			return true
		}
	}
	return false
}

// ConditionNumber reports the condition number of M by the ratio of
// its largest to smallest eigenvalue magnitude (Eigenvalue) or
// singular value (SVD).
func ConditionNumber(M mat.Symmetric, t ConditionNumberType) (float64, error) {
	const op = "linsolve.ConditionNumber"
	switch t {
	case Eigenvalue:
		var eig mat.EigenSym
		if ok := eig.Factorize(M, false); !ok {
			return 0, diffimerr.New(op, diffimerr.Numerical, "eigendecomposition failed")
		}
		values := eig.Values(nil)
		eMax, eMin := math.Abs(values[0]), math.Abs(values[0])
		for _, e := range values[1:] {
			a := math.Abs(e)
			if a > eMax {
				eMax = a
			}
			if a < eMin {
				eMin = a
			}
		}
		diffimlog.Debug("linsolve: eigenvalue condition number", "eMax", eMax, "eMin", eMin)
		return eMax / eMin, nil
	case SVD:
		n, _ := M.Dims()
		dense := mat.NewDense(n, n, nil)
		dense.Copy(M)
		var svd mat.SVD
		if ok := svd.Factorize(dense, mat.SVDNone); !ok {
			return 0, diffimerr.New(op, diffimerr.Numerical, "SVD failed")
		}
		values := svd.Values(nil)
		sMax, sMin := values[0], values[0]
		for _, s := range values[1:] {
			if s > sMax {
				sMax = s
			}
			if s < sMin {
				sMin = s
			}
		}
		diffimlog.Debug("linsolve: SVD condition number", "sMax", sMax, "sMin", sMin)
		return sMax / sMin, nil
	default:
		return 0, diffimerr.New(op, diffimerr.InvalidInput, "undefined condition number type: only Eigenvalue, SVD allowed")
	}
}
