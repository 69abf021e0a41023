// Package regsolve implements the RegularizedSolver (spec component
// C5): it extends a stamp's normal equations with a Tikhonov
// regularization matrix H and a scalar lambda chosen by one of four
// policies, then solves (M+lambda*H)*a=b via package linsolve.
package regsolve

import (
	"math"

	"github.com/LSST/ip-diffim/diffimerr"
	"github.com/LSST/ip-diffim/diffimlog"
	"github.com/LSST/ip-diffim/gonumExtensions"
	"github.com/LSST/ip-diffim/linsolve"
	"github.com/LSST/ip-diffim/options"
	"github.com/LSST/ip-diffim/stampsolution"
	"gonum.org/v1/gonum/mat"
)

// IdentityH returns the n x n identity matrix as a regularization
// matrix, the simplest H a caller can hand to Solve (penalizing
// coefficient magnitude rather than roughness).
func IdentityH(n int) *mat.SymDense {
	eye := gonumExtensions.Eye(n, n, 0)
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			h.SetSym(i, j, eye.At(i, j))
		}
	}
	return h
}

// Solve chooses lambda per cfg.LambdaType, solves (M+lambda*H)*a=b via
// linsolve, and installs the result onto sol (kernel coefficients,
// background, kSum). It returns the chosen lambda. H must be
// nKernel+nBg square, matching sol.M's dimension.
func Solve(sol *stampsolution.StaticSolution, H *mat.SymDense, cfg *options.Options, tol float64) (float64, error) {
	const op = "regsolve.Solve"

	n, _ := sol.M.Dims()
	hn, _ := H.Dims()
	if hn != n {
		return 0, diffimerr.Newf(op, diffimerr.InvalidInput, "H is %dx%d but M is %dx%d", hn, hn, n, n)
	}

	lambda, err := chooseLambda(sol, H, cfg, tol)
	if err != nil {
		return 0, err
	}

	diffimlog.Debug("regsolve: applying kernel regularization", "lambda", lambda)

	mLambda := addScaled(sol.M, H, lambda)
	result, err := linsolve.Solve(mLambda, sol.B, tol)
	if err != nil {
		return 0, err
	}
	if err := sol.FinalizeSolution(result); err != nil {
		return 0, err
	}
	return lambda, nil
}

// GetM returns M, or M+lambda*H if includeH, matching
// StaticSolution.GetM's contract for the regularized case.
func GetM(sol *stampsolution.StaticSolution, H *mat.SymDense, lambda float64, includeH bool) *mat.SymDense {
	if !includeH {
		return sol.M
	}
	return addScaled(sol.M, H, lambda)
}

func chooseLambda(sol *stampsolution.StaticSolution, H *mat.SymDense, cfg *options.Options, tol float64) (float64, error) {
	const op = "regsolve.chooseLambda"
	switch cfg.LambdaType {
	case options.Absolute:
		return cfg.LambdaValue, nil
	case options.Relative:
		return mat.Trace(sol.M) / mat.Trace(H) * cfg.LambdaScaling, nil
	case options.MinimizeBiasedRisk:
		return estimateRisk(sol, H, cfg, cfg.MaxConditionNumber, tol)
	case options.MinimizeUnbiasedRisk:
		return estimateRisk(sol, H, cfg, math.Inf(1), tol)
	default:
		return 0, diffimerr.Newf(op, diffimerr.InvalidInput, "unrecognized LambdaType: %d", cfg.LambdaType)
	}
}

// estimateRisk implements the biased/unbiased risk estimator of
// spec.md §4.5:
//
//	risk(lambda) = a^T(VV^T)a + 2*(tr(VV^T*(M+lambda*H)^-1) - a^T*M+*b)
//
// where V is the matrix of right singular vectors of C, and M+ is the
// pseudo-inverse of M truncating eigenvalues whose ratio to eMax
// exceeds maxCond. The grid of candidate lambdas is evaluated in
// createLambdaSteps order and the argmin is returned.
func estimateRisk(sol *stampsolution.StaticSolution, H *mat.SymDense, cfg *options.Options, maxCond float64, tol float64) (float64, error) {
	const op = "regsolve.estimateRisk"

	p, n := sol.C.Dims()
	_ = p
	var svd mat.SVD
	if ok := svd.Factorize(sol.C, mat.SVDFull); !ok {
		return 0, diffimerr.New(op, diffimerr.Numerical, "SVD of design matrix failed")
	}
	var vMat mat.Dense
	svd.VTo(&vMat)
	var vvt mat.Dense
	vvt.Mul(&vMat, vMat.T())

	mInv, err := truncatedPseudoInverse(sol.M, maxCond)
	if err != nil {
		return 0, err
	}
	var mInvB mat.VecDense
	mInvB.MulVec(mInv, sol.B)

	lambdas := createLambdaSteps(cfg)
	if len(lambdas) == 0 {
		return 0, diffimerr.New(op, diffimerr.InvalidInput, "empty lambda grid")
	}

	bestLambda := lambdas[0]
	bestRisk := math.Inf(1)
	for _, l := range lambdas {
		mLambda := addScaled(sol.M, H, l)
		if gonumExtensions.NANORINF(mLambda) {
			continue
		}
		result, err := linsolve.Solve(mLambda, sol.B, tol)
		if err != nil {
			continue
		}
		a := result.A

		var vvtA mat.VecDense
		vvtA.MulVec(&vvt, a)
		term1 := mat.Dot(a, &vvtA)

		var mLambdaInv mat.Dense
		if err := mLambdaInv.Inverse(mLambda); err != nil {
			continue
		}
		var vvtMinv mat.Dense
		vvtMinv.Mul(&vvt, &mLambdaInv)
		term2a := mat.Trace(&vvtMinv)

		term2b := mat.Dot(a, &mInvB)

		risk := term1 + 2*(term2a-term2b)
		diffimlog.Debug("regsolve: risk grid point", "lambda", l, "risk", risk)
		if risk < bestRisk {
			bestRisk = risk
			bestLambda = l
		}
	}
	_ = n
	return bestLambda, nil
}

// truncatedPseudoInverse forms R*diag(e~)*R^T from M's symmetric
// eigendecomposition, inverting every eigenvalue whose ratio to the
// largest-magnitude eigenvalue does not exceed maxCond, and zeroing the
// rest (zero eigenvalues are always zeroed, matching the original's
// undocumented zero-tolerance convention).
func truncatedPseudoInverse(M *mat.SymDense, maxCond float64) (*mat.Dense, error) {
	const op = "regsolve.truncatedPseudoInverse"
	n, _ := M.Dims()

	var eig mat.EigenSym
	if ok := eig.Factorize(M, true); !ok {
		return nil, diffimerr.New(op, diffimerr.Numerical, "eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	eMax := values[0]
	for _, e := range values[1:] {
		if e > eMax {
			eMax = e
		}
	}

	inv := make([]float64, n)
	for i, e := range values {
		if e == 0.0 {
			inv[i] = 0
		} else if eMax/e > maxCond {
			inv[i] = 0
		} else {
			inv[i] = 1.0 / e
		}
	}

	var scaled mat.Dense
	scaled.CloneFrom(&vectors)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			scaled.Set(i, j, vectors.At(i, j)*inv[j])
		}
	}
	var out mat.Dense
	out.Mul(&scaled, vectors.T())
	return &out, nil
}

// createLambdaSteps builds the linear or log lambda grid named by
// cfg.LambdaStepType.
func createLambdaSteps(cfg *options.Options) []float64 {
	var lambdas []float64
	switch cfg.LambdaStepType {
	case options.Linear:
		for l := cfg.LambdaLinMin; l <= cfg.LambdaLinMax; l += cfg.LambdaLinStep {
			lambdas = append(lambdas, l)
		}
	case options.Log:
		for l := cfg.LambdaLogMin; l <= cfg.LambdaLogMax; l += cfg.LambdaLogStep {
			lambdas = append(lambdas, math.Pow(10, l))
		}
	}
	return lambdas
}

// addScaled returns M + scale*H as a fresh SymDense.
func addScaled(M, H *mat.SymDense, scale float64) *mat.SymDense {
	n, _ := M.Dims()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, M.At(i, j)+scale*H.At(i, j))
		}
	}
	return out
}
