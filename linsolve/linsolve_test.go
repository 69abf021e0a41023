package linsolve_test

import (
	"testing"

	"github.com/LSST/ip-diffim/linsolve"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSolveFullRankUsesLU(t *testing.T) {
	M := mat.NewSymDense(2, []float64{4, 1, 1, 3})
	b := mat.NewVecDense(2, []float64{1, 2})

	result, err := linsolve.Solve(M, b, 0)
	require.NoError(t, err)
	require.Equal(t, linsolve.LU, result.SolvedBy)

	var Ma mat.VecDense
	Ma.MulVec(M, result.A)
	require.InDelta(t, b.AtVec(0), Ma.AtVec(0), 1e-9)
	require.InDelta(t, b.AtVec(1), Ma.AtVec(1), 1e-9)
}

func TestSolveRankDeficientFallsBackToEigenvector(t *testing.T) {
	// M is singular: second row/col is a multiple of the first.
	M := mat.NewSymDense(2, []float64{1, 1, 1, 1})
	b := mat.NewVecDense(2, []float64{2, 2})

	result, err := linsolve.Solve(M, b, 0)
	require.NoError(t, err)
	require.Equal(t, linsolve.Eigenvector, result.SolvedBy)

	var Ma mat.VecDense
	Ma.MulVec(M, result.A)
	require.InDelta(t, b.AtVec(0), Ma.AtVec(0), 1e-9)
	require.InDelta(t, b.AtVec(1), Ma.AtVec(1), 1e-9)
}

func TestSolveDimensionMismatch(t *testing.T) {
	M := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	b := mat.NewVecDense(3, []float64{1, 2, 3})

	_, err := linsolve.Solve(M, b, 0)
	require.Error(t, err)
}

func TestConditionNumberIdentityIsOne(t *testing.T) {
	M := mat.NewSymDense(3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})

	c, err := linsolve.ConditionNumber(M, linsolve.Eigenvalue)
	require.NoError(t, err)
	require.InDelta(t, 1.0, c, 1e-9)

	c, err = linsolve.ConditionNumber(M, linsolve.SVD)
	require.NoError(t, err)
	require.InDelta(t, 1.0, c, 1e-9)
}

func TestConditionNumberIllConditioned(t *testing.T) {
	M := mat.NewSymDense(2, []float64{1e6, 0, 0, 1})
	c, err := linsolve.ConditionNumber(M, linsolve.Eigenvalue)
	require.NoError(t, err)
	require.InDelta(t, 1e6, c, 1.0)
}
