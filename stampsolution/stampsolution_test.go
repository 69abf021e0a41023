package stampsolution_test

import (
	"testing"

	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/imageutil"
	"github.com/LSST/ip-diffim/kernelbasis"
	"github.com/LSST/ip-diffim/linsolve"
	"github.com/LSST/ip-diffim/stampsolution"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func constantImage(t *testing.T, w, h int, v float64) *imageutil.DenseImage {
	t.Helper()
	img, err := imageutil.NewFilledDenseImage(w, h, v)
	require.NoError(t, err)
	return img
}

func varyingImage(t *testing.T, w, h int) *imageutil.DenseImage {
	t.Helper()
	data := make([]float64, w*h)
	for i := range data {
		data[i] = float64((i*7+3)%23) + 1
	}
	img, err := imageutil.NewDenseImage(w, h, data)
	require.NoError(t, err)
	return img
}

// Scenario 1: Identity.
func TestIdentityScenario(t *testing.T) {
	tmpl := constantImage(t, 64, 64, 1.0)
	sci := constantImage(t, 64, 64, 1.0)
	variance := constantImage(t, 64, 64, 1.0)

	delta, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	basis, err := kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{delta})
	require.NoError(t, err)

	sol, err := stampsolution.Build(tmpl, sci, variance, imageutil.MedianMinStatistics{}, basis, imageutil.DirectConvolver{}, false)
	require.NoError(t, err)
	require.NoError(t, sol.Solve(0))

	kernel, err := sol.GetKernel()
	require.NoError(t, err)
	require.InDelta(t, 1.0, kernel[0], 1e-9)

	ksum, err := sol.GetKsum()
	require.NoError(t, err)
	require.InDelta(t, 1.0, ksum, 1e-9)
}

// Scenario 2 / background round-trip.
func TestPureOffsetScenario(t *testing.T) {
	// A non-constant template keeps the kernel column independent of the
	// all-ones background column, so the offset is identifiable.
	tmpl := varyingImage(t, 64, 64)
	sci := tmpl.Clone()
	sci.AddScalar(5.0) // template + 5
	variance := constantImage(t, 64, 64, 1.0)

	delta, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	basis, err := kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{delta})
	require.NoError(t, err)

	sol, err := stampsolution.Build(tmpl, sci, variance, imageutil.MedianMinStatistics{}, basis, imageutil.DirectConvolver{}, true)
	require.NoError(t, err)
	require.NoError(t, sol.Solve(0))

	kernel, err := sol.GetKernel()
	require.NoError(t, err)
	require.InDelta(t, 1.0, kernel[0], 1e-9)

	bg, err := sol.GetBackground()
	require.NoError(t, err)
	require.InDelta(t, 5.0, bg, 1e-9)
}

// Scenario 3: two-basis blend.
func TestTwoBasisBlendScenario(t *testing.T) {
	tmpl := varyingImage(t, 40, 40)
	variance := constantImage(t, 40, 40, 1.0)

	delta, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	gauss, err := kernelbasis.NewGaussianKernel(5, 1.0)
	require.NoError(t, err)

	combined := make([]float64, 25)
	bounds := delta.Bounds()
	idx := 0
	for y := bounds.MinY; y <= bounds.MaxY; y++ {
		for x := bounds.MinX; x <= bounds.MaxX; x++ {
			combined[idx] = 0.7*delta.At(x, y) + 0.3*gauss.At(x, y)
			idx++
		}
	}
	combinedKernel, err := kernelbasis.NewBasisKernel(5, 5, delta.CenterX(), delta.CenterY(), combined)
	require.NoError(t, err)

	conv := imageutil.DirectConvolver{}
	sci, err := conv.Convolve(tmpl, combinedKernel, combinedKernel.CenterX(), combinedKernel.CenterY(), false)
	require.NoError(t, err)

	basis, err := kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{delta, gauss})
	require.NoError(t, err)

	sol, err := stampsolution.Build(tmpl, sci, variance, imageutil.MedianMinStatistics{}, basis, conv, false)
	require.NoError(t, err)
	require.NoError(t, sol.Solve(0))

	kernel, err := sol.GetKernel()
	require.NoError(t, err)
	require.InDelta(t, 0.7, kernel[0], 1e-6)
	require.InDelta(t, 0.3, kernel[1], 1e-6)
}

// Scenario 4: rank deficiency.
func TestRankDeficiencyScenario(t *testing.T) {
	tmpl := varyingImage(t, 40, 40)
	variance := constantImage(t, 40, 40, 1.0)

	delta, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	basis, err := kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{delta, delta})
	require.NoError(t, err)

	sol, err := stampsolution.Build(tmpl, tmpl, variance, imageutil.MedianMinStatistics{}, basis, imageutil.DirectConvolver{}, false)
	require.NoError(t, err)
	require.NoError(t, sol.Solve(0))
	require.Equal(t, linsolve.Eigenvector, sol.SolvedBy)

	var Ma mat.VecDense
	Ma.MulVec(sol.M, sol.A)
	require.InDelta(t, sol.B.AtVec(0), Ma.AtVec(0), 1e-6)
	require.InDelta(t, sol.B.AtVec(1), Ma.AtVec(1), 1e-6)

	kernel, err := sol.GetKernel()
	require.NoError(t, err)
	require.InDelta(t, 1.0, kernel[0]+kernel[1], 1e-6)
}

// Scenario 5: mask gating, simplified. Corrupting a block of the
// template and excluding it via the mask should recover the same
// kernel as a clean, unmasked build.
func TestMaskGatingScenario(t *testing.T) {
	tmpl := varyingImage(t, 40, 40)
	variance := constantImage(t, 40, 40, 1.0)
	delta, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	basis, err := kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{delta})
	require.NoError(t, err)
	conv := imageutil.DirectConvolver{}

	clean, err := stampsolution.Build(tmpl, tmpl, variance, imageutil.MedianMinStatistics{}, basis, conv, false)
	require.NoError(t, err)
	require.NoError(t, clean.Solve(0))

	corrupted := tmpl.Clone()
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			corrupted.Set(x, y, 1e6)
		}
	}
	mask, err := imageutil.NewBitMask(40, 40)
	require.NoError(t, err)
	mask.SetBitRect(diffim.NewRect(10, 10, 10, 10), imageutil.PlaneBad)

	masked, err := stampsolution.BuildWithMask(corrupted, tmpl, variance, mask, imageutil.MedianMinStatistics{}, basis, conv, false)
	require.NoError(t, err)
	require.NoError(t, masked.Solve(0))

	cleanKernel, err := clean.GetKernel()
	require.NoError(t, err)
	maskedKernel, err := masked.GetKernel()
	require.NoError(t, err)
	require.InDelta(t, cleanKernel[0], maskedKernel[0], 1e-6)
}

// Property: M is symmetric positive semidefinite.
func TestMIsSymmetricPositiveSemidefinite(t *testing.T) {
	tmpl := varyingImage(t, 30, 30)
	variance := constantImage(t, 30, 30, 2.0)
	delta, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	basis, err := kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{delta})
	require.NoError(t, err)

	sol, err := stampsolution.Build(tmpl, tmpl, variance, imageutil.MedianMinStatistics{}, basis, imageutil.DirectConvolver{}, true)
	require.NoError(t, err)

	n, _ := sol.M.Dims()
	var eig mat.EigenSym
	require.True(t, eig.Factorize(sol.M, false))
	for _, e := range eig.Values(nil) {
		require.GreaterOrEqual(t, e, -1e-9)
	}
	require.Equal(t, 2, n)
}

// Property: building the same stamp twice yields bit-identical C, M, b.
func TestBuildIsIdempotent(t *testing.T) {
	tmpl := varyingImage(t, 30, 30)
	variance := constantImage(t, 30, 30, 1.0)
	delta, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	basis, err := kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{delta})
	require.NoError(t, err)

	sol1, err := stampsolution.Build(tmpl, tmpl, variance, imageutil.MedianMinStatistics{}, basis, imageutil.DirectConvolver{}, false)
	require.NoError(t, err)
	sol2, err := stampsolution.Build(tmpl, tmpl, variance, imageutil.MedianMinStatistics{}, basis, imageutil.DirectConvolver{}, false)
	require.NoError(t, err)

	require.Equal(t, sol1.M.At(0, 0), sol2.M.At(0, 0))
	require.Equal(t, sol1.B.AtVec(0), sol2.B.AtVec(0))
	require.Equal(t, sol1.C.At(3, 0), sol2.C.At(3, 0))
}
