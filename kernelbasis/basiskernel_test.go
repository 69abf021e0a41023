package kernelbasis_test

import (
	"testing"

	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/kernelbasis"
	"github.com/stretchr/testify/require"
)

func TestNewBasisKernelRejectsEvenDimensions(t *testing.T) {
	_, err := kernelbasis.NewBasisKernel(2, 3, 0, 1, make([]float64, 6))
	require.Error(t, err)
}

func TestNewDeltaFunctionKernelIsUnitAtCenter(t *testing.T) {
	k, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	require.Equal(t, 2, k.CenterX())
	require.Equal(t, 2, k.CenterY())
	require.Equal(t, 1.0, k.At(2, 2))
	require.Equal(t, 0.0, k.At(0, 0))
}

func TestNewGaussianKernelSumsToOne(t *testing.T) {
	k, err := kernelbasis.NewGaussianKernel(7, 1.5)
	require.NoError(t, err)
	var sum float64
	b := k.Bounds()
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			sum += k.At(x, y)
		}
	}
	require.InDelta(t, 1.0, sum, 1e-12)
}

func TestNewKernelBasisRejectsMismatchedCenters(t *testing.T) {
	k1, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	k2, err := kernelbasis.NewBasisKernel(3, 3, 0, 0, make([]float64, 9))
	require.NoError(t, err)

	_, err = kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{k1, k2})
	require.Error(t, err)
}

func TestShrinkBBoxIsSymmetricAroundCenter(t *testing.T) {
	k, err := kernelbasis.NewDeltaFunctionKernel(5)
	require.NoError(t, err)
	box := diffim.NewRect(0, 0, 64, 64)
	shrunk := k.ShrinkBBox(box)
	require.Equal(t, 2, shrunk.MinX)
	require.Equal(t, 2, shrunk.MinY)
	require.Equal(t, 61, shrunk.MaxX)
	require.Equal(t, 61, shrunk.MaxY)
}

func TestKSumIsLinearInCoefficients(t *testing.T) {
	k1, err := kernelbasis.NewDeltaFunctionKernel(3)
	require.NoError(t, err)
	k2, err := kernelbasis.NewBasisKernel(3, 3, 1, 1, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)
	basis, err := kernelbasis.NewKernelBasis([]*kernelbasis.BasisKernel{k1, k2})
	require.NoError(t, err)

	sum := kernelbasis.KSum(basis, []float64{2, 3})
	require.Equal(t, 2*1.0+3*9.0, sum)
}
