package imageutil_test

import (
	"testing"

	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/imageutil"
	"github.com/LSST/ip-diffim/kernelbasis"
	"github.com/stretchr/testify/require"
)

func TestDenseImageSubImageRejectsOutOfBounds(t *testing.T) {
	img, err := imageutil.NewDenseImage(3, 3, nil)
	require.NoError(t, err)

	_, err = img.SubImage(diffim.NewRect(0, 0, 5, 5))
	require.Error(t, err)
}

func TestDenseImageSubImagePreservesValues(t *testing.T) {
	img, err := imageutil.NewDenseImage(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.NoError(t, err)

	sub, err := img.SubImage(diffim.NewRect(1, 1, 2, 2))
	require.NoError(t, err)
	require.Equal(t, img.At(1, 1), sub.At(1, 1))
	require.Equal(t, img.At(2, 2), sub.At(2, 2))
}

func TestBitMaskThresholdProducesExpectedFootprint(t *testing.T) {
	mask, err := imageutil.NewBitMask(10, 10)
	require.NoError(t, err)
	mask.SetBitRect(diffim.NewRect(2, 2, 3, 3), imageutil.PlaneBad)

	bit, err := mask.PlaneBitMask("BAD")
	require.NoError(t, err)
	require.Equal(t, imageutil.PlaneBad, bit)

	fp := mask.Threshold(bit)
	require.True(t, fp.Contains(2, 2))
	require.True(t, fp.Contains(4, 4))
	require.False(t, fp.Contains(5, 5))
	require.Equal(t, 9, fp.Area())

	grown := fp.Grow(1)
	require.True(t, grown.Contains(1, 1))
	require.True(t, grown.Contains(5, 5))
}

func TestBitMaskPlaneBitMaskUnknownName(t *testing.T) {
	mask, err := imageutil.NewBitMask(3, 3)
	require.NoError(t, err)
	_, err = mask.PlaneBitMask("NOT_A_PLANE")
	require.Error(t, err)
}

func TestDirectConvolverReproducesIdentityOnDelta(t *testing.T) {
	img, err := imageutil.NewDenseImage(5, 5, []float64{
		1, 2, 3, 4, 5,
		6, 7, 8, 9, 10,
		11, 12, 13, 14, 15,
		16, 17, 18, 19, 20,
		21, 22, 23, 24, 25,
	})
	require.NoError(t, err)
	delta, err := kernelbasis.NewDeltaFunctionKernel(3)
	require.NoError(t, err)

	out, err := imageutil.DirectConvolver{}.Convolve(img, delta, delta.CenterX(), delta.CenterY(), false)
	require.NoError(t, err)
	require.Equal(t, img.At(2, 2), out.At(2, 2))
}

func TestDirectConvolverSeparableBoxAverage(t *testing.T) {
	img, err := imageutil.NewFilledDenseImage(9, 9, 2.0)
	require.NoError(t, err)
	box := make([]float64, 9)
	for i := range box {
		box[i] = 1.0 / 9.0
	}
	k, err := kernelbasis.NewBasisKernel(3, 3, 1, 1, box)
	require.NoError(t, err)

	out, err := imageutil.DirectConvolver{}.Convolve(img, k, k.CenterX(), k.CenterY(), false)
	require.NoError(t, err)
	require.InDelta(t, 2.0, out.At(4, 4), 1e-12)
}

func TestMedianMinStatistics(t *testing.T) {
	img, err := imageutil.NewDenseImage(2, 2, []float64{4, 1, 3, 2})
	require.NoError(t, err)

	stats := imageutil.MedianMinStatistics{}
	require.Equal(t, 1.0, stats.Min(img))
	require.Equal(t, 2.5, stats.Median(img))
}
