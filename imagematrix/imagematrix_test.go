package imagematrix_test

import (
	"testing"

	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/imagematrix"
	"github.com/LSST/ip-diffim/imageutil"
	"github.com/stretchr/testify/require"
)

func TestNewMatchesPixels(t *testing.T) {
	img, err := imageutil.NewDenseImage(3, 2, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	m, err := imagematrix.New(img, diffim.NewRect(0, 0, 3, 2))
	require.NoError(t, err)
	require.Equal(t, 1.0, m.At(0, 0))
	require.Equal(t, 6.0, m.At(1, 2))
}

func TestNewRejectsOutOfBoundsRect(t *testing.T) {
	img, err := imageutil.NewDenseImage(3, 2, nil)
	require.NoError(t, err)

	_, err = imagematrix.New(img, diffim.NewRect(0, 0, 5, 5))
	require.Error(t, err)
}

func TestNewInverseVarianceRejectsNonPositive(t *testing.T) {
	varImg, err := imageutil.NewDenseImage(2, 2, []float64{1, 0, 1, 1})
	require.NoError(t, err)

	_, err = imagematrix.NewInverseVariance(varImg, varImg.Bounds())
	require.Error(t, err)
}

func TestNewInverseVarianceInverts(t *testing.T) {
	varImg, err := imageutil.NewDenseImage(2, 2, []float64{1, 2, 4, 0.5})
	require.NoError(t, err)

	m, err := imagematrix.NewInverseVariance(varImg, varImg.Bounds())
	require.NoError(t, err)
	require.Equal(t, 1.0, m.At(0, 0))
	require.Equal(t, 0.5, m.At(0, 1))
	require.Equal(t, 0.25, m.At(1, 0))
	require.Equal(t, 2.0, m.At(1, 1))
}
