package gonumExtensions_test

import (
	"math"
	"testing"

	"github.com/LSST/ip-diffim/gonumExtensions"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEyeIsIdentity(t *testing.T) {
	eye := gonumExtensions.Eye(3, 3, 0)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i == j {
				require.Equal(t, 1.0, eye.At(i, j))
			} else {
				require.Equal(t, 0.0, eye.At(i, j))
			}
		}
	}
}

func TestNANORINFDetectsNaNAndInf(t *testing.T) {
	clean := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	require.False(t, gonumExtensions.NANORINF(clean))

	withNaN := mat.NewDense(2, 2, []float64{1, math.NaN(), 3, 4})
	require.True(t, gonumExtensions.NANORINF(withNaN))

	withInf := mat.NewDense(2, 2, []float64{1, 2, math.Inf(1), 4})
	require.True(t, gonumExtensions.NANORINF(withInf))
}
