package spatialfunc_test

import (
	"testing"

	"github.com/LSST/ip-diffim/spatialfunc"
	"github.com/stretchr/testify/require"
)

func TestNewPolynomialParamCount(t *testing.T) {
	p, err := spatialfunc.NewPolynomial(2)
	require.NoError(t, err)
	require.Equal(t, 6, p.NumParams()) // 1,x,y,x^2,xy,y^2
}

func TestPolynomialEvalLinear(t *testing.T) {
	p, err := spatialfunc.NewPolynomial(1)
	require.NoError(t, err)
	p.SetParams([]float64{1, 2, 3})
	// terms ordered by increasing total power, px descending within a total: 1, x, y
	require.Equal(t, 1+2*4+3*5, int(p.Eval(4, 5)))
}

func TestPolynomialSetParamsWrongLengthPanics(t *testing.T) {
	p, err := spatialfunc.NewPolynomial(1)
	require.NoError(t, err)
	require.Panics(t, func() { p.SetParams([]float64{1}) })
}

func TestConstantAlwaysReturnsItsValue(t *testing.T) {
	c := spatialfunc.NewConstant()
	c.SetParams([]float64{7})
	require.Equal(t, 7.0, c.Eval(100, -100))
	require.Equal(t, 1, c.NumParams())
}
