package diffimerr_test

import (
	"errors"
	"testing"

	"github.com/LSST/ip-diffim/diffimerr"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := diffimerr.New("pkg.Op", diffimerr.Numerical, "boom")
	require.True(t, errors.Is(err, diffimerr.ErrNumerical))
	require.False(t, errors.Is(err, diffimerr.ErrInvalidInput))
}

func TestErrorAs(t *testing.T) {
	err := diffimerr.Newf("pkg.Op", diffimerr.InvalidInput, "bad value %d", 7)
	var target *diffimerr.Error
	require.True(t, errors.As(err, &target))
	require.Equal(t, diffimerr.InvalidInput, target.Kind)
	require.Contains(t, target.Error(), "bad value 7")
}

func TestWithConditionNumber(t *testing.T) {
	base := diffimerr.New("pkg.Op", diffimerr.Numerical, "nan coefficient")
	withC := base.WithConditionNumber(1.5e8)

	require.Equal(t, float64(0), base.ConditionNumber)
	require.Equal(t, 1.5e8, withC.ConditionNumber)
	require.Contains(t, withC.Error(), "condition number")
	require.NotContains(t, base.Error(), "condition number")
}

func TestKindString(t *testing.T) {
	require.Equal(t, "InvalidInput", diffimerr.InvalidInput.String())
	require.Equal(t, "Logic", diffimerr.Logic.String())
}
