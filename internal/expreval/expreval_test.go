package expreval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluateSimple(t *testing.T) {
	out, err := Evaluate("x0*2", []float64{3})
	require.NoError(t, err)
	require.Equal(t, []float64{6}, out)
}

func TestEvaluateMultiElement(t *testing.T) {
	out, err := Evaluate("x0+x1, x0-x1", []float64{5, 2})
	require.NoError(t, err)
	require.Equal(t, []float64{7, 3}, out)
}

func TestEvaluateFunctionsAndAssignForm(t *testing.T) {
	out, err := Evaluate("y0 = abs(x0)", []float64{-4})
	require.NoError(t, err)
	require.Equal(t, []float64{4}, out)
}

func TestEvaluateOutOfRangeIdentifier(t *testing.T) {
	_, err := Evaluate("x5", []float64{1, 2})
	require.Error(t, err)
}
