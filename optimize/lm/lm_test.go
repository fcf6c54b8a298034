package lm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunLinearRegression(t *testing.T) {
	assert := assert.New(t)

	e := make([]float64, 20)
	y := make([]float64, 20)
	for i := range e {
		e[i] = float64(i)
		y[i] = 3*e[i] + 4
	}

	residual := func(p []float64) []float64 {
		r := make([]float64, len(e))
		for i := range e {
			r[i] = y[i] - (p[0]*e[i] + p[1])
		}
		return r
	}

	res, err := Run(residual, []float64{0, 0}, Options{})
	assert.NoError(err)
	assert.InDelta(3.0, res.X[0], 1e-3)
	assert.InDelta(4.0, res.X[1], 1e-3)

	rows, cols := res.Covariance.Dims()
	assert.Equal(2, rows)
	assert.Equal(2, cols)
	assert.GreaterOrEqual(res.Covariance.At(0, 0), 0.0)
	assert.GreaterOrEqual(res.Covariance.At(1, 1), 0.0)
}

func TestRunEmptyInitRejected(t *testing.T) {
	assert := assert.New(t)

	_, err := Run(func(p []float64) []float64 { return []float64{0} }, nil, Options{})
	assert.Error(err)
}
