package curvefit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xpsirf/irf-sim/irf"
	"github.com/xpsirf/irf-sim/optimize/de"
)

func TestFitRecoversLinearParamsWithinBounds(t *testing.T) {
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

	bounds := irf.Bounds{Lower: []float64{-10, -10}, Upper: []float64{10, 10}}
	res, err := Fit(residual, y, []float64{0, 0}, Options{
		Bounds:       bounds,
		UseGlobalOpt: true,
		DE:           de.Options{Seed: 42, Pop: 15, MaxIter: 60},
	})

	assert.NoError(err)
	assert.InDelta(3.0, res.Params[0], 0.05)
	assert.InDelta(4.0, res.Params[1], 0.05)
	assert.GreaterOrEqual(res.Params[0], bounds.Lower[0])
	assert.LessOrEqual(res.Params[0], bounds.Upper[0])
	assert.Greater(res.RSquared, 0.999)
}

func TestFitParamErrorsAreFiniteOrNaN(t *testing.T) {
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

	bounds := irf.Bounds{Lower: []float64{-10, -10}, Upper: []float64{10, 10}}
	res, err := Fit(residual, y, []float64{1, 1}, Options{Bounds: bounds})
	assert.NoError(err)

	for _, e := range res.ParamErrors {
		assert.True(math.IsNaN(e) || e >= 0)
	}
}
