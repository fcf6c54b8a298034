package fitting

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xpsirf/irf-sim/physics"
)

func syntheticFermiEdgeSpectrum(t *testing.T, ef, sigma, temp, amp, offset float64) (energy, observed []float64) {
	t.Helper()
	energy = physics.Linspace(-0.05, 0.05, 200)
	model := FermiEdgeModel{Energy: energy}
	predicted := model.Predict([]float64{ef, sigma, temp, amp, offset})
	return energy, predicted
}

func TestFitFermiEdgeRejectsEmptySpectrum(t *testing.T) {
	assert := assert.New(t)

	res := FitFermiEdge(nil, nil, 5, false, false, nil)
	assert.False(res.Success)
	assert.NotEmpty(res.ErrorMessage)
}

func TestFitFermiEdgeRejectsMismatchedLengths(t *testing.T) {
	assert := assert.New(t)

	res := FitFermiEdge([]float64{1, 2, 3}, []float64{1, 2}, 5, false, false, nil)
	assert.False(res.Success)
}

func TestFitFermiEdgeRejectsNonFiniteValues(t *testing.T) {
	assert := assert.New(t)

	res := FitFermiEdge([]float64{1, math.NaN()}, []float64{1, 2}, 5, false, false, nil)
	assert.False(res.Success)
}

func TestFitFermiEdgeFixedTempRecoversParams(t *testing.T) {
	assert := assert.New(t)

	temp := 5.0
	energy, observed := syntheticFermiEdgeSpectrum(t, 0, 0.002, temp, 1, 0)

	res := FitFermiEdge(energy, observed, temp, false, true, nil)
	assert.True(res.Success)
	assert.InDelta(0, res.EFShift, 0.002)
	assert.Greater(res.RSquared, 0.99)
	assert.Len(res.FittedSpectrum, len(observed))
	assert.True(math.IsNaN(res.TempError))
	assert.Equal(temp, res.TempFit)
}

func TestFitFermiEdgeFreeTempRecoversParams(t *testing.T) {
	assert := assert.New(t)

	temp := 5.0
	energy, observed := syntheticFermiEdgeSpectrum(t, 0, 0.002, temp, 1, 0)

	res := FitFermiEdge(energy, observed, temp, true, true, nil)
	assert.True(res.Success)
	assert.InDelta(0, res.EFShift, 0.003)
	assert.Greater(res.RSquared, 0.99)
}

func TestFermiDiracConvolvedMonotoneAndCrossesHalfNearZero(t *testing.T) {
	assert := assert.New(t)

	e := physics.Linspace(-0.05, 0.05, 400)
	convolved := fermiDiracConvolved(e, 0, 5, 0.002)

	for i := 1; i < len(convolved); i++ {
		assert.LessOrEqual(convolved[i], convolved[i-1]+1e-9)
	}

	crossing := -1.0
	for i := 1; i < len(e); i++ {
		if convolved[i-1] >= 0.5 && convolved[i] <= 0.5 {
			crossing = e[i]
			break
		}
	}
	assert.InDelta(0, crossing, 0.0005)
}

func TestFermiEdgeModelDim(t *testing.T) {
	assert := assert.New(t)

	free := FermiEdgeModel{Energy: []float64{0, 1}}
	assert.Equal(5, free.Dim())

	fixed := 5.0
	fixedModel := FermiEdgeModel{Energy: []float64{0, 1}, FixedTemp: &fixed}
	assert.Equal(4, fixedModel.Dim())
}
