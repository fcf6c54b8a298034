package simulator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulateDefaultParamsSigmaCombined(t *testing.T) {
	assert := assert.New(t)

	res, err := Simulate(DefaultParams())
	assert.NoError(err)
	assert.InDelta(math.Sqrt(0.5*0.5+1.5*1.5), res.SigmaCombined, 1e-9)
	assert.InDelta(1.5811, res.SigmaCombined, 1e-4)
}

func TestSimulateOutputLengths(t *testing.T) {
	assert := assert.New(t)

	res, err := Simulate(DefaultParams())
	assert.NoError(err)

	assert.Equal(len(res.Energy), len(res.Spectrum))
	assert.Equal(len(res.Energy), len(res.SpectrumClean))
	assert.Equal(len(res.Energy), len(res.IdealFD))
	assert.Equal(len(res.Energy), len(res.IRF))
	assert.Equal(500, len(res.Energy))

	imgRows, imgCols := res.Image2D.Dims()
	assert.Equal(200, imgRows)
	assert.Equal(500, imgCols)

	spotRows, spotCols := res.SpotProfile.Dims()
	assert.Equal(200, spotRows)
	assert.Equal(500, spotCols)
}

func TestSimulateSpectrumCleanBoundedAndFinite(t *testing.T) {
	assert := assert.New(t)

	res, err := Simulate(DefaultParams())
	assert.NoError(err)

	maxV := 0.0
	for _, v := range res.SpectrumClean {
		assert.False(math.IsNaN(v))
		assert.False(math.IsInf(v, 0))
		if v > maxV {
			maxV = v
		}
	}
	assert.LessOrEqual(maxV, 1.0+1e-9)
}

func TestSimulateIRFNormalizedAndSigned(t *testing.T) {
	assert := assert.New(t)

	res, err := Simulate(DefaultParams())
	assert.NoError(err)

	maxAbs := 0.0
	peak := math.Inf(-1)
	for _, v := range res.IRF {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
		if v > peak {
			peak = v
		}
	}
	assert.InDelta(1.0, maxAbs, 1e-6)
	// The falling edge has a negative slope; the sign flip makes the peak +1.
	assert.InDelta(1.0, peak, 1e-6)
}

func TestSimulateTotalUnderExtremeParams(t *testing.T) {
	assert := assert.New(t)

	p := SimulatorParams{
		SigmaX: 0, SigmaY: 0.001, Alpha: 0, GammaX: 5, GammaY: -10,
		Kappa: 0.1, Theta: -0.5, SigmaRes: 0, Temp: 0,
	}
	res, err := Simulate(p)
	assert.NoError(err)
	for _, v := range res.Spectrum {
		assert.False(math.IsNaN(v))
		assert.False(math.IsInf(v, 0))
	}
}

func TestSimulateWithNoiseStaysFinite(t *testing.T) {
	assert := assert.New(t)

	p := DefaultParams()
	p.PoissonNoise = 5
	p.GaussianNoise = 2

	res, err := Simulate(p)
	assert.NoError(err)
	for _, v := range res.Spectrum {
		assert.False(math.IsNaN(v))
		assert.GreaterOrEqual(v, 0.0)
	}
}
