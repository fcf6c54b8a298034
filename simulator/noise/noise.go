// Package noise implements the forward simulator's optional noise model:
// a Gaussian approximation of Poisson shot noise plus an independent
// additive Gaussian component. It deliberately does not draw true Poisson
// variates (see spec §9 Open Questions) — that approximation is part of the
// module's external contract, not a shortcut to "fix" here.
package noise

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model applies the noise levels prescribed by the forward simulator to a
// slice of sample values, in place.
type Model struct {
	// PoissonNoise and GaussianNoise are the dimensionless noise levels
	// from SimulatorParams.
	PoissonNoise  float64
	GaussianNoise float64

	src *rand.Rand
}

// New creates a Model seeded from the given seed. A Model is not safe for
// concurrent use; each simulation run should create its own.
func New(poissonNoise, gaussianNoise float64, seed uint64) *Model {
	return &Model{
		PoissonNoise:  poissonNoise,
		GaussianNoise: gaussianNoise,
		src:           rand.New(rand.NewSource(seed)),
	}
}

// Apply mutates data in place: for each sample v, if PoissonNoise exceeds
// 1e-5 it draws a Gaussian approximation of a Poisson variate with mean
// v*scale (scale = 1000/PoissonNoise), then if GaussianNoise is positive it
// adds an independent Gaussian component scaled by GaussianNoise/100.
// Samples are clamped to be non-negative.
func (m *Model) Apply(data []float64) {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: m.src}

	for i, v := range data {
		if m.PoissonNoise > 1e-5 {
			scale := 1000 / m.PoissonNoise
			lambda := v * scale
			z := normal.Rand()
			variance := lambda
			if variance < 0 {
				variance = 0
			}
			v = (lambda + z*math.Sqrt(variance)) / scale
		}

		if m.GaussianNoise > 0 {
			v += normal.Rand() * (m.GaussianNoise / 100)
		}

		if v < 0 {
			v = 0
		}
		data[i] = v
	}
}
