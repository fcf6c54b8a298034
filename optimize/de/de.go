// Package de implements Differential Evolution (DE/rand/1/bin), the global
// optimizer used both to seed Levenberg-Marquardt refinement and to search
// the IRF parameter space directly.
package de

import (
	"fmt"
	"math"

	"github.com/xpsirf/irf-sim/irf"
)

// Options configures a DE run. Zero-valued fields are replaced by their
// defaults in Run.
type Options struct {
	MaxIter int
	Pop     int
	F       float64
	CR      float64
	Tol     float64
	Seed    uint32

	OnProgress irf.ProgressFunc
}

func (o Options) withDefaults() Options {
	if o.MaxIter == 0 {
		o.MaxIter = 100
	}
	if o.Pop == 0 {
		o.Pop = 15
	}
	if o.F == 0 {
		o.F = 0.8
	}
	if o.CR == 0 {
		o.CR = 0.7
	}
	if o.Tol == 0 {
		o.Tol = 1e-8
	}
	return o
}

// Result is the outcome of a DE run.
type Result struct {
	X          []float64
	Fitness    float64
	Iterations int
	Converged  bool
}

// Run minimizes objective over bounds using Differential Evolution. The
// seed is part of the external contract: given the same objective, bounds,
// options and seed, Run produces bit-identical trajectories across runs on
// the same platform (spec §5 determinism, §8 property 6).
func Run(objective irf.Objective, bounds irf.Bounds, opts Options) (*Result, error) {
	if err := bounds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bounds: %v", err)
	}
	dim := bounds.Dim()
	if dim == 0 {
		return nil, fmt.Errorf("invalid bounds: empty parameter vector")
	}

	opts = opts.withDefaults()
	rng := newMulberry32(opts.Seed)

	pop := make([][]float64, opts.Pop)
	fit := make([]float64, opts.Pop)
	for i := range pop {
		x := make([]float64, dim)
		for j := 0; j < dim; j++ {
			x[j] = bounds.Lower[j] + rng.next()*(bounds.Upper[j]-bounds.Lower[j])
		}
		pop[i] = x
		fit[i] = objective(x)
	}

	bestIdx := argmin(fit)
	best := append([]float64(nil), pop[bestIdx]...)
	bestFit := fit[bestIdx]

	trial := make([]float64, dim)
	iterations := 0
	converged := false

	for iter := 0; iter < opts.MaxIter; iter++ {
		prevBest := bestFit

		for i := 0; i < opts.Pop; i++ {
			a, b, c := distinctIndices(rng, opts.Pop, i)

			jRand := int(rng.next() * float64(dim))
			if jRand >= dim {
				jRand = dim - 1
			}

			for j := 0; j < dim; j++ {
				donor := pop[a][j] + opts.F*(pop[b][j]-pop[c][j])
				if donor < bounds.Lower[j] {
					donor = bounds.Lower[j]
				} else if donor > bounds.Upper[j] {
					donor = bounds.Upper[j]
				}

				if rng.next() < opts.CR || j == jRand {
					trial[j] = donor
				} else {
					trial[j] = pop[i][j]
				}
			}

			trialFit := objective(trial)
			if trialFit < fit[i] {
				copy(pop[i], trial)
				fit[i] = trialFit
				if trialFit < bestFit {
					bestFit = trialFit
					copy(best, trial)
				}
			}
		}

		iterations = iter + 1
		if opts.OnProgress != nil {
			opts.OnProgress(iterations, bestFit)
		}

		// Converged once the best fitness has stopped moving and the whole
		// population agrees with it to within Tol.
		worstFit := fit[0]
		for _, f := range fit {
			if f > worstFit {
				worstFit = f
			}
		}
		if math.Abs(bestFit-prevBest) < opts.Tol && worstFit-bestFit < opts.Tol {
			converged = true
			break
		}
	}

	return &Result{
		X:          best,
		Fitness:    bestFit,
		Iterations: iterations,
		Converged:  converged,
	}, nil
}

func argmin(fit []float64) int {
	best := 0
	for i := 1; i < len(fit); i++ {
		if fit[i] < fit[best] {
			best = i
		}
	}
	return best
}

// distinctIndices draws three distinct population indices, all different
// from target, using the DE run's own PRNG stream.
func distinctIndices(rng *mulberry32, pop, target int) (a, b, c int) {
	draw := func(exclude map[int]bool) int {
		for {
			idx := int(rng.next() * float64(pop))
			if idx >= pop {
				idx = pop - 1
			}
			if !exclude[idx] {
				return idx
			}
		}
	}

	excl := map[int]bool{target: true}
	a = draw(excl)
	excl[a] = true
	b = draw(excl)
	excl[b] = true
	c = draw(excl)
	return a, b, c
}
