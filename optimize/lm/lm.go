// Package lm implements Levenberg-Marquardt local refinement of a nonlinear
// least-squares problem, used to polish the result of a global Differential
// Evolution search.
package lm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// ResidualFunc computes the residual vector r(p) for parameter vector p.
type ResidualFunc func(p []float64) []float64

// Options configures an LM run. Zero-valued fields are replaced by their
// defaults in Run.
type Options struct {
	MaxIter    int
	Tol        float64
	Lambda0    float64
	LambdaUp   float64
	LambdaDown float64
}

func (o Options) withDefaults() Options {
	if o.MaxIter == 0 {
		o.MaxIter = 100
	}
	if o.Tol == 0 {
		o.Tol = 1e-8
	}
	if o.Lambda0 == 0 {
		o.Lambda0 = 0.001
	}
	if o.LambdaUp == 0 {
		o.LambdaUp = 10
	}
	if o.LambdaDown == 0 {
		o.LambdaDown = 0.1
	}
	return o
}

// jacobianStep is the forward-difference step used to linearize the
// residual function (spec §4.4). It is part of the module's external
// contract and must not be changed without updating pinned tests.
const jacobianStep = 1e-7

// Result is the outcome of an LM run.
type Result struct {
	X          []float64
	Residuals  []float64
	Jacobian   *mat.Dense
	Covariance *mat.Dense
	Iterations int
	Converged  bool
}

// Run refines p0 to minimize sum(r(p)^2) using Levenberg-Marquardt damping.
// The Jacobian is computed by forward differences via gonum/diff/fd, the
// same mechanism the teacher's Kalman/EKF and RTS smoother use to
// linearize a propagation function.
func Run(r ResidualFunc, p0 []float64, opts Options) (*Result, error) {
	if len(p0) == 0 {
		return nil, fmt.Errorf("invalid initial parameter vector: empty")
	}
	opts = opts.withDefaults()

	dim := len(p0)
	p := append([]float64(nil), p0...)

	residFn := func(y, x []float64) {
		copy(y, r(x))
	}

	resid0 := r(p)
	n := len(resid0)
	if n == 0 {
		return nil, fmt.Errorf("invalid residual function: returned empty vector")
	}

	cost := sumSquares(resid0)
	jac := mat.NewDense(n, dim, nil)
	fd.Jacobian(jac, residFn, p, &fd.JacobianSettings{
		Formula: fd.Forward,
		Step:    jacobianStep,
	})

	lambda := opts.Lambda0
	residuals := resid0
	iterations := 0
	converged := false

	for iter := 0; iter < opts.MaxIter; iter++ {
		iterations = iter + 1

		A := new(mat.Dense)
		A.Mul(jac.T(), jac)

		g := new(mat.Dense)
		residVec := mat.NewVecDense(n, residuals)
		g.Mul(jac.T(), residVec)

		damped := mat.DenseCopyOf(A)
		for i := 0; i < dim; i++ {
			damped.Set(i, i, A.At(i, i)+lambda*(A.At(i, i)+1e-10))
		}

		delta, err := solveLinear(damped, g)
		if err != nil {
			lambda *= opts.LambdaUp
			continue
		}

		pTrial := make([]float64, dim)
		maxDelta := 0.0
		for i := range p {
			d := delta[i]
			pTrial[i] = p[i] + d
			if math.Abs(d) > maxDelta {
				maxDelta = math.Abs(d)
			}
		}

		trialResid := r(pTrial)
		trialCost := sumSquares(trialResid)

		if trialCost < cost {
			p = pTrial
			prevCost := cost
			cost = trialCost
			residuals = trialResid
			lambda *= opts.LambdaDown

			fd.Jacobian(jac, residFn, p, &fd.JacobianSettings{
				Formula: fd.Forward,
				Step:    jacobianStep,
			})

			if prevCost-cost < opts.Tol*prevCost || maxDelta < opts.Tol {
				converged = true
				break
			}
		} else {
			lambda *= opts.LambdaUp
		}
	}

	A := new(mat.Dense)
	A.Mul(jac.T(), jac)
	cov := covariance(A, cost, n, dim)

	return &Result{
		X:          p,
		Residuals:  residuals,
		Jacobian:   jac,
		Covariance: cov,
		Iterations: iterations,
		Converged:  converged,
	}, nil
}

func sumSquares(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s
}

// solveLinear solves A*x = -b for x via Gaussian elimination with partial
// pivoting, regularizing any pivot smaller than 1e-12 in magnitude rather
// than failing (spec §4.4 step 4).
func solveLinear(A *mat.Dense, b *mat.Dense) ([]float64, error) {
	n, _ := A.Dims()
	aug := make([][]float64, n)
	for i := 0; i < n; i++ {
		aug[i] = make([]float64, n+1)
		for j := 0; j < n; j++ {
			aug[i][j] = A.At(i, j)
		}
		aug[i][n] = -b.At(i, 0)
	}

	for col := 0; col < n; col++ {
		pivotRow := col
		maxAbs := math.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > maxAbs {
				maxAbs = math.Abs(aug[r][col])
				pivotRow = r
			}
		}
		aug[col], aug[pivotRow] = aug[pivotRow], aug[col]

		if math.Abs(aug[col][col]) < 1e-12 {
			aug[col][col] += 1e-12
		}

		for r := col + 1; r < n; r++ {
			factor := aug[r][col] / aug[col][col]
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := aug[i][n]
		for j := i + 1; j < n; j++ {
			sum -= aug[i][j] * x[j]
		}
		x[i] = sum / aug[i][i]
	}
	return x, nil
}

// covariance regularizes A's diagonal, inverts it, and scales by the
// residual variance. If the result is non-finite or excessively large it
// falls back to a diagonal proxy (spec §4.4).
func covariance(A *mat.Dense, cost float64, n, dim int) *mat.Dense {
	reg := mat.DenseCopyOf(A)
	for i := 0; i < dim; i++ {
		reg.Set(i, i, reg.At(i, i)+1e-10)
	}

	dof := n - dim
	if dof < 1 {
		dof = 1
	}
	variance := cost / float64(dof)

	inv := mat.NewDense(dim, dim, nil)
	ok := invertByColumns(reg, inv)

	valid := ok
	maxAbs := 0.0
	if valid {
		for i := 0; i < dim; i++ {
			for j := 0; j < dim; j++ {
				v := inv.At(i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					valid = false
				}
				if math.Abs(v) > maxAbs {
					maxAbs = math.Abs(v)
				}
			}
		}
	}
	if valid && maxAbs > 1e10 {
		valid = false
	}

	cov := mat.NewDense(dim, dim, nil)
	if valid {
		cov.Scale(variance, inv)
		return cov
	}

	for i := 0; i < dim; i++ {
		cov.Set(i, i, variance*0.01)
	}
	return cov
}

// invertByColumns inverts a via a single LU factorization, reused to solve
// against every column of the identity at once rather than n independent
// systems from scratch (spec §9 design note). It returns false if a is
// singular to working precision.
func invertByColumns(a *mat.Dense, inv *mat.Dense) bool {
	var lu mat.LU
	lu.Factorize(a)

	n, _ := a.Dims()
	ident := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		ident.Set(i, i, 1)
	}

	err := lu.SolveTo(inv, false, ident)
	return err == nil
}
