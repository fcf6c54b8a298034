// Package physics implements the pure numerical kernels the forward
// simulator is built from: the Fermi-Dirac distribution, the skew-Gaussian
// family, 1D interpolation and edge-padded convolution, and Gaussian kernel
// generation. None of these hold state; they are safe for concurrent use.
package physics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KB is the Boltzmann constant in eV/K.
const KB = 8.617333262e-5

// erf coefficients, Abramowitz & Stegun 7.1.26. Maximum error ~1.5e-7.
const (
	erfA1 = 0.254829592
	erfA2 = -0.284496736
	erfA3 = 1.421413741
	erfA4 = -1.453152027
	erfA5 = 1.061405429
	erfP  = 0.3275911
)

// Erf is the Abramowitz-and-Stegun rational approximation to the error
// function. Its maximum absolute error is about 1.5e-7.
func Erf(x float64) float64 {
	// The rational approximation leaves a residue of about 1e-9 at zero;
	// erf(0) is exactly 0.
	if x == 0 {
		return 0
	}
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}

	t := 1.0 / (1.0 + erfP*x)
	poly := ((((erfA5*t+erfA4)*t+erfA3)*t+erfA2)*t + erfA1) * t
	y := 1.0 - poly*math.Exp(-x*x)

	return sign * y
}

// normalCDF is the standard normal CDF derived from Erf.
func normalCDF(z float64) float64 {
	return 0.5 * (1 + Erf(z/math.Sqrt2))
}

// FermiDirac evaluates the Fermi-Dirac occupation factor at energy e (eV),
// temperature T (K), relative to Fermi level ef (eV, default 0).
//
// Below 0.1 K it returns the zero-temperature step function, since
// 1/(1+exp((e-ef)/(KB*T))) would otherwise overflow for tiny T. The
// argument to exp is clamped to [-100, 100] to prevent overflow even above
// that threshold.
func FermiDirac(e, T, ef float64) float64 {
	if T < 0.1 {
		if e <= ef {
			return 1
		}
		return 0
	}

	arg := (e - ef) / (KB * T)
	if arg > 100 {
		arg = 100
	} else if arg < -100 {
		arg = -100
	}

	return 1 / (1 + math.Exp(arg))
}

// FermiDiracSlice evaluates FermiDirac at ef=0 over every element of e.
func FermiDiracSlice(e []float64, T float64) []float64 {
	out := make([]float64, len(e))
	for i, ev := range e {
		out[i] = FermiDirac(ev, T, 0)
	}
	return out
}

// SkewGaussian evaluates a unit-area skew-Gaussian density at x, with scale
// sigma and shape gamma: 2*phi(x/sigma)/sigma * Phi(gamma*x/sigma), where phi
// is the standard normal PDF and Phi the standard normal CDF.
func SkewGaussian(x, sigma, gamma float64) float64 {
	if sigma == 0 {
		return 0
	}
	z := x / sigma
	phi := math.Exp(-0.5*z*z) / math.Sqrt(2*math.Pi)
	return 2 * phi / sigma * normalCDF(gamma*z)
}

// SkewGaussianSlice evaluates SkewGaussian over every element of x.
func SkewGaussianSlice(x []float64, sigma, gamma float64) []float64 {
	out := make([]float64, len(x))
	for i, xv := range x {
		out[i] = SkewGaussian(xv, sigma, gamma)
	}
	return out
}

// EllipticalGaussian2D evaluates a 2D elliptical skew-Gaussian over row-major
// mesh matrices E, Y (both shaped rows x cols, as built by Meshgrid), with
// energy-axis scale sigmaX and shape gammaX, y-axis scale sigmaY and shape
// gammaY, and a rotation in degrees. The result is normalized so its cell
// sum equals 1 whenever that sum exceeds 1e-12; otherwise it is returned
// unnormalized.
func EllipticalGaussian2D(E, Y *mat.Dense, sigmaX, sigmaY, gammaX, gammaY, rotationDeg float64) *mat.Dense {
	theta := rotationDeg * math.Pi / 180
	cosT, sinT := math.Cos(theta), math.Sin(theta)

	rows, cols := E.Dims()
	out := mat.NewDense(rows, cols, nil)

	rowSums := make([]float64, rows)
	for i := 0; i < rows; i++ {
		eRow := E.RawRowView(i)
		yRow := Y.RawRowView(i)
		outRow := out.RawRowView(i)
		for j := 0; j < cols; j++ {
			e, y := eRow[j], yRow[j]
			x := e*cosT - y*sinT
			yy := e*sinT + y*cosT

			fx := ellipticalFactor(x, sigmaX, gammaX)
			fy := ellipticalFactor(yy, sigmaY, gammaY)

			outRow[j] = fx * fy
		}
		rowSums[i] = floats.Sum(outRow)
	}

	sum := floats.Sum(rowSums)
	if sum > 1e-12 {
		out.Scale(1/sum, out)
	}

	return out
}

// ellipticalFactor evaluates one axis of the elliptical skew-Gaussian:
// 2*exp(-x^2/(2*sigma^2))*Phi(gamma*x/(sigma*sqrt(2))). A zero sigma
// degenerates to 0 everywhere rather than dividing by zero.
func ellipticalFactor(x, sigma, gamma float64) float64 {
	if sigma == 0 {
		return 0
	}
	return 2 * math.Exp(-x*x/(2*sigma*sigma)) * normalCDF(gamma*x/(sigma*math.Sqrt2))
}

// Interp performs linear interpolation of (xOld, yOld) at query points
// xNew. xOld must be monotonically increasing. Values outside [xOld[0],
// xOld[len-1]] are filled with left (default yOld[0]) and right (default
// yOld[len-1]) respectively.
func Interp(xNew, xOld, yOld []float64, left, right *float64) []float64 {
	n := len(xOld)
	leftFill := yOld[0]
	if left != nil {
		leftFill = *left
	}
	rightFill := yOld[n-1]
	if right != nil {
		rightFill = *right
	}

	out := make([]float64, len(xNew))
	for i, x := range xNew {
		switch {
		case x <= xOld[0]:
			out[i] = leftFill
		case x >= xOld[n-1]:
			out[i] = rightFill
		default:
			// sort.Search finds the smallest index k such that xOld[k] >= x.
			k := sort.Search(n, func(k int) bool { return xOld[k] >= x })
			if xOld[k] == x {
				out[i] = yOld[k]
				continue
			}
			x0, x1 := xOld[k-1], xOld[k]
			y0, y1 := yOld[k-1], yOld[k]
			out[i] = y0 + (y1-y0)*(x-x0)/(x1-x0)
		}
	}
	return out
}

// Convolve returns a same-length convolution of data with kernel. The data
// edges are extended by replicating the boundary value (floor(len(kernel)/2)
// samples on each side); kernel is expected to already be normalized.
func Convolve(data, kernel []float64) []float64 {
	n := len(data)
	k := len(kernel)
	half := k / 2

	padded := make([]float64, n+2*half)
	for i := range padded {
		srcIdx := i - half
		switch {
		case srcIdx < 0:
			padded[i] = data[0]
		case srcIdx >= n:
			padded[i] = data[n-1]
		default:
			padded[i] = data[srcIdx]
		}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < k; j++ {
			sum += padded[i+j] * kernel[j]
		}
		out[i] = sum
	}
	return out
}

// GaussianKernel builds a normalized (unit-sum) Gaussian kernel with scale
// sigma sampled at spacing de. Its half-width is ceil(5*sigma/de); if that is
// <= 0 the kernel degenerates to the identity [1].
func GaussianKernel(sigma, de float64) []float64 {
	w := int(math.Ceil(5 * sigma / de))
	if w <= 0 {
		return []float64{1}
	}

	n := 2*w + 1
	kernel := make([]float64, n)
	for i := -w; i <= w; i++ {
		kernel[i+w] = math.Exp(-(float64(i) * de) * (float64(i) * de) / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// Linspace returns n evenly spaced samples from a to b, inclusive.
func Linspace(a, b float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = a
		return out
	}
	step := (b - a) / float64(n-1)
	for i := 0; i < n; i++ {
		out[i] = a + step*float64(i)
	}
	return out
}

// Meshgrid returns row-major mesh matrices E, Y of shape len(y) x len(x)
// such that E.At(i,j) = x[j] and Y.At(i,j) = y[i]. Each is backed by a
// single contiguous buffer with stride arithmetic (spec §9), rather than a
// slice of slices.
func Meshgrid(x, y []float64) (E, Y *mat.Dense) {
	rows, cols := len(y), len(x)
	E = mat.NewDense(rows, cols, nil)
	Y = mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		copy(E.RawRowView(i), x)
		yRow := Y.RawRowView(i)
		for j := range yRow {
			yRow[j] = y[i]
		}
	}
	return E, Y
}
