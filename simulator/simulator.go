// Package simulator implements the forward model: it composes the physics
// kernels and the display/extended grids into the 2D detector image and the
// 1D energy spectrum produced by a parameterized X-ray source and detector
// observing a metallic sample at temperature T.
package simulator

import (
	"math"

	"github.com/xpsirf/irf-sim/grid"
	"github.com/xpsirf/irf-sim/physics"
	"github.com/xpsirf/irf-sim/simulator/noise"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SimulatorParams are the physical inputs to the forward model. SigmaX and
// SigmaRes are in meV and are converted to eV internally; all other fields
// are already in the unit named in spec §3.
type SimulatorParams struct {
	SigmaX   float64 // source energy resolution, meV
	SigmaY   float64 // spot spatial width, mm
	Alpha    float64 // energy gradient across spot, eV/mm
	GammaX   float64 // skewness, energy axis
	GammaY   float64 // skewness, y axis
	Kappa    float64 // smile curvature
	Theta    float64 // detector tilt, degrees
	SigmaRes float64 // detector intrinsic resolution, meV
	Temp     float64 // sample temperature, K (>= 0)

	PoissonNoise  float64 // optional noise level, >= 0
	GaussianNoise float64 // optional noise level, >= 0
}

// DefaultParams returns the literal parameter set used by spec §8's
// end-to-end scenario (a), with noise disabled.
func DefaultParams() SimulatorParams {
	return SimulatorParams{
		SigmaX:   0.5,
		SigmaY:   0.5,
		Alpha:    0.002,
		GammaX:   0,
		GammaY:   0,
		Kappa:    0.01,
		Theta:    0.08,
		SigmaRes: 1.5,
		Temp:     5,
	}
}

// SimulationResult is the forward model's output: the 1D spectrum in its
// several stages, the 2D detector image and spot profile, and the reported
// resolutions.
type SimulationResult struct {
	Energy        []float64 // meV, length = display e_steps
	Spectrum      []float64 // normalized, possibly noisy
	SpectrumClean []float64 // normalized, noise-free
	IdealFD       []float64 // ideal Fermi-Dirac occupation on the display grid
	IRF           []float64 // extracted instrumental response function

	Image2D     *mat.Dense // y_steps x e_steps
	SpotProfile *mat.Dense // y_steps x e_steps
	YAxis       []float64

	SigmaSource   float64 // meV
	SigmaDetector float64 // meV
	SigmaCombined float64 // meV
}

// irfTemp is the near-zero temperature used to extract the IRF by numerical
// differentiation of the step-like spectrum (spec §4.2 step 10).
const irfTemp = 0.01

// Simulate runs the forward pipeline for the given parameters. It is total:
// for any finite SimulatorParams it returns a finite SimulationResult and a
// nil error; noise is the only source of randomness, and is itself bounded.
func Simulate(p SimulatorParams) (*SimulationResult, error) {
	gExt, err := grid.Extended()
	if err != nil {
		return nil, err
	}
	gDisp, err := grid.Display()
	if err != nil {
		return nil, err
	}

	sigmaSourceEV := p.SigmaX / 1000
	sigmaDetEV := p.SigmaRes / 1000

	spectrumRaw := projectToExtended(gExt, p, p.Temp, sigmaSourceEV, sigmaDetEV)
	spectrum := physics.Interp(gDisp.EAxis, gExt.EAxis, spectrumRaw, nil, nil)
	normalizeInPlace(spectrum)

	spectrumClean := append([]float64(nil), spectrum...)

	if p.PoissonNoise > 0 || p.GaussianNoise > 0 {
		n := noise.New(p.PoissonNoise, p.GaussianNoise, 42)
		n.Apply(spectrum)
	}

	irfRaw := projectToExtended(gExt, p, irfTemp, sigmaSourceEV, sigmaDetEV)
	irfSpectrum := physics.Interp(gDisp.EAxis, gExt.EAxis, irfRaw, nil, nil)
	irf := centralDiff(irfSpectrum, gDisp.DE)
	normalizeSignedInPlace(irf)
	for i := range irf {
		irf[i] = -irf[i]
	}

	spotProfile := physics.EllipticalGaussian2D(gDisp.E, gDisp.Y, sigmaSourceEV, p.SigmaY, p.GammaX, p.GammaY, 0)

	idealFDDisp := physics.FermiDiracSlice(gDisp.EAxis, p.Temp)
	image2D := emission2D(gDisp.EAxis, gDisp.YAxis, idealFDDisp, p.Alpha, p.SigmaY, p.GammaY)

	idealFDForResult := idealFDDisp

	sigmaCombined := math.Sqrt(p.SigmaX*p.SigmaX + p.SigmaRes*p.SigmaRes)

	energyMeV := make([]float64, len(gDisp.EAxis))
	for i, e := range gDisp.EAxis {
		energyMeV[i] = e * 1000
	}

	return &SimulationResult{
		Energy:        energyMeV,
		Spectrum:      spectrum,
		SpectrumClean: spectrumClean,
		IdealFD:       idealFDForResult,
		IRF:           irf,
		Image2D:       image2D,
		SpotProfile:   spotProfile,
		YAxis:         append([]float64(nil), gDisp.YAxis...),
		SigmaSource:   p.SigmaX,
		SigmaDetector: p.SigmaRes,
		SigmaCombined: sigmaCombined,
	}, nil
}

// emission2D builds the 2D emission image on the given axes: each row i
// (y = yAxis[i]) is the ideal Fermi-Dirac spectrum shifted by alpha*y and
// modulated by a skew-Gaussian spot profile along y (spec §4.2 step 4). The
// result is a contiguous y_steps x e_steps buffer (spec §9), not a slice of
// slices.
func emission2D(eAxis, yAxis, idealFD []float64, alpha, sigmaY, gammaY float64) *mat.Dense {
	spotY := physics.SkewGaussianSlice(yAxis, sigmaY, gammaY)

	zero := 0.0
	out := mat.NewDense(len(yAxis), len(eAxis), nil)
	shiftedE := make([]float64, len(eAxis))
	for i, y := range yAxis {
		shift := alpha * y
		for j, e := range eAxis {
			shiftedE[j] = e - shift
		}
		left := idealFD[0]
		row := physics.Interp(shiftedE, eAxis, idealFD, &left, &zero)
		floats.Scale(spotY[i], row)
		out.SetRow(i, row)
	}
	return out
}

// projectToExtended runs the emission + detector-geometry projection + 1D
// resolution convolution of spec §4.2/§4.2a entirely on the extended grid,
// at the given temperature. The caller interpolates the result onto the
// display grid.
func projectToExtended(gExt *grid.Grid, p SimulatorParams, temp, sigmaSourceEV, sigmaDetEV float64) []float64 {
	idealFDExt := physics.FermiDiracSlice(gExt.EAxis, temp)
	emission := emission2D(gExt.EAxis, gExt.YAxis, idealFDExt, p.Alpha, p.SigmaY, p.GammaY)

	distorted := projectDistortion(emission, gExt.EAxis, gExt.YAxis, p.Kappa, p.Theta)

	rows, cols := distorted.Dims()
	spec1D := make([]float64, cols)
	for i := 0; i < rows; i++ {
		floats.Add(spec1D, distorted.RawRowView(i))
	}

	if sigmaSourceEV > 0 {
		spec1D = physics.Convolve(spec1D, physics.GaussianKernel(sigmaSourceEV, gExt.DE))
	}
	if sigmaDetEV > 0 {
		spec1D = physics.Convolve(spec1D, physics.GaussianKernel(sigmaDetEV, gExt.DE))
	}

	return spec1D
}

// projectDistortion applies the detector's rotation and smile-curvature
// distortion to a 2D emission image, resampling by bilinear interpolation
// (spec §4.2a). Cells that land outside the source image sample as 0.
func projectDistortion(image *mat.Dense, eAxis, yAxis []float64, kappa, thetaDeg float64) *mat.Dense {
	theta := thetaDeg * math.Pi / 180
	cosT, sinT := math.Cos(theta), math.Sin(theta)

	yMax := floats.Max(abs(yAxis))

	rows, cols := len(yAxis), len(eAxis)
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		outRow := out.RawRowView(i)
		y := yAxis[i]
		yNorm := y / yMax
		for j := 0; j < cols; j++ {
			e := eAxis[j]

			eSrc := e*cosT + y*sinT
			ySrc := -e*sinT + y*cosT
			eSrcCurved := eSrc - kappa*yNorm*yNorm

			outRow[j] = bilinearSample(image, eAxis, yAxis, eSrcCurved, ySrc)
		}
	}
	return out
}

// abs returns a new slice with the absolute value of each element of x.
func abs(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v)
	}
	return out
}

// bilinearSample samples image (row-major, rows indexed by yAxis, columns by
// eAxis) at the continuous coordinate (e, y). Queries outside the axis
// ranges return 0.
func bilinearSample(image *mat.Dense, eAxis, yAxis []float64, e, y float64) float64 {
	if e < eAxis[0] || e > eAxis[len(eAxis)-1] || y < yAxis[0] || y > yAxis[len(yAxis)-1] {
		return 0
	}

	j := searchAxis(eAxis, e)
	i := searchAxis(yAxis, y)

	j0, j1 := clampIndex(j, len(eAxis))
	i0, i1 := clampIndex(i, len(yAxis))

	var tE float64
	if eAxis[j1] != eAxis[j0] {
		tE = (e - eAxis[j0]) / (eAxis[j1] - eAxis[j0])
	}
	var tY float64
	if yAxis[i1] != yAxis[i0] {
		tY = (y - yAxis[i0]) / (yAxis[i1] - yAxis[i0])
	}

	v00 := image.At(i0, j0)
	v01 := image.At(i0, j1)
	v10 := image.At(i1, j0)
	v11 := image.At(i1, j1)

	top := v00 + (v01-v00)*tE
	bot := v10 + (v11-v10)*tE
	return top + (bot-top)*tY
}

// searchAxis returns the largest index k such that axis[k] <= x, for
// monotonically increasing axis.
func searchAxis(axis []float64, x float64) int {
	lo, hi := 0, len(axis)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if axis[mid] <= x {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func clampIndex(i, n int) (int, int) {
	if i >= n-1 {
		return n - 1, n - 1
	}
	return i, i + 1
}

// centralDiff numerically differentiates y with spacing de, using central
// differences in the interior and one-sided differences at the endpoints.
func centralDiff(y []float64, de float64) []float64 {
	n := len(y)
	out := make([]float64, n)
	if n == 1 {
		return out
	}
	out[0] = (y[1] - y[0]) / de
	out[n-1] = (y[n-1] - y[n-2]) / de
	for i := 1; i < n-1; i++ {
		out[i] = (y[i+1] - y[i-1]) / (2 * de)
	}
	return out
}

func normalizeInPlace(data []float64) {
	max := 0.0
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	max += 1e-12
	for i := range data {
		data[i] /= max
	}
}

func normalizeSignedInPlace(data []float64) {
	max := 0.0
	for _, v := range data {
		if math.Abs(v) > max {
			max = math.Abs(v)
		}
	}
	max += 1e-12
	for i := range data {
		data[i] /= max
	}
}
