package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErf(t *testing.T) {
	assert := assert.New(t)

	assert.InDelta(0, Erf(0), 1e-12)
	assert.InDelta(-Erf(0.7), Erf(-0.7), 1e-12)
	assert.LessOrEqual(math.Abs(Erf(5)), 1.0+1.5e-7)
	assert.InDelta(1, Erf(5), 1.5e-7)
}

func TestFermiDiracZeroTemp(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1.0, FermiDirac(-0.01, 0, 0))
	assert.Equal(1.0, FermiDirac(0, 0, 0))
	assert.Equal(0.0, FermiDirac(0.01, 0, 0))
}

func TestFermiDiracFiniteTempMonotone(t *testing.T) {
	assert := assert.New(t)

	T := 50.0
	prev := FermiDirac(-0.1, T, 0)
	assert.Greater(prev, 0.0)
	assert.Less(prev, 1.0)

	for e := -0.099; e <= 0.1; e += 0.001 {
		v := FermiDirac(e, T, 0)
		assert.Greater(v, 0.0)
		assert.Less(v, 1.0)
		assert.Less(v, prev)
		prev = v
	}
}

func TestGaussianKernelNormalizedAndSymmetric(t *testing.T) {
	assert := assert.New(t)

	k := GaussianKernel(0.01, 0.001)
	sum := 0.0
	for _, v := range k {
		sum += v
	}
	assert.InDelta(1.0, sum, 1e-9)

	n := len(k)
	for i := 0; i < n/2; i++ {
		assert.InDelta(k[i], k[n-1-i], 1e-12)
	}
}

func TestGaussianKernelDegenerate(t *testing.T) {
	assert := assert.New(t)

	k := GaussianKernel(1e-9, 1)
	assert.Equal([]float64{0, 1, 0}, k)
}

func TestConvolveIdentity(t *testing.T) {
	assert := assert.New(t)

	data := []float64{1, 2, 3, 4, 5}
	out := Convolve(data, []float64{1})
	assert.Equal(data, out)
}

func TestInterpEndpointFills(t *testing.T) {
	assert := assert.New(t)

	xOld := []float64{0, 1, 2, 3}
	yOld := []float64{10, 20, 30, 40}

	out := Interp([]float64{-1, 0.5, 1.5, 4}, xOld, yOld, nil, nil)
	assert.Equal(10.0, out[0])
	assert.InDelta(15.0, out[1], 1e-9)
	assert.InDelta(25.0, out[2], 1e-9)
	assert.Equal(40.0, out[3])
}

func TestInterpCustomFills(t *testing.T) {
	assert := assert.New(t)

	xOld := []float64{0, 1}
	yOld := []float64{1, 0}
	left, right := 1.0, 0.0

	out := Interp([]float64{-5, 10}, xOld, yOld, &left, &right)
	assert.Equal(1.0, out[0])
	assert.Equal(0.0, out[1])
}

func TestSkewGaussianReducesToGaussianWhenSymmetric(t *testing.T) {
	assert := assert.New(t)

	sigma := 0.3
	v := SkewGaussian(0, sigma, 0)
	expected := 1 / (sigma * math.Sqrt(2*math.Pi))
	assert.InDelta(expected, v, 1e-9)
}

func TestEllipticalGaussian2DNormalizes(t *testing.T) {
	assert := assert.New(t)

	x := Linspace(-2, 2, 41)
	y := Linspace(-2, 2, 41)
	E, Y := Meshgrid(x, y)

	out := EllipticalGaussian2D(E, Y, 0.5, 0.5, 0, 0, 0)
	rows, cols := out.Dims()
	sum := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sum += out.At(i, j)
		}
	}
	assert.InDelta(1.0, sum, 1e-6)
}

func TestMeshgridLayout(t *testing.T) {
	assert := assert.New(t)

	x := Linspace(0, 3, 4)
	y := Linspace(10, 12, 3)
	E, Y := Meshgrid(x, y)

	rows, cols := E.Dims()
	assert.Equal(3, rows)
	assert.Equal(4, cols)
	assert.Equal(x[2], E.At(1, 2))
	assert.Equal(y[1], Y.At(1, 2))
}
