package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyNoNoiseIsIdentity(t *testing.T) {
	assert := assert.New(t)

	data := []float64{0.1, 0.2, 0.3}
	m := New(0, 0, 1)
	m.Apply(data)

	assert.Equal([]float64{0.1, 0.2, 0.3}, data)
}

func TestApplyClampsNonNegative(t *testing.T) {
	assert := assert.New(t)

	data := make([]float64, 200)
	m := New(50, 20, 7)
	m.Apply(data)

	for _, v := range data {
		assert.GreaterOrEqual(v, 0.0)
	}
}

func TestApplyGaussianOnlyPerturbsAroundOriginal(t *testing.T) {
	assert := assert.New(t)

	data := make([]float64, 500)
	for i := range data {
		data[i] = 1.0
	}
	m := New(0, 5, 42)
	m.Apply(data)

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))
	assert.InDelta(1.0, mean, 0.1)
}
