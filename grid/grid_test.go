package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewInvalidSteps(t *testing.T) {
	assert := assert.New(t)

	_, err := New(Spec{EStart: -1, EEnd: 1, ESteps: 1, YStart: -1, YEnd: 1, YSteps: 5})
	assert.Error(err)

	_, err = New(Spec{EStart: -1, EEnd: 1, ESteps: 5, YStart: -1, YEnd: 1, YSteps: 1})
	assert.Error(err)
}

func TestNewAxes(t *testing.T) {
	assert := assert.New(t)

	g, err := New(Spec{EStart: -1, EEnd: 1, ESteps: 5, YStart: -2, YEnd: 2, YSteps: 3})
	assert.NoError(err)
	assert.Len(g.EAxis, 5)
	assert.Len(g.YAxis, 3)
	assert.InDelta(0.5, g.DE, 1e-12)

	for i := 1; i < len(g.EAxis); i++ {
		assert.Greater(g.EAxis[i], g.EAxis[i-1])
	}
	for i := 1; i < len(g.YAxis); i++ {
		assert.Greater(g.YAxis[i], g.YAxis[i-1])
	}

	assert.Equal(g.EAxis[0], g.E.At(0, 0))
	assert.Equal(g.YAxis[0], g.Y.At(0, 0))
	assert.Equal(g.YAxis[len(g.YAxis)-1], g.Y.At(len(g.YAxis)-1, 0))
}

func TestDisplayAndExtended(t *testing.T) {
	assert := assert.New(t)

	d, err := Display()
	assert.NoError(err)
	assert.Len(d.EAxis, 500)
	assert.Len(d.YAxis, 200)

	e, err := Extended()
	assert.NoError(err)
	assert.Len(e.EAxis, 750)
	assert.Greater(d.EAxis[0], e.EAxis[0])
	assert.Greater(d.EAxis[len(d.EAxis)-1], 0.0)
}
