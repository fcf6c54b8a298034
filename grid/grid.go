// Package grid implements the rectangular energy/position grids shared by
// the forward simulator's "display" and "extended" domains.
package grid

import (
	"fmt"

	"github.com/xpsirf/irf-sim/physics"
	"gonum.org/v1/gonum/mat"
)

// Spec is the six-number specification shared by the display and extended
// grids: an energy range and step count, and a (spatial) y range and step
// count.
type Spec struct {
	EStart float64
	EEnd   float64
	ESteps int
	YStart float64
	YEnd   float64
	YSteps int
}

// Grid is a rectangular product grid derived from a Spec: uniform energy and
// y axes, their spacing, and row-major mesh matrices E[i][j]=e_axis[j],
// Y[i][j]=y_axis[i].
type Grid struct {
	Spec Spec

	EAxis []float64
	YAxis []float64
	DE    float64

	// E and Y are row-major mesh matrices of shape YSteps x ESteps.
	E *mat.Dense
	Y *mat.Dense
}

// New builds a Grid from a Spec. It returns an error if ESteps or YSteps is
// smaller than 2, since a grid needs at least two points per axis to define
// a spacing.
func New(s Spec) (*Grid, error) {
	if s.ESteps < 2 {
		return nil, fmt.Errorf("invalid grid: e_steps must be >= 2, got %d", s.ESteps)
	}
	if s.YSteps < 2 {
		return nil, fmt.Errorf("invalid grid: y_steps must be >= 2, got %d", s.YSteps)
	}

	eAxis := physics.Linspace(s.EStart, s.EEnd, s.ESteps)
	yAxis := physics.Linspace(s.YStart, s.YEnd, s.YSteps)

	e, y := physics.Meshgrid(eAxis, yAxis)

	return &Grid{
		Spec:  s,
		EAxis: eAxis,
		YAxis: yAxis,
		DE:    eAxis[1] - eAxis[0],
		E:     e,
		Y:     y,
	}, nil
}

// Display returns the default display grid spec: (-0.1, 0.1, 500, -10, 10, 200).
func Display() (*Grid, error) {
	return New(Spec{EStart: -0.1, EEnd: 0.1, ESteps: 500, YStart: -10, YEnd: 10, YSteps: 200})
}

// Extended returns the default extended grid spec, widened in energy to
// absorb convolution edge effects: (-0.15, 0.15, 750, -10, 10, 200).
func Extended() (*Grid, error) {
	return New(Spec{EStart: -0.15, EEnd: 0.15, ESteps: 750, YStart: -10, YEnd: 10, YSteps: 200})
}
