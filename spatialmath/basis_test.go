package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestComputeBasisFromAxis(t *testing.T) {
	axes := []r3.Vector{
		{X: 0, Y: 0, Z: 1},
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 1, Z: 0},
		{X: 1, Y: 1, Z: 1},
		{X: -0.3, Y: 0.2, Z: -0.8},
	}
	for _, axis := range axes {
		for axisIndex := 0; axisIndex < 3; axisIndex++ {
			R, err := ComputeBasisFromAxis(axisIndex, axis)
			test.That(t, err, test.ShouldBeNil)

			want := axis.Normalize()
			got := R.Col(axisIndex)
			test.That(t, got.Sub(want).Norm(), test.ShouldAlmostEqual, 0, 1e-12)

			// Orthonormal.
			for i := 0; i < 3; i++ {
				test.That(t, R.Col(i).Norm(), test.ShouldAlmostEqual, 1, 1e-12)
				for j := i + 1; j < 3; j++ {
					test.That(t, R.Col(i).Dot(R.Col(j)), test.ShouldAlmostEqual, 0, 1e-12)
				}
			}

			// Right handed: c0 x c1 = c2.
			cross := R.Col(0).Cross(R.Col(1))
			test.That(t, cross.Sub(R.Col(2)).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
		}
	}
}

func TestComputeBasisFromAxisDeterministic(t *testing.T) {
	axis := r3.Vector{X: 0.5, Y: -0.1, Z: 0.7}
	R1, err := ComputeBasisFromAxis(2, axis)
	test.That(t, err, test.ShouldBeNil)
	R2, err := ComputeBasisFromAxis(2, axis)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, R1, test.ShouldResemble, R2)
}

func TestComputeBasisFromAxisErrors(t *testing.T) {
	_, err := ComputeBasisFromAxis(3, r3.Vector{Z: 1})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ComputeBasisFromAxis(0, r3.Vector{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRotationMatrixOps(t *testing.T) {
	R, err := ComputeBasisFromAxis(2, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, err, test.ShouldBeNil)

	// R^T R = I.
	eye := R.Transpose().Mul(R)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			test.That(t, eye.At(i, j), test.ShouldAlmostEqual, want, 1e-12)
		}
	}

	v := r3.Vector{X: -1, Y: 0.5, Z: 2}
	back := R.Transpose().MulVec(R.MulVec(v))
	test.That(t, back.Sub(v).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, math.Abs(R.MulVec(v).Norm()-v.Norm()), test.ShouldAlmostEqual, 0, 1e-12)
}
