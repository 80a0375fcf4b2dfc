package spatialmath

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPoseTransformPoint(t *testing.T) {
	R, err := ComputeBasisFromAxis(2, r3.Vector{X: 1, Y: 1, Z: 0})
	test.That(t, err, test.ShouldBeNil)
	pose := NewPose(R, r3.Vector{X: 1, Y: -2, Z: 3})

	p := r3.Vector{X: 0.3, Y: -0.7, Z: 1.1}
	mapped := pose.TransformPoint(p)
	back := pose.Inverse().TransformPoint(mapped)
	test.That(t, back.Sub(p).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestPoseCompose(t *testing.T) {
	a := NewPoseFromPoint(r3.Vector{X: 1})
	b := NewPoseFromPoint(r3.Vector{Y: 2})
	ab := a.Compose(b)
	test.That(t, ab.Point().Sub(r3.Vector{X: 1, Y: 2}).Norm(), test.ShouldAlmostEqual, 0, 1e-15)

	// Composing with the inverse yields the identity.
	R, err := ComputeBasisFromAxis(0, r3.Vector{X: 0.2, Y: -0.5, Z: 0.8})
	test.That(t, err, test.ShouldBeNil)
	pose := NewPose(R, r3.Vector{X: -4, Y: 0.5, Z: 2})
	eye := pose.Compose(pose.Inverse())
	test.That(t, eye.Point().Norm(), test.ShouldAlmostEqual, 0, 1e-12)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			test.That(t, eye.Rotation().At(i, j), test.ShouldAlmostEqual, want, 1e-12)
		}
	}

	test.That(t, NewZeroPose().String(), test.ShouldContainSubstring, "Position")
}
