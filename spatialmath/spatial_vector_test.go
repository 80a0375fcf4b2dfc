package spatialmath

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestSpatialVelocityShift(t *testing.T) {
	// A body spinning about z at 1 rad/s with its origin at rest: a point at
	// (1, 0, 0) from the origin moves at (0, 1, 0).
	v := SpatialVelocity{Angular: r3.Vector{Z: 1}}
	atPoint := v.Shift(r3.Vector{X: 1})
	test.That(t, atPoint.Angular.Sub(r3.Vector{Z: 1}).Norm(), test.ShouldAlmostEqual, 0, 1e-15)
	test.That(t, atPoint.Linear.Sub(r3.Vector{Y: 1}).Norm(), test.ShouldAlmostEqual, 0, 1e-15)

	// Shifting there and back is the identity.
	back := atPoint.Shift(r3.Vector{X: -1})
	test.That(t, back.Linear.Norm(), test.ShouldAlmostEqual, 0, 1e-15)
}

func TestSpatialForceShift(t *testing.T) {
	// A pure force along +z applied at a point offset +x from the body origin
	// produces the torque r x f = x_hat x z_hat = -y_hat about the origin.
	f := SpatialForce{Force: r3.Vector{Z: 1}}
	atOrigin := f.Shift(r3.Vector{X: -1}) // offset from application point to origin
	test.That(t, atOrigin.Force.Sub(r3.Vector{Z: 1}).Norm(), test.ShouldAlmostEqual, 0, 1e-15)
	test.That(t, atOrigin.Torque.Sub(r3.Vector{Y: -1}).Norm(), test.ShouldAlmostEqual, 0, 1e-15)

	// The force component never changes under shifts.
	shifted := f.Shift(r3.Vector{X: 2, Y: -3, Z: 0.5})
	test.That(t, shifted.Force, test.ShouldResemble, f.Force)
}

func TestSpatialForceAddNeg(t *testing.T) {
	f := SpatialForce{Torque: r3.Vector{X: 1}, Force: r3.Vector{Z: 2}}
	sum := f.Add(f.Neg())
	test.That(t, sum.Torque.Norm(), test.ShouldAlmostEqual, 0, 1e-15)
	test.That(t, sum.Force.Norm(), test.ShouldAlmostEqual, 0, 1e-15)
}
