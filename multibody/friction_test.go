package multibody

import (
	"testing"

	"go.viam.com/test"
)

func TestNewCoulombFriction(t *testing.T) {
	_, err := NewCoulombFriction(-0.1, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewCoulombFriction(0.5, -0.1)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewCoulombFriction(0.3, 0.5)
	test.That(t, err, test.ShouldNotBeNil)

	cf, err := NewCoulombFriction(0.8, 0.5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cf.StaticFriction(), test.ShouldEqual, 0.8)
	test.That(t, cf.DynamicFriction(), test.ShouldEqual, 0.5)
}

func TestCombineFrictionCoefficients(t *testing.T) {
	a, err := NewCoulombFriction(1.0, 0.5)
	test.That(t, err, test.ShouldBeNil)
	b, err := NewCoulombFriction(0.5, 0.25)
	test.That(t, err, test.ShouldBeNil)

	c := CombineFrictionCoefficients(a, b)
	test.That(t, c.StaticFriction(), test.ShouldAlmostEqual, 2.0/3.0, 1e-15)
	test.That(t, c.DynamicFriction(), test.ShouldAlmostEqual, 1.0/3.0, 1e-15)

	// Symmetric in the two surfaces.
	flipped := CombineFrictionCoefficients(b, a)
	test.That(t, flipped.StaticFriction(), test.ShouldAlmostEqual, c.StaticFriction(), 1e-15)
	test.That(t, flipped.DynamicFriction(), test.ShouldAlmostEqual, c.DynamicFriction(), 1e-15)

	// The combination of valid pairs keeps dynamic <= static.
	test.That(t, c.DynamicFriction(), test.ShouldBeLessThanOrEqualTo, c.StaticFriction())

	// A frictionless surface makes the contact frictionless.
	zero := CoulombFriction{}
	fless := CombineFrictionCoefficients(a, zero)
	test.That(t, fless.StaticFriction(), test.ShouldEqual, 0)
	test.That(t, fless.DynamicFriction(), test.ShouldEqual, 0)

	// Combining with itself is the identity.
	same := CombineFrictionCoefficients(a, a)
	test.That(t, same.StaticFriction(), test.ShouldAlmostEqual, a.StaticFriction(), 1e-15)
	test.That(t, same.DynamicFriction(), test.ShouldAlmostEqual, a.DynamicFriction(), 1e-15)
}
