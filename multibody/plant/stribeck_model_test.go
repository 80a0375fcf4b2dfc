package plant

import (
	"math"
	"testing"

	"go.viam.com/test"

	"go.dynamech.dev/plant/multibody"
)

func TestStribeckCurve(t *testing.T) {
	var model stribeckModel
	vStiction := 1e-3
	model.setStictionTolerance(vStiction)
	friction, err := multibody.NewCoulombFriction(0.9, 0.4)
	test.That(t, err, test.ShouldBeNil)

	// mu(0) = 0.
	test.That(t, model.computeFrictionCoefficient(0, friction), test.ShouldAlmostEqual, 0, 1e-15)
	// mu(v*) = mu_s.
	test.That(t, model.computeFrictionCoefficient(vStiction, friction), test.ShouldAlmostEqual, 0.9, 1e-12)
	// mu(v >= 3 v*) = mu_d.
	test.That(t, model.computeFrictionCoefficient(3*vStiction, friction), test.ShouldAlmostEqual, 0.4, 1e-12)
	test.That(t, model.computeFrictionCoefficient(10*vStiction, friction), test.ShouldEqual, 0.4)

	// Monotone decreasing on [v*, 3v*].
	prev := model.computeFrictionCoefficient(vStiction, friction)
	for i := 1; i <= 20; i++ {
		speed := vStiction * (1 + 2*float64(i)/20)
		mu := model.computeFrictionCoefficient(speed, friction)
		test.That(t, mu, test.ShouldBeLessThanOrEqualTo, prev+1e-12)
		prev = mu
	}

	// Continuous across the region boundaries.
	eps := 1e-9 * vStiction
	below := model.computeFrictionCoefficient(vStiction-eps, friction)
	above := model.computeFrictionCoefficient(vStiction+eps, friction)
	test.That(t, math.Abs(below-above), test.ShouldBeLessThan, 1e-6)
	below = model.computeFrictionCoefficient(3*vStiction-eps, friction)
	above = model.computeFrictionCoefficient(3*vStiction+eps, friction)
	test.That(t, math.Abs(below-above), test.ShouldBeLessThan, 1e-6)
}

func TestStep5(t *testing.T) {
	test.That(t, step5(0), test.ShouldEqual, 0)
	test.That(t, step5(1), test.ShouldEqual, 1)
	test.That(t, step5(0.5), test.ShouldAlmostEqual, 0.5, 1e-12)

	// Endpoint derivatives vanish.
	h := 1e-6
	test.That(t, (step5(h)-step5(0))/h, test.ShouldAlmostEqual, 0, 1e-5)
	test.That(t, (step5(1)-step5(1-h))/h, test.ShouldAlmostEqual, 0, 1e-5)
}
