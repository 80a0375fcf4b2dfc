package plant

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.dynamech.dev/plant/internal/pointmass"
	"go.dynamech.dev/plant/multibody"
)

// makeFreeBallPlant builds a single free point mass under gravity with no
// geometry at all.
func makeFreeBallPlant(t *testing.T, timeStep float64) (*Plant, *Context) {
	t.Helper()
	tree := pointmass.NewTree()
	tree.SetGravity(r3.Vector{Z: -testGravity})
	_, err := tree.AddBody("ball", testBallMass, multibody.DefaultModelInstance())
	test.That(t, err, test.ShouldBeNil)

	p, err := NewPlant(timeStep, tree, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Finalize(nil), test.ShouldBeNil)
	ctx, err := p.CreateDefaultContext()
	test.That(t, err, test.ShouldBeNil)
	return p, ctx
}

func TestFreeFallContinuous(t *testing.T) {
	p, ctx := makeFreeBallPlant(t, 0)
	test.That(t, ctx.SetPositions([]float64{0, 0, 10}), test.ShouldBeNil)

	xdot, err := p.CalcTimeDerivatives(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, xdot, test.ShouldHaveLength, 6)

	// qdot = v = 0; vdot = g.
	want := []float64{0, 0, 0, 0, 0, -testGravity}
	for i := range want {
		test.That(t, xdot[i], test.ShouldAlmostEqual, want[i], 1e-12)
	}
}

func TestContinuousRequiresContinuousPlant(t *testing.T) {
	p, ctx := makeFreeBallPlant(t, testTimeStep)
	_, err := p.CalcTimeDerivatives(ctx)
	test.That(t, err, test.ShouldNotBeNil)

	pCont, ctxCont := makeFreeBallPlant(t, 0)
	_, err = pCont.CalcDiscreteVariableUpdates(ctxCont)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDiscreteUpdateNoContact(t *testing.T) {
	p, ctx := makeFreeBallPlant(t, testTimeStep)
	q0 := []float64{1, 2, 10}
	v0 := []float64{0.5, 0, -1}
	test.That(t, ctx.SetPositions(q0), test.ShouldBeNil)
	test.That(t, ctx.SetVelocities(v0), test.ShouldBeNil)

	xNext, err := p.CalcDiscreteVariableUpdates(ctx)
	test.That(t, err, test.ShouldBeNil)

	// With no contacts the update is the semi implicit Euler step
	// v1 = v0 + dt a, q1 = q0 + dt v1.
	a := []float64{0, 0, -testGravity}
	for i := 0; i < 3; i++ {
		v1 := v0[i] + testTimeStep*a[i]
		test.That(t, xNext[3+i], test.ShouldAlmostEqual, v1, 1e-12)
		test.That(t, xNext[i], test.ShouldAlmostEqual, q0[i]+testTimeStep*v1, 1e-12)
	}
}

func TestEnergyConservationFreeFall(t *testing.T) {
	p, ctx := makeFreeBallPlant(t, 0)
	z0 := 10.0
	test.That(t, ctx.SetPositions([]float64{0, 0, z0}), test.ShouldBeNil)

	energy := func() float64 {
		v := ctx.Velocities()
		q := ctx.Positions()
		ke := 0.5 * testBallMass * (v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		pe := testBallMass * testGravity * q[2]
		return ke + pe
	}
	initial := energy()

	// Explicit Euler at a small step; the drift must stay within the
	// integrator's first order error bound.
	dt := 1e-4
	steps := 1000
	for i := 0; i < steps; i++ {
		xdot, err := p.CalcTimeDerivatives(ctx)
		test.That(t, err, test.ShouldBeNil)
		x := ctx.State()
		for j := range x {
			x[j] += dt * xdot[j]
		}
		test.That(t, ctx.SetState(x), test.ShouldBeNil)
	}
	drift := math.Abs(energy() - initial)
	test.That(t, drift, test.ShouldBeLessThan, 1e-3)
}

func TestSpherePenetrationSettling(t *testing.T) {
	f := makeBallPlant(t, testTimeStep, 0.5)
	p := f.plant
	allowance := 1e-4
	test.That(t, p.SetPenetrationAllowance(allowance), test.ShouldBeNil)
	test.That(t, p.SetStictionTolerance(1e-4), test.ShouldBeNil)

	// Start at rest at the static equilibrium penetration m g / k.
	equilibrium := testBallMass * testGravity / p.penaltyParams.stiffness
	ctx := f.newBallContext(t)
	test.That(t, ctx.SetPositions([]float64{0, 0, testBallRadius - equilibrium}), test.ShouldBeNil)

	for i := 0; i < 500; i++ {
		f.syncPoses(t, ctx)
		test.That(t, p.Step(ctx), test.ShouldBeNil)
	}

	penetration := testBallRadius - ctx.Positions()[2]
	test.That(t, math.Abs(penetration-equilibrium), test.ShouldBeLessThan, 1e-3*allowance)
}

func TestHorizontalDragStiction(t *testing.T) {
	mu := 0.5
	f := makeBallPlant(t, testTimeStep, mu, withSlideActuator())
	p := f.plant
	test.That(t, p.SetPenetrationAllowance(1e-4), test.ShouldBeNil)
	test.That(t, p.SetStictionTolerance(1e-4), test.ShouldBeNil)

	equilibrium := testBallMass * testGravity / p.penaltyParams.stiffness
	ctx := f.newBallContext(t)
	test.That(t, ctx.SetPositions([]float64{0, 0, testBallRadius - equilibrium}), test.ShouldBeNil)

	port, err := p.ActuationInputPort()
	test.That(t, err, test.ShouldBeNil)
	push := 0.5 * mu * testBallMass * testGravity
	test.That(t, port.FixValue(ctx, []float64{push}), test.ShouldBeNil)

	for i := 0; i < 1000; i++ {
		f.syncPoses(t, ctx)
		test.That(t, p.Step(ctx), test.ShouldBeNil)
		// The contact stays stuck: tangential speed below the tolerance.
		test.That(t, math.Abs(ctx.Velocities()[0]), test.ShouldBeLessThan, p.StictionTolerance())
	}

	resultsPort, err := p.ContactResultsOutputPort()
	test.That(t, err, test.ShouldBeNil)
	results, err := resultsPort.Eval(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results.NumContacts(), test.ShouldEqual, 1)
	test.That(t, results.ContactInfo(0).SlipSpeed, test.ShouldBeLessThan, p.StictionTolerance())
}

func TestHorizontalDragSliding(t *testing.T) {
	mu := 0.5
	f := makeBallPlant(t, testTimeStep, mu, withSlideActuator())
	p := f.plant
	test.That(t, p.SetPenetrationAllowance(1e-4), test.ShouldBeNil)
	test.That(t, p.SetStictionTolerance(1e-4), test.ShouldBeNil)

	equilibrium := testBallMass * testGravity / p.penaltyParams.stiffness
	ctx := f.newBallContext(t)
	test.That(t, ctx.SetPositions([]float64{0, 0, testBallRadius - equilibrium}), test.ShouldBeNil)

	port, err := p.ActuationInputPort()
	test.That(t, err, test.ShouldBeNil)
	push := 1.5 * mu * testBallMass * testGravity
	test.That(t, port.FixValue(ctx, []float64{push}), test.ShouldBeNil)

	// Every step must solve successfully while the ball accelerates.
	steps := 300
	for i := 0; i < steps; i++ {
		f.syncPoses(t, ctx)
		test.That(t, p.Step(ctx), test.ShouldBeNil)
	}

	vx := ctx.Velocities()[0]
	test.That(t, vx, test.ShouldBeGreaterThan, p.StictionTolerance())

	// Net acceleration approaches (F - mu m g) / m once sliding.
	wantVx := (push - mu*testBallMass*testGravity) / testBallMass * float64(steps) * testTimeStep
	test.That(t, vx, test.ShouldAlmostEqual, wantVx, 0.2*wantVx)
}

func TestDiscreteContactStiffnessMatchesAllowance(t *testing.T) {
	// Dropping the ball from slightly above the plane must settle near the
	// equilibrium penetration, bounded by the allowance scale.
	f := makeBallPlant(t, testTimeStep, 0.5)
	p := f.plant
	allowance := 1e-4
	test.That(t, p.SetPenetrationAllowance(allowance), test.ShouldBeNil)
	test.That(t, p.SetStictionTolerance(1e-4), test.ShouldBeNil)

	ctx := f.newBallContext(t)
	test.That(t, ctx.SetPositions([]float64{0, 0, testBallRadius + 1e-3}), test.ShouldBeNil)

	for i := 0; i < 2000; i++ {
		f.syncPoses(t, ctx)
		test.That(t, p.Step(ctx), test.ShouldBeNil)
	}

	penetration := testBallRadius - ctx.Positions()[2]
	equilibrium := testBallMass * testGravity / p.penaltyParams.stiffness
	test.That(t, penetration, test.ShouldBeGreaterThan, 0)
	test.That(t, math.Abs(penetration-equilibrium), test.ShouldBeLessThan, 10*allowance)
	// And the ball has essentially stopped.
	test.That(t, math.Abs(ctx.Velocities()[2]), test.ShouldBeLessThan, 1e-4)
}
