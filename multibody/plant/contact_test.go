package plant

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/internal/pointmass"
	"go.dynamech.dev/plant/multibody"
	"go.dynamech.dev/plant/spatialmath"
)

// makeTwoSpherePlant builds two free bodies with overlapping collision
// spheres, continuous mode.
func makeTwoSpherePlant(t *testing.T) (*Plant, *pointmass.Tree, *pointmass.SceneGraph, multibody.Body, multibody.Body) {
	t.Helper()
	tree := pointmass.NewTree()
	tree.SetGravity(r3.Vector{Z: -testGravity})
	bodyA, err := tree.AddBody("sphereA", 1, multibody.DefaultModelInstance())
	test.That(t, err, test.ShouldBeNil)
	bodyB, err := tree.AddBody("sphereB", 1, multibody.DefaultModelInstance())
	test.That(t, err, test.ShouldBeNil)

	sg := pointmass.NewSceneGraph()
	p, err := NewPlant(0, tree, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	_, err = p.RegisterAsSourceForSceneGraph(sg)
	test.That(t, err, test.ShouldBeNil)
	friction, err := multibody.NewCoulombFriction(0.5, 0.3)
	test.That(t, err, test.ShouldBeNil)
	_, err = p.RegisterCollisionGeometry(
		bodyA, spatialmath.NewZeroPose(), geometry.Sphere{Radius: testBallRadius}, friction, sg)
	test.That(t, err, test.ShouldBeNil)
	_, err = p.RegisterCollisionGeometry(
		bodyB, spatialmath.NewZeroPose(), geometry.Sphere{Radius: testBallRadius}, friction, sg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Finalize(sg), test.ShouldBeNil)
	return p, tree, sg, bodyA, bodyB
}

func TestPenaltyForcesNewtonThirdLaw(t *testing.T) {
	p, _, sg, bodyA, bodyB := makeTwoSpherePlant(t)
	test.That(t, p.SetPenetrationAllowance(1e-4), test.ShouldBeNil)

	ctx, err := p.CreateDefaultContext()
	test.That(t, err, test.ShouldBeNil)
	queryPort, err := p.GeometryQueryInputPort()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, queryPort.Fix(ctx, sg.QueryObject()), test.ShouldBeNil)

	// Overlapping spheres with a skew relative velocity, so both normal and
	// friction forces are present.
	test.That(t, ctx.SetPositions([]float64{0, 0, 0, 0.08, 0, 0}), test.ShouldBeNil)
	test.That(t, ctx.SetVelocities([]float64{0.01, 0.02, 0, -0.01, 0, 0.03}), test.ShouldBeNil)

	posesPort, err := p.GeometryPosesOutputPort()
	test.That(t, err, test.ShouldBeNil)
	poses, err := posesPort.Eval(ctx)
	test.That(t, err, test.ShouldBeNil)
	sg.SetFramePoses(poses)

	pairs := sg.QueryObject().ComputePointPairPenetration()
	test.That(t, pairs, test.ShouldHaveLength, 1)

	pc, vc, err := ctx.evalVelocityKinematics()
	test.That(t, err, test.ShouldBeNil)

	bodyForces := make([]spatialmath.SpatialForce, p.NumBodies())
	test.That(t, p.calcAndAddContactForcesByPenaltyMethod(pc, vc, pairs, bodyForces), test.ShouldBeNil)

	forceA := bodyForces[bodyA.NodeIndex()]
	forceB := bodyForces[bodyB.NodeIndex()]
	test.That(t, forceA.Force.Norm(), test.ShouldBeGreaterThan, 0)

	// Shift both to the contact point: equal and opposite spatial forces.
	pWC := pairs[0].PWCa.Add(pairs[0].PWCb).Mul(0.5)
	atCA := forceA.Shift(pWC.Sub(pc.PoseInWorld(bodyA.NodeIndex()).Point()))
	atCB := forceB.Shift(pWC.Sub(pc.PoseInWorld(bodyB.NodeIndex()).Point()))
	test.That(t, atCA.Force.Add(atCB.Force).Norm(), test.ShouldAlmostEqual, 0, 1e-10)
	test.That(t, atCA.Torque.Add(atCB.Torque).Norm(), test.ShouldAlmostEqual, 0, 1e-10)
}

func TestPenaltyForcesSkipWorld(t *testing.T) {
	f := makeBallPlant(t, 0, 0.5)
	p := f.plant
	test.That(t, p.SetPenetrationAllowance(1e-4), test.ShouldBeNil)

	ctx := f.newBallContext(t)
	test.That(t, ctx.SetPositions([]float64{0, 0, testBallRadius - 1e-4}), test.ShouldBeNil)
	f.syncPoses(t, ctx)

	pairs := f.sceneGraph.QueryObject().ComputePointPairPenetration()
	test.That(t, pairs, test.ShouldHaveLength, 1)

	pc, vc, err := ctx.evalVelocityKinematics()
	test.That(t, err, test.ShouldBeNil)
	bodyForces := make([]spatialmath.SpatialForce, p.NumBodies())
	test.That(t, p.calcAndAddContactForcesByPenaltyMethod(pc, vc, pairs, bodyForces), test.ShouldBeNil)

	// The world entry stays untouched; the ball carries the whole reaction.
	test.That(t, bodyForces[0].Force.Norm(), test.ShouldEqual, 0)
	test.That(t, bodyForces[f.ball.NodeIndex()].Force.Z, test.ShouldAlmostEqual,
		testBallMass*testGravity, 1e-9)
}

func TestNormalJacobianSeparationSign(t *testing.T) {
	f := makeBallPlant(t, testTimeStep, 0.5)
	p := f.plant

	ctx := f.newBallContext(t)
	test.That(t, ctx.SetPositions([]float64{0, 0, testBallRadius - 1e-4}), test.ShouldBeNil)
	f.syncPoses(t, ctx)

	pairs := f.sceneGraph.QueryObject().ComputePointPairPenetration()
	test.That(t, pairs, test.ShouldHaveLength, 1)

	jn, err := p.calcNormalSeparationVelocitiesJacobian(ctx.positions(), pairs)
	test.That(t, err, test.ShouldBeNil)

	// Jn v is a separation rate: negative while the bodies approach,
	// positive as they separate.
	approach := []float64{0, 0, -1}
	separate := []float64{0, 0, 1}
	dot := func(v []float64) float64 {
		sum := 0.0
		for i := range v {
			sum += jn.At(0, i) * v[i]
		}
		return sum
	}
	test.That(t, dot(approach), test.ShouldBeLessThan, 0)
	test.That(t, dot(separate), test.ShouldBeGreaterThan, 0)
}

func TestTangentJacobianDeterministic(t *testing.T) {
	f := makeBallPlant(t, testTimeStep, 0.5)
	p := f.plant

	ctx := f.newBallContext(t)
	test.That(t, ctx.SetPositions([]float64{0, 0, testBallRadius - 1e-4}), test.ShouldBeNil)
	f.syncPoses(t, ctx)
	pairs := f.sceneGraph.QueryObject().ComputePointPairPenetration()
	test.That(t, pairs, test.ShouldHaveLength, 1)

	jt1, rWC1, err := p.calcTangentVelocitiesJacobian(ctx.positions(), pairs)
	test.That(t, err, test.ShouldBeNil)
	jt2, rWC2, err := p.calcTangentVelocitiesJacobian(ctx.positions(), pairs)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, rWC1, test.ShouldResemble, rWC2)
	r1, c1 := jt1.Dims()
	test.That(t, r1, test.ShouldEqual, 2)
	test.That(t, c1, test.ShouldEqual, 3)
	for i := 0; i < r1; i++ {
		for j := 0; j < c1; j++ {
			test.That(t, jt1.At(i, j), test.ShouldEqual, jt2.At(i, j))
		}
	}

	// The contact frame's third column is the pair normal.
	test.That(t, rWC1[0].Col(2).Sub(pairs[0].NhatBAW).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestContactResultsAfterStep(t *testing.T) {
	f := makeBallPlant(t, testTimeStep, 0.5)
	p := f.plant
	test.That(t, p.SetPenetrationAllowance(1e-4), test.ShouldBeNil)
	test.That(t, p.SetStictionTolerance(1e-4), test.ShouldBeNil)

	equilibrium := testBallMass * testGravity / p.penaltyParams.stiffness
	ctx := f.newBallContext(t)
	test.That(t, ctx.SetPositions([]float64{0, 0, testBallRadius - equilibrium}), test.ShouldBeNil)

	resultsPort, err := p.ContactResultsOutputPort()
	test.That(t, err, test.ShouldBeNil)

	// Before any update the staged results are empty.
	results, err := resultsPort.Eval(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results.NumContacts(), test.ShouldEqual, 0)

	f.syncPoses(t, ctx)
	test.That(t, p.Step(ctx), test.ShouldBeNil)

	results, err = resultsPort.Eval(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, results.NumContacts(), test.ShouldEqual, 1)
	info := results.ContactInfo(0)

	test.That(t, info.BodyA, test.ShouldEqual, f.ball.Index())
	test.That(t, info.BodyB, test.ShouldEqual, multibody.WorldBodyIndex())
	// At rest on the plane: normal force balances gravity, no slip.
	test.That(t, info.ContactForceW.Z, test.ShouldAlmostEqual, testBallMass*testGravity, 1e-6)
	test.That(t, math.Abs(info.SeparationVelocity), test.ShouldBeLessThan, 1e-8)
	test.That(t, info.SlipSpeed, test.ShouldBeLessThan, 1e-8)
	test.That(t, info.ContactPointW.Z, test.ShouldAlmostEqual, -equilibrium/2, 1e-9)
	test.That(t, info.PointPair.Depth, test.ShouldAlmostEqual, equilibrium, 1e-12)

	// The generalized contact forces port reports the ball's share.
	forcesPort, err := p.GeneralizedContactForcesOutputPortForInstance(multibody.DefaultModelInstance())
	test.That(t, err, test.ShouldBeNil)
	tau, err := forcesPort.Eval(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tau, test.ShouldHaveLength, 3)
	test.That(t, tau[2], test.ShouldAlmostEqual, testBallMass*testGravity, 1e-6)
}
