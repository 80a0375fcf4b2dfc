package pointmass

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/spatialmath"
)

func registerSphereAndGround(t *testing.T, sg *SceneGraph) (geometry.SourceID, geometry.FrameID, geometry.GeometryID, geometry.GeometryID) {
	t.Helper()
	source, err := sg.RegisterSource()
	test.That(t, err, test.ShouldBeNil)
	frame, err := sg.RegisterFrame(source, geometry.GeometryFrame{Name: "ball"})
	test.That(t, err, test.ShouldBeNil)
	sphere, err := sg.RegisterGeometry(source, frame, geometry.GeometryInstance{
		Name: "ball", Pose: spatialmath.NewZeroPose(), Shape: geometry.Sphere{Radius: 0.1},
	})
	test.That(t, err, test.ShouldBeNil)
	ground, err := sg.RegisterAnchoredGeometry(source, geometry.GeometryInstance{
		Name: "ground", Pose: spatialmath.NewZeroPose(), Shape: geometry.HalfSpace{},
	})
	test.That(t, err, test.ShouldBeNil)
	return source, frame, sphere, ground
}

func TestSphereHalfSpacePenetration(t *testing.T) {
	sg := NewSceneGraph()
	_, frame, sphere, ground := registerSphereAndGround(t, sg)

	// Sphere center at z = 0.08 with radius 0.1: depth 0.02.
	sg.SetFramePoses(map[geometry.FrameID]spatialmath.Pose{
		frame: spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.08}),
	})
	pairs := sg.QueryObject().ComputePointPairPenetration()
	test.That(t, pairs, test.ShouldHaveLength, 1)
	pair := pairs[0]
	test.That(t, pair.IDA, test.ShouldEqual, sphere)
	test.That(t, pair.IDB, test.ShouldEqual, ground)
	test.That(t, pair.Depth, test.ShouldAlmostEqual, 0.02, 1e-12)
	test.That(t, pair.NhatBAW.Sub(r3.Vector{Z: 1}).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, pair.PWCa.Z, test.ShouldAlmostEqual, -0.02, 1e-12)
	test.That(t, pair.PWCb.Z, test.ShouldAlmostEqual, 0, 1e-12)

	// Out of contact: no pairs.
	sg.SetFramePoses(map[geometry.FrameID]spatialmath.Pose{
		frame: spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.2}),
	})
	test.That(t, sg.QueryObject().ComputePointPairPenetration(), test.ShouldHaveLength, 0)
}

func TestSphereSpherePenetration(t *testing.T) {
	sg := NewSceneGraph()
	source, err := sg.RegisterSource()
	test.That(t, err, test.ShouldBeNil)
	frameA, err := sg.RegisterFrame(source, geometry.GeometryFrame{Name: "a"})
	test.That(t, err, test.ShouldBeNil)
	frameB, err := sg.RegisterFrame(source, geometry.GeometryFrame{Name: "b"})
	test.That(t, err, test.ShouldBeNil)
	sphereA, err := sg.RegisterGeometry(source, frameA, geometry.GeometryInstance{
		Pose: spatialmath.NewZeroPose(), Shape: geometry.Sphere{Radius: 0.05},
	})
	test.That(t, err, test.ShouldBeNil)
	sphereB, err := sg.RegisterGeometry(source, frameB, geometry.GeometryInstance{
		Pose: spatialmath.NewZeroPose(), Shape: geometry.Sphere{Radius: 0.05},
	})
	test.That(t, err, test.ShouldBeNil)

	sg.SetFramePoses(map[geometry.FrameID]spatialmath.Pose{
		frameA: spatialmath.NewPoseFromPoint(r3.Vector{}),
		frameB: spatialmath.NewPoseFromPoint(r3.Vector{X: 0.08}),
	})
	pairs := sg.QueryObject().ComputePointPairPenetration()
	test.That(t, pairs, test.ShouldHaveLength, 1)
	pair := pairs[0]
	test.That(t, pair.IDA, test.ShouldEqual, sphereA)
	test.That(t, pair.IDB, test.ShouldEqual, sphereB)
	test.That(t, pair.Depth, test.ShouldAlmostEqual, 0.02, 1e-12)
	// Normal points from B into A: along -x.
	test.That(t, pair.NhatBAW.Sub(r3.Vector{X: -1}).Norm(), test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, pair.PWCa.X, test.ShouldAlmostEqual, 0.05, 1e-12)
	test.That(t, pair.PWCb.X, test.ShouldAlmostEqual, 0.03, 1e-12)
}

func TestCollisionFilters(t *testing.T) {
	sg := NewSceneGraph()
	_, frame, _, ground := registerSphereAndGround(t, sg)
	sg.SetFramePoses(map[geometry.FrameID]spatialmath.Pose{
		frame: spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.05}),
	})
	test.That(t, sg.QueryObject().ComputePointPairPenetration(), test.ShouldHaveLength, 1)

	// Filtering by frame covers the geometry registered to it.
	setA := geometry.NewGeometrySet()
	setA.AddFrame(frame)
	setB := geometry.NewGeometrySet()
	setB.AddGeometry(ground)
	test.That(t, sg.ExcludeCollisionsBetween(setA, setB), test.ShouldBeNil)
	test.That(t, sg.QueryObject().ComputePointPairPenetration(), test.ShouldHaveLength, 0)
}

func TestExcludeCollisionsWithin(t *testing.T) {
	sg := NewSceneGraph()
	_, frame, sphere, ground := registerSphereAndGround(t, sg)
	sg.SetFramePoses(map[geometry.FrameID]spatialmath.Pose{
		frame: spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.05}),
	})

	all := geometry.NewGeometrySet()
	all.AddGeometries([]geometry.GeometryID{sphere, ground})
	test.That(t, sg.ExcludeCollisionsWithin(all), test.ShouldBeNil)
	test.That(t, sg.QueryObject().ComputePointPairPenetration(), test.ShouldHaveLength, 0)
}
