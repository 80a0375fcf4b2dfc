package pointmass

import (
	"sort"

	"github.com/pkg/errors"

	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/spatialmath"
)

type registeredGeometry struct {
	id       geometry.GeometryID
	frame    geometry.FrameID // invalid for anchored geometry
	instance geometry.GeometryInstance
	anchored bool
}

// SceneGraph is an analytic geometry engine for spheres and half spaces. It
// honors the registration and collision filter contract and answers
// penetration queries against the frame poses pushed in with SetFramePoses.
type SceneGraph struct {
	nextID     int64
	sources    map[geometry.SourceID]bool
	frames     map[geometry.FrameID]geometry.GeometryFrame
	geometries []*registeredGeometry
	byID       map[geometry.GeometryID]*registeredGeometry

	framePoses map[geometry.FrameID]spatialmath.Pose

	// Unordered geometry pairs removed from collision consideration.
	filtered map[[2]geometry.GeometryID]bool
}

// NewSceneGraph creates an empty engine.
func NewSceneGraph() *SceneGraph {
	return &SceneGraph{
		sources:    map[geometry.SourceID]bool{},
		frames:     map[geometry.FrameID]geometry.GeometryFrame{},
		byID:       map[geometry.GeometryID]*registeredGeometry{},
		framePoses: map[geometry.FrameID]spatialmath.Pose{},
		filtered:   map[[2]geometry.GeometryID]bool{},
	}
}

// RegisterSource allocates a new source id.
func (sg *SceneGraph) RegisterSource() (geometry.SourceID, error) {
	id := geometry.SourceID(sg.allocateID())
	sg.sources[id] = true
	return id, nil
}

// RegisterFrame declares a movable frame.
func (sg *SceneGraph) RegisterFrame(source geometry.SourceID, frame geometry.GeometryFrame) (geometry.FrameID, error) {
	if !sg.sources[source] {
		return geometry.InvalidFrameID, errors.Errorf("unknown source %d", source)
	}
	id := geometry.FrameID(sg.allocateID())
	sg.frames[id] = frame
	return id, nil
}

// RegisterGeometry attaches a geometry to a registered frame.
func (sg *SceneGraph) RegisterGeometry(
	source geometry.SourceID, frame geometry.FrameID, instance geometry.GeometryInstance,
) (geometry.GeometryID, error) {
	if !sg.sources[source] {
		return geometry.InvalidGeometryID, errors.Errorf("unknown source %d", source)
	}
	if _, ok := sg.frames[frame]; !ok {
		return geometry.InvalidGeometryID, errors.Errorf("unknown frame %d", frame)
	}
	return sg.addGeometry(&registeredGeometry{frame: frame, instance: instance}), nil
}

// RegisterAnchoredGeometry attaches a geometry to the world.
func (sg *SceneGraph) RegisterAnchoredGeometry(
	source geometry.SourceID, instance geometry.GeometryInstance,
) (geometry.GeometryID, error) {
	if !sg.sources[source] {
		return geometry.InvalidGeometryID, errors.Errorf("unknown source %d", source)
	}
	return sg.addGeometry(&registeredGeometry{frame: geometry.InvalidFrameID, instance: instance, anchored: true}), nil
}

func (sg *SceneGraph) addGeometry(g *registeredGeometry) geometry.GeometryID {
	g.id = geometry.GeometryID(sg.allocateID())
	sg.geometries = append(sg.geometries, g)
	sg.byID[g.id] = g
	return g.id
}

func (sg *SceneGraph) allocateID() int64 {
	sg.nextID++
	return sg.nextID
}

// expand resolves a geometry set into concrete geometry ids, frames included.
func (sg *SceneGraph) expand(set *geometry.GeometrySet) []geometry.GeometryID {
	ids := set.Geometries()
	for _, g := range sg.geometries {
		if g.frame.IsValid() && set.ContainsFrame(g.frame) && !set.ContainsGeometry(g.id) {
			ids = append(ids, g.id)
		}
	}
	return ids
}

func pairKey(a, b geometry.GeometryID) [2]geometry.GeometryID {
	if a > b {
		a, b = b, a
	}
	return [2]geometry.GeometryID{a, b}
}

// ExcludeCollisionsWithin filters every pair inside the set.
func (sg *SceneGraph) ExcludeCollisionsWithin(set *geometry.GeometrySet) error {
	ids := sg.expand(set)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sg.filtered[pairKey(ids[i], ids[j])] = true
		}
	}
	return nil
}

// ExcludeCollisionsBetween filters every pair across the two sets.
func (sg *SceneGraph) ExcludeCollisionsBetween(setA, setB *geometry.GeometrySet) error {
	idsA := sg.expand(setA)
	idsB := sg.expand(setB)
	for _, a := range idsA {
		for _, b := range idsB {
			if a != b {
				sg.filtered[pairKey(a, b)] = true
			}
		}
	}
	return nil
}

// SetFramePoses updates the world pose of the registered frames, normally
// from the plant's geometry poses output port.
func (sg *SceneGraph) SetFramePoses(poses map[geometry.FrameID]spatialmath.Pose) {
	for id, pose := range poses {
		sg.framePoses[id] = pose
	}
}

func (sg *SceneGraph) worldPose(g *registeredGeometry) spatialmath.Pose {
	if g.anchored {
		return g.instance.Pose
	}
	framePose, ok := sg.framePoses[g.frame]
	if !ok {
		framePose = spatialmath.NewZeroPose()
	}
	return framePose.Compose(g.instance.Pose)
}

// QueryObject returns a penetration query view bound to the engine's current
// frame poses.
func (sg *SceneGraph) QueryObject() geometry.QueryObject {
	return &queryObject{sg: sg}
}

type queryObject struct {
	sg *SceneGraph
}

// ComputePointPairPenetration reports a witness pair for every unfiltered,
// currently penetrating pair of geometries. Pairs are ordered by id with the
// smaller id as geometry A, so results are deterministic.
func (qo *queryObject) ComputePointPairPenetration() []geometry.PenetrationPointPair {
	sg := qo.sg
	ordered := make([]*registeredGeometry, len(sg.geometries))
	copy(ordered, sg.geometries)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	var pairs []geometry.PenetrationPointPair
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			a, b := ordered[i], ordered[j]
			if a.anchored && b.anchored {
				continue
			}
			if sg.filtered[pairKey(a.id, b.id)] {
				continue
			}
			if pair, ok := penetrate(a, sg.worldPose(a), b, sg.worldPose(b)); ok {
				pairs = append(pairs, pair)
			}
		}
	}
	return pairs
}

// penetrate computes the witness pair for the supported shape combinations:
// sphere versus sphere and sphere versus half space.
func penetrate(
	a *registeredGeometry, poseA spatialmath.Pose,
	b *registeredGeometry, poseB spatialmath.Pose,
) (geometry.PenetrationPointPair, bool) {
	switch shapeA := a.instance.Shape.(type) {
	case geometry.Sphere:
		switch shapeB := b.instance.Shape.(type) {
		case geometry.Sphere:
			return sphereSphere(a.id, shapeA, poseA, b.id, shapeB, poseB)
		case geometry.HalfSpace:
			return sphereHalfSpace(a.id, shapeA, poseA, b.id, poseB)
		}
	case geometry.HalfSpace:
		if shapeB, ok := b.instance.Shape.(geometry.Sphere); ok {
			pair, hit := sphereHalfSpace(b.id, shapeB, poseB, a.id, poseA)
			if !hit {
				return geometry.PenetrationPointPair{}, false
			}
			return flipPair(pair), true
		}
	}
	return geometry.PenetrationPointPair{}, false
}

// flipPair swaps the roles of A and B in a witness pair.
func flipPair(pair geometry.PenetrationPointPair) geometry.PenetrationPointPair {
	return geometry.PenetrationPointPair{
		IDA:     pair.IDB,
		IDB:     pair.IDA,
		PWCa:    pair.PWCb,
		PWCb:    pair.PWCa,
		NhatBAW: pair.NhatBAW.Mul(-1),
		Depth:   pair.Depth,
	}
}

// sphereSphere reports the witness pair of two penetrating spheres with the
// sphere A first.
func sphereSphere(
	idA geometry.GeometryID, a geometry.Sphere, poseA spatialmath.Pose,
	idB geometry.GeometryID, b geometry.Sphere, poseB spatialmath.Pose,
) (geometry.PenetrationPointPair, bool) {
	cA := poseA.Point()
	cB := poseB.Point()
	delta := cA.Sub(cB)
	dist := delta.Norm()
	depth := a.Radius + b.Radius - dist
	if depth < 0 || dist == 0 {
		return geometry.PenetrationPointPair{}, false
	}
	nhatBA := delta.Mul(1 / dist)
	return geometry.PenetrationPointPair{
		IDA:     idA,
		IDB:     idB,
		PWCa:    cA.Sub(nhatBA.Mul(a.Radius)),
		PWCb:    cB.Add(nhatBA.Mul(b.Radius)),
		NhatBAW: nhatBA,
		Depth:   depth,
	}, true
}

// sphereHalfSpace reports the witness pair of a sphere A against a half space
// B occupying z <= 0 of its frame.
func sphereHalfSpace(
	idA geometry.GeometryID, a geometry.Sphere, poseA spatialmath.Pose,
	idB geometry.GeometryID, poseB spatialmath.Pose,
) (geometry.PenetrationPointPair, bool) {
	normal := poseB.Rotation().Col(2)
	// Signed distance of the sphere center above the half space surface.
	height := poseA.Point().Sub(poseB.Point()).Dot(normal)
	depth := a.Radius - height
	if depth < 0 {
		return geometry.PenetrationPointPair{}, false
	}
	center := poseA.Point()
	return geometry.PenetrationPointPair{
		IDA:     idA,
		IDB:     idB,
		PWCa:    center.Sub(normal.Mul(a.Radius)),
		PWCb:    center.Sub(normal.Mul(height)),
		NhatBAW: normal,
		Depth:   depth,
	}, true
}
