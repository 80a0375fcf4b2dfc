package geometry

import (
	"go.dynamech.dev/plant/spatialmath"
)

// Shape is a closed set of geometric primitives an engine can register.
// Engines interpret shapes; the plant never inspects them.
type Shape interface {
	shape()
}

// Sphere is a sphere of the given radius centered at its frame origin.
type Sphere struct {
	Radius float64
}

// Box is an axis aligned box of the given full dimensions, centered at its frame origin.
type Box struct {
	Size [3]float64
}

// HalfSpace is the half space z <= 0 of its frame.
type HalfSpace struct{}

func (Sphere) shape()    {}
func (Box) shape()       {}
func (HalfSpace) shape() {}

// GeometryFrame declares a movable frame to be registered with an engine.
type GeometryFrame struct {
	Name string
}

// GeometryInstance is a shape posed in the frame it gets registered to.
type GeometryInstance struct {
	Name  string
	Pose  spatialmath.Pose
	Shape Shape
}

// GeometrySet is a collection of frames and geometries used to declare
// collision filters. Adding a frame implicitly includes every geometry
// registered to it.
type GeometrySet struct {
	frames     map[FrameID]bool
	geometries map[GeometryID]bool
}

// NewGeometrySet returns an empty set.
func NewGeometrySet() *GeometrySet {
	return &GeometrySet{
		frames:     map[FrameID]bool{},
		geometries: map[GeometryID]bool{},
	}
}

// AddFrame includes the frame, and so all geometries registered to it, in the set.
func (s *GeometrySet) AddFrame(id FrameID) {
	s.frames[id] = true
}

// AddGeometry includes a single geometry in the set.
func (s *GeometrySet) AddGeometry(id GeometryID) {
	s.geometries[id] = true
}

// AddGeometries includes all the given geometries in the set.
func (s *GeometrySet) AddGeometries(ids []GeometryID) {
	for _, id := range ids {
		s.geometries[id] = true
	}
}

// Frames returns the frame ids in the set.
func (s *GeometrySet) Frames() []FrameID {
	out := make([]FrameID, 0, len(s.frames))
	for id := range s.frames {
		out = append(out, id)
	}
	return out
}

// Geometries returns the geometry ids in the set.
func (s *GeometrySet) Geometries() []GeometryID {
	out := make([]GeometryID, 0, len(s.geometries))
	for id := range s.geometries {
		out = append(out, id)
	}
	return out
}

// ContainsFrame reports whether the frame is in the set.
func (s *GeometrySet) ContainsFrame(id FrameID) bool {
	return s.frames[id]
}

// ContainsGeometry reports whether the geometry was added directly to the set.
func (s *GeometrySet) ContainsGeometry(id GeometryID) bool {
	return s.geometries[id]
}

// SceneGraph is the registration surface of a geometry engine.
type SceneGraph interface {
	// RegisterSource allocates a new source id for a client of the engine.
	RegisterSource() (SourceID, error)

	// RegisterFrame declares a movable frame owned by the source.
	RegisterFrame(source SourceID, frame GeometryFrame) (FrameID, error)

	// RegisterGeometry attaches a geometry instance to a registered frame.
	RegisterGeometry(source SourceID, frame FrameID, instance GeometryInstance) (GeometryID, error)

	// RegisterAnchoredGeometry attaches a geometry instance directly to the world.
	RegisterAnchoredGeometry(source SourceID, instance GeometryInstance) (GeometryID, error)

	// ExcludeCollisionsWithin filters collisions among all members of the set.
	ExcludeCollisionsWithin(set *GeometrySet) error

	// ExcludeCollisionsBetween filters collisions between members of the two sets.
	ExcludeCollisionsBetween(setA, setB *GeometrySet) error
}

// QueryObject is the engine's penetration query surface, bound to the poses of
// a particular context.
type QueryObject interface {
	// ComputePointPairPenetration reports a witness point pair for every
	// unfiltered pair of geometries that currently penetrate.
	ComputePointPairPenetration() []PenetrationPointPair
}
