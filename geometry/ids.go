// Package geometry defines the contract the plant consumes from a geometry
// engine: identifiers, frames, geometry instances, shapes, collision filter
// sets, and the penetration query surface. Engines implementing SceneGraph own
// all geometric computation; the plant only does registration bookkeeping.
package geometry

// SourceID identifies a registered geometry source within an engine.
type SourceID int64

// FrameID identifies a movable frame registered with an engine.
type FrameID int64

// GeometryID identifies a geometry registered with an engine.
type GeometryID int64

// Invalid sentinels for each identifier type.
const (
	InvalidSourceID   = SourceID(-1)
	InvalidFrameID    = FrameID(-1)
	InvalidGeometryID = GeometryID(-1)
)

// IsValid reports whether the id refers to a registered source.
func (id SourceID) IsValid() bool { return id >= 0 }

// IsValid reports whether the id refers to a registered frame.
func (id FrameID) IsValid() bool { return id >= 0 }

// IsValid reports whether the id refers to a registered geometry.
func (id GeometryID) IsValid() bool { return id >= 0 }
