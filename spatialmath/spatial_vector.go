package spatialmath

import (
	"github.com/golang/geo/r3"
)

// SpatialVelocity is the velocity of a frame measured and expressed in another
// frame, as an angular/linear 6-vector pair taken about a point.
type SpatialVelocity struct {
	Angular r3.Vector
	Linear  r3.Vector
}

// Shift returns the spatial velocity of the same frame taken about a new point,
// where p is the offset from the current point to the new one, expressed in the
// same frame as the velocity.
func (v SpatialVelocity) Shift(p r3.Vector) SpatialVelocity {
	return SpatialVelocity{
		Angular: v.Angular,
		Linear:  v.Linear.Add(v.Angular.Cross(p)),
	}
}

// Add returns the component wise sum of the two spatial velocities.
func (v SpatialVelocity) Add(other SpatialVelocity) SpatialVelocity {
	return SpatialVelocity{
		Angular: v.Angular.Add(other.Angular),
		Linear:  v.Linear.Add(other.Linear),
	}
}

// SpatialAcceleration is the time derivative of a spatial velocity, as an
// angular/linear 6-vector pair taken about a point.
type SpatialAcceleration struct {
	Angular r3.Vector
	Linear  r3.Vector
}

// SpatialForce is a torque/force 6-vector pair applied at a point and expressed
// in some frame.
type SpatialForce struct {
	Torque r3.Vector
	Force  r3.Vector
}

// Shift translates the application point of the force, where p is the offset
// from the current application point to the new one. The force component is
// unchanged and the torque picks up the moment of the force about the new point.
func (f SpatialForce) Shift(p r3.Vector) SpatialForce {
	return SpatialForce{
		Torque: f.Torque.Sub(p.Cross(f.Force)),
		Force:  f.Force,
	}
}

// Add returns the component wise sum of the two spatial forces.
func (f SpatialForce) Add(other SpatialForce) SpatialForce {
	return SpatialForce{
		Torque: f.Torque.Add(other.Torque),
		Force:  f.Force.Add(other.Force),
	}
}

// Neg returns the spatial force with both components negated.
func (f SpatialForce) Neg() SpatialForce {
	return SpatialForce{
		Torque: f.Torque.Mul(-1),
		Force:  f.Force.Mul(-1),
	}
}
