package multibody

import (
	"go.dynamech.dev/plant/spatialmath"
)

// Forces aggregates the applied forces on a multibody system: one spatial
// force per body taken about the body origin and expressed in world, indexed
// by body node index, plus one generalized force per velocity DOF.
// Accumulation is additive; callers reset between evaluations.
type Forces struct {
	bodyForces  []spatialmath.SpatialForce
	generalized []float64
}

// NewForces allocates a zeroed force aggregate for a system of the given size.
func NewForces(numBodies, numVelocities int) *Forces {
	return &Forces{
		bodyForces:  make([]spatialmath.SpatialForce, numBodies),
		generalized: make([]float64, numVelocities),
	}
}

// Reset zeroes every entry.
func (f *Forces) Reset() {
	for i := range f.bodyForces {
		f.bodyForces[i] = spatialmath.SpatialForce{}
	}
	for i := range f.generalized {
		f.generalized[i] = 0
	}
}

// BodyForces returns the mutable per body spatial forces, indexed by body node index.
func (f *Forces) BodyForces() []spatialmath.SpatialForce {
	return f.bodyForces
}

// Generalized returns the mutable per DOF generalized forces.
func (f *Forces) Generalized() []float64 {
	return f.generalized
}

// AddInBodyForce accumulates a spatial force on the body at the given node index.
func (f *Forces) AddInBodyForce(node BodyNodeIndex, force spatialmath.SpatialForce) {
	f.bodyForces[node] = f.bodyForces[node].Add(force)
}

// AddInGeneralizedForce accumulates a generalized force on the given velocity DOF.
func (f *Forces) AddInGeneralizedForce(dof int, tau float64) {
	f.generalized[dof] += tau
}
