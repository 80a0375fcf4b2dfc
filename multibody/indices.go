// Package multibody defines the contract the plant consumes from a multibody
// tree: typed indices, the tree interface with its kinematics and dynamics
// routines, caller owned kinematics caches, force aggregates, and Coulomb
// friction coefficients.
package multibody

// BodyIndex identifies a body by its dense index in the tree, with the world at zero.
type BodyIndex int

// BodyNodeIndex identifies a body's node in the tree's computation ordering.
type BodyNodeIndex int

// JointIndex identifies a joint in the tree.
type JointIndex int

// JointActuatorIndex identifies an actuator in the tree.
type JointActuatorIndex int

// ModelInstanceIndex identifies a logical grouping of bodies, joints and
// actuators sharing actuation and state ports.
type ModelInstanceIndex int

// WorldBodyIndex returns the index of the unique world body.
func WorldBodyIndex() BodyIndex { return 0 }

// WorldModelInstance returns the model instance holding the world body.
func WorldModelInstance() ModelInstanceIndex { return 0 }

// DefaultModelInstance returns the model instance bodies land in when no
// instance is named at registration.
func DefaultModelInstance() ModelInstanceIndex { return 1 }

// IsValid reports whether the index refers to a body.
func (i BodyIndex) IsValid() bool { return i >= 0 }

// IsValid reports whether the index refers to a model instance.
func (i ModelInstanceIndex) IsValid() bool { return i >= 0 }
