package multibody

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.dynamech.dev/plant/spatialmath"
)

// Body is a rigid body in the tree.
type Body interface {
	Name() string
	Index() BodyIndex
	NodeIndex() BodyNodeIndex
	ModelInstance() ModelInstanceIndex
	DefaultMass() float64
}

// Joint connects a parent body to a child body and owns zero or more velocity DOFs.
type Joint interface {
	Name() string
	Index() JointIndex
	ParentBodyIndex() BodyIndex
	ChildBodyIndex() BodyIndex
	NumDOFs() int
	// VelocityStart is the offset of this joint's DOFs in the velocity vector.
	VelocityStart() int
	Damping() float64
	// AddInDamping accumulates -damping * v on this joint's DOFs.
	AddInDamping(v []float64, forces *Forces)
}

// JointActuator maps a scalar input signal to a force on a single DOF joint.
type JointActuator interface {
	Name() string
	Index() JointActuatorIndex
	JointIndex() JointIndex
	ModelInstance() ModelInstanceIndex
	// AddInOneForce accumulates the input u on the given DOF of the actuated joint.
	AddInOneForce(jointDOF int, u float64, forces *Forces)
}

// Tree is the multibody tree the plant exclusively owns. It is a black box
// providing topology, kinematics and the inverse dynamics routines the plant
// assembles its equations from. All caches and output arrays are caller owned.
type Tree interface {
	NumPositions() int
	NumVelocities() int
	// NumStates returns NumPositions() + NumVelocities().
	NumStates() int
	NumBodies() int
	NumJoints() int
	NumActuators() int
	NumActuatedDOFs() int
	NumModelInstances() int

	InstanceNumPositions(instance ModelInstanceIndex) int
	InstanceNumVelocities(instance ModelInstanceIndex) int
	InstanceNumStates(instance ModelInstanceIndex) int
	InstanceNumActuatedDOFs(instance ModelInstanceIndex) int

	Body(index BodyIndex) Body
	Joint(index JointIndex) Joint
	JointActuator(index JointActuatorIndex) JointActuator

	// Finalize builds the topology and numbering. One shot.
	Finalize() error
	IsFinalized() bool

	// GravityVector returns the configured uniform gravity field, if any.
	GravityVector() (r3.Vector, bool)

	// CalcPositionKinematicsCache computes X_WB for every body.
	CalcPositionKinematicsCache(q []float64, pc *PositionKinematicsCache) error

	// CalcVelocityKinematicsCache computes V_WB for every body. Position
	// kinematics must have been evaluated into pc first.
	CalcVelocityKinematicsCache(q, v []float64, pc *PositionKinematicsCache, vc *VelocityKinematicsCache) error

	// CalcForceElementsContribution resets forces and adds in the
	// contribution of every force element (gravity, springs).
	CalcForceElementsContribution(q, v []float64, pc *PositionKinematicsCache, vc *VelocityKinematicsCache, forces *Forces) error

	// CalcMassMatrixViaInverseDynamics computes M(q) into the given nv x nv matrix.
	CalcMassMatrixViaInverseDynamics(q []float64, m *mat.Dense) error

	// CalcInverseDynamics computes the generalized forces required to attain
	// vdot given the applied forces:
	//   tau = M(q) vdot + C(q, v) v - tauApp - sum_B J_WBᵀ FApp_Bo_W
	// into tauOut, with the per body spatial reaction forces in fOut and the
	// spatial accelerations in aWB. The applied arrays may alias the output
	// arrays, in which case they are overwritten.
	CalcInverseDynamics(
		q, v []float64,
		pc *PositionKinematicsCache, vc *VelocityKinematicsCache,
		vdot []float64,
		fAppBoW []spatialmath.SpatialForce, tauApp []float64,
		aWB []spatialmath.SpatialAcceleration,
		fOut []spatialmath.SpatialForce, tauOut []float64,
	) error

	// CalcPointsGeometricJacobianExpressedInWorld computes the 3 x nv
	// Jacobian J_WBp of the world frame velocity of a point P fixed to body B,
	// located at pWP in world, such that v_WBp = J_WBp * v.
	CalcPointsGeometricJacobianExpressedInWorld(q []float64, body BodyIndex, pWP r3.Vector, j *mat.Dense) error

	// MapVelocityToQDot computes qdot = N(q) v.
	MapVelocityToQDot(q, v, qdot []float64) error

	// MapQDotToVelocity computes v = N⁺(q) qdot.
	MapQDotToVelocity(q, qdot, v []float64) error

	// GetPositionsFromArray extracts an instance's positions from the full
	// position vector, in instance order.
	GetPositionsFromArray(instance ModelInstanceIndex, q []float64) []float64

	// GetVelocitiesFromArray extracts an instance's velocities from the full
	// velocity vector, in instance order.
	GetVelocitiesFromArray(instance ModelInstanceIndex, v []float64) []float64
}
