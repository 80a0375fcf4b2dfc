// Package pointmass provides minimal in-process implementations of the
// multibody tree and scene graph contracts: free point masses with three
// translational DOFs each, under uniform gravity, with analytic sphere and
// half space penetration queries. It backs the package tests and the demo
// command; it is not a general mechanism library.
package pointmass

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.dynamech.dev/plant/multibody"
	"go.dynamech.dev/plant/spatialmath"
)

// Tree is a multibody.Tree of free point masses. Every non world body carries
// three translational DOFs; positions map to velocities through the identity.
// Joints are damped single DOF handles on a child body's translational axes:
// they mark adjacency and carry damping and actuation without constraining.
type Tree struct {
	finalized  bool
	gravity    r3.Vector
	hasGravity bool

	bodies    []*body
	joints    []*joint
	actuators []*actuator

	numInstances int
}

// NewTree creates a tree holding only the world body.
func NewTree() *Tree {
	t := &Tree{numInstances: int(multibody.DefaultModelInstance()) + 1}
	t.bodies = append(t.bodies, &body{name: "world", index: multibody.WorldBodyIndex(), instance: multibody.WorldModelInstance()})
	return t
}

// SetGravity configures the uniform gravity field.
func (t *Tree) SetGravity(g r3.Vector) {
	t.gravity = g
	t.hasGravity = true
}

// AddBody appends a point mass to the given model instance.
func (t *Tree) AddBody(name string, mass float64, instance multibody.ModelInstanceIndex) (multibody.Body, error) {
	if t.finalized {
		return nil, errors.New("bodies cannot be added after Finalize")
	}
	if mass <= 0 {
		return nil, errors.Errorf("body mass must be positive, got %f", mass)
	}
	if !instance.IsValid() || instance == multibody.WorldModelInstance() {
		return nil, errors.Errorf("invalid model instance %d for body %q", instance, name)
	}
	b := &body{
		name:     name,
		mass:     mass,
		index:    multibody.BodyIndex(len(t.bodies)),
		instance: instance,
	}
	t.bodies = append(t.bodies, b)
	if int(instance)+1 > t.numInstances {
		t.numInstances = int(instance) + 1
	}
	return b, nil
}

// AddJoint connects a parent and child body through a damped handle on one of
// the child's translational axes (0, 1 or 2).
func (t *Tree) AddJoint(name string, parent, child multibody.Body, axis int, damping float64) (multibody.Joint, error) {
	if t.finalized {
		return nil, errors.New("joints cannot be added after Finalize")
	}
	if axis < 0 || axis > 2 {
		return nil, errors.Errorf("joint axis must be 0, 1 or 2, got %d", axis)
	}
	if child.Index() == multibody.WorldBodyIndex() {
		return nil, errors.New("the world cannot be a child body")
	}
	if damping < 0 {
		return nil, errors.Errorf("joint damping must be non negative, got %f", damping)
	}
	j := &joint{
		name:    name,
		index:   multibody.JointIndex(len(t.joints)),
		parent:  parent.Index(),
		child:   child.Index(),
		axis:    axis,
		damping: damping,
	}
	t.joints = append(t.joints, j)
	return j, nil
}

// AddJointActuator attaches an actuator to a single DOF joint.
func (t *Tree) AddJointActuator(name string, j multibody.Joint) (multibody.JointActuator, error) {
	if t.finalized {
		return nil, errors.New("actuators cannot be added after Finalize")
	}
	if j.NumDOFs() != 1 {
		return nil, errors.Errorf("only single DOF joints may be actuated, joint %q has %d", j.Name(), j.NumDOFs())
	}
	childInstance := t.Body(j.ChildBodyIndex()).ModelInstance()
	a := &actuator{
		name:     name,
		index:    multibody.JointActuatorIndex(len(t.actuators)),
		joint:    j.Index(),
		instance: childInstance,
		tree:     t,
	}
	t.actuators = append(t.actuators, a)
	return a, nil
}

// Finalize freezes the topology. One shot.
func (t *Tree) Finalize() error {
	if t.finalized {
		return errors.New("Finalize can only be called once")
	}
	t.finalized = true
	return nil
}

// IsFinalized reports whether Finalize has run.
func (t *Tree) IsFinalized() bool { return t.finalized }

// GravityVector returns the configured gravity field, if any.
func (t *Tree) GravityVector() (r3.Vector, bool) { return t.gravity, t.hasGravity }

// NumPositions returns nq: three per non world body.
func (t *Tree) NumPositions() int { return 3 * (len(t.bodies) - 1) }

// NumVelocities returns nv, equal to nq for point masses.
func (t *Tree) NumVelocities() int { return t.NumPositions() }

// NumStates returns nq + nv.
func (t *Tree) NumStates() int { return t.NumPositions() + t.NumVelocities() }

// NumBodies counts the world.
func (t *Tree) NumBodies() int { return len(t.bodies) }

// NumJoints returns the number of joints.
func (t *Tree) NumJoints() int { return len(t.joints) }

// NumActuators returns the number of actuators.
func (t *Tree) NumActuators() int { return len(t.actuators) }

// NumActuatedDOFs returns the number of actuated DOFs, one per actuator.
func (t *Tree) NumActuatedDOFs() int { return len(t.actuators) }

// NumModelInstances returns the number of model instances.
func (t *Tree) NumModelInstances() int { return t.numInstances }

func (t *Tree) instanceBodies(instance multibody.ModelInstanceIndex) []*body {
	var out []*body
	for _, b := range t.bodies[1:] {
		if b.instance == instance {
			out = append(out, b)
		}
	}
	return out
}

// InstanceNumPositions returns the instance's share of nq.
func (t *Tree) InstanceNumPositions(instance multibody.ModelInstanceIndex) int {
	return 3 * len(t.instanceBodies(instance))
}

// InstanceNumVelocities returns the instance's share of nv.
func (t *Tree) InstanceNumVelocities(instance multibody.ModelInstanceIndex) int {
	return t.InstanceNumPositions(instance)
}

// InstanceNumStates returns the instance's share of the state.
func (t *Tree) InstanceNumStates(instance multibody.ModelInstanceIndex) int {
	return 2 * t.InstanceNumPositions(instance)
}

// InstanceNumActuatedDOFs returns the instance's share of the actuated DOFs.
func (t *Tree) InstanceNumActuatedDOFs(instance multibody.ModelInstanceIndex) int {
	n := 0
	for _, a := range t.actuators {
		if a.instance == instance {
			n++
		}
	}
	return n
}

// Body returns the body at the given index.
func (t *Tree) Body(index multibody.BodyIndex) multibody.Body { return t.bodies[index] }

// Joint returns the joint at the given index.
func (t *Tree) Joint(index multibody.JointIndex) multibody.Joint { return t.joints[index] }

// JointActuator returns the actuator at the given index.
func (t *Tree) JointActuator(index multibody.JointActuatorIndex) multibody.JointActuator {
	return t.actuators[index]
}

// dofStart returns the offset of a body's DOFs in the velocity vector.
func dofStart(index multibody.BodyIndex) int { return 3 * (int(index) - 1) }

// CalcPositionKinematicsCache stores each body's translation as its world pose.
func (t *Tree) CalcPositionKinematicsCache(q []float64, pc *multibody.PositionKinematicsCache) error {
	if len(q) != t.NumPositions() {
		return errors.Errorf("positions must have length %d, got %d", t.NumPositions(), len(q))
	}
	pc.SetPoseInWorld(0, spatialmath.NewZeroPose())
	for _, b := range t.bodies[1:] {
		s := dofStart(b.index)
		pc.SetPoseInWorld(b.NodeIndex(), spatialmath.NewPoseFromPoint(r3.Vector{X: q[s], Y: q[s+1], Z: q[s+2]}))
	}
	return nil
}

// CalcVelocityKinematicsCache stores each body's translational velocity.
func (t *Tree) CalcVelocityKinematicsCache(
	q, v []float64, pc *multibody.PositionKinematicsCache, vc *multibody.VelocityKinematicsCache,
) error {
	if len(v) != t.NumVelocities() {
		return errors.Errorf("velocities must have length %d, got %d", t.NumVelocities(), len(v))
	}
	vc.SetSpatialVelocityInWorld(0, spatialmath.SpatialVelocity{})
	for _, b := range t.bodies[1:] {
		s := dofStart(b.index)
		vc.SetSpatialVelocityInWorld(b.NodeIndex(), spatialmath.SpatialVelocity{
			Linear: r3.Vector{X: v[s], Y: v[s+1], Z: v[s+2]},
		})
	}
	return nil
}

// CalcForceElementsContribution resets the aggregate and adds gravity.
func (t *Tree) CalcForceElementsContribution(
	q, v []float64, pc *multibody.PositionKinematicsCache, vc *multibody.VelocityKinematicsCache,
	forces *multibody.Forces,
) error {
	forces.Reset()
	if !t.hasGravity {
		return nil
	}
	for _, b := range t.bodies[1:] {
		forces.AddInBodyForce(b.NodeIndex(), spatialmath.SpatialForce{Force: t.gravity.Mul(b.mass)})
	}
	return nil
}

// CalcMassMatrixViaInverseDynamics fills the diagonal mass matrix.
func (t *Tree) CalcMassMatrixViaInverseDynamics(q []float64, m *mat.Dense) error {
	nv := t.NumVelocities()
	if r, c := m.Dims(); r != nv || c != nv {
		return errors.Errorf("mass matrix must be %d x %d, got %d x %d", nv, nv, r, c)
	}
	m.Zero()
	for _, b := range t.bodies[1:] {
		s := dofStart(b.index)
		for k := 0; k < 3; k++ {
			m.Set(s+k, s+k, b.mass)
		}
	}
	return nil
}

// CalcInverseDynamics computes tau = M vdot - tau_app - sum Jᵀ F_app for the
// point masses. The applied arrays may alias the outputs; each body's applied
// values are read before that body's outputs are written.
func (t *Tree) CalcInverseDynamics(
	q, v []float64,
	pc *multibody.PositionKinematicsCache, vc *multibody.VelocityKinematicsCache,
	vdot []float64,
	fAppBoW []spatialmath.SpatialForce, tauApp []float64,
	aWB []spatialmath.SpatialAcceleration,
	fOut []spatialmath.SpatialForce, tauOut []float64,
) error {
	nv := t.NumVelocities()
	if len(vdot) != nv || len(tauApp) != nv || len(tauOut) != nv {
		return errors.New("generalized vectors must all have length nv")
	}
	if len(fAppBoW) != t.NumBodies() || len(fOut) != t.NumBodies() || len(aWB) != t.NumBodies() {
		return errors.New("per body arrays must all have length NumBodies")
	}
	aWB[0] = spatialmath.SpatialAcceleration{}
	fOut[0] = spatialmath.SpatialForce{}
	for _, b := range t.bodies[1:] {
		s := dofStart(b.index)
		applied := fAppBoW[b.NodeIndex()].Force
		acc := r3.Vector{X: vdot[s], Y: vdot[s+1], Z: vdot[s+2]}
		reaction := acc.Mul(b.mass).Sub(applied)

		tauOut[s] = reaction.X - tauApp[s]
		tauOut[s+1] = reaction.Y - tauApp[s+1]
		tauOut[s+2] = reaction.Z - tauApp[s+2]
		aWB[b.NodeIndex()] = spatialmath.SpatialAcceleration{Linear: acc}
		fOut[b.NodeIndex()] = spatialmath.SpatialForce{Force: reaction}
	}
	return nil
}

// CalcPointsGeometricJacobianExpressedInWorld computes the 3 x nv Jacobian of
// a point fixed to the given body. For translating point masses this is the
// identity block on the body's DOFs; the world body has the zero Jacobian.
func (t *Tree) CalcPointsGeometricJacobianExpressedInWorld(
	q []float64, bodyIndex multibody.BodyIndex, pWP r3.Vector, j *mat.Dense,
) error {
	nv := t.NumVelocities()
	if r, c := j.Dims(); r != 3 || c != nv {
		return errors.Errorf("jacobian must be 3 x %d, got %d x %d", nv, r, c)
	}
	j.Zero()
	if bodyIndex == multibody.WorldBodyIndex() {
		return nil
	}
	s := dofStart(bodyIndex)
	for k := 0; k < 3; k++ {
		j.Set(k, s+k, 1)
	}
	return nil
}

// MapVelocityToQDot is the identity for point masses.
func (t *Tree) MapVelocityToQDot(q, v, qdot []float64) error {
	if len(v) != t.NumVelocities() || len(qdot) != t.NumPositions() {
		return errors.New("size mismatch mapping velocities to position derivatives")
	}
	copy(qdot, v)
	return nil
}

// MapQDotToVelocity is the identity for point masses.
func (t *Tree) MapQDotToVelocity(q, qdot, v []float64) error {
	if len(qdot) != t.NumPositions() || len(v) != t.NumVelocities() {
		return errors.New("size mismatch mapping position derivatives to velocities")
	}
	copy(v, qdot)
	return nil
}

// GetPositionsFromArray extracts an instance's positions in body order.
func (t *Tree) GetPositionsFromArray(instance multibody.ModelInstanceIndex, q []float64) []float64 {
	var out []float64
	for _, b := range t.instanceBodies(instance) {
		s := dofStart(b.index)
		out = append(out, q[s:s+3]...)
	}
	return out
}

// GetVelocitiesFromArray extracts an instance's velocities in body order.
func (t *Tree) GetVelocitiesFromArray(instance multibody.ModelInstanceIndex, v []float64) []float64 {
	return t.GetPositionsFromArray(instance, v)
}

type body struct {
	name     string
	mass     float64
	index    multibody.BodyIndex
	instance multibody.ModelInstanceIndex
}

func (b *body) Name() string               { return b.name }
func (b *body) Index() multibody.BodyIndex { return b.index }
func (b *body) DefaultMass() float64       { return b.mass }
func (b *body) ModelInstance() multibody.ModelInstanceIndex {
	return b.instance
}

// NodeIndex coincides with the body index in this flat topology.
func (b *body) NodeIndex() multibody.BodyNodeIndex {
	return multibody.BodyNodeIndex(b.index)
}

type joint struct {
	name    string
	index   multibody.JointIndex
	parent  multibody.BodyIndex
	child   multibody.BodyIndex
	axis    int
	damping float64
}

func (j *joint) Name() string                         { return j.name }
func (j *joint) Index() multibody.JointIndex          { return j.index }
func (j *joint) ParentBodyIndex() multibody.BodyIndex { return j.parent }
func (j *joint) ChildBodyIndex() multibody.BodyIndex  { return j.child }
func (j *joint) NumDOFs() int                         { return 1 }
func (j *joint) Damping() float64                     { return j.damping }

func (j *joint) VelocityStart() int {
	return dofStart(j.child) + j.axis
}

func (j *joint) AddInDamping(v []float64, forces *multibody.Forces) {
	if j.damping == 0 {
		return
	}
	dof := j.VelocityStart()
	forces.AddInGeneralizedForce(dof, -j.damping*v[dof])
}

type actuator struct {
	name     string
	index    multibody.JointActuatorIndex
	joint    multibody.JointIndex
	instance multibody.ModelInstanceIndex
	tree     *Tree
}

func (a *actuator) Name() string                        { return a.name }
func (a *actuator) Index() multibody.JointActuatorIndex { return a.index }
func (a *actuator) JointIndex() multibody.JointIndex    { return a.joint }
func (a *actuator) ModelInstance() multibody.ModelInstanceIndex {
	return a.instance
}

func (a *actuator) AddInOneForce(jointDOF int, u float64, forces *multibody.Forces) {
	j := a.tree.joints[a.joint]
	forces.AddInGeneralizedForce(j.VelocityStart()+jointDOF, u)
}
