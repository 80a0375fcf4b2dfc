// Package plant implements a rigid multibody dynamics plant: a time stepping
// simulator that, given a tree of rigid bodies and a set of registered
// geometries, computes continuous time derivatives or discrete state updates
// under gravity, actuation, joint damping and frictional contact.
//
// Contact is resolved with a compliant Hunt-Crossley normal law. In continuous
// mode the tangential behavior follows a Stribeck regularized Coulomb law
// evaluated explicitly; in discrete mode the normal and tangential problems
// are solved together by the implicit solver in the stribeck package.
package plant

import (
	"math"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"

	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/multibody"
	"go.dynamech.dev/plant/multibody/stribeck"
	"go.dynamech.dev/plant/spatialmath"
)

// Scalar tags the numeric scalar a plant was instantiated for. Only float64
// supports the geometry query path; other scalars exist for callers that run
// the dynamics under automatic differentiation.
type Scalar int

// Supported scalar tags.
const (
	ScalarFloat64 Scalar = iota
	ScalarAutoDiff
)

// Defaults installed at Finalize when the user set nothing and collision
// geometry exists.
const (
	DefaultPenetrationAllowance = 1e-3 // m
	DefaultStictionTolerance    = 1e-3 // m/s

	// defaultGravity sizes the penalty parameters when the tree has no
	// gravity field configured.
	defaultGravity = 9.81 // m/s²
)

// Plant is the rigid multibody dynamics plant. It exclusively owns its tree
// and the geometry registration bookkeeping. A plant is built pre-finalize
// (bodies and joints on the tree, geometries through the registration calls),
// then finalized exactly once, after which only operational calls are
// allowed. All solve dependent state lives on the caller owned Context, so a
// finalized plant may serve concurrent contexts.
type Plant struct {
	timeStep float64
	scalar   Scalar
	logger   golog.Logger

	tree multibody.Tree

	// Geometry source registration. sceneGraph is only kept to check that
	// later registration calls target the same engine; it is erased at
	// Finalize.
	sourceID   geometry.SourceID
	sceneGraph geometry.SceneGraph

	// Per body geometry lists, indexed by BodyIndex and kept in step with
	// the tree's body count.
	visualGeometries    [][]geometry.GeometryID
	collisionGeometries [][]geometry.GeometryID

	geometryIDToBodyIndex      map[geometry.GeometryID]multibody.BodyIndex
	geometryIDToVisualIndex    map[geometry.GeometryID]int
	geometryIDToCollisionIndex map[geometry.GeometryID]int
	defaultCoulombFriction     []multibody.CoulombFriction
	bodyIndexToFrameID         map[multibody.BodyIndex]geometry.FrameID

	penaltyParams penaltyParameters
	stribeck      stribeckModel

	// Discrete mode only.
	solver *stribeck.Solver

	ports portSurface
}

// NewPlant creates a plant owning the given unfinalized tree. A zero timeStep
// selects continuous mode; a positive one selects discrete periodic updates.
func NewPlant(timeStep float64, tree multibody.Tree, logger golog.Logger) (*Plant, error) {
	return NewPlantWithScalar(timeStep, tree, ScalarFloat64, logger)
}

// NewPlantWithScalar creates a plant tagged for a particular scalar type.
// Plants for scalars other than float64 reject penetration queries.
func NewPlantWithScalar(timeStep float64, tree multibody.Tree, scalar Scalar, logger golog.Logger) (*Plant, error) {
	if timeStep < 0 {
		return nil, NewInvalidArgumentError("time step must be non negative, got %f", timeStep)
	}
	if tree == nil {
		return nil, NewInvalidArgumentError("tree must not be nil")
	}
	if tree.IsFinalized() {
		return nil, NewInvalidArgumentError("tree must not be finalized before the plant owns it")
	}
	p := &Plant{
		timeStep:                   timeStep,
		scalar:                     scalar,
		logger:                     logger,
		tree:                       tree,
		sourceID:                   geometry.InvalidSourceID,
		geometryIDToBodyIndex:      map[geometry.GeometryID]multibody.BodyIndex{},
		geometryIDToVisualIndex:    map[geometry.GeometryID]int{},
		geometryIDToCollisionIndex: map[geometry.GeometryID]int{},
		bodyIndexToFrameID:         map[multibody.BodyIndex]geometry.FrameID{},
		penaltyParams:              newUnsetPenaltyParameters(),
		stribeck:                   newUnsetStribeckModel(),
	}
	// Entries for the world body.
	p.visualGeometries = append(p.visualGeometries, nil)
	p.collisionGeometries = append(p.collisionGeometries, nil)
	return p, nil
}

// TimeStep returns the discrete update period, zero for continuous plants.
func (p *Plant) TimeStep() float64 { return p.timeStep }

// IsDiscrete reports whether the plant advances with discrete periodic updates.
func (p *Plant) IsDiscrete() bool { return p.timeStep > 0 }

// IsFinalized reports whether Finalize has completed.
func (p *Plant) IsFinalized() bool { return p.tree.IsFinalized() }

// Tree exposes the owned multibody tree for model building pre-finalize and
// for read only queries afterwards.
func (p *Plant) Tree() multibody.Tree { return p.tree }

// NumBodies returns the number of bodies, counting the world.
func (p *Plant) NumBodies() int { return p.tree.NumBodies() }

// NumJoints returns the number of joints.
func (p *Plant) NumJoints() int { return p.tree.NumJoints() }

// NumActuators returns the number of joint actuators.
func (p *Plant) NumActuators() int { return p.tree.NumActuators() }

// NumPositions returns nq.
func (p *Plant) NumPositions() int { return p.tree.NumPositions() }

// NumVelocities returns nv.
func (p *Plant) NumVelocities() int { return p.tree.NumVelocities() }

// NumMultibodyStates returns nq + nv.
func (p *Plant) NumMultibodyStates() int { return p.tree.NumStates() }

// NumVisualGeometries returns the number of registered visual geometries.
func (p *Plant) NumVisualGeometries() int { return len(p.geometryIDToVisualIndex) }

// NumCollisionGeometries returns the number of registered collision geometries.
func (p *Plant) NumCollisionGeometries() int { return len(p.geometryIDToCollisionIndex) }

func (p *Plant) geometrySourceIsRegistered() bool { return p.sourceID.IsValid() }

// SourceID returns the geometry source id, invalid when never registered.
func (p *Plant) SourceID() geometry.SourceID { return p.sourceID }

// RegisterAsSourceForSceneGraph registers this plant as a geometry source of
// the given scene graph. All later geometry registrations must target the
// same scene graph instance.
func (p *Plant) RegisterAsSourceForSceneGraph(sceneGraph geometry.SceneGraph) (geometry.SourceID, error) {
	if sceneGraph == nil {
		return geometry.InvalidSourceID, NewInvalidArgumentError("scene graph must not be nil")
	}
	if p.geometrySourceIsRegistered() {
		return geometry.InvalidSourceID, ErrDuplicateSourceRegistration
	}
	id, err := sceneGraph.RegisterSource()
	if err != nil {
		return geometry.InvalidSourceID, err
	}
	p.sourceID = id
	// Kept so later registration calls can be verified against the same
	// instance; nulled at Finalize.
	p.sceneGraph = sceneGraph
	return id, nil
}

// RegisterVisualGeometry registers visualization geometry on a body, posed at
// XBG in the body frame. World geometry is registered as anchored.
func (p *Plant) RegisterVisualGeometry(
	body multibody.Body, xBG spatialmath.Pose, shape geometry.Shape,
	sceneGraph geometry.SceneGraph,
) (geometry.GeometryID, error) {
	if err := p.checkGeometryRegistration("RegisterVisualGeometry", sceneGraph); err != nil {
		return geometry.InvalidGeometryID, err
	}
	id, err := p.registerOnBodyOrAnchored(body, xBG, shape)
	if err != nil {
		return geometry.InvalidGeometryID, err
	}
	p.syncGeometryBookkeeping()
	p.geometryIDToVisualIndex[id] = len(p.geometryIDToVisualIndex)
	p.visualGeometries[body.Index()] = append(p.visualGeometries[body.Index()], id)
	return id, nil
}

// RegisterCollisionGeometry registers contact geometry on a body with its
// surface friction, posed at XBG in the body frame. World geometry is
// registered as anchored.
func (p *Plant) RegisterCollisionGeometry(
	body multibody.Body, xBG spatialmath.Pose, shape geometry.Shape,
	coulombFriction multibody.CoulombFriction, sceneGraph geometry.SceneGraph,
) (geometry.GeometryID, error) {
	if err := p.checkGeometryRegistration("RegisterCollisionGeometry", sceneGraph); err != nil {
		return geometry.InvalidGeometryID, err
	}
	id, err := p.registerOnBodyOrAnchored(body, xBG, shape)
	if err != nil {
		return geometry.InvalidGeometryID, err
	}
	p.syncGeometryBookkeeping()
	p.geometryIDToCollisionIndex[id] = len(p.geometryIDToCollisionIndex)
	p.defaultCoulombFriction = append(p.defaultCoulombFriction, coulombFriction)
	p.collisionGeometries[body.Index()] = append(p.collisionGeometries[body.Index()], id)
	return id, nil
}

func (p *Plant) checkGeometryRegistration(method string, sceneGraph geometry.SceneGraph) error {
	if p.IsFinalized() {
		return NewPostFinalizeMutationError(method)
	}
	if sceneGraph == nil {
		return NewInvalidArgumentError("scene graph must not be nil")
	}
	if !p.geometrySourceIsRegistered() {
		return NewInvalidArgumentError("call RegisterAsSourceForSceneGraph before registering geometry")
	}
	if sceneGraph != p.sceneGraph {
		return ErrSceneGraphMismatch
	}
	return nil
}

func (p *Plant) registerOnBodyOrAnchored(
	body multibody.Body, xBG spatialmath.Pose, shape geometry.Shape,
) (geometry.GeometryID, error) {
	instance := geometry.GeometryInstance{Name: body.Name(), Pose: xBG, Shape: shape}
	if body.Index() == multibody.WorldBodyIndex() {
		id, err := p.sceneGraph.RegisterAnchoredGeometry(p.sourceID, instance)
		if err != nil {
			return geometry.InvalidGeometryID, err
		}
		p.geometryIDToBodyIndex[id] = multibody.WorldBodyIndex()
		return id, nil
	}

	frameID, ok := p.bodyIndexToFrameID[body.Index()]
	if !ok {
		var err error
		frameID, err = p.sceneGraph.RegisterFrame(p.sourceID, geometry.GeometryFrame{Name: body.Name()})
		if err != nil {
			return geometry.InvalidGeometryID, err
		}
		p.bodyIndexToFrameID[body.Index()] = frameID
	}
	id, err := p.sceneGraph.RegisterGeometry(p.sourceID, frameID, instance)
	if err != nil {
		return geometry.InvalidGeometryID, err
	}
	p.geometryIDToBodyIndex[id] = body.Index()
	return id, nil
}

// syncGeometryBookkeeping grows the per body geometry lists to match the
// tree's current body count, so the lists stay dense over BodyIndex.
func (p *Plant) syncGeometryBookkeeping() {
	for len(p.visualGeometries) < p.tree.NumBodies() {
		p.visualGeometries = append(p.visualGeometries, nil)
	}
	for len(p.collisionGeometries) < p.tree.NumBodies() {
		p.collisionGeometries = append(p.collisionGeometries, nil)
	}
}

// VisualGeometriesForBody returns the visual geometries registered on a body.
func (p *Plant) VisualGeometriesForBody(body multibody.Body) []geometry.GeometryID {
	if int(body.Index()) >= len(p.visualGeometries) {
		return nil
	}
	return p.visualGeometries[body.Index()]
}

// CollisionGeometriesForBody returns the collision geometries registered on a body.
func (p *Plant) CollisionGeometriesForBody(body multibody.Body) []geometry.GeometryID {
	if int(body.Index()) >= len(p.collisionGeometries) {
		return nil
	}
	return p.collisionGeometries[body.Index()]
}

// BodyFrameID returns the scene graph frame registered for a body, if any.
func (p *Plant) BodyFrameID(index multibody.BodyIndex) (geometry.FrameID, bool) {
	id, ok := p.bodyIndexToFrameID[index]
	return id, ok
}

// CollectRegisteredGeometries builds a geometry set covering all geometries
// registered on the given bodies, by frame where one exists, or by the
// anchored collision geometry ids for the world. Visual geometries anchored
// to the world are not included.
func (p *Plant) CollectRegisteredGeometries(bodies []multibody.Body) (*geometry.GeometrySet, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("CollectRegisteredGeometries")
	}
	if !p.geometrySourceIsRegistered() {
		return nil, NewInvalidArgumentError("this plant is not registered as a scene graph source")
	}
	set := geometry.NewGeometrySet()
	for _, body := range bodies {
		if frameID, ok := p.bodyIndexToFrameID[body.Index()]; ok {
			set.AddFrame(frameID)
		} else if body.Index() == multibody.WorldBodyIndex() {
			set.AddGeometries(p.collisionGeometries[body.Index()])
		}
	}
	return set, nil
}

// Finalize builds the tree topology, installs the collision filters, declares
// state and ports, and freezes the plant's model surface. It may be called
// exactly once; when the plant is a registered geometry source the owning
// scene graph must be passed.
func (p *Plant) Finalize(sceneGraph geometry.SceneGraph) error {
	if p.IsFinalized() {
		return NewPostFinalizeMutationError("Finalize")
	}
	// Validate the scene graph argument before the one shot tree finalize so
	// a bad call leaves the plant usable.
	if p.geometrySourceIsRegistered() {
		if sceneGraph == nil {
			return ErrSceneGraphMissing
		}
		if sceneGraph != p.sceneGraph {
			return ErrSceneGraphMismatch
		}
	}
	if err := p.tree.Finalize(); err != nil {
		return err
	}
	if err := multierr.Combine(
		p.filterAdjacentBodies(sceneGraph),
		p.excludeCollisionsWithVisualGeometry(sceneGraph),
	); err != nil {
		return err
	}
	return p.finalizePlantOnly()
}

// filterAdjacentBodies disallows collisions between bodies connected by a
// joint. Joints to the world are skipped so bodies may rest on anchored
// ground geometry.
func (p *Plant) filterAdjacentBodies(sceneGraph geometry.SceneGraph) error {
	if !p.geometrySourceIsRegistered() {
		return nil
	}
	if sceneGraph == nil {
		return ErrSceneGraphMissing
	}
	if sceneGraph != p.sceneGraph {
		return ErrSceneGraphMismatch
	}
	for j := 0; j < p.tree.NumJoints(); j++ {
		joint := p.tree.Joint(multibody.JointIndex(j))
		if joint.ParentBodyIndex() == multibody.WorldBodyIndex() {
			continue
		}
		childFrame, childOK := p.bodyIndexToFrameID[joint.ChildBodyIndex()]
		parentFrame, parentOK := p.bodyIndexToFrameID[joint.ParentBodyIndex()]
		if childOK && parentOK {
			childSet := geometry.NewGeometrySet()
			childSet.AddFrame(childFrame)
			parentSet := geometry.NewGeometrySet()
			parentSet.AddFrame(parentFrame)
			if err := sceneGraph.ExcludeCollisionsBetween(childSet, parentSet); err != nil {
				return err
			}
		}
	}
	return nil
}

// excludeCollisionsWithVisualGeometry removes visual geometries from
// collision consideration: no self collisions within the visual set and no
// visual versus collision pairs.
func (p *Plant) excludeCollisionsWithVisualGeometry(sceneGraph geometry.SceneGraph) error {
	if !p.geometrySourceIsRegistered() {
		return nil
	}
	if sceneGraph == nil {
		return ErrSceneGraphMissing
	}
	if sceneGraph != p.sceneGraph {
		return ErrSceneGraphMismatch
	}
	visual := geometry.NewGeometrySet()
	for _, ids := range p.visualGeometries {
		visual.AddGeometries(ids)
	}
	collision := geometry.NewGeometrySet()
	for _, ids := range p.collisionGeometries {
		collision.AddGeometries(ids)
	}
	return multierr.Combine(
		sceneGraph.ExcludeCollisionsWithin(visual),
		sceneGraph.ExcludeCollisionsBetween(visual, collision),
	)
}

func (p *Plant) finalizePlantOnly() error {
	p.syncGeometryBookkeeping()
	p.declareStateAndPorts()
	// Must not be used after Finalize.
	p.sceneGraph = nil
	if p.NumCollisionGeometries() > 0 && p.penaltyParams.timeScale < 0 {
		if err := p.SetPenetrationAllowance(DefaultPenetrationAllowance); err != nil {
			return err
		}
	}
	if p.NumCollisionGeometries() > 0 && p.stribeck.stictionTolerance < 0 {
		if err := p.SetStictionTolerance(DefaultStictionTolerance); err != nil {
			return err
		}
	}
	if p.IsDiscrete() {
		p.solver = stribeck.NewSolver(p.tree.NumVelocities(), p.logger)
		if p.stribeck.stictionTolerance > 0 {
			params := p.solver.Parameters()
			params.StictionTolerance = p.stribeck.stictionTolerance
			p.solver.SetParameters(params)
		}
	}
	return nil
}

// SetPenetrationAllowance derives the penalty contact parameters from a
// target maximum steady state penetration, modeling each contact as a
// critically damped oscillator loaded with the heaviest body in the model.
func (p *Plant) SetPenetrationAllowance(penetrationAllowance float64) error {
	if !p.IsFinalized() {
		return NewPreFinalizeUseError("SetPenetrationAllowance")
	}
	if penetrationAllowance <= 0 {
		return NewInvalidArgumentError("penetration allowance must be positive, got %f", penetrationAllowance)
	}
	g := defaultGravity
	if gv, ok := p.tree.GravityVector(); ok {
		g = gv.Norm()
	}
	// The heaviest body over the whole model, fixed bases included.
	mass := 0.0
	for b := 0; b < p.tree.NumBodies(); b++ {
		mass = math.Max(mass, p.tree.Body(multibody.BodyIndex(b)).DefaultMass())
	}

	// Stiffness from static equilibrium at the allowance, damping from the
	// free oscillation time scale with damping ratio one.
	stiffness := mass * g / penetrationAllowance
	omega := math.Sqrt(stiffness / mass)
	timeScale := 1 / omega
	damping := timeScale / penetrationAllowance

	p.penaltyParams = penaltyParameters{
		stiffness: stiffness,
		damping:   damping,
		timeScale: timeScale,
	}
	return nil
}

// PenetrationAllowanceTimeScale returns the contact time scale, useful as an
// integrator step hint. Negative until the parameters are set.
func (p *Plant) PenetrationAllowanceTimeScale() float64 {
	return p.penaltyParams.timeScale
}

// SetStictionTolerance sets the slip speed below which a contact is treated
// as stuck, updating both the continuous Stribeck model and, once it exists,
// the discrete solver.
func (p *Plant) SetStictionTolerance(stictionTolerance float64) error {
	if stictionTolerance <= 0 {
		return NewInvalidArgumentError("stiction tolerance must be positive, got %f", stictionTolerance)
	}
	p.stribeck.setStictionTolerance(stictionTolerance)
	if p.solver != nil {
		params := p.solver.Parameters()
		params.StictionTolerance = stictionTolerance
		p.solver.SetParameters(params)
	}
	return nil
}

// StictionTolerance returns the current stiction tolerance, negative while unset.
func (p *Plant) StictionTolerance() float64 {
	return p.stribeck.stictionTolerance
}

// ConfigureSolver applies iteration tuning to the discrete contact solver,
// keeping the stiction tolerance owned by SetStictionTolerance.
func (p *Plant) ConfigureSolver(cfg SolverConfig) error {
	if p.solver == nil {
		return NewInvalidArgumentError("only finalized discrete plants have a contact solver")
	}
	params := p.solver.Parameters()
	params.MaxIterations = cfg.MaxIterations
	params.RelTolerance = cfg.RelTolerance
	params.AbsTolerance = cfg.AbsTolerance
	params.ThetaMax = cfg.ThetaMax
	p.solver.SetParameters(params)
	return nil
}

// SolverParameters returns the discrete contact solver tuning.
func (p *Plant) SolverParameters() (stribeck.Parameters, error) {
	if p.solver == nil {
		return stribeck.Parameters{}, NewInvalidArgumentError("only finalized discrete plants have a contact solver")
	}
	return p.solver.Parameters(), nil
}
