package plant

import (
	"fmt"

	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/multibody"
	"go.dynamech.dev/plant/spatialmath"
)

// InputPort is a fixed size vector input of the plant. Values are fixed per
// context, never on the plant.
type InputPort struct {
	plant    *Plant
	name     string
	size     int
	instance multibody.ModelInstanceIndex
}

// Name returns the port name.
func (ip *InputPort) Name() string { return ip.name }

// Size returns the port width.
func (ip *InputPort) Size() int { return ip.size }

// FixValue fixes the port's value on the given context.
func (ip *InputPort) FixValue(ctx *Context, value []float64) error {
	if ctx.plant != ip.plant {
		return NewInvalidArgumentError("context was not created by this plant")
	}
	if len(value) != ip.size {
		return NewInvalidArgumentError("port %q expects length %d, got %d", ip.name, ip.size, len(value))
	}
	fixed := make([]float64, ip.size)
	copy(fixed, value)
	ctx.actuationInputs[ip.instance] = fixed
	return nil
}

// OutputPort is a fixed size vector output of the plant, evaluated against a context.
type OutputPort struct {
	plant *Plant
	name  string
	size  int
	calc  func(*Context) ([]float64, error)
}

// Name returns the port name.
func (op *OutputPort) Name() string { return op.name }

// Size returns the port width.
func (op *OutputPort) Size() int { return op.size }

// Eval computes the port value for the given context.
func (op *OutputPort) Eval(ctx *Context) ([]float64, error) {
	if ctx.plant != op.plant {
		return nil, NewInvalidArgumentError("context was not created by this plant")
	}
	return op.calc(ctx)
}

// QueryInputPort carries the opaque geometry query handle into a context.
type QueryInputPort struct {
	plant *Plant
}

// Fix connects the geometry query object on the given context.
func (qp *QueryInputPort) Fix(ctx *Context, queryObject geometry.QueryObject) error {
	if ctx.plant != qp.plant {
		return NewInvalidArgumentError("context was not created by this plant")
	}
	if queryObject == nil {
		return NewInvalidArgumentError("query object must not be nil")
	}
	ctx.queryObject = queryObject
	return nil
}

// ContactResultsOutputPort reports the contacts resolved by the latest
// discrete update on a context.
type ContactResultsOutputPort struct {
	plant *Plant
}

// Eval returns a copy of the staged contact results, empty before the first update.
func (cp *ContactResultsOutputPort) Eval(ctx *Context) (ContactResults, error) {
	if ctx.plant != cp.plant {
		return ContactResults{}, NewInvalidArgumentError("context was not created by this plant")
	}
	if ctx.contactStage == nil {
		return ContactResults{}, nil
	}
	out := ContactResults{info: make([]ContactInfo, len(ctx.contactStage.contactResults.info))}
	copy(out.info, ctx.contactStage.contactResults.info)
	return out, nil
}

// FramePoseVector maps every registered body frame to its world pose.
type FramePoseVector map[geometry.FrameID]spatialmath.Pose

// FramePosesOutputPort reports the world pose of every body with a registered
// geometry frame, for consumption by the scene graph.
type FramePosesOutputPort struct {
	plant *Plant
}

// Eval computes the frame poses at the context's positions.
func (fp *FramePosesOutputPort) Eval(ctx *Context) (FramePoseVector, error) {
	if ctx.plant != fp.plant {
		return nil, NewInvalidArgumentError("context was not created by this plant")
	}
	pc, err := ctx.evalPositionKinematics()
	if err != nil {
		return nil, err
	}
	poses := make(FramePoseVector, len(fp.plant.bodyIndexToFrameID))
	for bodyIndex, frameID := range fp.plant.bodyIndexToFrameID {
		body := fp.plant.tree.Body(bodyIndex)
		poses[frameID] = pc.PoseInWorld(body.NodeIndex())
	}
	return poses, nil
}

// portSurface holds every port declared at Finalize.
type portSurface struct {
	instanceActuation     map[multibody.ModelInstanceIndex]*InputPort
	actuatedInstance      multibody.ModelInstanceIndex
	state                 *OutputPort
	instanceState         map[multibody.ModelInstanceIndex]*OutputPort
	instanceContactForces map[multibody.ModelInstanceIndex]*OutputPort
	contactResults        *ContactResultsOutputPort
	geometryPoses         *FramePosesOutputPort
	geometryQuery         *QueryInputPort
}

// declareStateAndPorts builds the port surface once the tree topology is final.
func (p *Plant) declareStateAndPorts() {
	p.ports = portSurface{
		instanceActuation:     map[multibody.ModelInstanceIndex]*InputPort{},
		actuatedInstance:      -1,
		instanceState:         map[multibody.ModelInstanceIndex]*OutputPort{},
		instanceContactForces: map[multibody.ModelInstanceIndex]*OutputPort{},
		contactResults:        &ContactResultsOutputPort{plant: p},
	}

	numActuatedInstances := 0
	lastActuatedInstance := multibody.ModelInstanceIndex(-1)
	for i := 0; i < p.tree.NumModelInstances(); i++ {
		instance := multibody.ModelInstanceIndex(i)
		instanceDOFs := p.tree.InstanceNumActuatedDOFs(instance)
		if instanceDOFs == 0 {
			continue
		}
		numActuatedInstances++
		lastActuatedInstance = instance
		p.ports.instanceActuation[instance] = &InputPort{
			plant:    p,
			name:     fmt.Sprintf("actuation_instance_%d", instance),
			size:     instanceDOFs,
			instance: instance,
		}
	}
	if numActuatedInstances == 1 {
		p.ports.actuatedInstance = lastActuatedInstance
	}

	p.ports.state = &OutputPort{
		plant: p,
		name:  "state",
		size:  p.NumMultibodyStates(),
		calc: func(ctx *Context) ([]float64, error) {
			return ctx.State(), nil
		},
	}

	for i := 0; i < p.tree.NumModelInstances(); i++ {
		instance := multibody.ModelInstanceIndex(i)
		if p.tree.InstanceNumStates(instance) == 0 {
			continue
		}
		p.ports.instanceState[instance] = &OutputPort{
			plant: p,
			name:  fmt.Sprintf("state_instance_%d", instance),
			size:  p.tree.InstanceNumStates(instance),
			calc:  p.makeInstanceStateCalc(instance),
		}
	}

	for i := 0; i < p.tree.NumModelInstances(); i++ {
		instance := multibody.ModelInstanceIndex(i)
		if p.tree.InstanceNumVelocities(instance) == 0 {
			continue
		}
		p.ports.instanceContactForces[instance] = &OutputPort{
			plant: p,
			name:  fmt.Sprintf("generalized_contact_forces_instance_%d", instance),
			size:  p.tree.InstanceNumVelocities(instance),
			calc:  p.makeInstanceContactForcesCalc(instance),
		}
	}

	if p.geometrySourceIsRegistered() {
		p.ports.geometryQuery = &QueryInputPort{plant: p}
		p.ports.geometryPoses = &FramePosesOutputPort{plant: p}
	}
}

func (p *Plant) makeInstanceStateCalc(instance multibody.ModelInstanceIndex) func(*Context) ([]float64, error) {
	return func(ctx *Context) ([]float64, error) {
		out := make([]float64, 0, p.tree.InstanceNumStates(instance))
		out = append(out, p.tree.GetPositionsFromArray(instance, ctx.positions())...)
		out = append(out, p.tree.GetVelocitiesFromArray(instance, ctx.velocities())...)
		return out, nil
	}
}

func (p *Plant) makeInstanceContactForcesCalc(instance multibody.ModelInstanceIndex) func(*Context) ([]float64, error) {
	return func(ctx *Context) ([]float64, error) {
		tauContact := make([]float64, p.tree.NumVelocities())
		if ctx.contactStage != nil {
			copy(tauContact, ctx.contactStage.tauContact)
		}
		// Generalized velocities and forces share an ordering, so the
		// velocity extraction applies.
		return p.tree.GetVelocitiesFromArray(instance, tauContact), nil
	}
}

// ActuationInputPort returns the convenience actuation port of a plant with
// exactly one actuated model instance.
func (p *Plant) ActuationInputPort() (*InputPort, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("ActuationInputPort")
	}
	if p.tree.NumActuators() == 0 {
		return nil, NewInvalidArgumentError("this plant has no actuators")
	}
	if !p.ports.actuatedInstance.IsValid() {
		return nil, NewInvalidArgumentError(
			"more than one model instance is actuated; use ActuationInputPortForInstance")
	}
	return p.ActuationInputPortForInstance(p.ports.actuatedInstance)
}

// ActuationInputPortForInstance returns the actuation port of an actuated
// model instance.
func (p *Plant) ActuationInputPortForInstance(instance multibody.ModelInstanceIndex) (*InputPort, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("ActuationInputPortForInstance")
	}
	if !instance.IsValid() || int(instance) >= p.tree.NumModelInstances() {
		return nil, NewInvalidArgumentError("invalid model instance %d", instance)
	}
	port, ok := p.ports.instanceActuation[instance]
	if !ok {
		return nil, NewInvalidArgumentError("model instance %d has no actuated degrees of freedom", instance)
	}
	return port, nil
}

// StateOutputPort returns the full multibody state output.
func (p *Plant) StateOutputPort() (*OutputPort, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("StateOutputPort")
	}
	return p.ports.state, nil
}

// StateOutputPortForInstance returns the state output of a model instance, in
// the order [q_instance; v_instance].
func (p *Plant) StateOutputPortForInstance(instance multibody.ModelInstanceIndex) (*OutputPort, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("StateOutputPortForInstance")
	}
	if !instance.IsValid() || int(instance) >= p.tree.NumModelInstances() {
		return nil, NewInvalidArgumentError("invalid model instance %d", instance)
	}
	port, ok := p.ports.instanceState[instance]
	if !ok {
		return nil, NewInvalidArgumentError("model instance %d has no state", instance)
	}
	return port, nil
}

// GeneralizedContactForcesOutputPortForInstance returns a model instance's
// share of the generalized contact forces. Discrete plants only.
func (p *Plant) GeneralizedContactForcesOutputPortForInstance(instance multibody.ModelInstanceIndex) (*OutputPort, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("GeneralizedContactForcesOutputPortForInstance")
	}
	if !p.IsDiscrete() {
		return nil, NewInvalidArgumentError(
			"generalized contact forces are only reported by discrete plants")
	}
	if !instance.IsValid() || int(instance) >= p.tree.NumModelInstances() {
		return nil, NewInvalidArgumentError("invalid model instance %d", instance)
	}
	port, ok := p.ports.instanceContactForces[instance]
	if !ok {
		return nil, NewInvalidArgumentError("model instance %d has no velocities", instance)
	}
	return port, nil
}

// ContactResultsOutputPort returns the contact results output. Discrete plants only.
func (p *Plant) ContactResultsOutputPort() (*ContactResultsOutputPort, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("ContactResultsOutputPort")
	}
	if !p.IsDiscrete() {
		return nil, NewInvalidArgumentError("contact results are only reported by discrete plants")
	}
	return p.ports.contactResults, nil
}

// GeometryQueryInputPort returns the geometry query input of a plant
// registered as a scene graph source.
func (p *Plant) GeometryQueryInputPort() (*QueryInputPort, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("GeometryQueryInputPort")
	}
	if !p.geometrySourceIsRegistered() {
		return nil, NewInvalidArgumentError("this plant is not registered as a scene graph source")
	}
	return p.ports.geometryQuery, nil
}

// GeometryPosesOutputPort returns the frame pose output of a plant registered
// as a scene graph source.
func (p *Plant) GeometryPosesOutputPort() (*FramePosesOutputPort, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("GeometryPosesOutputPort")
	}
	if !p.geometrySourceIsRegistered() {
		return nil, NewInvalidArgumentError("this plant is not registered as a scene graph source")
	}
	return p.ports.geometryPoses, nil
}
