package plant

import (
	"go.dynamech.dev/plant/multibody"
)

// assembleActuationInput concatenates the fixed actuation inputs of every
// actuated model instance, in ascending instance order, into a single vector
// of length NumActuatedDOFs.
func (p *Plant) assembleActuationInput(ctx *Context) ([]float64, error) {
	u := make([]float64, 0, p.tree.NumActuatedDOFs())
	for i := 0; i < p.tree.NumModelInstances(); i++ {
		instance := multibody.ModelInstanceIndex(i)
		instanceDOFs := p.tree.InstanceNumActuatedDOFs(instance)
		if instanceDOFs == 0 {
			continue
		}
		uInstance, ok := ctx.actuationInputs[instance]
		if !ok {
			return nil, NewInvalidArgumentError(
				"actuation input port for model instance %d is not connected", instance)
		}
		if len(uInstance) != instanceDOFs {
			return nil, NewInvalidArgumentError(
				"actuation input for model instance %d must have length %d, got %d",
				instance, instanceDOFs, len(uInstance))
		}
		u = append(u, uInstance...)
	}
	return u, nil
}

// addJointActuationForces accumulates the actuation inputs into the force
// aggregate. Only single DOF joints may be actuated.
func (p *Plant) addJointActuationForces(ctx *Context, forces *multibody.Forces) error {
	if p.tree.NumActuators() == 0 {
		return nil
	}
	u, err := p.assembleActuationInput(ctx)
	if err != nil {
		return err
	}
	for a := 0; a < p.tree.NumActuators(); a++ {
		actuator := p.tree.JointActuator(multibody.JointActuatorIndex(a))
		joint := p.tree.Joint(actuator.JointIndex())
		if joint.NumDOFs() != 1 {
			return NewInvalidArgumentError(
				"actuator %q drives joint %q with %d DOFs; only single DOF joints may be actuated",
				actuator.Name(), joint.Name(), joint.NumDOFs())
		}
		actuator.AddInOneForce(0, u[a], forces)
	}
	return nil
}

// addJointDampingForces accumulates every joint's viscous damping.
func (p *Plant) addJointDampingForces(v []float64, forces *multibody.Forces) {
	for j := 0; j < p.tree.NumJoints(); j++ {
		p.tree.Joint(multibody.JointIndex(j)).AddInDamping(v, forces)
	}
}
