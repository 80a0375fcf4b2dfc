package plant

import (
	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/multibody"
)

// Context owns everything that changes as a simulation advances: time, the
// multibody state, fixed input values, the kinematics caches and the staged
// contact results of the latest discrete solve. Contexts are created by a
// finalized plant and are independent of each other, so concurrent
// simulations each own a context and never share solve state.
type Context struct {
	plant *Plant
	time  float64

	// The multibody state [q; v]: the single discrete state group of a
	// discrete plant or the continuous state of a continuous one.
	state []float64

	actuationInputs map[multibody.ModelInstanceIndex][]float64
	queryObject     geometry.QueryObject

	// Kinematics caches, populated on evaluation.
	pc *multibody.PositionKinematicsCache
	vc *multibody.VelocityKinematicsCache

	// Results of the latest discrete update, staged for the output ports.
	contactStage *contactStage
}

type contactStage struct {
	contactResults ContactResults
	// tauContact = Jnᵀ fn + Jtᵀ ft over the full velocity vector.
	tauContact []float64
}

// CreateDefaultContext allocates a context with zero time and zero state.
func (p *Plant) CreateDefaultContext() (*Context, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("CreateDefaultContext")
	}
	return &Context{
		plant:           p,
		state:           make([]float64, p.NumMultibodyStates()),
		actuationInputs: map[multibody.ModelInstanceIndex][]float64{},
		pc:              multibody.NewPositionKinematicsCache(p.NumBodies()),
		vc:              multibody.NewVelocityKinematicsCache(p.NumBodies()),
	}, nil
}

// Time returns the context time.
func (ctx *Context) Time() float64 { return ctx.time }

// SetTime sets the context time.
func (ctx *Context) SetTime(t float64) { ctx.time = t }

// IsDiscrete reports whether the state is the discrete group of a discrete plant.
func (ctx *Context) IsDiscrete() bool { return ctx.plant.IsDiscrete() }

// NumDiscreteStateGroups returns one for discrete plants and zero otherwise.
func (ctx *Context) NumDiscreteStateGroups() int {
	if ctx.IsDiscrete() {
		return 1
	}
	return 0
}

// ContinuousStateSize returns nq + nv for continuous plants and zero otherwise.
func (ctx *Context) ContinuousStateSize() int {
	if ctx.IsDiscrete() {
		return 0
	}
	return len(ctx.state)
}

// State returns a copy of the full state [q; v].
func (ctx *Context) State() []float64 {
	out := make([]float64, len(ctx.state))
	copy(out, ctx.state)
	return out
}

// SetState replaces the full state [q; v].
func (ctx *Context) SetState(x []float64) error {
	if len(x) != len(ctx.state) {
		return NewInvalidArgumentError("state must have length %d, got %d", len(ctx.state), len(x))
	}
	copy(ctx.state, x)
	return nil
}

// Positions returns a copy of q.
func (ctx *Context) Positions() []float64 {
	nq := ctx.plant.NumPositions()
	out := make([]float64, nq)
	copy(out, ctx.state[:nq])
	return out
}

// SetPositions replaces q.
func (ctx *Context) SetPositions(q []float64) error {
	nq := ctx.plant.NumPositions()
	if len(q) != nq {
		return NewInvalidArgumentError("positions must have length %d, got %d", nq, len(q))
	}
	copy(ctx.state[:nq], q)
	return nil
}

// Velocities returns a copy of v.
func (ctx *Context) Velocities() []float64 {
	nq := ctx.plant.NumPositions()
	out := make([]float64, ctx.plant.NumVelocities())
	copy(out, ctx.state[nq:])
	return out
}

// SetVelocities replaces v.
func (ctx *Context) SetVelocities(v []float64) error {
	nv := ctx.plant.NumVelocities()
	if len(v) != nv {
		return NewInvalidArgumentError("velocities must have length %d, got %d", nv, len(v))
	}
	copy(ctx.state[ctx.plant.NumPositions():], v)
	return nil
}

// positions and velocities return internal views for the dynamics routines.
func (ctx *Context) positions() []float64 {
	return ctx.state[:ctx.plant.NumPositions()]
}

func (ctx *Context) velocities() []float64 {
	return ctx.state[ctx.plant.NumPositions():]
}

// evalPositionKinematics populates and returns the context's position cache.
func (ctx *Context) evalPositionKinematics() (*multibody.PositionKinematicsCache, error) {
	if err := ctx.plant.tree.CalcPositionKinematicsCache(ctx.positions(), ctx.pc); err != nil {
		return nil, err
	}
	return ctx.pc, nil
}

// evalVelocityKinematics populates and returns both caches; position
// kinematics are always evaluated first.
func (ctx *Context) evalVelocityKinematics() (*multibody.PositionKinematicsCache, *multibody.VelocityKinematicsCache, error) {
	pc, err := ctx.evalPositionKinematics()
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.plant.tree.CalcVelocityKinematicsCache(ctx.positions(), ctx.velocities(), pc, ctx.vc); err != nil {
		return nil, nil, err
	}
	return pc, ctx.vc, nil
}
