package plant

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.dynamech.dev/plant/multibody"
	"go.dynamech.dev/plant/multibody/stribeck"
	"go.dynamech.dev/plant/spatialmath"
)

// CalcTimeDerivatives assembles and solves the continuous equations of motion
//
//	M(q) vdot = tau_app - C(q, v) v + sum Jᵀ F_contact + tau_damping + tau_u
//
// and returns xdot = [qdot; vdot]. Continuous plants only.
func (p *Plant) CalcTimeDerivatives(ctx *Context) ([]float64, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("CalcTimeDerivatives")
	}
	if p.IsDiscrete() {
		return nil, NewInvalidArgumentError("CalcTimeDerivatives is only meaningful for continuous plants")
	}
	nq := p.tree.NumPositions()
	nv := p.tree.NumVelocities()
	q := ctx.positions()
	v := ctx.velocities()

	pc, vc, err := ctx.evalVelocityKinematics()
	if err != nil {
		return nil, err
	}

	forces := multibody.NewForces(p.NumBodies(), nv)
	if err := p.tree.CalcForceElementsContribution(q, v, pc, vc, forces); err != nil {
		return nil, err
	}
	if err := p.addJointActuationForces(ctx, forces); err != nil {
		return nil, err
	}
	p.addJointDampingForces(v, forces)

	m := mat.NewDense(nv, nv, nil)
	if err := p.tree.CalcMassMatrixViaInverseDynamics(q, m); err != nil {
		return nil, err
	}

	if p.NumCollisionGeometries() > 0 {
		pairs, err := p.calcPointPairPenetrations(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.calcAndAddContactForcesByPenaltyMethod(pc, vc, pairs, forces.BodyForces()); err != nil {
			return nil, err
		}
	}

	// With vdot = 0 inverse dynamics computes
	//   tau = C(q, v) v - tau_app - sum J_WBᵀ Fapp_Bo_W.
	// The applied arrays double as outputs; their contents are not needed
	// afterwards.
	aWB := make([]spatialmath.SpatialAcceleration, p.NumBodies())
	vdotZero := make([]float64, nv)
	if err := p.tree.CalcInverseDynamics(
		q, v, pc, vc, vdotZero,
		forces.BodyForces(), forces.Generalized(),
		aWB, forces.BodyForces(), forces.Generalized(),
	); err != nil {
		return nil, err
	}

	vdot, err := solveSPD(m, negated(forces.Generalized()))
	if err != nil {
		return nil, errors.Wrap(err, "mass matrix factorization failed")
	}

	qdot := make([]float64, nq)
	if err := p.tree.MapVelocityToQDot(q, v, qdot); err != nil {
		return nil, err
	}
	xdot := make([]float64, 0, nq+nv)
	xdot = append(xdot, qdot...)
	xdot = append(xdot, vdot...)
	return xdot, nil
}

// CalcDiscreteVariableUpdates advances the discrete state by one period: it
// assembles the momentum balance at the current state, solves the coupled
// contact problem implicitly, integrates the positions explicitly through
// N(q), stages the contact results on the context, and returns the next state
// [q; v]. Discrete plants only.
func (p *Plant) CalcDiscreteVariableUpdates(ctx *Context) ([]float64, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("CalcDiscreteVariableUpdates")
	}
	if !p.IsDiscrete() {
		return nil, NewInvalidArgumentError("CalcDiscreteVariableUpdates is only meaningful for discrete plants")
	}
	dt := p.timeStep
	nq := p.tree.NumPositions()
	nv := p.tree.NumVelocities()
	q0 := ctx.positions()
	v0 := ctx.velocities()

	m0 := mat.NewDense(nv, nv, nil)
	if err := p.tree.CalcMassMatrixViaInverseDynamics(q0, m0); err != nil {
		return nil, err
	}

	pc0, vc0, err := ctx.evalVelocityKinematics()
	if err != nil {
		return nil, err
	}

	forces0 := multibody.NewForces(p.NumBodies(), nv)
	if err := p.tree.CalcForceElementsContribution(q0, v0, pc0, vc0, forces0); err != nil {
		return nil, err
	}
	if err := p.addJointActuationForces(ctx, forces0); err != nil {
		return nil, err
	}
	// TODO(implicit-damping): treat joint damping implicitly in the solver.
	p.addJointDampingForces(v0, forces0)

	pairs, err := p.calcPointPairPenetrations(ctx)
	if err != nil {
		return nil, err
	}

	// With vdot = 0 this leaves minus_tau = C v - tau_app - sum Jᵀ F_app in
	// the generalized slot; the applied arrays are overwritten.
	aWB := make([]spatialmath.SpatialAcceleration, p.NumBodies())
	vdotZero := make([]float64, nv)
	if err := p.tree.CalcInverseDynamics(
		q0, v0, pc0, vc0, vdotZero,
		forces0.BodyForces(), forces0.Generalized(),
		aWB, forces0.BodyForces(), forces0.Generalized(),
	); err != nil {
		return nil, err
	}
	minusTau := forces0.Generalized()

	// Generalized momentum before contact forces: p* = M0 v0 - dt minus_tau.
	pStar := make([]float64, nv)
	pStarVec := mat.NewVecDense(nv, pStar)
	pStarVec.MulVec(m0, mat.NewVecDense(nv, v0))
	pStarVec.AddScaledVec(pStarVec, -dt, mat.NewVecDense(nv, minusTau))

	nc := len(pairs)
	var jn, jt *mat.Dense
	var rWCSet []spatialmath.RotationMatrix
	if nc > 0 {
		if jn, err = p.calcNormalSeparationVelocitiesJacobian(q0, pairs); err != nil {
			return nil, err
		}
		if jt, rWCSet, err = p.calcTangentVelocitiesJacobian(q0, pairs); err != nil {
			return nil, err
		}
	}

	// Per contact compliance and friction. The time stepping scheme only
	// consumes the combined static coefficient; the dynamic coefficient is
	// not used, and the solver's regularized curve takes that one coefficient
	// as both its static and dynamic value.
	combined, err := p.calcCombinedFrictionCoefficients(pairs)
	if err != nil {
		return nil, err
	}
	mu := make([]float64, nc)
	phi0 := make([]float64, nc)
	stiffness := make([]float64, nc)
	damping := make([]float64, nc)
	for i := range pairs {
		mu[i] = combined[i].StaticFriction()
		phi0[i] = pairs[i].Depth
		stiffness[i] = p.penaltyParams.stiffness
		damping[i] = p.penaltyParams.damping
	}

	data := &stribeck.ProblemData{
		M:         m0,
		Jn:        jn,
		Jt:        jt,
		PStar:     pStar,
		Phi0:      phi0,
		Stiffness: stiffness,
		Damping:   damping,
		Mu:        mu,
	}
	results, err := p.solver.SolveWithGuess(data, dt, v0)
	if err != nil {
		return nil, err
	}
	if results.Info != stribeck.Success {
		return nil, NewSolverDidNotConvergeError(results.Info)
	}

	vNext := results.VNext
	qdotNext := make([]float64, nq)
	if err := p.tree.MapVelocityToQDot(q0, vNext, qdotNext); err != nil {
		return nil, err
	}
	xNext := make([]float64, 0, nq+nv)
	for i := 0; i < nq; i++ {
		xNext = append(xNext, q0[i]+dt*qdotNext[i])
	}
	xNext = append(xNext, vNext...)

	contactResults, err := p.calcContactResults(pairs, rWCSet, results)
	if err != nil {
		return nil, err
	}
	ctx.contactStage = &contactStage{
		contactResults: contactResults,
		tauContact:     results.TauContact,
	}
	return xNext, nil
}

// Step computes the discrete update and writes it back into the context,
// advancing its time by one period.
func (p *Plant) Step(ctx *Context) error {
	xNext, err := p.CalcDiscreteVariableUpdates(ctx)
	if err != nil {
		return err
	}
	if err := ctx.SetState(xNext); err != nil {
		return err
	}
	ctx.SetTime(ctx.Time() + p.timeStep)
	return nil
}

// MapVelocityToQDot computes qdot = N(q) v at the context's positions.
func (p *Plant) MapVelocityToQDot(ctx *Context, v []float64) ([]float64, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("MapVelocityToQDot")
	}
	if len(v) != p.tree.NumVelocities() {
		return nil, NewInvalidArgumentError(
			"velocities must have length %d, got %d", p.tree.NumVelocities(), len(v))
	}
	qdot := make([]float64, p.tree.NumPositions())
	if err := p.tree.MapVelocityToQDot(ctx.positions(), v, qdot); err != nil {
		return nil, err
	}
	return qdot, nil
}

// MapQDotToVelocity computes v = N⁺(q) qdot at the context's positions.
func (p *Plant) MapQDotToVelocity(ctx *Context, qdot []float64) ([]float64, error) {
	if !p.IsFinalized() {
		return nil, NewPreFinalizeUseError("MapQDotToVelocity")
	}
	if len(qdot) != p.tree.NumPositions() {
		return nil, NewInvalidArgumentError(
			"position derivatives must have length %d, got %d", p.tree.NumPositions(), len(qdot))
	}
	v := make([]float64, p.tree.NumVelocities())
	if err := p.tree.MapQDotToVelocity(ctx.positions(), qdot, v); err != nil {
		return nil, err
	}
	return v, nil
}

// solveSPD solves M x = b for a symmetric positive definite M.
func solveSPD(m *mat.Dense, b []float64) ([]float64, error) {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.New("matrix is not positive definite")
	}
	x := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(x, mat.NewVecDense(n, b)); err != nil {
		return nil, err
	}
	return x.RawVector().Data, nil
}

func negated(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = -v
	}
	return out
}
