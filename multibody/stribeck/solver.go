// Package stribeck implements an implicit solver for the two way coupled
// discrete contact problem: the momentum balance of a multibody system
// subject to compliant normal forces and regularized Coulomb friction, solved
// simultaneously for the next step generalized velocities and the contact
// forces.
package stribeck

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ComputationInfo reports the outcome of a solve.
type ComputationInfo int

// Solve outcomes.
const (
	Success ComputationInfo = iota
	MaxIterationsReached
	LinearSolverFailure
)

// String implements fmt.Stringer.
func (info ComputationInfo) String() string {
	switch info {
	case Success:
		return "success"
	case MaxIterationsReached:
		return "max iterations reached"
	case LinearSolverFailure:
		return "linear solver failure"
	default:
		return "unknown"
	}
}

// Parameters tune the Newton iteration.
type Parameters struct {
	// StictionTolerance is the slip speed below which a contact is treated
	// as stuck, in m/s.
	StictionTolerance float64
	// MaxIterations bounds the outer Newton iterations.
	MaxIterations int
	// AbsTolerance is the absolute convergence threshold on the mass matrix
	// weighted norm of the velocity update.
	AbsTolerance float64
	// RelTolerance is the relative convergence threshold, against the
	// weighted norm of the current velocities. It also scales the stiction
	// tolerance into the tangential speed convergence threshold.
	RelTolerance float64
	// ThetaMax bounds the per iteration change of each contact's tangential
	// velocity, as a multiple of max(slip speed, stiction tolerance). Keeps
	// iterates from jumping across the stiction ramp.
	ThetaMax float64
}

// DefaultParameters returns the tuning used when callers set nothing.
func DefaultParameters() Parameters {
	return Parameters{
		StictionTolerance: 1e-4,
		MaxIterations:     100,
		AbsTolerance:      1e-13,
		RelTolerance:      1e-6,
		ThetaMax:          0.25,
	}
}

// ProblemData points at the caller owned matrices defining one discrete step.
// The views are borrowed: they must stay alive and unmodified for the duration
// of a single SolveWithGuess call and are never retained past it.
//
// With nv generalized velocities and nc contacts: M is the nv x nv mass
// matrix, Jn the nc x nv separation velocity Jacobian, Jt the 2nc x nv
// tangential velocity Jacobian, PStar the generalized momentum before contact,
// Phi0 the penetration depths at the start of the step, and Stiffness, Damping
// and Mu the per contact compliance and friction parameters.
type ProblemData struct {
	M         *mat.Dense
	Jn        *mat.Dense
	Jt        *mat.Dense
	PStar     []float64
	Phi0      []float64
	Stiffness []float64
	Damping   []float64
	Mu        []float64
}

// NumContacts returns nc.
func (d *ProblemData) NumContacts() int { return len(d.Phi0) }

func (d *ProblemData) validate(nv int) error {
	nc := d.NumContacts()
	if d.M == nil {
		return errors.New("problem data is missing the mass matrix")
	}
	if r, c := d.M.Dims(); r != nv || c != nv {
		return errors.Errorf("mass matrix must be %d x %d, got %d x %d", nv, nv, r, c)
	}
	if len(d.PStar) != nv {
		return errors.Errorf("p* must have length %d, got %d", nv, len(d.PStar))
	}
	if len(d.Stiffness) != nc || len(d.Damping) != nc || len(d.Mu) != nc {
		return errors.New("per contact parameter vectors must all have length nc")
	}
	if nc > 0 {
		if d.Jn == nil || d.Jt == nil {
			return errors.New("problem data with contacts is missing a Jacobian")
		}
		if r, c := d.Jn.Dims(); r != nc || c != nv {
			return errors.Errorf("Jn must be %d x %d, got %d x %d", nc, nv, r, c)
		}
		if r, c := d.Jt.Dims(); r != 2*nc || c != nv {
			return errors.Errorf("Jt must be %d x %d, got %d x %d", 2*nc, nv, r, c)
		}
	}
	return nil
}

// Results holds the solution of one discrete step. All slices are owned by
// the results value.
type Results struct {
	Info ComputationInfo
	// VNext are the generalized velocities at the end of the step.
	VNext []float64
	// Fn and Ft are the normal (nc) and tangential (2nc) contact force
	// magnitudes in the contact frames.
	Fn []float64
	Ft []float64
	// Vn and Vt are the normal (nc) and tangential (2nc) contact velocities
	// at VNext.
	Vn []float64
	Vt []float64
	// TauContact = Jnᵀ Fn + Jtᵀ Ft, the generalized contact forces.
	TauContact []float64
	// Iterations is the number of Newton iterations performed.
	Iterations int
	// VelocityResidual is the mass matrix weighted norm of the last applied
	// velocity update.
	VelocityResidual float64
}

// Solver solves the implicit contact problem for a system with a fixed number
// of generalized velocities. A solver holds only its size and tuning; every
// call works on caller owned data, so one solver may serve concurrent
// contexts.
type Solver struct {
	nv     int
	params Parameters
	logger golog.Logger
}

// NewSolver creates a solver for systems with nv generalized velocities.
func NewSolver(nv int, logger golog.Logger) *Solver {
	return &Solver{nv: nv, params: DefaultParameters(), logger: logger}
}

// SetParameters replaces the solver tuning.
func (s *Solver) SetParameters(p Parameters) {
	s.params = p
}

// Parameters returns the current tuning.
func (s *Solver) Parameters() Parameters {
	return s.params
}

// SolveWithGuess solves the two way coupled problem over the step dt starting
// the Newton iteration at v0. The returned error reports malformed problem
// data only; solver outcomes, including failure to converge, are reported in
// Results.Info.
func (s *Solver) SolveWithGuess(data *ProblemData, dt float64, v0 []float64) (*Results, error) {
	if dt <= 0 {
		return nil, errors.Errorf("time step must be positive, got %f", dt)
	}
	if len(v0) != s.nv {
		return nil, errors.Errorf("initial guess must have length %d, got %d", s.nv, len(v0))
	}
	if err := data.validate(s.nv); err != nil {
		return nil, err
	}
	if data.NumContacts() == 0 {
		return s.solveWithoutContact(data)
	}
	return s.solveWithContact(data, dt, v0)
}

// solveWithoutContact reduces to one SPD solve of M v = p*.
func (s *Solver) solveWithoutContact(data *ProblemData) (*Results, error) {
	nv := s.nv
	var chol mat.Cholesky
	if ok := chol.Factorize(symFromDense(data.M)); !ok {
		return &Results{Info: LinearSolverFailure}, nil
	}
	v := mat.NewVecDense(nv, nil)
	if err := chol.SolveVecTo(v, mat.NewVecDense(nv, data.PStar)); err != nil {
		return &Results{Info: LinearSolverFailure}, nil
	}
	out := newResults(nv, 0)
	copy(out.VNext, v.RawVector().Data)
	out.Info = Success
	return out, nil
}

func (s *Solver) solveWithContact(data *ProblemData, dt float64, v0 []float64) (*Results, error) {
	nv := s.nv
	nc := data.NumContacts()
	vStiction := s.params.StictionTolerance
	// Soft norm regularization, well below any meaningful slip speed.
	epsV := vStiction * 1e-4
	epsV2 := epsV * epsV

	v := mat.NewVecDense(nv, nil)
	copy(v.RawVector().Data, v0)

	vn := mat.NewVecDense(nc, nil)
	vt := mat.NewVecDense(2*nc, nil)
	fn := mat.NewVecDense(nc, nil)
	ft := mat.NewVecDense(2*nc, nil)
	gn := make([]float64, nc) // dfn/dvn per contact

	residual := mat.NewVecDense(nv, nil)
	jacobian := mat.NewDense(nv, nv, nil)
	dv := mat.NewVecDense(nv, nil)
	dvt := mat.NewVecDense(2*nc, nil)
	tmp := mat.NewVecDense(nv, nil)

	for iter := 0; iter < s.params.MaxIterations; iter++ {
		vn.MulVec(data.Jn, v)
		vt.MulVec(data.Jt, v)

		// Normal forces from the compliant law, with their vn gradients.
		// vn = Jn v is a separation rate: the implicit penetration is
		// phi0 - dt vn and the Hunt-Crossley dissipation factor 1 - d vn
		// grows the force during approach. Each factor clamps at zero.
		for i := 0; i < nc; i++ {
			k := data.Stiffness[i]
			d := data.Damping[i]
			phi := data.Phi0[i] - dt*vn.AtVec(i)
			dissipation := 1 - d*vn.AtVec(i)
			if phi > 0 && dissipation > 0 {
				fn.SetVec(i, k*phi*dissipation)
				gn[i] = k * (-dt*dissipation - d*phi)
			} else {
				fn.SetVec(i, 0)
				gn[i] = 0
			}
		}

		// Friction forces from the regularized Coulomb law.
		for i := 0; i < nc; i++ {
			vtx, vty := vt.AtVec(2*i), vt.AtVec(2*i+1)
			slip := math.Sqrt(vtx*vtx + vty*vty + epsV2)
			mu, _ := frictionCoefficient(slip, data.Mu[i], vStiction)
			scale := -mu * fn.AtVec(i) / slip
			ft.SetVec(2*i, scale*vtx)
			ft.SetVec(2*i+1, scale*vty)
		}

		// R(v) = M v - p* - dt (Jnᵀ fn + Jtᵀ ft).
		residual.MulVec(data.M, v)
		for i := 0; i < nv; i++ {
			residual.SetVec(i, residual.AtVec(i)-data.PStar[i])
		}
		tmp.MulVec(data.Jn.T(), fn)
		residual.AddScaledVec(residual, -dt, tmp)
		tmp.MulVec(data.Jt.T(), ft)
		residual.AddScaledVec(residual, -dt, tmp)

		s.buildNewtonMatrix(jacobian, data, dt, vn, vt, fn, gn, epsV2)

		var lu mat.LU
		lu.Factorize(jacobian)
		if err := lu.SolveVecTo(dv, false, residual); err != nil {
			return &Results{Info: LinearSolverFailure, Iterations: iter}, nil
		}
		dv.ScaleVec(-1, dv)

		// Relaxation keeping each contact's tangential velocity change within
		// the stability bound across the stiction ramp.
		dvt.MulVec(data.Jt, dv)
		alpha := 1.0
		maxDvt := 0.0
		for i := 0; i < nc; i++ {
			dvx, dvy := dvt.AtVec(2*i), dvt.AtVec(2*i+1)
			dNorm := math.Hypot(dvx, dvy)
			if dNorm > maxDvt {
				maxDvt = dNorm
			}
			if dNorm < epsV {
				continue
			}
			vtx, vty := vt.AtVec(2*i), vt.AtVec(2*i+1)
			bound := s.params.ThetaMax * math.Max(math.Hypot(vtx, vty), vStiction)
			if a := bound / dNorm; a < alpha {
				alpha = a
			}
		}

		v.AddScaledVec(v, alpha, dv)

		// Convergence on the M-norm of the applied update, or on the largest
		// tangential speed change falling well inside the stiction band.
		tmp.MulVec(data.M, dv)
		dvNorm := alpha * math.Sqrt(math.Max(0, mat.Dot(dv, tmp)))
		tmp.MulVec(data.M, v)
		vNorm := math.Sqrt(math.Max(0, mat.Dot(v, tmp)))
		if dvNorm < s.params.AbsTolerance+s.params.RelTolerance*vNorm ||
			alpha*maxDvt < s.params.RelTolerance*vStiction {
			out := s.assembleResults(data, dt, v, epsV2)
			out.Iterations = iter + 1
			out.VelocityResidual = dvNorm
			if s.logger != nil {
				s.logger.Debugw("implicit stribeck solve converged",
					"iterations", out.Iterations, "contacts", nc, "residual", dvNorm)
			}
			return out, nil
		}
	}
	return &Results{Info: MaxIterationsReached, Iterations: s.params.MaxIterations}, nil
}

// buildNewtonMatrix forms the approximate dR/dv with the dominant normal
// compliance term, the Stribeck regularization term, and the friction to
// normal cross coupling. The cross term makes the matrix nonsymmetric.
func (s *Solver) buildNewtonMatrix(
	jacobian *mat.Dense, data *ProblemData, dt float64,
	vn, vt, fn *mat.VecDense, gn []float64, epsV2 float64,
) {
	nc := data.NumContacts()
	vStiction := s.params.StictionTolerance
	jacobian.Copy(data.M)

	for i := 0; i < nc; i++ {
		jnRow := mat.NewVecDense(s.nv, data.Jn.RawRowView(i))
		jtRow0 := mat.NewVecDense(s.nv, data.Jt.RawRowView(2*i))
		jtRow1 := mat.NewVecDense(s.nv, data.Jt.RawRowView(2*i+1))

		// Normal compliance: -dt * Gn_i * jn jnᵀ.
		if gn[i] != 0 {
			jacobian.RankOne(jacobian, -dt*gn[i], jnRow, jnRow)
		}

		vtx, vty := vt.AtVec(2*i), vt.AtVec(2*i+1)
		slip := math.Sqrt(vtx*vtx + vty*vty + epsV2)
		mu, muPrime := frictionCoefficient(slip, data.Mu[i], vStiction)
		tx, ty := vtx/slip, vty/slip

		// dft/dvt = -fn [ mu' t tᵀ + mu (I - t tᵀ) / slip ].
		f := fn.AtVec(i)
		a := -f * (muPrime - mu/slip)
		b := -f * mu / slip
		var gt [2][2]float64
		gt[0][0] = a*tx*tx + b
		gt[0][1] = a * tx * ty
		gt[1][0] = a * ty * tx
		gt[1][1] = a*ty*ty + b

		jtRows := [2]*mat.VecDense{jtRow0, jtRow1}
		for r := 0; r < 2; r++ {
			for c := 0; c < 2; c++ {
				if gt[r][c] != 0 {
					jacobian.RankOne(jacobian, -dt*gt[r][c], jtRows[r], jtRows[c])
				}
			}
		}

		// Cross coupling dft/dvn = -mu t Gn_i.
		if gn[i] != 0 {
			jacobian.RankOne(jacobian, -dt*(-mu*tx*gn[i]), jtRow0, jnRow)
			jacobian.RankOne(jacobian, -dt*(-mu*ty*gn[i]), jtRow1, jnRow)
		}
	}
}

// assembleResults recomputes every output at the converged velocities.
func (s *Solver) assembleResults(data *ProblemData, dt float64, v *mat.VecDense, epsV2 float64) *Results {
	nv := s.nv
	nc := data.NumContacts()
	out := newResults(nv, nc)
	out.Info = Success
	copy(out.VNext, v.RawVector().Data)

	vn := mat.NewVecDense(nc, out.Vn)
	vt := mat.NewVecDense(2*nc, out.Vt)
	vn.MulVec(data.Jn, v)
	vt.MulVec(data.Jt, v)

	for i := 0; i < nc; i++ {
		phi := math.Max(0, data.Phi0[i]-dt*vn.AtVec(i))
		dissipation := math.Max(0, 1-data.Damping[i]*vn.AtVec(i))
		out.Fn[i] = data.Stiffness[i] * phi * dissipation

		vtx, vty := vt.AtVec(2*i), vt.AtVec(2*i+1)
		slip := math.Sqrt(vtx*vtx + vty*vty + epsV2)
		mu, _ := frictionCoefficient(slip, data.Mu[i], s.params.StictionTolerance)
		scale := -mu * out.Fn[i] / slip
		out.Ft[2*i] = scale * vtx
		out.Ft[2*i+1] = scale * vty
	}

	tau := mat.NewVecDense(nv, out.TauContact)
	tmp := mat.NewVecDense(nv, nil)
	tau.MulVec(data.Jn.T(), mat.NewVecDense(nc, out.Fn))
	tmp.MulVec(data.Jt.T(), mat.NewVecDense(2*nc, out.Ft))
	tau.AddVec(tau, tmp)
	return out
}

func newResults(nv, nc int) *Results {
	return &Results{
		VNext:      make([]float64, nv),
		Fn:         make([]float64, nc),
		Ft:         make([]float64, 2*nc),
		Vn:         make([]float64, nc),
		Vt:         make([]float64, 2*nc),
		TauContact: make([]float64, nv),
	}
}

// frictionCoefficient evaluates the solver's regularized friction curve and
// its derivative with respect to slip speed. The curve ramps from zero to mu
// over the stiction tolerance with the C2 step used by the Stribeck model and
// is flat beyond it; the solver receives only a single combined coefficient,
// so static and dynamic friction coincide here.
func frictionCoefficient(slip, mu, vStiction float64) (value, derivative float64) {
	x := slip / vStiction
	if x >= 1 {
		return mu, 0
	}
	return mu * step5(x), mu * step5Derivative(x) / vStiction
}

// step5 is the quintic 10x³ - 15x⁴ + 6x⁵: a C2 ramp from 0 to 1 on [0, 1]
// with zero first and second derivatives at both ends.
func step5(x float64) float64 {
	x3 := x * x * x
	return x3 * (10 + x*(6*x-15))
}

// step5Derivative is d(step5)/dx = 30 x² (1 - x)².
func step5Derivative(x float64) float64 {
	omx := 1 - x
	return 30 * x * x * omx * omx
}

// symFromDense copies the upper triangle of a symmetric dense matrix into the
// symmetric type the Cholesky factorization requires.
func symFromDense(m *mat.Dense) *mat.SymDense {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	return sym
}
