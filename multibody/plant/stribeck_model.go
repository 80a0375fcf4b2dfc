package plant

import (
	"go.dynamech.dev/plant/multibody"
)

// stribeckModel evaluates the regularized friction coefficient used by the
// continuous penalty forces: a C2 blend from zero at rest, through the static
// coefficient at the stiction tolerance, down to the dynamic coefficient at
// three times the stiction tolerance.
type stribeckModel struct {
	stictionTolerance    float64
	invStictionTolerance float64
}

// newUnsetStribeckModel marks the tolerance unset so Finalize can install the default.
func newUnsetStribeckModel() stribeckModel {
	return stribeckModel{stictionTolerance: -1}
}

func (m *stribeckModel) setStictionTolerance(v float64) {
	m.stictionTolerance = v
	m.invStictionTolerance = 1 / v
}

// computeFrictionCoefficient evaluates mu at the given non negative slip speed.
func (m *stribeckModel) computeFrictionCoefficient(speed float64, friction multibody.CoulombFriction) float64 {
	muS := friction.StaticFriction()
	muD := friction.DynamicFriction()
	s := speed * m.invStictionTolerance
	switch {
	case s >= 3:
		return muD
	case s >= 1:
		return muS - (muS-muD)*step5((s-1)/2)
	default:
		return muS * step5(s)
	}
}

// step5 is the quintic 10x³ - 15x⁴ + 6x⁵ on [0, 1]: a C2 ramp with zero first
// and second derivatives at both endpoints.
func step5(x float64) float64 {
	x3 := x * x * x
	return x3 * (10 + x*(6*x-15))
}

// penaltyParameters hold the compliant point contact parameters derived from
// the penetration allowance. A negative time scale marks them unset.
type penaltyParameters struct {
	stiffness float64 // N/m
	damping   float64 // 1/(m/s), the Hunt-Crossley dissipation
	timeScale float64 // s
}

func newUnsetPenaltyParameters() penaltyParameters {
	return penaltyParameters{timeScale: -1}
}
