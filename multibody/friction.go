package multibody

import (
	"github.com/pkg/errors"
)

// CoulombFriction holds the static and dynamic friction coefficients of a
// surface. Both are non negative and the dynamic coefficient never exceeds
// the static one.
type CoulombFriction struct {
	staticFriction  float64
	dynamicFriction float64
}

// NewCoulombFriction validates and creates a pair of friction coefficients.
func NewCoulombFriction(staticFriction, dynamicFriction float64) (CoulombFriction, error) {
	if staticFriction < 0 {
		return CoulombFriction{}, errors.Errorf("static friction must be non negative, got %f", staticFriction)
	}
	if dynamicFriction < 0 {
		return CoulombFriction{}, errors.Errorf("dynamic friction must be non negative, got %f", dynamicFriction)
	}
	if dynamicFriction > staticFriction {
		return CoulombFriction{}, errors.Errorf(
			"dynamic friction (%f) must not exceed static friction (%f)", dynamicFriction, staticFriction)
	}
	return CoulombFriction{staticFriction: staticFriction, dynamicFriction: dynamicFriction}, nil
}

// StaticFriction returns the static coefficient.
func (cf CoulombFriction) StaticFriction() float64 { return cf.staticFriction }

// DynamicFriction returns the dynamic coefficient.
func (cf CoulombFriction) DynamicFriction() float64 { return cf.dynamicFriction }

// CombineFrictionCoefficients computes the friction of a contact between two
// surfaces as the harmonic mean of each coefficient pair. A zero sum combines
// to zero, so a frictionless surface makes the contact frictionless.
func CombineFrictionCoefficients(a, b CoulombFriction) CoulombFriction {
	return CoulombFriction{
		staticFriction:  harmonicMean(a.staticFriction, b.staticFriction),
		dynamicFriction: harmonicMean(a.dynamicFriction, b.dynamicFriction),
	}
}

func harmonicMean(x, y float64) float64 {
	if x+y == 0 {
		return 0
	}
	return 2 * x * y / (x + y)
}
