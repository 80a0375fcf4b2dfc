package plant

import (
	"github.com/pkg/errors"

	"go.dynamech.dev/plant/multibody/stribeck"
)

// Sentinel errors for failure kinds without call site detail.
var (
	// ErrSceneGraphMismatch reports a geometry operation on a different scene
	// graph than the one used at source registration.
	ErrSceneGraphMismatch = errors.New(
		"geometry registration calls must be performed on the same scene graph instance " +
			"used on the first call to RegisterAsSourceForSceneGraph")

	// ErrSceneGraphMissing reports a finalize without the scene graph that
	// owns this plant's source.
	ErrSceneGraphMissing = errors.New(
		"this plant has been registered as a scene graph geometry source; " +
			"Finalize must be invoked with that scene graph instance")

	// ErrDuplicateSourceRegistration reports registering as a source twice.
	ErrDuplicateSourceRegistration = errors.New(
		"this plant is already registered as a scene graph source")

	// ErrQueryPortDisconnected reports a contact computation without a fixed
	// geometry query input.
	ErrQueryPortDisconnected = errors.New(
		"this plant registered geometry for contact handling but its geometry query " +
			"input port is not connected")

	// ErrScalarNotSupported reports a geometry query on a scalar type other
	// than float64.
	ErrScalarNotSupported = errors.New(
		"penetration queries are only supported for plants with float64 scalars")
)

// NewPreFinalizeUseError reports an operational call before Finalize.
func NewPreFinalizeUseError(method string) error {
	return errors.Errorf(
		"pre-finalize calls to %s() are not allowed; you must call Finalize() first", method)
}

// NewPostFinalizeMutationError reports a mutating call after Finalize.
func NewPostFinalizeMutationError(method string) error {
	return errors.Errorf(
		"post-finalize calls to %s() are not allowed; calls to this method must happen before Finalize()", method)
}

// NewInvalidArgumentError reports a malformed argument.
func NewInvalidArgumentError(format string, args ...interface{}) error {
	return errors.Errorf("invalid argument: "+format, args...)
}

// NewSolverDidNotConvergeError reports a non success outcome of the implicit
// Stribeck solver. The plant treats this as fatal for the step.
func NewSolverDidNotConvergeError(info stribeck.ComputationInfo) error {
	return errors.Errorf("implicit stribeck solver did not converge: %s", info)
}
