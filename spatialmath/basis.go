package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ComputeBasisFromAxis constructs a right handed orthonormal basis R whose column
// axisIndex equals the given unit axis. The remaining two columns are tangent
// vectors chosen deterministically, as a pure function of the axis, so that
// repeated calls with the same axis always produce the same basis.
func ComputeBasisFromAxis(axisIndex int, axis r3.Vector) (RotationMatrix, error) {
	if axisIndex < 0 || axisIndex > 2 {
		return RotationMatrix{}, errors.Errorf("axis index must be 0, 1 or 2, got %d", axisIndex)
	}
	norm := axis.Norm()
	if norm < 1e-10 {
		return RotationMatrix{}, errors.New("cannot compute a basis from a zero axis")
	}
	w := axis.Mul(1 / norm)

	// Cross with the world unit vector least aligned with the axis.
	e := unitVectorLeastAlignedWith(w)
	t1 := w.Cross(e).Normalize()
	t2 := w.Cross(t1)

	var cols [3]r3.Vector
	cols[axisIndex] = w
	cols[(axisIndex+1)%3] = t1
	cols[(axisIndex+2)%3] = t2
	return NewRotationMatrixFromCols(cols[0], cols[1], cols[2]), nil
}

func unitVectorLeastAlignedWith(w r3.Vector) r3.Vector {
	ax, ay, az := math.Abs(w.X), math.Abs(w.Y), math.Abs(w.Z)
	switch {
	case ax <= ay && ax <= az:
		return r3.Vector{X: 1}
	case ay <= az:
		return r3.Vector{Y: 1}
	default:
		return r3.Vector{Z: 1}
	}
}
