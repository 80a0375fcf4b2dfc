package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Pose is a rigid transform: the position and orientation of one frame measured
// and expressed in another, e.g. X_WB for the pose of a body frame B in the world W.
type Pose struct {
	rotation    RotationMatrix
	translation r3.Vector
}

// NewPose creates a pose with the given orientation and position.
func NewPose(rotation RotationMatrix, translation r3.Vector) Pose {
	return Pose{rotation: rotation, translation: translation}
}

// NewPoseFromPoint creates a pose with identity orientation at the given position.
func NewPoseFromPoint(point r3.Vector) Pose {
	return Pose{rotation: NewIdentityRotationMatrix(), translation: point}
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return NewPoseFromPoint(r3.Vector{})
}

// Point returns the position component of the pose.
func (p Pose) Point() r3.Vector {
	return p.translation
}

// Rotation returns the orientation component of the pose.
func (p Pose) Rotation() RotationMatrix {
	return p.rotation
}

// TransformPoint maps a point measured in the pose's child frame into the parent frame.
func (p Pose) TransformPoint(point r3.Vector) r3.Vector {
	return p.rotation.MulVec(point).Add(p.translation)
}

// Compose returns the pose p * other, chaining the two transforms.
func (p Pose) Compose(other Pose) Pose {
	return Pose{
		rotation:    p.rotation.Mul(other.rotation),
		translation: p.TransformPoint(other.translation),
	}
}

// Inverse returns the pose mapping in the opposite direction.
func (p Pose) Inverse() Pose {
	rt := p.rotation.Transpose()
	return Pose{rotation: rt, translation: rt.MulVec(p.translation).Mul(-1)}
}

// String returns a human readable string that represents the pose.
func (p Pose) String() string {
	return fmt.Sprintf("Position: X:%.2f, Y:%.2f, Z:%.2f", p.translation.X, p.translation.Y, p.translation.Z)
}
