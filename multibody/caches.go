package multibody

import (
	"go.dynamech.dev/plant/spatialmath"
)

// PositionKinematicsCache holds the world pose of every body, indexed by body
// node index. Caches are caller owned and populated by the tree.
type PositionKinematicsCache struct {
	poses []spatialmath.Pose
}

// NewPositionKinematicsCache allocates a cache for the given number of bodies.
func NewPositionKinematicsCache(numBodies int) *PositionKinematicsCache {
	return &PositionKinematicsCache{poses: make([]spatialmath.Pose, numBodies)}
}

// NumBodies returns the number of bodies the cache covers.
func (pc *PositionKinematicsCache) NumBodies() int {
	return len(pc.poses)
}

// PoseInWorld returns X_WB for the body at the given node index.
func (pc *PositionKinematicsCache) PoseInWorld(node BodyNodeIndex) spatialmath.Pose {
	return pc.poses[node]
}

// SetPoseInWorld stores X_WB for the body at the given node index.
func (pc *PositionKinematicsCache) SetPoseInWorld(node BodyNodeIndex, pose spatialmath.Pose) {
	pc.poses[node] = pose
}

// VelocityKinematicsCache holds the world spatial velocity of every body,
// indexed by body node index.
type VelocityKinematicsCache struct {
	velocities []spatialmath.SpatialVelocity
}

// NewVelocityKinematicsCache allocates a cache for the given number of bodies.
func NewVelocityKinematicsCache(numBodies int) *VelocityKinematicsCache {
	return &VelocityKinematicsCache{velocities: make([]spatialmath.SpatialVelocity, numBodies)}
}

// NumBodies returns the number of bodies the cache covers.
func (vc *VelocityKinematicsCache) NumBodies() int {
	return len(vc.velocities)
}

// SpatialVelocityInWorld returns V_WB for the body at the given node index.
func (vc *VelocityKinematicsCache) SpatialVelocityInWorld(node BodyNodeIndex) spatialmath.SpatialVelocity {
	return vc.velocities[node]
}

// SetSpatialVelocityInWorld stores V_WB for the body at the given node index.
func (vc *VelocityKinematicsCache) SetSpatialVelocityInWorld(node BodyNodeIndex, v spatialmath.SpatialVelocity) {
	vc.velocities[node] = v
}
