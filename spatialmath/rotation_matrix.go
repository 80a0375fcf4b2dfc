// Package spatialmath defines the spatial quantities used by the multibody
// packages: rotation matrices, rigid poses, and 6-vector spatial velocities
// and forces expressed in a frame at a point.
package spatialmath

import (
	"github.com/golang/geo/r3"
)

// RotationMatrix is a 3x3 rotation matrix stored in row major order.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates a rotation matrix from the given row major elements.
func NewRotationMatrix(m [9]float64) RotationMatrix {
	return RotationMatrix{mat: m}
}

// NewRotationMatrixFromCols creates a rotation matrix whose columns are the given vectors.
func NewRotationMatrixFromCols(cx, cy, cz r3.Vector) RotationMatrix {
	return RotationMatrix{mat: [9]float64{
		cx.X, cy.X, cz.X,
		cx.Y, cy.Y, cz.Y,
		cx.Z, cy.Z, cz.Z,
	}}
}

// NewIdentityRotationMatrix returns the identity rotation.
func NewIdentityRotationMatrix() RotationMatrix {
	return RotationMatrix{mat: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// At returns the element at the given row and column.
func (rm RotationMatrix) At(row, col int) float64 {
	return rm.mat[3*row+col]
}

// Row returns the a vector representing a particular row of the matrix.
func (rm RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mat[3*row], Y: rm.mat[3*row+1], Z: rm.mat[3*row+2]}
}

// Col returns a vector representing a particular column of the matrix.
func (rm RotationMatrix) Col(col int) r3.Vector {
	return r3.Vector{X: rm.mat[col], Y: rm.mat[col+3], Z: rm.mat[col+6]}
}

// MulVec returns the product of the matrix with the given vector.
func (rm RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.Row(0).Dot(v),
		Y: rm.Row(1).Dot(v),
		Z: rm.Row(2).Dot(v),
	}
}

// Transpose returns the transpose, which for a rotation matrix is also the inverse.
func (rm RotationMatrix) Transpose() RotationMatrix {
	return NewRotationMatrixFromCols(rm.Row(0), rm.Row(1), rm.Row(2))
}

// Mul returns the product rm * other.
func (rm RotationMatrix) Mul(other RotationMatrix) RotationMatrix {
	return NewRotationMatrixFromCols(
		rm.MulVec(other.Col(0)),
		rm.MulVec(other.Col(1)),
		rm.MulVec(other.Col(2)),
	)
}
