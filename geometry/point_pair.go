package geometry

import (
	"github.com/golang/geo/r3"
)

// PenetrationPointPair is a penetration witness between two geometries A and B.
//
// PWCa and PWCb are the witness points on A and B expressed in world. NhatBAW
// is the unit normal pointing from B into A, expressed in world. Depth is the
// penetration extent, non negative while the pair penetrates.
type PenetrationPointPair struct {
	IDA     GeometryID
	IDB     GeometryID
	PWCa    r3.Vector
	PWCb    r3.Vector
	NhatBAW r3.Vector
	Depth   float64
}
