package plant

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/multibody"
	"go.dynamech.dev/plant/multibody/stribeck"
	"go.dynamech.dev/plant/spatialmath"
)

// calcPointPairPenetrations queries the geometry engine for the current
// penetrations. Only float64 plants may query; plants without collision
// geometry never touch the query port.
func (p *Plant) calcPointPairPenetrations(ctx *Context) ([]geometry.PenetrationPointPair, error) {
	if p.NumCollisionGeometries() == 0 {
		return nil, nil
	}
	if p.scalar != ScalarFloat64 {
		return nil, ErrScalarNotSupported
	}
	if ctx.queryObject == nil {
		return nil, ErrQueryPortDisconnected
	}
	return ctx.queryObject.ComputePointPairPenetration(), nil
}

// calcCombinedFrictionCoefficients combines the surface frictions of each
// point pair's two geometries.
func (p *Plant) calcCombinedFrictionCoefficients(
	pairs []geometry.PenetrationPointPair,
) ([]multibody.CoulombFriction, error) {
	combined := make([]multibody.CoulombFriction, 0, len(pairs))
	for _, pair := range pairs {
		frictionA, err := p.collisionFriction(pair.IDA)
		if err != nil {
			return nil, err
		}
		frictionB, err := p.collisionFriction(pair.IDB)
		if err != nil {
			return nil, err
		}
		combined = append(combined, multibody.CombineFrictionCoefficients(frictionA, frictionB))
	}
	return combined, nil
}

func (p *Plant) collisionFriction(id geometry.GeometryID) (multibody.CoulombFriction, error) {
	index, ok := p.geometryIDToCollisionIndex[id]
	if !ok {
		return multibody.CoulombFriction{}, NewInvalidArgumentError(
			"geometry %d is not a registered collision geometry", id)
	}
	return p.defaultCoulombFriction[index], nil
}

func (p *Plant) pairBodies(pair geometry.PenetrationPointPair) (multibody.Body, multibody.Body, error) {
	indexA, ok := p.geometryIDToBodyIndex[pair.IDA]
	if !ok {
		return nil, nil, NewInvalidArgumentError("geometry %d is not registered with this plant", pair.IDA)
	}
	indexB, ok := p.geometryIDToBodyIndex[pair.IDB]
	if !ok {
		return nil, nil, NewInvalidArgumentError("geometry %d is not registered with this plant", pair.IDB)
	}
	return p.tree.Body(indexA), p.tree.Body(indexB), nil
}

// calcNormalSeparationVelocitiesJacobian builds Jn (nc x nv) such that
// vn = Jn v, with rows nhat_BA_Wᵀ (J_WAc - J_WBc).
func (p *Plant) calcNormalSeparationVelocitiesJacobian(
	q []float64, pairs []geometry.PenetrationPointPair,
) (*mat.Dense, error) {
	nv := p.tree.NumVelocities()
	jn := mat.NewDense(len(pairs), nv, nil)
	jvWAc := mat.NewDense(3, nv, nil)
	jvWBc := mat.NewDense(3, nv, nil)

	for i, pair := range pairs {
		bodyA, bodyB, err := p.pairBodies(pair)
		if err != nil {
			return nil, err
		}
		if err := p.tree.CalcPointsGeometricJacobianExpressedInWorld(q, bodyA.Index(), pair.PWCa, jvWAc); err != nil {
			return nil, err
		}
		if err := p.tree.CalcPointsGeometricJacobianExpressedInWorld(q, bodyB.Index(), pair.PWCb, jvWBc); err != nil {
			return nil, err
		}
		n := pair.NhatBAW
		for col := 0; col < nv; col++ {
			diff := r3.Vector{
				X: jvWAc.At(0, col) - jvWBc.At(0, col),
				Y: jvWAc.At(1, col) - jvWBc.At(1, col),
				Z: jvWAc.At(2, col) - jvWBc.At(2, col),
			}
			jn.Set(i, col, n.Dot(diff))
		}
	}
	return jn, nil
}

// calcTangentVelocitiesJacobian builds Jt (2nc x nv) such that vt = Jt v,
// together with the contact frame rotation R_WC of every pair. The contact
// frame's z axis is the pair normal; the two tangents come from the
// deterministic basis construction, so Jt is a pure function of the pairs.
// Note the sign convention: tangent rows use J_WBc - J_WAc while the normal
// rows use J_WAc - J_WBc. The implicit solver is calibrated to this pairing.
func (p *Plant) calcTangentVelocitiesJacobian(
	q []float64, pairs []geometry.PenetrationPointPair,
) (*mat.Dense, []spatialmath.RotationMatrix, error) {
	nv := p.tree.NumVelocities()
	jt := mat.NewDense(2*len(pairs), nv, nil)
	rWCSet := make([]spatialmath.RotationMatrix, 0, len(pairs))
	jvWAc := mat.NewDense(3, nv, nil)
	jvWBc := mat.NewDense(3, nv, nil)

	for i, pair := range pairs {
		bodyA, bodyB, err := p.pairBodies(pair)
		if err != nil {
			return nil, nil, err
		}
		rWC, err := spatialmath.ComputeBasisFromAxis(2, pair.NhatBAW)
		if err != nil {
			return nil, nil, err
		}
		rWCSet = append(rWCSet, rWC)
		that1 := rWC.Col(0)
		that2 := rWC.Col(1)

		if err := p.tree.CalcPointsGeometricJacobianExpressedInWorld(q, bodyA.Index(), pair.PWCa, jvWAc); err != nil {
			return nil, nil, err
		}
		if err := p.tree.CalcPointsGeometricJacobianExpressedInWorld(q, bodyB.Index(), pair.PWCb, jvWBc); err != nil {
			return nil, nil, err
		}
		for col := 0; col < nv; col++ {
			diff := r3.Vector{
				X: jvWBc.At(0, col) - jvWAc.At(0, col),
				Y: jvWBc.At(1, col) - jvWAc.At(1, col),
				Z: jvWBc.At(2, col) - jvWAc.At(2, col),
			}
			jt.Set(2*i, col, that1.Dot(diff))
			jt.Set(2*i+1, col, that2.Dot(diff))
		}
	}
	return jt, rWCSet, nil
}

// calcAndAddContactForcesByPenaltyMethod computes the compliant contact force
// of every point pair and accumulates the resulting spatial forces, shifted
// to the body origins, into bodyForces (indexed by body node index). The
// world body receives none.
func (p *Plant) calcAndAddContactForcesByPenaltyMethod(
	pc *multibody.PositionKinematicsCache,
	vc *multibody.VelocityKinematicsCache,
	pairs []geometry.PenetrationPointPair,
	bodyForces []spatialmath.SpatialForce,
) error {
	if p.NumCollisionGeometries() == 0 {
		return nil
	}
	combined, err := p.calcCombinedFrictionCoefficients(pairs)
	if err != nil {
		return err
	}

	for i, pair := range pairs {
		bodyA, bodyB, err := p.pairBodies(pair)
		if err != nil {
			return err
		}
		x := pair.Depth
		nhatBAW := pair.NhatBAW

		// Contact point, midway between the witnesses.
		pWC := pair.PWCa.Add(pair.PWCb).Mul(0.5)

		pWAo := pc.PoseInWorld(bodyA.NodeIndex()).Point()
		pCoAoW := pWAo.Sub(pWC)
		pWBo := pc.PoseInWorld(bodyB.NodeIndex()).Point()
		pCoBoW := pWBo.Sub(pWC)

		vWAc := vc.SpatialVelocityInWorld(bodyA.NodeIndex()).Shift(pCoAoW.Mul(-1)).Linear
		vWBc := vc.SpatialVelocityInWorld(bodyB.NodeIndex()).Shift(pCoBoW.Mul(-1)).Linear
		vAcBcW := vWBc.Sub(vWAc)

		// Approach speed: positive while the penetration deepens.
		vn := vAcBcW.Dot(nhatBAW)

		k := p.penaltyParams.stiffness
		d := p.penaltyParams.damping
		fnAC := k * x * (1 + d*vn)
		if fnAC <= 0 {
			// Hunt-Crossley dissipation pulls the force to zero at liftoff.
			continue
		}
		fnACW := nhatBAW.Mul(fnAC)

		// Tangential velocity in the contact plane.
		vtAcBcW := vAcBcW.Sub(nhatBAW.Mul(vn))
		vtSquared := vtAcBcW.Dot(vtAcBcW)

		// Treat speeds below 1e-14 as zero to avoid dividing by the norm.
		const nonZeroSquared = 1e-14 * 1e-14
		ftACW := r3.Vector{}
		if vtSquared > nonZeroSquared {
			vt := math.Sqrt(vtSquared)
			muStribeck := p.stribeck.computeFrictionCoefficient(vt, combined[i])
			thatW := vtAcBcW.Mul(1 / vt)
			ftACW = thatW.Mul(muStribeck * fnAC)
		}

		fACW := spatialmath.SpatialForce{Force: fnACW.Add(ftACW)}
		if bodyA.Index() != multibody.WorldBodyIndex() {
			bodyForces[bodyA.NodeIndex()] = bodyForces[bodyA.NodeIndex()].Add(fACW.Shift(pCoAoW))
		}
		if bodyB.Index() != multibody.WorldBodyIndex() {
			bodyForces[bodyB.NodeIndex()] = bodyForces[bodyB.NodeIndex()].Add(fACW.Shift(pCoBoW).Neg())
		}
	}
	return nil
}

// calcContactResults reconstructs the per contact forces and velocities from
// the solver outputs and the contact frames of this step.
func (p *Plant) calcContactResults(
	pairs []geometry.PenetrationPointPair,
	rWCSet []spatialmath.RotationMatrix,
	results *stribeck.Results,
) (ContactResults, error) {
	var out ContactResults
	for i, pair := range pairs {
		bodyA, bodyB, err := p.pairBodies(pair)
		if err != nil {
			return ContactResults{}, err
		}
		rWC := rWCSet[i]

		// Contact force on B at C, rotated out of the contact frame.
		fBcC := r3.Vector{X: results.Ft[2*i], Y: results.Ft[2*i+1], Z: results.Fn[i]}
		fBcW := rWC.MulVec(fBcC)

		out.AddContactInfo(ContactInfo{
			BodyA:              bodyA.Index(),
			BodyB:              bodyB.Index(),
			ContactForceW:      fBcW,
			ContactPointW:      pair.PWCa.Add(pair.PWCb).Mul(0.5),
			SeparationVelocity: results.Vn[i],
			SlipSpeed:          math.Hypot(results.Vt[2*i], results.Vt[2*i+1]),
			PointPair:          pair,
		})
	}
	return out, nil
}
