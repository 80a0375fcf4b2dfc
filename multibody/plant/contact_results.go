package plant

import (
	"github.com/golang/geo/r3"

	"go.dynamech.dev/plant/geometry"
	"go.dynamech.dev/plant/multibody"
)

// ContactInfo describes one resolved contact: the force on body B applied at
// the contact point, expressed in world, together with the kinematic state of
// the contact and the point pair it originated from.
type ContactInfo struct {
	BodyA multibody.BodyIndex
	BodyB multibody.BodyIndex
	// ContactForceW is f_Bc_W, the force on body B at the contact point.
	ContactForceW r3.Vector
	// ContactPointW is the contact point, midway between the two witnesses.
	ContactPointW r3.Vector
	// SeparationVelocity is the normal relative velocity at the contact.
	SeparationVelocity float64
	// SlipSpeed is the magnitude of the tangential relative velocity.
	SlipSpeed float64
	// PointPair is the penetration witness this contact was resolved from.
	PointPair geometry.PenetrationPointPair
}

// ContactResults is the list of contacts resolved by the latest update.
type ContactResults struct {
	info []ContactInfo
}

// NumContacts returns the number of resolved contacts.
func (cr *ContactResults) NumContacts() int { return len(cr.info) }

// ContactInfo returns the i-th resolved contact.
func (cr *ContactResults) ContactInfo(i int) ContactInfo { return cr.info[i] }

// Clear empties the list, keeping capacity.
func (cr *ContactResults) Clear() { cr.info = cr.info[:0] }

// AddContactInfo appends a resolved contact.
func (cr *ContactResults) AddContactInfo(info ContactInfo) {
	cr.info = append(cr.info, info)
}
