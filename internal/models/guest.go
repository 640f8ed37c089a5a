package models

import "time"

// Guest represents a wedding guest
type Guest struct {
	ID                   string     `json:"id"`
	EventID              string     `json:"event_id" validate:"required"`
	Name                 string     `json:"name" validate:"required"`
	PhoneNumber          string     `json:"phone_number,omitempty"`
	RSVPStatus           RSVPStatus `json:"rsvp_status" validate:"omitempty,oneof=not_invited pending accepted declined no_response"`
	Side                 Side       `json:"side,omitempty" validate:"omitempty,oneof=bride groom"`
	Relationship         string     `json:"relationship,omitempty"`
	AdditionalGuestCount int        `json:"additional_guest_count" validate:"gte=0"`
	DietaryRestrictions  []string   `json:"dietary_restrictions,omitempty"`
	TableID              string     `json:"table_id,omitempty"`
	RSVPDate             time.Time  `json:"rsvp_date,omitempty"`
	InvitedDate          time.Time  `json:"invited_date"`
	Notes                string     `json:"notes,omitempty"`
}

// SeatsNeeded is the number of seats the guest occupies including plus-ones.
func (g Guest) SeatsNeeded() int {
	return 1 + g.AdditionalGuestCount
}

// IsSeated reports whether the guest carries a table assignment.
func (g Guest) IsSeated() bool {
	return g.TableID != ""
}

// RSVPStatus represents the attendance confirmation status
type RSVPStatus string

const (
	RSVPPending    RSVPStatus = "pending"
	RSVPAccepted   RSVPStatus = "accepted"
	RSVPDeclined   RSVPStatus = "declined"
	RSVPNotInvited RSVPStatus = "not_invited"
	RSVPNoResponse RSVPStatus = "no_response"
)

// Side is the half of the couple a guest is invited through.
type Side string

const (
	SideBride Side = "bride"
	SideGroom Side = "groom"
)
