package models

import "slices"

// Table is a venue table guests are seated at.
type Table struct {
	ID             string   `json:"id"`
	EventID        string   `json:"event_id" validate:"required"`
	Name           string   `json:"name" validate:"required"`
	Capacity       int      `json:"capacity" validate:"gt=0"`
	IsLocked       bool     `json:"is_locked"`
	AssignedGuests []string `json:"assigned_guests"`
}

// HasGuest reports whether guestID is listed at the table.
func (t Table) HasGuest(guestID string) bool {
	return slices.Contains(t.AssignedGuests, guestID)
}

// GuestGroup is a transient set of guests sharing side and relationship,
// seated together when possible.
type GuestGroup struct {
	Side         Side
	Relationship string
	Members      []Guest
}

// SeatsNeeded sums the seat requirements of all members.
func (g GuestGroup) SeatsNeeded() int {
	total := 0
	for _, m := range g.Members {
		total += m.SeatsNeeded()
	}
	return total
}

// MemberIDs returns the member guest ids in group order.
func (g GuestGroup) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}
