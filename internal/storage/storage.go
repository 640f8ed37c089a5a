package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wedding-seating/internal/models"
)

// Repository is the data-access contract the seating engine reads guests and
// tables from and writes assignments back through. Guest.TableID and
// Table.AssignedGuests are only changed by CommitAssignment and
// ClearAssignment, which update both sides in one write.
type Repository interface {
	AddGuest(ctx context.Context, guest *models.Guest) error
	GetGuest(ctx context.Context, id string) (*models.Guest, error)
	GetGuestByPhone(ctx context.Context, eventID, phoneNumber string) (*models.Guest, error)
	ListGuests(ctx context.Context, eventID string) ([]models.Guest, error)
	UpdateRSVP(ctx context.Context, guestID string, update RSVPUpdate) error
	DeleteGuest(ctx context.Context, id string) error

	AddTable(ctx context.Context, table *models.Table) error
	GetTable(ctx context.Context, id string) (*models.Table, error)
	ListTables(ctx context.Context, eventID string) ([]models.Table, error)
	SetTableLock(ctx context.Context, tableID string, locked bool) error
	DeleteTable(ctx context.Context, id string) error

	CommitAssignment(ctx context.Context, guestID, tableID string) error
	ClearAssignment(ctx context.Context, guestID string) error

	Close() error
}

// RSVPUpdate carries a guest's reply. A nil AdditionalGuestCount keeps the
// current plus-one count.
type RSVPUpdate struct {
	Status               models.RSVPStatus
	AdditionalGuestCount *int
	Notes                string
}

// checkAssignment holds the rules every store applies before linking a guest
// to a table. occupied excludes the guest's own seats.
func checkAssignment(guest *models.Guest, target *models.Table, previous *models.Table, occupied int) error {
	if guest.EventID != target.EventID {
		return fmt.Errorf("%w: guest %s and table %s belong to different events", models.ErrInvalidInput, guest.ID, target.ID)
	}
	if guest.RSVPStatus != models.RSVPAccepted {
		return fmt.Errorf("guest %s (%s): %w", guest.ID, guest.RSVPStatus, models.ErrIneligibleGuest)
	}
	if target.IsLocked {
		return fmt.Errorf("table %s: %w", target.Name, models.ErrLockedTable)
	}
	if previous != nil && previous.IsLocked {
		return fmt.Errorf("moving guest off table %s: %w", previous.Name, models.ErrLockedTable)
	}
	if occupied+guest.SeatsNeeded() > target.Capacity {
		return fmt.Errorf("table %s has %d of %d seats taken, guest %s needs %d: %w",
			target.Name, occupied, target.Capacity, guest.ID, guest.SeatsNeeded(), models.ErrCapacityViolation)
	}
	return nil
}

// prepareNewGuest fills defaults for a guest that is being inserted.
func prepareNewGuest(guest *models.Guest) {
	if guest.ID == "" {
		guest.ID = uuid.NewString()
	}
	if guest.InvitedDate.IsZero() {
		guest.InvitedDate = time.Now()
	}
	if guest.RSVPStatus == "" {
		guest.RSVPStatus = models.RSVPPending
	}
	// links are created through CommitAssignment only
	guest.TableID = ""
}

// mergeGuest applies an upsert onto an existing guest, keeping the fields
// that other operations own. A guest never moves between events, and an
// answered RSVP is only changed through UpdateRSVP.
func mergeGuest(existing models.Guest, incoming models.Guest) models.Guest {
	incoming.ID = existing.ID
	incoming.EventID = existing.EventID
	incoming.InvitedDate = existing.InvitedDate
	incoming.TableID = existing.TableID
	incoming.RSVPDate = existing.RSVPDate
	switch {
	case incoming.RSVPStatus == "" || incoming.RSVPStatus == models.RSVPNotInvited:
		incoming.RSVPStatus = existing.RSVPStatus
	case incoming.RSVPStatus == models.RSVPPending && hasAnswered(existing):
		incoming.RSVPStatus = existing.RSVPStatus
	}
	return incoming
}

func hasAnswered(g models.Guest) bool {
	return g.RSVPStatus == models.RSVPAccepted || g.RSVPStatus == models.RSVPDeclined
}

func applyRSVP(guest *models.Guest, update RSVPUpdate) error {
	if update.AdditionalGuestCount != nil {
		if *update.AdditionalGuestCount < 0 {
			return fmt.Errorf("%w: negative additional guest count", models.ErrInvalidInput)
		}
		guest.AdditionalGuestCount = *update.AdditionalGuestCount
	}
	if update.Status != "" {
		guest.RSVPStatus = update.Status
	}
	if update.Notes != "" {
		guest.Notes = update.Notes
	}
	guest.RSVPDate = time.Now()
	return nil
}

// checkSeatChange rejects a plus-one change that would overflow the guest's
// current table.
func checkSeatChange(guest *models.Guest, table *models.Table, occupied int) error {
	if table == nil {
		return nil
	}
	if occupied+guest.SeatsNeeded() > table.Capacity {
		return fmt.Errorf("guest %s now needs %d seats at table %s (%d/%d taken): %w",
			guest.ID, guest.SeatsNeeded(), table.Name, occupied, table.Capacity, models.ErrCapacityViolation)
	}
	return nil
}

func prepareNewTable(table *models.Table) {
	if table.ID == "" {
		table.ID = uuid.NewString()
	}
	table.AssignedGuests = []string{}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
}
