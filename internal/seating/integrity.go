package seating

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"wedding-seating/internal/models"
)

// IssueKind classifies an integrity problem.
type IssueKind string

const (
	IssueGuestNotListed   IssueKind = "guest_not_listed"
	IssueUnlinkedListing  IssueKind = "unlinked_listing"
	IssueUnknownTable     IssueKind = "unknown_table"
	IssueUnknownGuest     IssueKind = "unknown_guest"
	IssueDuplicateSeat    IssueKind = "duplicate_seat"
	IssueOverCapacity     IssueKind = "over_capacity"
	IssueIneligibleSeated IssueKind = "ineligible_seated"
)

// Issue is one integrity finding.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	GuestID string    `json:"guest_id,omitempty"`
	TableID string    `json:"table_id,omitempty"`
	Detail  string    `json:"detail"`
}

// Err wraps the finding in the matching sentinel error.
func (i Issue) Err() error {
	var sentinel error
	switch i.Kind {
	case IssueOverCapacity:
		sentinel = models.ErrCapacityViolation
	case IssueIneligibleSeated:
		sentinel = models.ErrIneligibleGuest
	default:
		sentinel = models.ErrLinkDrift
	}
	return fmt.Errorf("%w: %s", sentinel, i.Detail)
}

// IntegrityReport lists everything wrong with an event's seating data.
type IntegrityReport struct {
	EventID string  `json:"event_id"`
	Issues  []Issue `json:"issues"`
}

// OK reports whether no issues were found.
func (r IntegrityReport) OK() bool {
	return len(r.Issues) == 0
}

// Err aggregates all issues, or returns nil.
func (r IntegrityReport) Err() error {
	var result *multierror.Error
	for _, issue := range r.Issues {
		result = multierror.Append(result, issue.Err())
	}
	return result.ErrorOrNil()
}

// Warnings renders the issues as human-readable lines.
func (r IntegrityReport) Warnings() []string {
	warnings := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		warnings = append(warnings, fmt.Sprintf("%s: %s", issue.Kind, issue.Detail))
	}
	return warnings
}

// Inspect cross-checks both sides of every guest/table link. It only reports;
// it never modifies its input.
func Inspect(eventID string, guests []models.Guest, tables []models.Table) IntegrityReport {
	report := IntegrityReport{EventID: eventID, Issues: []Issue{}}

	guestByID := make(map[string]models.Guest, len(guests))
	for _, g := range guests {
		guestByID[g.ID] = g
	}
	tableByID := make(map[string]models.Table, len(tables))
	listedAt := make(map[string][]string)
	for _, t := range tables {
		tableByID[t.ID] = t
		for _, id := range t.AssignedGuests {
			listedAt[id] = append(listedAt[id], t.ID)
		}
	}

	for _, g := range guests {
		if g.TableID != "" {
			t, ok := tableByID[g.TableID]
			switch {
			case !ok:
				report.add(IssueUnknownTable, g.ID, g.TableID, "guest %s points at missing table %s", g.ID, g.TableID)
			case !t.HasGuest(g.ID):
				report.add(IssueGuestNotListed, g.ID, t.ID, "guest %s points at table %s which does not list them", g.ID, t.Name)
			}
		}
		if seatedAt := listedAt[g.ID]; len(seatedAt) > 1 {
			report.add(IssueDuplicateSeat, g.ID, "", "guest %s is listed at %d tables %v", g.ID, len(seatedAt), seatedAt)
		}
		if g.RSVPStatus != models.RSVPAccepted && (g.IsSeated() || len(listedAt[g.ID]) > 0) {
			report.add(IssueIneligibleSeated, g.ID, g.TableID, "guest %s is seated with RSVP status %s", g.ID, g.RSVPStatus)
		}
	}

	for _, t := range tables {
		seats := 0
		for _, id := range t.AssignedGuests {
			g, ok := guestByID[id]
			if !ok {
				report.add(IssueUnknownGuest, id, t.ID, "table %s lists missing guest %s", t.Name, id)
				continue
			}
			seats += g.SeatsNeeded()
			if g.TableID != t.ID {
				report.add(IssueUnlinkedListing, id, t.ID, "table %s lists guest %s whose table is %q", t.Name, id, g.TableID)
			}
		}
		if seats > t.Capacity {
			report.add(IssueOverCapacity, "", t.ID, "table %s seats %d of %d", t.Name, seats, t.Capacity)
		}
	}

	return report
}

func (r *IntegrityReport) add(kind IssueKind, guestID, tableID, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Kind:    kind,
		GuestID: guestID,
		TableID: tableID,
		Detail:  fmt.Sprintf(format, args...),
	})
}
