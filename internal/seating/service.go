package seating

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wedding-seating/internal/metrics"
	"wedding-seating/internal/models"
	"wedding-seating/internal/storage"
)

// Result summarizes an automatic arrangement run.
type Result struct {
	EventID          string          `json:"event_id"`
	AssignedCount    int             `json:"assigned_count"`
	SeatsAssigned    int             `json:"seats_assigned"`
	UnplacedGuestIDs []string        `json:"unplaced_guest_ids"`
	Assignments      []Assignment    `json:"assignments"`
	Unplaced         []UnplacedGroup `json:"unplaced"`
	Warnings         []string        `json:"warnings"`
}

// Service runs arrangements and manual seat changes against a repository,
// one mutation per event at a time.
type Service struct {
	repo    storage.Repository
	locker  EventLocker
	policy  Policy
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewService creates a seating service. A nil locker falls back to an
// in-process MemoryLocker.
func NewService(repo storage.Repository, locker EventLocker, policy Policy, m *metrics.Metrics, log zerolog.Logger) *Service {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		policy:  policy,
		metrics: m,
		log:     log.With().Str("component", "Seating").Logger(),
	}
}

// ListAcceptedGuests returns the event's guests that may be seated.
func (s *Service) ListAcceptedGuests(ctx context.Context, eventID string) ([]models.Guest, error) {
	guests, err := s.repo.ListGuests(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}
	return FilterEligible(guests), nil
}

// ListUnlockedTables returns the tables automatic arrangement may use.
func (s *Service) ListUnlockedTables(ctx context.Context, eventID string) ([]models.Table, error) {
	tables, err := s.repo.ListTables(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	unlocked := make([]models.Table, 0, len(tables))
	for _, t := range tables {
		if !t.IsLocked {
			unlocked = append(unlocked, t)
		}
	}
	return unlocked, nil
}

// AutoArrange seats every accepted, unseated guest of the event it can.
// Guests already seated stay where they are unless opts.Reset clears the
// unlocked tables first; locked tables are never touched. Groups that fit
// nowhere are reported in the result, not as an error.
func (s *Service) AutoArrange(ctx context.Context, eventID string, opts Options) (*Result, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", models.ErrInvalidInput)
	}
	if err := models.Validate(opts); err != nil {
		return nil, err
	}

	start := time.Now()
	unlock, err := s.locker.Lock(ctx, eventID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result, err := s.arrange(ctx, eventID, opts)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveArrangement(metrics.OutcomeFailed, 0, 0, elapsed)
		return nil, err
	}

	outcome := metrics.OutcomeComplete
	if len(result.UnplacedGuestIDs) > 0 {
		outcome = metrics.OutcomePartial
	}
	s.metrics.ObserveArrangement(outcome, result.AssignedCount, len(result.UnplacedGuestIDs), elapsed)

	s.log.Info().
		Str("event_id", eventID).
		Int("assigned", result.AssignedCount).
		Int("seats", result.SeatsAssigned).
		Int("unplaced", len(result.UnplacedGuestIDs)).
		Int("warnings", len(result.Warnings)).
		Dur("elapsed", elapsed).
		Msg("Arrangement finished")

	return result, nil
}

func (s *Service) arrange(ctx context.Context, eventID string, opts Options) (*Result, error) {
	guests, tables, err := s.snapshot(ctx, eventID)
	if err != nil {
		return nil, err
	}

	report := Inspect(eventID, guests, tables)
	s.metrics.SetIntegrityIssues(eventID, len(report.Issues))
	if !report.OK() {
		s.log.Warn().Str("event_id", eventID).Int("issues", len(report.Issues)).Msg("Seating data has integrity issues")
	}

	if opts.Reset {
		if err := s.clearUnlocked(ctx, guests, tables); err != nil {
			return nil, err
		}
		if guests, tables, err = s.snapshot(ctx, eventID); err != nil {
			return nil, err
		}
	}

	guestByID := make(map[string]models.Guest, len(guests))
	for _, g := range guests {
		guestByID[g.ID] = g
	}

	states := make([]TableState, 0, len(tables))
	for _, t := range tables {
		if t.IsLocked {
			continue
		}
		seated := make([]models.Guest, 0, len(t.AssignedGuests))
		for _, id := range t.AssignedGuests {
			if g, ok := guestByID[id]; ok {
				seated = append(seated, g)
			}
		}
		states = append(states, NewTableState(t, seated, opts.MaxGuestsPerTable))
	}

	var unseated []models.Guest
	for _, g := range FilterEligible(guests) {
		if !g.IsSeated() {
			unseated = append(unseated, g)
		}
	}

	groups := GroupGuests(unseated, opts.RespectRelationships)
	planned, unplaced := Plan(groups, states, s.policy, opts)

	result := &Result{
		EventID:          eventID,
		UnplacedGuestIDs: []string{},
		Assignments:      []Assignment{},
		Warnings:         report.Warnings(),
	}

	for _, a := range planned {
		if err := s.commitGroup(ctx, a); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.log.Error().Err(err).Str("table_id", a.TableID).Strs("guests", a.GuestIDs).Msg("Failed to commit group")
			unplaced = append(unplaced, UnplacedGroup{
				Side:         a.Side,
				Relationship: a.Relationship,
				GuestIDs:     a.GuestIDs,
				Seats:        a.Seats,
				Reason:       err,
			})
			continue
		}
		result.Assignments = append(result.Assignments, a)
		result.AssignedCount += len(a.GuestIDs)
		result.SeatsAssigned += a.Seats
	}

	result.Unplaced = unplaced
	for _, u := range unplaced {
		result.UnplacedGuestIDs = append(result.UnplacedGuestIDs, u.GuestIDs...)
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d guests unplaced (%s/%s): %v",
			len(u.GuestIDs), u.Side, u.Relationship, u.Reason))
	}

	return result, nil
}

// commitGroup writes every member's link. If one member fails, members
// already written are unlinked again so the group is seated whole or not at
// all.
func (s *Service) commitGroup(ctx context.Context, a Assignment) error {
	committed := make([]string, 0, len(a.GuestIDs))
	for _, guestID := range a.GuestIDs {
		if err := s.repo.CommitAssignment(ctx, guestID, a.TableID); err != nil {
			for _, id := range committed {
				if rbErr := s.repo.ClearAssignment(ctx, id); rbErr != nil {
					s.log.Error().Err(rbErr).Str("guest_id", id).Msg("Failed to roll back assignment")
				}
			}
			return fmt.Errorf("failed to seat guest %s at table %s: %w", guestID, a.TableName, err)
		}
		committed = append(committed, guestID)
	}
	return nil
}

func (s *Service) clearUnlocked(ctx context.Context, guests []models.Guest, tables []models.Table) error {
	unlocked := make(map[string]bool, len(tables))
	for _, t := range tables {
		if !t.IsLocked {
			unlocked[t.ID] = true
		}
	}
	for _, g := range guests {
		if g.IsSeated() && unlocked[g.TableID] {
			if err := s.repo.ClearAssignment(ctx, g.ID); err != nil {
				return fmt.Errorf("failed to reset guest %s: %w", g.ID, err)
			}
		}
	}
	return nil
}

func (s *Service) snapshot(ctx context.Context, eventID string) ([]models.Guest, []models.Table, error) {
	guests, err := s.repo.ListGuests(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list guests: %w", err)
	}
	tables, err := s.repo.ListTables(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return guests, tables, nil
}

// Assign seats a guest at a table by hand, moving them if already seated.
// Re-assigning to the same table is a no-op.
func (s *Service) Assign(ctx context.Context, guestID, tableID string) error {
	guest, err := s.repo.GetGuest(ctx, guestID)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, guest.EventID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.repo.CommitAssignment(ctx, guestID, tableID)
	s.metrics.ObserveAssignment("assign", err)
	if err != nil {
		return fmt.Errorf("failed to assign guest %s: %w", guestID, err)
	}

	s.log.Info().Str("guest_id", guestID).Str("table_id", tableID).Msg("Guest assigned")
	return nil
}

// Unassign removes a guest from their table. Unseated guests are left as is.
func (s *Service) Unassign(ctx context.Context, guestID string) error {
	guest, err := s.repo.GetGuest(ctx, guestID)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, guest.EventID)
	if err != nil {
		return err
	}
	defer unlock()

	err = s.repo.ClearAssignment(ctx, guestID)
	s.metrics.ObserveAssignment("unassign", err)
	if err != nil {
		return fmt.Errorf("failed to unassign guest %s: %w", guestID, err)
	}

	s.log.Info().Str("guest_id", guestID).Str("table_id", guest.TableID).Msg("Guest unassigned")
	return nil
}

// SetTableLock locks or unlocks a table for automatic arrangement.
func (s *Service) SetTableLock(ctx context.Context, tableID string, locked bool) error {
	table, err := s.repo.GetTable(ctx, tableID)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, table.EventID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.SetTableLock(ctx, tableID, locked); err != nil {
		return fmt.Errorf("failed to set lock on table %s: %w", table.Name, err)
	}

	s.log.Info().Str("table_id", tableID).Bool("locked", locked).Msg("Table lock changed")
	return nil
}

// CheckIntegrity reports link drift, over-capacity tables and seated guests
// who have not accepted.
func (s *Service) CheckIntegrity(ctx context.Context, eventID string) (*IntegrityReport, error) {
	guests, tables, err := s.snapshot(ctx, eventID)
	if err != nil {
		return nil, err
	}

	report := Inspect(eventID, guests, tables)
	s.metrics.SetIntegrityIssues(eventID, len(report.Issues))
	return &report, nil
}
