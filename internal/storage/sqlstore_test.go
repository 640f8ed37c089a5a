package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"wedding-seating/internal/models"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "seating.db") + "?_foreign_keys=on"

	store, err := NewSQLStore(DriverSQLite, dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func TestSQLStore(t *testing.T) {
	repositoryContract(t, func(t *testing.T) Repository {
		return newSQLiteStore(t)
	})
}

func TestSQLStoreMigrateTwice(t *testing.T) {
	store := newSQLiteStore(t)
	if err := store.Migrate(); err != nil {
		t.Fatalf("expected second migration to be a no-op, got %v", err)
	}
}

func TestSQLStoreRSVPUpdate(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	guest := addGuest(t, store, "Yoni", "972500000004", 0, models.RSVPPending)

	plusOnes := 2
	if err := store.UpdateRSVP(ctx, guest, RSVPUpdate{
		Status:               models.RSVPAccepted,
		AdditionalGuestCount: &plusOnes,
		Notes:                "arriving late",
	}); err != nil {
		t.Fatalf("UpdateRSVP failed: %v", err)
	}

	got, err := store.GetGuest(ctx, guest)
	if err != nil {
		t.Fatalf("GetGuest failed: %v", err)
	}
	if got.RSVPStatus != models.RSVPAccepted || got.AdditionalGuestCount != 2 || got.Notes != "arriving late" {
		t.Fatalf("unexpected guest after RSVP: %+v", got)
	}
	if got.RSVPDate.IsZero() {
		t.Fatalf("expected RSVP date to be set")
	}
	if got.InvitedDate.IsZero() {
		t.Fatalf("expected invited date to be set")
	}
}
