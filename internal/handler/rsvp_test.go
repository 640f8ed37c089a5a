package handler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"wedding-seating/internal/models"
	"wedding-seating/internal/seating"
	"wedding-seating/internal/storage"
	"wedding-seating/internal/whatsapp"
)

type sentMessage struct {
	phone string
	text  string
}

type fakeMessenger struct {
	sent        []sentMessage
	invitations []whatsapp.Invitation
	failFor     string
}

func (m *fakeMessenger) SendMessage(_ context.Context, phoneNumber, message string) error {
	if phoneNumber == m.failFor {
		return errors.New("not on whatsapp")
	}
	m.sent = append(m.sent, sentMessage{phone: phoneNumber, text: message})
	return nil
}

func (m *fakeMessenger) SendInvitation(_ context.Context, phoneNumber string, inv whatsapp.Invitation) error {
	m.invitations = append(m.invitations, inv)
	return m.SendMessage(context.Background(), phoneNumber, "invitation")
}

type fixture struct {
	store     *storage.MemoryStore
	seating   *seating.Service
	messenger *fakeMessenger
	handler   *RSVPHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewMemoryStore("")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	svc := seating.NewService(store, nil, seating.DefaultPolicy(), nil, zerolog.Nop())
	messenger := &fakeMessenger{}
	h := NewRSVPHandler(messenger, store, svc, &Config{
		EventID:     "wedding",
		WeddingDate: "June 1",
		BrideName:   "Noa",
		GroomName:   "Amit",
	}, zerolog.Nop())

	return &fixture{store: store, seating: svc, messenger: messenger, handler: h}
}

func (f *fixture) invite(t *testing.T, name, phone string) string {
	t.Helper()
	if err := f.handler.SendInvitation(context.Background(), models.Guest{
		Name:         name,
		PhoneNumber:  phone,
		Side:         models.SideBride,
		Relationship: "Friend",
	}); err != nil {
		t.Fatalf("SendInvitation failed: %v", err)
	}
	guest, err := f.store.GetGuestByPhone(context.Background(), "wedding", whatsapp.NormalizePhoneNumber(phone))
	if err != nil {
		t.Fatalf("invited guest not stored: %v", err)
	}
	return guest.ID
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		text     string
		ok       bool
		status   models.RSVPStatus
		plusOnes int // -1 means no count given
	}{
		{"yes", true, models.RSVPAccepted, -1},
		{"YES +2", true, models.RSVPAccepted, 2},
		{"Yes, we're coming + 3", true, models.RSVPAccepted, 3},
		{"I am attending!", true, models.RSVPAccepted, -1},
		{"✅", true, models.RSVPAccepted, -1},
		{"no", true, models.RSVPDeclined, -1},
		{"Nope, sorry", true, models.RSVPDeclined, -1},
		{"sorry, not coming", true, models.RSVPDeclined, -1},
		{"We are not attending", true, models.RSVPDeclined, -1},
		{"❌", true, models.RSVPDeclined, -1},
		{"I know!", false, "", -1},
		{"maybe", false, "", -1},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			reply, ok := ParseReply(tc.text)
			if ok != tc.ok {
				t.Fatalf("ParseReply(%q) ok = %v, want %v", tc.text, ok, tc.ok)
			}
			if !ok {
				return
			}
			if reply.Status != tc.status {
				t.Fatalf("ParseReply(%q) status = %s, want %s", tc.text, reply.Status, tc.status)
			}
			switch {
			case tc.plusOnes < 0 && reply.AdditionalGuests != nil:
				t.Fatalf("ParseReply(%q) expected no plus-ones, got %d", tc.text, *reply.AdditionalGuests)
			case tc.plusOnes >= 0 && (reply.AdditionalGuests == nil || *reply.AdditionalGuests != tc.plusOnes):
				t.Fatalf("ParseReply(%q) expected %d plus-ones, got %v", tc.text, tc.plusOnes, reply.AdditionalGuests)
			}
		})
	}
}

func TestSendInvitationStoresPendingGuest(t *testing.T) {
	f := newFixture(t)
	id := f.invite(t, "Dana", "050-123-4567")

	guest, err := f.store.GetGuest(context.Background(), id)
	if err != nil {
		t.Fatalf("GetGuest failed: %v", err)
	}
	if guest.PhoneNumber != "972501234567" {
		t.Fatalf("expected normalized phone, got %s", guest.PhoneNumber)
	}
	if guest.RSVPStatus != models.RSVPPending {
		t.Fatalf("expected pending status, got %s", guest.RSVPStatus)
	}
	if len(f.messenger.invitations) != 1 || f.messenger.invitations[0].GuestName != "Dana" {
		t.Fatalf("expected one invitation for Dana, got %+v", f.messenger.invitations)
	}
}

func TestHandleReplyAcceptsWithPlusOnes(t *testing.T) {
	f := newFixture(t)
	id := f.invite(t, "Dana", "0501234567")
	f.messenger.sent = nil

	if err := f.handler.HandleReply(context.Background(), "972501234567", "Yes! +1"); err != nil {
		t.Fatalf("HandleReply failed: %v", err)
	}

	guest, err := f.store.GetGuest(context.Background(), id)
	if err != nil {
		t.Fatalf("GetGuest failed: %v", err)
	}
	if guest.RSVPStatus != models.RSVPAccepted || guest.AdditionalGuestCount != 1 {
		t.Fatalf("expected accepted with one plus-one, got %s +%d", guest.RSVPStatus, guest.AdditionalGuestCount)
	}
	if guest.RSVPDate.IsZero() {
		t.Fatalf("expected RSVP date to be recorded")
	}
	if len(f.messenger.sent) != 1 || !strings.Contains(f.messenger.sent[0].text, "Noa & Amit") {
		t.Fatalf("expected a confirmation message, got %+v", f.messenger.sent)
	}
}

func TestHandleMessageRoutesIncomingText(t *testing.T) {
	f := newFixture(t)
	id := f.invite(t, "Dana", "0501234567")

	if err := f.handler.HandleMessage(context.Background(), whatsapp.Incoming{Phone: "972501234567", Text: "no, sorry"}); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	guest, err := f.store.GetGuest(context.Background(), id)
	if err != nil {
		t.Fatalf("GetGuest failed: %v", err)
	}
	if guest.RSVPStatus != models.RSVPDeclined {
		t.Fatalf("expected declined, got %s", guest.RSVPStatus)
	}
}

func TestSendInvitationAgainKeepsAcceptedGuestSeated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.invite(t, "Dana", "0501234567")

	table := models.Table{EventID: "wedding", Name: "Garden", Capacity: 4}
	if err := f.store.AddTable(ctx, &table); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	if err := f.handler.HandleReply(ctx, "972501234567", "yes"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := f.seating.Assign(ctx, id, table.ID); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if again := f.invite(t, "Dana", "050-123-4567"); again != id {
		t.Fatalf("expected re-invite to update guest %s, got %s", id, again)
	}

	guest, err := f.store.GetGuest(ctx, id)
	if err != nil {
		t.Fatalf("GetGuest failed: %v", err)
	}
	if guest.RSVPStatus != models.RSVPAccepted || guest.TableID != table.ID {
		t.Fatalf("expected guest to stay accepted at %s, got %s at %q", table.ID, guest.RSVPStatus, guest.TableID)
	}
	report, err := f.seating.CheckIntegrity(ctx, "wedding")
	if err != nil {
		t.Fatalf("CheckIntegrity failed: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected no integrity issues, got %+v", report.Issues)
	}
}

func TestRecordReplyUpdatesGuestWithoutMessaging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.invite(t, "Dana", "0501234567")
	f.messenger.sent = nil

	reply, err := f.handler.RecordReply(ctx, id, "yes +2")
	if err != nil {
		t.Fatalf("RecordReply failed: %v", err)
	}
	if reply.Status != models.RSVPAccepted {
		t.Fatalf("expected accepted reply, got %s", reply.Status)
	}

	guest, err := f.store.GetGuest(ctx, id)
	if err != nil {
		t.Fatalf("GetGuest failed: %v", err)
	}
	if guest.RSVPStatus != models.RSVPAccepted || guest.AdditionalGuestCount != 2 {
		t.Fatalf("expected accepted with two plus-ones, got %s +%d", guest.RSVPStatus, guest.AdditionalGuestCount)
	}
	if len(f.messenger.sent) != 0 {
		t.Fatalf("expected no messages, got %+v", f.messenger.sent)
	}

	if _, err := f.handler.RecordReply(ctx, id, "maybe"); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unclear answer, got %v", err)
	}
	if _, err := f.handler.RecordReply(ctx, "missing", "yes"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown guest, got %v", err)
	}
}

func TestHandleReplyIgnoresUnknownSenders(t *testing.T) {
	f := newFixture(t)
	f.invite(t, "Dana", "0501234567")
	f.messenger.sent = nil

	if err := f.handler.HandleReply(context.Background(), "15551234567", "yes"); err != nil {
		t.Fatalf("expected unknown sender to be ignored, got %v", err)
	}
	if err := f.handler.HandleReply(context.Background(), "972501234567", "what time does it start?"); err != nil {
		t.Fatalf("expected unclear reply to be ignored, got %v", err)
	}
	if len(f.messenger.sent) != 0 {
		t.Fatalf("expected no replies, got %+v", f.messenger.sent)
	}
}

func TestHandleReplyDeclineReleasesSeat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.invite(t, "Dana", "0501234567")

	table := models.Table{EventID: "wedding", Name: "Garden", Capacity: 4}
	if err := f.store.AddTable(ctx, &table); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	if err := f.handler.HandleReply(ctx, "972501234567", "yes"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := f.seating.Assign(ctx, id, table.ID); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if err := f.handler.HandleReply(ctx, "972501234567", "Sorry, can't make it"); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	guest, err := f.store.GetGuest(ctx, id)
	if err != nil {
		t.Fatalf("GetGuest failed: %v", err)
	}
	if guest.RSVPStatus != models.RSVPDeclined || guest.IsSeated() {
		t.Fatalf("expected declined and unseated guest, got %s at %q", guest.RSVPStatus, guest.TableID)
	}
	got, err := f.store.GetTable(ctx, table.ID)
	if err != nil {
		t.Fatalf("GetTable failed: %v", err)
	}
	if len(got.AssignedGuests) != 0 {
		t.Fatalf("expected seat released, got %v", got.AssignedGuests)
	}
}

func TestHandleReplyKeepsPartySizeWhenTableIsFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.invite(t, "Dana", "0501234567")

	table := models.Table{EventID: "wedding", Name: "Small", Capacity: 2}
	if err := f.store.AddTable(ctx, &table); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	if err := f.handler.HandleReply(ctx, "972501234567", "yes +1"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if err := f.seating.Assign(ctx, id, table.ID); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	f.messenger.sent = nil

	if err := f.handler.HandleReply(ctx, "972501234567", "yes +3"); err != nil {
		t.Fatalf("expected overflow to be answered, not failed: %v", err)
	}

	guest, err := f.store.GetGuest(ctx, id)
	if err != nil {
		t.Fatalf("GetGuest failed: %v", err)
	}
	if guest.AdditionalGuestCount != 1 {
		t.Fatalf("expected party size unchanged, got +%d", guest.AdditionalGuestCount)
	}
	if len(f.messenger.sent) != 1 || !strings.Contains(f.messenger.sent[0].text, "table is already full") {
		t.Fatalf("expected a table-full reply, got %+v", f.messenger.sent)
	}
}

func TestSendTableNotices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dana := f.invite(t, "Dana", "0501234567")
	omer := f.invite(t, "Omer", "0507654321")
	f.invite(t, "Pending", "0509999999")

	table := models.Table{EventID: "wedding", Name: "Garden", Capacity: 6}
	if err := f.store.AddTable(ctx, &table); err != nil {
		t.Fatalf("AddTable failed: %v", err)
	}
	for _, phone := range []string{"972501234567", "972507654321"} {
		if err := f.handler.HandleReply(ctx, phone, "yes"); err != nil {
			t.Fatalf("accept failed: %v", err)
		}
	}
	for _, id := range []string{dana, omer} {
		if err := f.seating.Assign(ctx, id, table.ID); err != nil {
			t.Fatalf("Assign failed: %v", err)
		}
	}

	f.messenger.sent = nil
	f.messenger.failFor = "972507654321"

	sent, err := f.handler.SendTableNotices(ctx)
	if sent != 1 {
		t.Fatalf("expected one notice delivered, got %d", sent)
	}
	if err == nil || !strings.Contains(err.Error(), omer) {
		t.Fatalf("expected failure for Omer to be reported, got %v", err)
	}
	if len(f.messenger.sent) != 1 || !strings.Contains(f.messenger.sent[0].text, "Garden") {
		t.Fatalf("expected Dana's notice to name the table, got %+v", f.messenger.sent)
	}
}
