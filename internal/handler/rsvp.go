package handler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"wedding-seating/internal/models"
	"wedding-seating/internal/seating"
	"wedding-seating/internal/storage"
	"wedding-seating/internal/whatsapp"
)

// Messenger delivers messages to guests.
type Messenger interface {
	SendMessage(ctx context.Context, phoneNumber, message string) error
	SendInvitation(ctx context.Context, phoneNumber string, inv whatsapp.Invitation) error
}

type RSVPHandler struct {
	messenger Messenger
	storage   storage.Repository
	seating   *seating.Service
	config    *Config
	log       zerolog.Logger
}

type Config struct {
	EventID         string
	WeddingDate     string
	WeddingLocation string
	BrideName       string
	GroomName       string
}

// NewRSVPHandler creates a new RSVP handler
func NewRSVPHandler(messenger Messenger, repo storage.Repository, seatingService *seating.Service, cfg *Config, log zerolog.Logger) *RSVPHandler {
	return &RSVPHandler{
		messenger: messenger,
		storage:   repo,
		seating:   seatingService,
		config:    cfg,
		log:       log.With().Str("component", "RSVP").Logger(),
	}
}

// HandleMessage processes incoming WhatsApp messages for RSVP responses
func (h *RSVPHandler) HandleMessage(ctx context.Context, msg whatsapp.Incoming) error {
	return h.HandleReply(ctx, msg.Phone, msg.Text)
}

// HandleReply applies a guest's free-text reply. Messages from unknown
// numbers and messages that are not a clear yes or no are ignored.
func (h *RSVPHandler) HandleReply(ctx context.Context, phoneNumber, text string) error {
	phoneNumber = whatsapp.NormalizePhoneNumber(phoneNumber)

	// only process RSVP if guest was previously invited
	guest, err := h.storage.GetGuestByPhone(ctx, h.config.EventID, phoneNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up guest: %w", err)
	}

	reply, ok := ParseReply(text)
	if !ok {
		return nil
	}

	var responseMessage string
	err = h.apply(ctx, guest, reply)
	switch {
	case errors.Is(err, models.ErrCapacityViolation):
		h.log.Warn().Err(err).Str("guest_id", guest.ID).Msg("Plus-ones do not fit the guest's table")
		responseMessage = fmt.Sprintf(
			"Thank you! Your table is already full, so we could not update your party size. %s & %s will be in touch. 💕",
			h.config.BrideName, h.config.GroomName,
		)
	case err != nil:
		return err
	case reply.Status == models.RSVPAccepted:
		responseMessage = fmt.Sprintf(
			"🎉 Wonderful! We're so excited to celebrate with you!\n\n"+
				"We've confirmed your attendance for the wedding of %s & %s on %s.\n\n"+
				"See you there! 💕",
			h.config.BrideName, h.config.GroomName, h.config.WeddingDate,
		)
	default:
		responseMessage = fmt.Sprintf(
			"Thank you for letting us know. We're sorry you won't be able to join us for the wedding of %s & %s.\n\n"+
				"We'll miss you! 💕",
			h.config.BrideName, h.config.GroomName,
		)
	}

	if err := h.messenger.SendMessage(ctx, phoneNumber, responseMessage); err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	return nil
}

// RecordReply applies an answer the couple received some other way, such as
// by phone. No confirmation is sent to the guest.
func (h *RSVPHandler) RecordReply(ctx context.Context, guestID, text string) (Reply, error) {
	guest, err := h.storage.GetGuest(ctx, guestID)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to look up guest: %w", err)
	}
	if guest.EventID != h.config.EventID {
		return Reply{}, fmt.Errorf("guest %s is not invited to event %s: %w", guestID, h.config.EventID, models.ErrNotFound)
	}

	reply, ok := ParseReply(text)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q is not a yes or no answer", models.ErrInvalidInput, text)
	}
	if err := h.apply(ctx, guest, reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (h *RSVPHandler) apply(ctx context.Context, guest *models.Guest, reply Reply) error {
	if reply.Status == models.RSVPDeclined {
		return h.decline(ctx, guest)
	}
	return h.accept(ctx, guest, reply)
}

func (h *RSVPHandler) accept(ctx context.Context, guest *models.Guest, reply Reply) error {
	if err := h.storage.UpdateRSVP(ctx, guest.ID, storage.RSVPUpdate{
		Status:               models.RSVPAccepted,
		AdditionalGuestCount: reply.AdditionalGuests,
	}); err != nil {
		return fmt.Errorf("failed to update RSVP: %w", err)
	}

	h.log.Info().Str("guest_id", guest.ID).Msg("Guest accepted")
	return nil
}

func (h *RSVPHandler) decline(ctx context.Context, guest *models.Guest) error {
	if guest.IsSeated() {
		// a locked table keeps the seat; the integrity check will report it
		if err := h.seating.Unassign(ctx, guest.ID); err != nil {
			h.log.Warn().Err(err).Str("guest_id", guest.ID).Msg("Could not release seat of declining guest")
		}
	}

	if err := h.storage.UpdateRSVP(ctx, guest.ID, storage.RSVPUpdate{Status: models.RSVPDeclined}); err != nil {
		return fmt.Errorf("failed to update RSVP: %w", err)
	}

	h.log.Info().Str("guest_id", guest.ID).Msg("Guest declined")
	return nil
}

// SendInvitation records a guest and sends them a wedding invitation
func (h *RSVPHandler) SendInvitation(ctx context.Context, guest models.Guest) error {
	// stored numbers must match what WhatsApp reports as sender
	guest.PhoneNumber = whatsapp.NormalizePhoneNumber(guest.PhoneNumber)
	guest.EventID = h.config.EventID
	if guest.RSVPStatus == "" || guest.RSVPStatus == models.RSVPNotInvited {
		guest.RSVPStatus = models.RSVPPending
	}

	if err := h.storage.AddGuest(ctx, &guest); err != nil {
		return fmt.Errorf("failed to add guest: %w", err)
	}

	if err := h.messenger.SendInvitation(ctx, guest.PhoneNumber, whatsapp.Invitation{
		GuestName:       guest.Name,
		WeddingDate:     h.config.WeddingDate,
		WeddingLocation: h.config.WeddingLocation,
		BrideName:       h.config.BrideName,
		GroomName:       h.config.GroomName,
	}); err != nil {
		return fmt.Errorf("failed to send invitation: %w", err)
	}

	return nil
}

// SendTableNotices tells every seated, accepted guest with a phone number
// where they sit. It keeps going past individual failures and returns them
// together.
func (h *RSVPHandler) SendTableNotices(ctx context.Context) (int, error) {
	guests, err := h.storage.ListGuests(ctx, h.config.EventID)
	if err != nil {
		return 0, fmt.Errorf("failed to list guests: %w", err)
	}
	tables, err := h.storage.ListTables(ctx, h.config.EventID)
	if err != nil {
		return 0, fmt.Errorf("failed to list tables: %w", err)
	}

	tableNames := make(map[string]string, len(tables))
	for _, t := range tables {
		tableNames[t.ID] = t.Name
	}

	sent := 0
	var errs *multierror.Error
	for _, g := range seating.FilterEligible(guests) {
		name, ok := tableNames[g.TableID]
		if !ok || g.PhoneNumber == "" {
			continue
		}
		notice := whatsapp.TableNotice{
			GuestName:   g.Name,
			TableName:   name,
			Seats:       g.SeatsNeeded(),
			WeddingDate: h.config.WeddingDate,
			BrideName:   h.config.BrideName,
			GroomName:   h.config.GroomName,
		}
		if err := h.messenger.SendMessage(ctx, g.PhoneNumber, notice.Text()); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("guest %s: %w", g.ID, err))
			continue
		}
		sent++
	}

	return sent, errs.ErrorOrNil()
}

// Reply is a parsed RSVP answer.
type Reply struct {
	Status           models.RSVPStatus
	AdditionalGuests *int
}

var plusOnesPattern = regexp.MustCompile(`\+\s*(\d+)`)

// ParseReply reads a yes/no answer and an optional "+N" plus-one count.
// Declines are checked first so "not coming" is not read as "coming".
func ParseReply(text string) (Reply, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '\n'
	})

	if containsAny(text, "decline", "not coming", "not attending", "can't come", "cannot come", "won't come", "can't make it", "❌") ||
		hasWord(words, "no", "nope") {
		return Reply{Status: models.RSVPDeclined}, true
	}

	if containsAny(text, "accept", "attending", "coming", "will come", "will be there", "✅") ||
		hasWord(words, "yes", "yep", "yeah") {
		reply := Reply{Status: models.RSVPAccepted}
		if m := plusOnesPattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				reply.AdditionalGuests = &n
			}
		}
		return reply, true
	}

	return Reply{}, false
}

// containsAny checks if the text contains any of the given keywords
func containsAny(text string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func hasWord(words []string, candidates ...string) bool {
	for _, w := range words {
		for _, c := range candidates {
			if w == c {
				return true
			}
		}
	}
	return false
}
