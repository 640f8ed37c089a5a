package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Incoming is a text message received from a guest.
type Incoming struct {
	Phone string
	Text  string
	At    time.Time
}

// MessageHandler receives guest messages. Returned errors are logged.
type MessageHandler func(ctx context.Context, msg Incoming) error

type Config struct {
	DataDir string
}

// Service is a linked WhatsApp device used to invite guests and read their
// replies.
type Service struct {
	client  *whatsmeow.Client
	cfg     *Config
	log     zerolog.Logger
	handler MessageHandler
}

// NewService opens the device store in DataDir and prepares a client. The
// client is not connected until Connect.
func NewService(ctx context.Context, cfg *Config, log zerolog.Logger) (*Service, error) {
	// nil logger: sqlstore falls back to a no-op logger
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s/whatsmeow.db?_foreign_keys=on", cfg.DataDir), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	s := &Service{
		client: whatsmeow.NewClient(device, nil),
		cfg:    cfg,
		log:    log.With().Str("component", "WhatsApp").Logger(),
	}
	s.client.AddEventHandler(s.dispatch)
	return s, nil
}

var phoneSeparators = strings.NewReplacer("+", "", " ", "", "-", "", "(", "", ")", "")

// NormalizePhoneNumber strips formatting and rewrites Israeli local numbers
// (05XXXXXXXX) and 9720-prefixed numbers to 9725XXXXXXXX.
func NormalizePhoneNumber(phoneNumber string) string {
	phoneNumber = phoneSeparators.Replace(phoneNumber)

	switch {
	case strings.HasPrefix(phoneNumber, "0") && len(phoneNumber) == 10:
		phoneNumber = "972" + phoneNumber[1:]
	case strings.HasPrefix(phoneNumber, "9720"):
		phoneNumber = "972" + phoneNumber[4:]
	}
	return phoneNumber
}

// Connect connects to WhatsApp. A device that was never paired prints a QR
// code to the terminal and blocks until pairing ends.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to request pairing code: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	for evt := range qrChan {
		if evt.Event == "code" {
			printPairingCode(evt.Code)
			continue
		}
		s.log.Info().Str("event", evt.Event).Msg("Pairing event")
	}
	return nil
}

func printPairingCode(code string) {
	q, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		fmt.Printf("QR Code: %s\n", code)
		fmt.Println("Please scan this QR code with WhatsApp to connect.")
		return
	}
	fmt.Println("\n" + q.ToSmallString(false))
	fmt.Println("📱 Scan the QR code above from WhatsApp > Settings > Linked Devices > Link a Device")
}

func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// SendInvitation sends the wedding invitation asking for a YES/NO reply.
func (s *Service) SendInvitation(ctx context.Context, phoneNumber string, inv Invitation) error {
	return s.SendMessage(ctx, phoneNumber, inv.Text())
}

// SendMessage sends a plain text message to a registered WhatsApp number.
func (s *Service) SendMessage(ctx context.Context, phoneNumber, message string) error {
	phoneNumber = NormalizePhoneNumber(phoneNumber)

	jid, err := s.lookup(ctx, phoneNumber)
	if err != nil {
		return err
	}

	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: &message})
	if err != nil {
		if strings.Contains(err.Error(), "unknown server") || strings.Contains(err.Error(), "can't send message") {
			return fmt.Errorf("failed to send message to %s (JID: %s): %w; the guest must be a saved contact or message first", phoneNumber, jid, err)
		}
		return fmt.Errorf("failed to send message: %w", err)
	}

	s.log.Info().Str("id", sent.ID).Str("phone", phoneNumber).Time("timestamp", sent.Timestamp).Msg("Message sent")
	return nil
}

// lookup resolves a normalized number to the JID WhatsApp reports for it.
func (s *Service) lookup(ctx context.Context, phoneNumber string) (types.JID, error) {
	resp, err := s.client.IsOnWhatsApp(ctx, []string{phoneNumber})
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, fmt.Errorf("number %s is not registered on WhatsApp", phoneNumber)
	}
	s.log.Debug().Str("phone", phoneNumber).Str("jid", resp[0].JID.String()).Msg("Number verified")
	return resp[0].JID, nil
}

func (s *Service) dispatch(evt interface{}) {
	switch evt := evt.(type) {
	case *events.Message:
		s.receive(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Warn().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp; delete the device store to pair again")
	}
}

func (s *Service) receive(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Message == nil {
		return
	}

	msg := Incoming{
		Phone: NormalizePhoneNumber(evt.Info.Sender.User),
		Text:  messageText(evt.Message),
		At:    evt.Info.Timestamp,
	}
	if msg.Text == "" {
		return
	}

	if s.handler == nil {
		s.log.Info().Str("phone", msg.Phone).Str("text", msg.Text).Msg("Received message")
		return
	}
	if err := s.handler(context.Background(), msg); err != nil {
		s.log.Error().Err(err).Str("phone", msg.Phone).Msg("Error handling message")
	}
}

// messageText returns the text of a plain or quoted-reply message.
func messageText(m *waE2E.Message) string {
	if text := m.GetConversation(); text != "" {
		return text
	}
	return m.GetExtendedTextMessage().GetText()
}

// SetMessageHandler routes incoming guest messages to handler.
func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.handler = handler
}
