package whatsapp

import (
	"context"

	"github.com/rs/zerolog"
)

// OfflineSender logs outgoing messages instead of sending them. It stands in
// for Service when WhatsApp is disabled.
type OfflineSender struct {
	log zerolog.Logger
}

func NewOfflineSender(log zerolog.Logger) *OfflineSender {
	return &OfflineSender{log: log.With().Str("component", "WhatsAppOffline").Logger()}
}

func (o *OfflineSender) SendMessage(_ context.Context, phoneNumber, message string) error {
	o.log.Info().Str("phone", NormalizePhoneNumber(phoneNumber)).Str("message", message).Msg("Message not sent (offline)")
	return nil
}

func (o *OfflineSender) SendInvitation(ctx context.Context, phoneNumber string, inv Invitation) error {
	return o.SendMessage(ctx, phoneNumber, inv.Text())
}
