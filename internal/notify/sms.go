// Twilio SMS channel.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/carebridge/referral-watcher/internal/config"
)

// SMSChannel delivers notifications as text messages through Twilio. With no
// account SID or no recipients configured it degrades to a no-op.
type SMSChannel struct {
	cfg    config.SMSConfig
	client *twilio.RestClient
	log    zerolog.Logger
}

// NewSMSChannel builds the SMS channel from configuration. The Twilio client
// is only constructed when credentials are present.
func NewSMSChannel(cfg config.SMSConfig, log zerolog.Logger) *SMSChannel {
	ch := &SMSChannel{cfg: cfg, log: log.With().Str("channel", "sms").Logger()}
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		ch.client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
	}
	return ch
}

// Name identifies the channel in logs and metrics.
func (s *SMSChannel) Name() string { return "sms" }

// configured reports whether the channel has enough settings to attempt
// transport.
func (s *SMSChannel) configured() bool {
	return s.client != nil && s.cfg.From != "" && len(s.cfg.Recipients) > 0
}

// Send texts the message body to every configured recipient. Per-recipient
// failures are collected so one bad number does not mask deliveries to the
// rest.
func (s *SMSChannel) Send(ctx context.Context, msg Message) error {
	if !s.configured() {
		s.log.Debug().Msg("sms channel unconfigured, skipping")
		return nil
	}

	var errs []error
	for _, to := range s.cfg.Recipients {
		params := &twilioapi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.cfg.From)
		params.SetBody(msg.Subject + "\n" + msg.Body)

		if _, err := s.client.Api.CreateMessage(params); err != nil {
			errs = append(errs, fmt.Errorf("to %s: %v", to, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrDelivery, errors.Join(errs...))
	}
	return nil
}
