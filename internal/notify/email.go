// SMTP email channel backed by go-mail.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	mail "github.com/wneessen/go-mail"

	"github.com/carebridge/referral-watcher/internal/config"
)

// EmailChannel delivers notifications over SMTP. With no host or no
// recipients configured it degrades to a no-op.
type EmailChannel struct {
	cfg config.EmailConfig
	log zerolog.Logger
}

// NewEmailChannel builds the email channel from configuration.
func NewEmailChannel(cfg config.EmailConfig, log zerolog.Logger) *EmailChannel {
	return &EmailChannel{cfg: cfg, log: log.With().Str("channel", "email").Logger()}
}

// Name identifies the channel in logs and metrics.
func (e *EmailChannel) Name() string { return "email" }

// configured reports whether the channel has enough settings to attempt
// transport.
func (e *EmailChannel) configured() bool {
	return e.cfg.Host != "" && e.cfg.From != "" && len(e.cfg.Recipients) > 0
}

// Send delivers the message to every configured recipient in one SMTP
// transaction.
func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if !e.configured() {
		e.log.Debug().Msg("email channel unconfigured, skipping")
		return nil
	}

	m := mail.NewMsg()
	if err := m.From(e.cfg.From); err != nil {
		return fmt.Errorf("%w: from address: %v", ErrDelivery, err)
	}
	if err := m.To(e.cfg.Recipients...); err != nil {
		return fmt.Errorf("%w: recipients: %v", ErrDelivery, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.cfg.Username),
		mail.WithPassword(e.cfg.Password),
	}
	if e.cfg.Secure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: smtp client: %v", ErrDelivery, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}
