// Package notify fans newly persisted referrals out to operator channels.
// Dispatch is best-effort and non-blocking for the pipeline: a channel
// failure is logged and counted, never propagated, and never prevents the
// other channel from being attempted.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/carebridge/referral-watcher/internal/domain"
)

// ErrDelivery indicates a channel failed to hand the message to its
// transport. Channels wrap transport errors with this sentinel.
var ErrDelivery = errors.New("notification delivery failed")

// Message is a channel-agnostic notification payload.
type Message struct {
	Subject string
	Body    string
}

// Channel is one independent delivery capability. Implementations must be
// no-ops (nil error, no transport attempt) when they have no recipients or
// credentials configured.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// deliveryFailures counts channel send failures by channel name.
var deliveryFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notify_delivery_failures_total",
		Help: "Total notification delivery failures by channel.",
	},
	[]string{"channel"},
)

func init() {
	prometheus.MustRegister(deliveryFailures)
}

// Dispatcher sends each message to every configured channel.
type Dispatcher struct {
	channels []Channel
	log      zerolog.Logger
}

// NewDispatcher builds a Dispatcher over the given channels.
func NewDispatcher(log zerolog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// Dispatch sends the referral announcement to every channel. Each channel's
// failure domain is independent: errors are logged and counted, and the
// number of failed channels is returned for cycle summaries only.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *domain.ReferralRecord) int {
	msg := MessageFor(rec)
	failed := 0
	for _, ch := range d.channels {
		if err := ch.Send(ctx, msg); err != nil {
			failed++
			deliveryFailures.WithLabelValues(ch.Name()).Inc()
			d.log.Error().
				Err(err).
				Str("channel", ch.Name()).
				Str("member_id", rec.MemberID).
				Str("request_on", rec.RequestOn).
				Msg("notification delivery failed")
			continue
		}
		d.log.Info().
			Str("channel", ch.Name()).
			Str("member_id", rec.MemberID).
			Msg("notification sent")
	}
	return failed
}

// MessageFor renders the operator-facing announcement for one referral.
func MessageFor(rec *domain.ReferralRecord) Message {
	return Message{
		Subject: fmt.Sprintf("New referral: %s", rec.MemberName),
		Body: fmt.Sprintf(
			"New referral received.\n\nMember: %s (%s)\nService: %s\nRegion: %s / %s\nPlan: %s\nPreferred start: %s\nStatus: %s\nRequested on: %s\n",
			rec.MemberName, rec.MemberID, rec.ServiceName, rec.RegionName,
			rec.County, rec.Plan, rec.PreferredStartDate, rec.Status, rec.RequestOn,
		),
	}
}
