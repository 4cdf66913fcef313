package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/carebridge/referral-watcher/internal/config"
	"github.com/carebridge/referral-watcher/internal/domain"
)

type stubChannel struct {
	name string
	err  error
	sent int
	last Message
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(ctx context.Context, msg Message) error {
	s.sent++
	s.last = msg
	return s.err
}

func sampleRecord() *domain.ReferralRecord {
	return &domain.ReferralRecord{
		ID:          "id-1",
		MemberID:    "A1",
		RequestOn:   "2024-01-15T08:00:00Z",
		MemberName:  "Jane Roe",
		ServiceName: "Home Care",
		RegionName:  "North",
		Status:      "PENDING",
	}
}

func TestDispatch_AllChannelsAttempted(t *testing.T) {
	email := &stubChannel{name: "email"}
	sms := &stubChannel{name: "sms"}
	d := NewDispatcher(zerolog.Nop(), email, sms)

	failed := d.Dispatch(context.Background(), sampleRecord())
	if failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}
	if email.sent != 1 || sms.sent != 1 {
		t.Fatalf("channels not attempted: email=%d sms=%d", email.sent, sms.sent)
	}
	if !strings.Contains(email.last.Subject, "Jane Roe") {
		t.Fatalf("unexpected subject %q", email.last.Subject)
	}
}

func TestDispatch_FailureDoesNotBlockOtherChannel(t *testing.T) {
	email := &stubChannel{name: "email", err: errors.New("smtp down")}
	sms := &stubChannel{name: "sms"}
	d := NewDispatcher(zerolog.Nop(), email, sms)

	failed := d.Dispatch(context.Background(), sampleRecord())
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if sms.sent != 1 {
		t.Fatal("sms channel skipped after email failure")
	}
}

func TestDispatch_NoChannels(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	if failed := d.Dispatch(context.Background(), sampleRecord()); failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}
}

func TestEmailChannel_UnconfiguredIsNoOp(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.EmailConfig
	}{
		{"no host", config.EmailConfig{From: "a@b.c", Recipients: []string{"x@y.z"}}},
		{"no recipients", config.EmailConfig{Host: "smtp.example.com", From: "a@b.c"}},
		{"no from", config.EmailConfig{Host: "smtp.example.com", Recipients: []string{"x@y.z"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := NewEmailChannel(tc.cfg, zerolog.Nop())
			if err := ch.Send(context.Background(), Message{Subject: "s", Body: "b"}); err != nil {
				t.Fatalf("expected no-op nil, got %v", err)
			}
		})
	}
}

func TestSMSChannel_UnconfiguredIsNoOp(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.SMSConfig
	}{
		{"no credentials", config.SMSConfig{From: "+15550001", Recipients: []string{"+15550002"}}},
		{"no recipients", config.SMSConfig{AccountSID: "AC1", AuthToken: "t", From: "+15550001"}},
		{"no from", config.SMSConfig{AccountSID: "AC1", AuthToken: "t", Recipients: []string{"+15550002"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := NewSMSChannel(tc.cfg, zerolog.Nop())
			if err := ch.Send(context.Background(), Message{Subject: "s", Body: "b"}); err != nil {
				t.Fatalf("expected no-op nil, got %v", err)
			}
		})
	}
}

func TestMessageFor_ContainsNaturalKey(t *testing.T) {
	msg := MessageFor(sampleRecord())
	if !strings.Contains(msg.Body, "A1") || !strings.Contains(msg.Body, "2024-01-15T08:00:00Z") {
		t.Fatalf("body missing natural key: %q", msg.Body)
	}
}
