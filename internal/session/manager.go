// Package session implements the portal authentication state machine.
//
// Exactly one live session exists per worker process. The Manager drives the
// lifecycle Closed → Opening → AwaitingCredentials → AwaitingChallenge →
// Authenticated, re-entered from Closed after Invalidate. Every transition
// is emitted as a structured event.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/carebridge/referral-watcher/internal/browser"
	"github.com/carebridge/referral-watcher/internal/config"
	"github.com/carebridge/referral-watcher/internal/domain"
	"github.com/carebridge/referral-watcher/internal/totp"
)

// Agent is the interactive capability the state machine drives. The rod
// implementation lives in internal/browser; tests substitute a scripted
// fake.
type Agent interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	ClickByText(ctx context.Context, selector, pattern string) error
	Type(ctx context.Context, selector, text string) error
	DetectFirst(ctx context.Context, markers []browser.Marker) (string, error)
	CurrentURL() (string, error)
	ElementText(ctx context.Context, selector string) (string, error)
	Texts(ctx context.Context, selector string) ([]string, error)
	EnterFrame(ctx context.Context, selector string) error
	ExitFrame()
	SelectOption(ctx context.Context, selector, preferred string) error
	CookieHeader() (string, error)
	Screenshot(dir, label string) (string, error)
	Close() error
}

// Outcome marker names used in post-submission status detection.
const (
	markerDashboard = "dashboard"
	markerChallenge = "challenge"
	markerBanner    = "banner"
	markerError     = "error"
)

// Manager owns the single live session. All methods are safe for concurrent
// use, but in practice the polling engine is the only writer; the HTTP
// control surface only reads State, which answers from its own lock so a
// login in flight never stalls a status probe.
type Manager struct {
	portal    config.PortalConfig
	shotDir   string
	selectors Selectors
	provision func() (Agent, error)
	log       zerolog.Logger

	mu           sync.Mutex // serializes session operations (Ensure, Cookies, Texts, Invalidate)
	agent        Agent
	challenge    *domain.AuthChallenge
	navConfirmed int // post-login steps already verified for the live agent

	stateMu sync.Mutex // guards state only; acquired after mu, never before
	state   domain.SessionState
}

// NewManager wires a Manager around an agent provisioner. The provisioner is
// invoked lazily on first use and again after every invalidation.
func NewManager(portal config.PortalConfig, shotDir string, sel Selectors, provision func() (Agent, error), log zerolog.Logger) *Manager {
	return &Manager{
		portal:    portal,
		shotDir:   shotDir,
		selectors: sel,
		provision: provision,
		log:       log.With().Str("component", "session").Logger(),
		state:     domain.SessionClosed,
	}
}

// State reports the current lifecycle state. It does not take the operation
// lock, so it answers immediately even mid-login.
func (m *Manager) State() domain.SessionState {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// Cookies returns the concatenated cookie jar for out-of-band HTTP calls.
// Only valid while Authenticated.
func (m *Manager) Cookies(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() != domain.SessionAuthenticated || m.agent == nil {
		return "", ErrNotAuthenticated
	}
	return m.agent.CookieHeader()
}

// Texts exposes structured extraction from the live page for the secondary
// (UI-derived) referral path. Only valid while Authenticated.
func (m *Manager) Texts(ctx context.Context, selector string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.State() != domain.SessionAuthenticated || m.agent == nil {
		return nil, ErrNotAuthenticated
	}
	return m.agent.Texts(ctx, selector)
}

// Invalidate tears the session down after a downstream authorization
// failure. The next Ensure call rebuilds from Closed.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(domain.SessionInvalidated)
	m.teardown()
}

// Close releases the browser. The manager can be reused afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown()
	m.transition(domain.SessionClosed)
}

// teardown closes the live agent and resets per-agent progress. Caller holds
// the lock.
func (m *Manager) teardown() {
	if m.agent != nil {
		_ = m.agent.Close()
		m.agent = nil
	}
	m.challenge = nil
	m.navConfirmed = 0
}

// transition records a state change as a structured event. Caller holds the
// operation lock; the state itself moves under stateMu.
func (m *Manager) transition(to domain.SessionState) {
	m.stateMu.Lock()
	from := m.state
	m.state = to
	m.stateMu.Unlock()
	if from == to {
		return
	}
	m.log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("session state")
}

// Ensure drives the state machine until the session is Authenticated, or
// returns a classified error. Idempotent: an already-authenticated session
// returns immediately.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == domain.SessionAuthenticated && m.agent != nil {
		return nil
	}

	// Anything short of Authenticated restarts from a fresh browser: a
	// half-logged-in page is not worth repairing.
	m.teardown()
	m.transition(domain.SessionOpening)

	agent, err := m.provision()
	if err != nil {
		m.transition(domain.SessionClosed)
		return fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	m.agent = agent

	if err := m.login(ctx); err != nil {
		m.diagnose("login-failed")
		m.teardown()
		m.transition(domain.SessionClosed)
		return err
	}

	if err := m.ensureWorkspace(ctx); err != nil {
		// Each step is idempotent and navConfirmed survives the retry, so
		// the sequence resumes at the step that failed instead of
		// restarting the whole navigation.
		m.log.Warn().Err(err).Msg("workspace navigation failed, resuming from last confirmed step")
		if err := m.ensureWorkspace(ctx); err != nil {
			m.diagnose("workspace-nav-failed")
			m.teardown()
			m.transition(domain.SessionClosed)
			return err
		}
	}

	m.transition(domain.SessionAuthenticated)
	return nil
}

// login submits credentials and resolves the post-submission outcome,
// including the second factor when the portal asks for one. Caller holds the
// lock.
func (m *Manager) login(ctx context.Context) error {
	sel := m.selectors

	if err := m.agent.Navigate(ctx, m.portal.LoginURL); err != nil {
		// Absence of a load signal is not proof of failure; detection
		// below decides. Only log the timeout.
		m.log.Warn().Err(err).Msg("login navigation did not settle")
	}
	m.transition(domain.SessionAwaitingCredentials)

	if err := m.agent.Type(ctx, sel.UsernameInput, m.portal.Username); err != nil {
		return fmt.Errorf("enter username: %w", err)
	}
	if err := m.agent.Type(ctx, sel.PasswordInput, m.portal.Password); err != nil {
		return fmt.Errorf("enter password: %w", err)
	}
	if err := m.agent.Click(ctx, sel.SubmitButton); err != nil {
		return fmt.Errorf("submit credentials: %w", err)
	}

	outcome, err := m.agent.DetectFirst(ctx, []browser.Marker{
		{Name: markerDashboard, Selector: sel.DashboardMarker},
		{Name: markerChallenge, Selector: sel.ChallengeForm},
		{Name: markerBanner, Selector: sel.CookieBanner},
	})
	if err != nil {
		// Nothing resolved within the bounded wait. Fall back to URL
		// inspection.
		url, uerr := m.agent.CurrentURL()
		if uerr != nil {
			return fmt.Errorf("%w: no marker and no URL: %v", ErrNavigationTimeout, uerr)
		}
		if looksLikeLoginURL(url) {
			return fmt.Errorf("%w: still at %s", ErrLoginFailed, url)
		}
		m.log.Warn().Str("url", url).Msg("no outcome marker; URL suggests success")
		return nil
	}

	switch outcome {
	case markerDashboard, markerBanner:
		return nil
	case markerChallenge:
		return m.completeChallenge(ctx)
	default:
		return fmt.Errorf("%w: unexpected marker %q", ErrLoginFailed, outcome)
	}
}

// completeChallenge handles the authenticator-app second factor. Caller
// holds the lock.
func (m *Manager) completeChallenge(ctx context.Context) error {
	sel := m.selectors
	m.transition(domain.SessionAwaitingChallenge)
	m.challenge = &domain.AuthChallenge{Type: domain.ChallengeAuthenticatorApp, AttemptsRemaining: 1}
	defer func() { m.challenge = nil }()

	// Select the authenticator-app option: attribute locator, then label
	// text, then first available option.
	_, err := browser.FirstOf("challenge selection", []browser.Strategy[struct{}]{
		{Name: "attribute locator", Run: func() (struct{}, error) {
			return struct{}{}, m.agent.Click(ctx, sel.ChallengeAppOption)
		}},
		{Name: "label text", Run: func() (struct{}, error) {
			return struct{}{}, m.agent.ClickByText(ctx, sel.ChallengeOptionAny, sel.ChallengeAppPattern)
		}},
		{Name: "first option", Run: func() (struct{}, error) {
			return struct{}{}, m.agent.Click(ctx, sel.ChallengeFirstOption)
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeSelectionFailed, err)
	}

	code, err := totp.Generate(m.portal.TOTPSecret)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	_, err = browser.FirstOf("code entry", []browser.Strategy[struct{}]{
		{Name: "named input", Run: func() (struct{}, error) {
			return struct{}{}, m.agent.Type(ctx, sel.CodeInput, code)
		}},
		{Name: "one-time-code input", Run: func() (struct{}, error) {
			return struct{}{}, m.agent.Type(ctx, sel.CodeInputFallback, code)
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeSelectionFailed, err)
	}
	if err := m.agent.Click(ctx, sel.CodeSubmit); err != nil {
		return fmt.Errorf("submit code: %w", err)
	}

	outcome, err := m.agent.DetectFirst(ctx, []browser.Marker{
		{Name: markerDashboard, Selector: sel.DashboardMarker},
		{Name: markerBanner, Selector: sel.CookieBanner},
		{Name: markerError, Selector: sel.ErrorBanner},
	})
	if err != nil {
		// No explicit error banner within the bounded wait counts as
		// success.
		m.log.Debug().Msg("no post-challenge marker; treating as accepted")
		return nil
	}
	if outcome == markerError {
		msg, terr := m.agent.ElementText(ctx, sel.ErrorBanner)
		if terr != nil {
			msg = "(banner text unavailable)"
		}
		return fmt.Errorf("%w: %s", ErrChallengeRejected, strings.TrimSpace(msg))
	}
	return nil
}

// navStep is one idempotent stage of the post-login workspace navigation.
// Each step is independently retryable; progress is tracked so a failure
// mid-sequence resumes from the last confirmed step.
type navStep struct {
	name string
	run  func(ctx context.Context) error
}

// ensureWorkspace walks the menu → iframe → provider-selection sequence.
// Caller holds the lock.
func (m *Manager) ensureWorkspace(ctx context.Context) error {
	sel := m.selectors
	steps := []navStep{
		{name: "open referral menu", run: func(ctx context.Context) error {
			return m.agent.ClickByText(ctx, sel.AppMenuLink, sel.AppMenuPattern)
		}},
		{name: "enter workspace frame", run: func(ctx context.Context) error {
			return m.agent.EnterFrame(ctx, sel.WorkspaceFrame)
		}},
		{name: "select provider", run: func(ctx context.Context) error {
			return m.agent.SelectOption(ctx, sel.ProviderSelect, m.portal.PreferredProvider)
		}},
	}

	for i := m.navConfirmed; i < len(steps); i++ {
		step := steps[i]
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("workspace step %q: %w", step.name, err)
		}
		m.navConfirmed = i + 1
		m.log.Debug().Str("step", step.name).Msg("workspace navigation confirmed")
	}
	return nil
}

// diagnose captures an optional screenshot and attaches it to a structured
// error event. Never affects control flow. Caller holds the lock.
func (m *Manager) diagnose(label string) {
	if m.agent == nil || m.shotDir == "" {
		return
	}
	path, err := m.agent.Screenshot(m.shotDir, label)
	if err != nil {
		m.log.Debug().Err(err).Msg("diagnostic screenshot failed")
		return
	}
	m.log.Error().Str("diagnostic", path).Str("label", label).Msg("session failure artifact")
}

// looksLikeLoginURL reports whether the URL is still on a login-related
// path, the fallback signal that credential submission failed.
func looksLikeLoginURL(url string) bool {
	lower := strings.ToLower(url)
	for _, frag := range []string{"login", "signin", "sign-in", "auth/"} {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
