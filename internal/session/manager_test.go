package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/referral-watcher/internal/browser"
	"github.com/carebridge/referral-watcher/internal/config"
	"github.com/carebridge/referral-watcher/internal/domain"
)

// fakeAgent scripts the portal's behavior for state machine tests.
type fakeAgent struct {
	// detectOutcomes is consumed one element per DetectFirst call; an
	// empty string simulates a detection timeout.
	detectOutcomes []string
	currentURL     string
	errorText      string
	cookieHeader   string

	failClick   map[string]bool // selector -> fail
	failType    map[string]bool
	failSelect  int // fail the next N SelectOption calls
	typed       map[string]string
	clicked     []string
	closed      bool
	frames      int
	selectCalls int

	// navGate, when set, blocks Navigate until closed.
	navGate chan struct{}
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		failClick:    map[string]bool{},
		failType:     map[string]bool{},
		typed:        map[string]string{},
		cookieHeader: "SESSION=abc; XSRF-TOKEN=tok",
		currentURL:   "https://portal.example.com/dashboard",
	}
}

func (f *fakeAgent) Navigate(ctx context.Context, url string) error {
	if f.navGate != nil {
		<-f.navGate
	}
	return nil
}
func (f *fakeAgent) WaitVisible(ctx context.Context, sel string) error {
	return nil
}

func (f *fakeAgent) Click(ctx context.Context, sel string) error {
	if f.failClick[sel] {
		return errors.New("no such element")
	}
	f.clicked = append(f.clicked, sel)
	return nil
}

func (f *fakeAgent) ClickByText(ctx context.Context, sel, pattern string) error {
	key := sel + "|" + pattern
	if f.failClick[key] {
		return errors.New("no text match")
	}
	f.clicked = append(f.clicked, key)
	return nil
}

func (f *fakeAgent) Type(ctx context.Context, sel, text string) error {
	if f.failType[sel] {
		return errors.New("no such input")
	}
	f.typed[sel] = text
	return nil
}

func (f *fakeAgent) DetectFirst(ctx context.Context, markers []browser.Marker) (string, error) {
	if len(f.detectOutcomes) == 0 {
		return "", errors.New("detect: timeout")
	}
	out := f.detectOutcomes[0]
	f.detectOutcomes = f.detectOutcomes[1:]
	if out == "" {
		return "", errors.New("detect: timeout")
	}
	return out, nil
}

func (f *fakeAgent) CurrentURL() (string, error) { return f.currentURL, nil }

func (f *fakeAgent) ElementText(ctx context.Context, sel string) (string, error) {
	return f.errorText, nil
}

func (f *fakeAgent) Texts(ctx context.Context, sel string) ([]string, error) {
	return nil, nil
}

func (f *fakeAgent) EnterFrame(ctx context.Context, sel string) error {
	f.frames++
	return nil
}

func (f *fakeAgent) ExitFrame() {}

func (f *fakeAgent) SelectOption(ctx context.Context, sel, preferred string) error {
	f.selectCalls++
	if f.failSelect > 0 {
		f.failSelect--
		return errors.New("dropdown not ready")
	}
	return nil
}

func (f *fakeAgent) CookieHeader() (string, error) { return f.cookieHeader, nil }

func (f *fakeAgent) Screenshot(dir, label string) (string, error) { return "", nil }

func (f *fakeAgent) Close() error {
	f.closed = true
	return nil
}

func testPortal() config.PortalConfig {
	return config.PortalConfig{
		LoginURL:   "https://portal.example.com/login",
		Username:   "user",
		Password:   "pass",
		TOTPSecret: "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ",
	}
}

func newTestManager(agent *fakeAgent) *Manager {
	return NewManager(testPortal(), "", DefaultSelectors(),
		func() (Agent, error) { return agent, nil }, zerolog.Nop())
}

func TestEnsure_DashboardMarker_Authenticates(t *testing.T) {
	agent := newFakeAgent()
	agent.detectOutcomes = []string{markerDashboard}
	m := newTestManager(agent)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := m.State(); got != domain.SessionAuthenticated {
		t.Fatalf("state = %s, want authenticated", got)
	}
	if agent.typed[DefaultSelectors().UsernameInput] != "user" {
		t.Fatalf("username not typed: %+v", agent.typed)
	}
	// Post-login navigation ran to completion.
	if agent.frames != 1 || agent.selectCalls != 1 {
		t.Fatalf("workspace navigation incomplete: frames=%d selects=%d", agent.frames, agent.selectCalls)
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	agent := newFakeAgent()
	agent.detectOutcomes = []string{markerDashboard}
	provisions := 0
	m := NewManager(testPortal(), "", DefaultSelectors(),
		func() (Agent, error) { provisions++; return agent, nil }, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if err := m.Ensure(context.Background()); err != nil {
			t.Fatalf("Ensure #%d: %v", i, err)
		}
	}
	if provisions != 1 {
		t.Fatalf("expected one provision, got %d", provisions)
	}
}

func TestEnsure_ChallengeFlow_TypesTOTPCode(t *testing.T) {
	sel := DefaultSelectors()
	agent := newFakeAgent()
	agent.detectOutcomes = []string{markerChallenge, markerDashboard}
	// Attribute locator misses; label-text strategy must take over.
	agent.failClick[sel.ChallengeAppOption] = true
	m := newTestManager(agent)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	code := agent.typed[sel.CodeInput]
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code typed, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-numeric code %q", code)
		}
	}

	labelKey := sel.ChallengeOptionAny + "|" + sel.ChallengeAppPattern
	found := false
	for _, c := range agent.clicked {
		if c == labelKey {
			found = true
		}
	}
	if !found {
		t.Fatalf("label-text fallback never used: %v", agent.clicked)
	}
}

func TestEnsure_ChallengeSelectionExhausted(t *testing.T) {
	sel := DefaultSelectors()
	agent := newFakeAgent()
	agent.detectOutcomes = []string{markerChallenge}
	agent.failClick[sel.ChallengeAppOption] = true
	agent.failClick[sel.ChallengeOptionAny+"|"+sel.ChallengeAppPattern] = true
	agent.failClick[sel.ChallengeFirstOption] = true
	m := newTestManager(agent)

	err := m.Ensure(context.Background())
	if !errors.Is(err, ErrChallengeSelectionFailed) {
		t.Fatalf("expected ErrChallengeSelectionFailed, got %v", err)
	}
	if got := m.State(); got != domain.SessionClosed {
		t.Fatalf("state = %s, want closed after terminal failure", got)
	}
	if !agent.closed {
		t.Fatal("agent not torn down after failure")
	}
}

func TestEnsure_ChallengeRejected_CapturesBannerText(t *testing.T) {
	agent := newFakeAgent()
	agent.detectOutcomes = []string{markerChallenge, markerError}
	agent.errorText = "The code you entered is invalid."
	m := newTestManager(agent)

	err := m.Ensure(context.Background())
	if !errors.Is(err, ErrChallengeRejected) {
		t.Fatalf("expected ErrChallengeRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid") {
		t.Fatalf("banner text not captured: %v", err)
	}
}

func TestEnsure_ChallengeNoMarker_TreatedAsAccepted(t *testing.T) {
	agent := newFakeAgent()
	// Challenge form appears, then nothing resolves after code submission:
	// absence of an error banner counts as success.
	agent.detectOutcomes = []string{markerChallenge, ""}
	m := newTestManager(agent)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := m.State(); got != domain.SessionAuthenticated {
		t.Fatalf("state = %s, want authenticated", got)
	}
}

func TestEnsure_DetectionTimeout_LoginURLMeansFailure(t *testing.T) {
	agent := newFakeAgent()
	agent.detectOutcomes = []string{""}
	agent.currentURL = "https://portal.example.com/login?error=1"
	m := newTestManager(agent)

	err := m.Ensure(context.Background())
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

func TestEnsure_DetectionTimeout_NonLoginURLMeansSuccess(t *testing.T) {
	agent := newFakeAgent()
	agent.detectOutcomes = []string{""}
	agent.currentURL = "https://portal.example.com/home"
	m := newTestManager(agent)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := m.State(); got != domain.SessionAuthenticated {
		t.Fatalf("state = %s, want authenticated", got)
	}
}

func TestEnsure_ProvisioningFailure(t *testing.T) {
	m := NewManager(testPortal(), "", DefaultSelectors(),
		func() (Agent, error) { return nil, errors.New("no chromium") }, zerolog.Nop())

	err := m.Ensure(context.Background())
	if !errors.Is(err, ErrProvisioning) {
		t.Fatalf("expected ErrProvisioning, got %v", err)
	}
	if got := m.State(); got != domain.SessionClosed {
		t.Fatalf("state = %s, want closed", got)
	}
}

func TestInvalidate_ThenEnsure_Reprovisions(t *testing.T) {
	provisions := 0
	mk := func() (Agent, error) {
		provisions++
		a := newFakeAgent()
		a.detectOutcomes = []string{markerDashboard}
		return a, nil
	}
	m := NewManager(testPortal(), "", DefaultSelectors(), mk, zerolog.Nop())

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	m.Invalidate()
	if got := m.State(); got != domain.SessionInvalidated {
		t.Fatalf("state = %s, want invalidated", got)
	}
	if _, err := m.Cookies(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated after invalidation, got %v", err)
	}

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure after invalidate: %v", err)
	}
	if provisions != 2 {
		t.Fatalf("expected reprovisioning, provisions=%d", provisions)
	}
}

func TestEnsure_WorkspaceNavigationResumesFromConfirmedStep(t *testing.T) {
	agent := newFakeAgent()
	agent.detectOutcomes = []string{markerDashboard}
	agent.failSelect = 1 // provider dropdown misses on the first attempt
	m := newTestManager(agent)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := m.State(); got != domain.SessionAuthenticated {
		t.Fatalf("state = %s, want authenticated", got)
	}

	// Only the failed step reruns; the confirmed ones are skipped.
	sel := DefaultSelectors()
	menuKey := sel.AppMenuLink + "|" + sel.AppMenuPattern
	menuClicks := 0
	for _, c := range agent.clicked {
		if c == menuKey {
			menuClicks++
		}
	}
	if menuClicks != 1 {
		t.Fatalf("menu clicked %d times, want 1", menuClicks)
	}
	if agent.frames != 1 {
		t.Fatalf("frame entered %d times, want 1", agent.frames)
	}
	if agent.selectCalls != 2 {
		t.Fatalf("provider selection attempted %d times, want 2", agent.selectCalls)
	}
}

func TestState_AnswersDuringInFlightLogin(t *testing.T) {
	agent := newFakeAgent()
	gate := make(chan struct{})
	agent.navGate = gate
	agent.detectOutcomes = []string{markerDashboard}
	m := newTestManager(agent)

	done := make(chan error, 1)
	go func() { done <- m.Ensure(context.Background()) }()

	// The login is parked inside Navigate; State must still answer.
	deadline := time.After(5 * time.Second)
	for m.State() != domain.SessionOpening {
		select {
		case <-deadline:
			t.Fatal("State blocked behind in-flight login")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got := m.State(); got != domain.SessionAuthenticated {
		t.Fatalf("state = %s, want authenticated", got)
	}
}

func TestCookies_WhileAuthenticated(t *testing.T) {
	agent := newFakeAgent()
	agent.detectOutcomes = []string{markerDashboard}
	m := newTestManager(agent)

	if err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	jar, err := m.Cookies(context.Background())
	if err != nil {
		t.Fatalf("Cookies: %v", err)
	}
	if !strings.Contains(jar, "XSRF-TOKEN=tok") {
		t.Fatalf("unexpected cookie header %q", jar)
	}
}
