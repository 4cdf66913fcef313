// Package poller orchestrates the watermark-driven polling loop: ensure an
// authenticated session, fetch candidates, filter against the watermark,
// persist new ones idempotently, dispatch notifications, and only then
// advance the watermark.
//
// One logical worker, one in-flight cycle. All watermark and session
// mutation happens on the loop goroutine; the HTTP control surface only
// reads snapshots.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/carebridge/referral-watcher/internal/domain"
	"github.com/carebridge/referral-watcher/internal/repo"
	"github.com/carebridge/referral-watcher/internal/source"
)

// Cycle outcomes, recorded in metrics and the worker snapshot.
const (
	OutcomeOK            = "ok"
	OutcomeAuthFailed    = "auth_failed"
	OutcomeAuthExpired   = "auth_expired"
	OutcomeSourceFailure = "source_unavailable"
	OutcomeStoreFailure  = "store_failure"
)

// Extraction source tags on persisted rows.
const (
	sourceAPI = "api"
	sourceUI  = "ui"
)

// SessionManager is the slice of the session manager the engine drives.
type SessionManager interface {
	Ensure(ctx context.Context) error
	Cookies(ctx context.Context) (string, error)
	Invalidate()
	State() domain.SessionState
}

// Fetcher is the primary (API) candidate source.
type Fetcher interface {
	Fetch(ctx context.Context, cookieHeader string) ([]domain.CandidateReferral, error)
}

// UIFetcher is the secondary (rendered UI) candidate source.
type UIFetcher interface {
	Fetch(ctx context.Context) ([]domain.CandidateReferral, error)
}

// Notifier fans a newly persisted record out to operator channels and
// reports how many channels failed; failures never propagate.
type Notifier interface {
	Dispatch(ctx context.Context, rec *domain.ReferralRecord) int
}

// WorkerContext is the explicit mutable state of the worker, owned by the
// engine and handed out only as copies. It replaces ambient process-global
// session/watermark variables.
type WorkerContext struct {
	// Watermark is lastCheckTime as an opaque ordering token (RFC3339 of
	// the last completed cycle's start). A candidate is new iff its
	// requestOn token sorts strictly after this value. Empty means no
	// cycle has completed and everything is new.
	Watermark string `json:"watermark"`

	// LastCycleAt is when the most recent cycle started.
	LastCycleAt time.Time `json:"last_cycle_at"`

	// LastOutcome is the outcome tag of the most recent cycle.
	LastOutcome string `json:"last_outcome"`

	// CyclesRun counts cycles attempted since process start.
	CyclesRun uint64 `json:"cycles_run"`

	// SessionState mirrors the session manager state at snapshot time.
	SessionState domain.SessionState `json:"session_state"`
}

// Engine runs the polling loop.
type Engine struct {
	db       *gorm.DB
	sess     SessionManager
	fetch    Fetcher
	ui       UIFetcher // nil disables the secondary path
	notifier Notifier
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex // guards wc: written by the loop, read by the control surface
	wc WorkerContext
}

// Option customizes an Engine.
type Option func(*Engine)

// WithUIFetcher enables the secondary UI extraction path.
func WithUIFetcher(ui UIFetcher) Option {
	return func(e *Engine) { e.ui = ui }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New assembles an Engine.
func New(db *gorm.DB, sess SessionManager, fetch Fetcher, notifier Notifier, interval time.Duration, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		sess:     sess,
		fetch:    fetch,
		notifier: notifier,
		interval: interval,
		log:      log.With().Str("component", "poller").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Status returns a copy of the worker state for the control surface.
func (e *Engine) Status() WorkerContext {
	e.mu.Lock()
	wc := e.wc
	e.mu.Unlock()
	wc.SessionState = e.sess.State()
	return wc
}

// Start establishes the session on demand (the manual control endpoint).
func (e *Engine) Start(ctx context.Context) error {
	return e.sess.Ensure(ctx)
}

// Run executes cycles until ctx is cancelled: one immediately, then one per
// tick. Cycles run serially on this goroutine, so an overlong cycle simply
// absorbs the next tick instead of overlapping it. Cycle errors are logged
// and never terminate the loop; the pipeline self-heals on later ticks.
func (e *Engine) Run(ctx context.Context) {
	e.cycleAndLog(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("poll loop stopped")
			return
		case <-ticker.C:
			e.cycleAndLog(ctx)
		}
	}
}

func (e *Engine) cycleAndLog(ctx context.Context) {
	if err := e.RunCycle(ctx); err != nil {
		e.log.Error().Err(err).Msg("poll cycle failed")
	}
}

// RunCycle executes one polling cycle. The watermark is captured at cycle
// start and advanced to the cycle's start token only after every step
// succeeded; on any failure it stays put so nothing observed mid-cycle is
// lost.
func (e *Engine) RunCycle(ctx context.Context) error {
	cycleStart := e.now().UTC()
	startToken := cycleStart.Format(time.RFC3339)

	e.mu.Lock()
	watermark := e.wc.Watermark
	e.wc.CyclesRun++
	e.wc.LastCycleAt = cycleStart
	e.mu.Unlock()

	outcome, err := e.runCycle(ctx, watermark)
	cyclesTotal.WithLabelValues(outcome).Inc()

	// Success (even with zero new records): advance the watermark to the
	// cycle's start. Records arriving mid-cycle sort after startToken and
	// are picked up next tick.
	e.mu.Lock()
	e.wc.LastOutcome = outcome
	if err == nil {
		e.wc.Watermark = startToken
	}
	cycles := e.wc.CyclesRun
	e.mu.Unlock()

	if err != nil {
		return err
	}

	e.log.Info().
		Str("watermark", startToken).
		Uint64("cycle", cycles).
		Msg("cycle complete")
	return nil
}

// runCycle is the body of one cycle; it returns the outcome tag alongside
// the terminal error, if any.
func (e *Engine) runCycle(ctx context.Context, watermark string) (string, error) {
	// Leftovers from a crash between persist and dispatch get their
	// notification before any new work (at-least-once delivery).
	e.redispatchPending(ctx)

	if err := e.sess.Ensure(ctx); err != nil {
		return OutcomeAuthFailed, fmt.Errorf("ensure session: %w", err)
	}

	cookies, err := e.sess.Cookies(ctx)
	if err != nil {
		return OutcomeAuthFailed, fmt.Errorf("session cookies: %w", err)
	}

	candidates, err := e.fetch.Fetch(ctx, cookies)
	switch {
	case errors.Is(err, source.ErrAuthExpired):
		// Dead session: invalidate and let the next tick rebuild it.
		// No retry within this cycle.
		sessionInvalidations.Inc()
		e.sess.Invalidate()
		return OutcomeAuthExpired, err
	case err != nil:
		return OutcomeSourceFailure, err
	}

	if err := e.ingest(ctx, candidates, watermark, sourceAPI); err != nil {
		return OutcomeStoreFailure, err
	}

	// Secondary path: best-effort. A UI hiccup must not fail a cycle whose
	// API path succeeded.
	if e.ui != nil {
		uiCandidates, err := e.ui.Fetch(ctx)
		if err != nil {
			e.log.Warn().Err(err).Msg("ui extraction failed, continuing")
		} else if err := e.ingest(ctx, uiCandidates, watermark, sourceUI); err != nil {
			return OutcomeStoreFailure, err
		}
	}

	return OutcomeOK, nil
}

// ingest filters candidates against the watermark and persists the new ones
// in input order.
func (e *Engine) ingest(ctx context.Context, candidates []domain.CandidateReferral, watermark, from string) error {
	fresh := 0
	for _, c := range candidates {
		if !isNew(c, watermark) {
			continue
		}
		fresh++
		if err := e.processCandidate(ctx, c, from); err != nil {
			return fmt.Errorf("persist %s/%s: %w", c.MemberID, c.RequestOn, err)
		}
	}
	e.log.Debug().
		Str("from", from).
		Int("candidates", len(candidates)).
		Int("new", fresh).
		Msg("candidates evaluated")
	return nil
}

// isNew reports whether the candidate's creation token sorts strictly after
// the watermark. The token is opaque: comparison is lexical, which agrees
// with chronological order for RFC3339-shaped values.
func isNew(c domain.CandidateReferral, watermark string) bool {
	return c.RequestOn > watermark
}

// processCandidate performs the idempotent upsert-then-notify for one
// candidate. Safe to re-run: a record persisted by a prior interrupted cycle
// is detected by natural key and skipped.
func (e *Engine) processCandidate(ctx context.Context, c domain.CandidateReferral, from string) error {
	_, err := repo.GetReferralByKey(ctx, e.db, c.MemberID, c.RequestOn)
	if err == nil {
		return nil // already handled
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	rec := c.Record(uuid.NewString(), from)
	if err := repo.CreateReferral(ctx, e.db, rec); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil // the other extraction path won the race
		}
		return err
	}
	referralsPersisted.WithLabelValues(from).Inc()

	if _, err := repo.CreateNotification(ctx, e.db, rec); err != nil {
		// The referral row stands; the audit trail is a separate failure
		// domain. The record remains notified=false so the next cycle
		// retries the full dispatch path.
		e.log.Error().Err(err).Str("member_id", rec.MemberID).Msg("notification audit write failed")
		return nil
	}

	e.notifier.Dispatch(ctx, rec)
	if err := repo.MarkNotified(ctx, e.db, rec.ID); err != nil {
		e.log.Error().Err(err).Str("member_id", rec.MemberID).Msg("mark notified failed")
	}

	e.log.Info().
		Str("member_id", rec.MemberID).
		Str("request_on", rec.RequestOn).
		Str("from", from).
		Msg("new referral persisted")
	return nil
}

// redispatchPending re-notifies rows whose dispatch never completed. Best
// effort: failures are logged and retried on later cycles. A crash between
// persist and the audit write leaves a referral with no NotificationRecord,
// so the missing audit row is created here before the flag flips; every
// persisted referral keeps exactly one.
func (e *Engine) redispatchPending(ctx context.Context) {
	pending, err := repo.ListUnnotified(ctx, e.db)
	if err != nil {
		e.log.Warn().Err(err).Msg("pending notification scan failed")
		return
	}
	for i := range pending {
		rec := &pending[i]
		trail, err := repo.ListNotificationsForReferral(ctx, e.db, rec.ID)
		if err != nil {
			e.log.Warn().Err(err).Str("member_id", rec.MemberID).Msg("audit trail lookup failed")
			continue
		}
		if len(trail) == 0 {
			if _, err := repo.CreateNotification(ctx, e.db, rec); err != nil {
				e.log.Error().Err(err).Str("member_id", rec.MemberID).Msg("notification audit write failed")
				continue
			}
		}
		e.notifier.Dispatch(ctx, rec)
		if err := repo.MarkNotified(ctx, e.db, rec.ID); err != nil {
			e.log.Error().Err(err).Str("member_id", rec.MemberID).Msg("mark notified failed")
			continue
		}
		e.log.Info().Str("member_id", rec.MemberID).Msg("pending notification re-dispatched")
	}
}
