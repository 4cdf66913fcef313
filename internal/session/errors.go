// Package session owns the portal session lifecycle: browser provisioning,
// the login and second-factor state machine, post-login navigation, and
// invalidation. This file centralizes the session-level error values so the
// polling engine can classify failures without string matching.
package session

import "errors"

var (
	// ErrProvisioning indicates the automation substrate could not be
	// started (browser launch or page open failed). Fatal to the cycle,
	// retried on the next poll.
	ErrProvisioning = errors.New("cannot provision browser")

	// ErrNavigationTimeout indicates a bounded navigation wait elapsed.
	// Inconclusive on its own: the portal's navigation signal is
	// unreliable, so callers proceed to status detection instead of
	// treating this as failure.
	ErrNavigationTimeout = errors.New("navigation timed out")

	// ErrLoginFailed indicates status detection concluded the credential
	// submission was rejected (still on a login URL after the bounded
	// wait).
	ErrLoginFailed = errors.New("login failed")

	// ErrChallengeSelectionFailed indicates every strategy for selecting
	// the authenticator-app challenge was exhausted. Terminal for the
	// cycle.
	ErrChallengeSelectionFailed = errors.New("could not select second-factor challenge")

	// ErrChallengeRejected indicates the portal displayed an explicit
	// error after code submission. The banner text is attached by the
	// caller via wrapping.
	ErrChallengeRejected = errors.New("second-factor code rejected")

	// ErrNotAuthenticated indicates a session-dependent call (cookie
	// export, UI extraction) was made outside the Authenticated state.
	ErrNotAuthenticated = errors.New("session is not authenticated")
)
