// Session state machine vocabulary.
//
// The session manager owns exactly one live portal session per worker
// process. Its lifecycle is expressed as the states below; every transition
// is logged as a structured event so the cycle history can be reconstructed
// from logs alone.
package domain

// SessionState is one phase of the session and authentication lifecycle.
type SessionState string

const (
	// SessionClosed means no browser is running. Initial state, and the
	// state re-entered after Invalidate or Close.
	SessionClosed SessionState = "closed"

	// SessionOpening means the automation substrate is being provisioned
	// (browser launch, blank page).
	SessionOpening SessionState = "opening"

	// SessionAwaitingCredentials means the login surface is loaded and the
	// credential form is being submitted.
	SessionAwaitingCredentials SessionState = "awaiting_credentials"

	// SessionAwaitingChallenge means the portal requested a second factor
	// and the TOTP flow is in progress.
	SessionAwaitingChallenge SessionState = "awaiting_challenge"

	// SessionAuthenticated means the portal accepted the login; the cookie
	// jar carries a usable session.
	SessionAuthenticated SessionState = "authenticated"

	// SessionInvalidated means a downstream call rejected the session. The
	// browser is torn down; the next cycle restarts from SessionClosed.
	SessionInvalidated SessionState = "invalidated"
)

// ChallengeType identifies the outstanding second-factor step during login.
type ChallengeType string

const (
	ChallengeNone             ChallengeType = "none"
	ChallengeAuthenticatorApp ChallengeType = "authenticatorApp"
	ChallengeBackupCode       ChallengeType = "backupCode"
)

// AuthChallenge describes the second-factor step while a login transition is
// in flight. It exists only between credential submission and either success
// or terminal failure; it is never persisted.
type AuthChallenge struct {
	Type              ChallengeType
	AttemptsRemaining int
}
