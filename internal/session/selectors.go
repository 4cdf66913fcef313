package session

// Selectors collects every DOM locator the login and navigation flows touch.
// They are grouped here, away from the state machine, because selector churn
// is the most common maintenance event: the portal reskins, the flow does
// not change.
type Selectors struct {
	// Login form.
	UsernameInput string
	PasswordInput string
	SubmitButton  string

	// Post-submission outcome markers.
	DashboardMarker string
	ChallengeForm   string
	CookieBanner    string
	ErrorBanner     string

	// Second-factor challenge selection, in fallback order: a direct
	// attribute locator, a label-text pattern, and the catch-all first
	// option.
	ChallengeAppOption   string
	ChallengeOptionAny   string
	ChallengeAppPattern  string
	ChallengeFirstOption string

	// Code entry, same ordering.
	CodeInput         string
	CodeInputFallback string
	CodeSubmit        string

	// Post-login navigation into the referral workspace.
	AppMenuLink    string
	AppMenuPattern string
	WorkspaceFrame string
	ProviderSelect string

	// UI extraction path: rendered referral table rows.
	ReferralRows string
}

// DefaultSelectors returns the locator set for the current portal markup.
func DefaultSelectors() Selectors {
	return Selectors{
		UsernameInput: `input[name="username"]`,
		PasswordInput: `input[name="password"]`,
		SubmitButton:  `button[type="submit"]`,

		DashboardMarker: `[data-testid="dashboard-home"]`,
		ChallengeForm:   `form[name="mfaForm"]`,
		CookieBanner:    `#onetrust-banner-sdk`,
		ErrorBanner:     `.alert-danger, [role="alert"].error`,

		ChallengeAppOption:   `input[value="authenticatorApp"]`,
		ChallengeOptionAny:   `label`,
		ChallengeAppPattern:  `(?i)authenticator`,
		ChallengeFirstOption: `input[type="radio"]`,

		CodeInput:         `input[name="otpCode"]`,
		CodeInputFallback: `input[autocomplete="one-time-code"]`,
		CodeSubmit:        `button[type="submit"]`,

		AppMenuLink:    `a`,
		AppMenuPattern: `(?i)referrals`,
		WorkspaceFrame: `iframe#app-frame`,
		ProviderSelect: `select[name="provider"]`,

		ReferralRows: `table.referral-list tbody tr`,
	}
}
