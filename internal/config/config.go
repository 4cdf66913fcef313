// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes portal credentials,
// second-factor secrets, notification transport settings, polling cadence,
// and server tuning so no business constant lives inline in component code.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PortalConfig holds everything needed to authenticate against the referral
// portal and call its data API.
type PortalConfig struct {
	LoginURL     string // PORTAL_LOGIN_URL
	ReferralsURL string // PORTAL_REFERRALS_URL (data API endpoint)
	Username     string // PORTAL_USERNAME
	Password     string // PORTAL_PASSWORD
	TOTPSecret   string // PORTAL_TOTP_SECRET (base32)

	// Fixed fields of the referral API request body.
	Brand string // PORTAL_BRAND
	NPI   string // PORTAL_NPI
	State string // PORTAL_STATE
	TaxID string // PORTAL_TAX_ID

	// PreferredProvider is the dropdown option selected during post-login
	// navigation; when absent on the page the first available option wins.
	PreferredProvider string // PORTAL_PREFERRED_PROVIDER

	// XSRFCookie is the cookie name the data API expects echoed back in the
	// X-XSRF-TOKEN header.
	XSRFCookie string // PORTAL_XSRF_COOKIE

	UserAgent string // PORTAL_USER_AGENT
}

// BrowserConfig tunes the automation substrate.
type BrowserConfig struct {
	Headless      bool          // BROWSER_HEADLESS
	NoSandbox     bool          // BROWSER_NO_SANDBOX (for containers)
	NavTimeout    time.Duration // BROWSER_NAV_TIMEOUT (login/submit navigation)
	WaitTimeout   time.Duration // BROWSER_WAIT_TIMEOUT (element waits)
	ScreenshotDir string        // BROWSER_SCREENSHOT_DIR ("" disables diagnostics)
}

// EmailConfig holds SMTP transport settings. An empty host or empty
// recipient list turns the channel into a no-op.
type EmailConfig struct {
	Host       string   // SMTP_HOST
	Port       int      // SMTP_PORT
	Secure     bool     // SMTP_SECURE (implicit TLS)
	Username   string   // SMTP_USER
	Password   string   // SMTP_PASS
	From       string   // SMTP_FROM
	Recipients []string // SMTP_RECIPIENTS (comma-separated)
}

// SMSConfig holds Twilio settings. An empty account SID or empty recipient
// list turns the channel into a no-op.
type SMSConfig struct {
	AccountSID string   // TWILIO_ACCOUNT_SID
	AuthToken  string   // TWILIO_AUTH_TOKEN
	From       string   // TWILIO_FROM
	Recipients []string // TWILIO_RECIPIENTS (comma-separated)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // PORT (just the number)
	ReadTimeout       time.Duration // READ_TIMEOUT
	ReadHeaderTimeout time.Duration // READ_HEADER_TIMEOUT
	WriteTimeout      time.Duration // WRITE_TIMEOUT
	IdleTimeout       time.Duration // IDLE_TIMEOUT
	GinMode           string        // GIN_MODE debug|release|test

	// Logging
	LogLevel  string // LOG_LEVEL debug|info|warn|error
	LogPretty bool   // LOG_PRETTY console logs in dev

	// App
	DBPath       string        // SQLITE_PATH
	PollInterval time.Duration // POLL_INTERVAL_MINUTES
	UIExtraction bool          // UI_EXTRACTION (enable secondary path)

	Portal  PortalConfig
	Browser BrowserConfig
	Email   EmailConfig
	SMS     SMSConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DBPath:       getenv("SQLITE_PATH", "referrals.db"),
		PollInterval: time.Duration(getint("POLL_INTERVAL_MINUTES", 3)) * time.Minute,
		UIExtraction: getbool("UI_EXTRACTION", false),

		Portal: PortalConfig{
			LoginURL:          getenv("PORTAL_LOGIN_URL", ""),
			ReferralsURL:      getenv("PORTAL_REFERRALS_URL", ""),
			Username:          getenv("PORTAL_USERNAME", ""),
			Password:          getenv("PORTAL_PASSWORD", ""),
			TOTPSecret:        getenv("PORTAL_TOTP_SECRET", ""),
			Brand:             getenv("PORTAL_BRAND", ""),
			NPI:               getenv("PORTAL_NPI", ""),
			State:             getenv("PORTAL_STATE", ""),
			TaxID:             getenv("PORTAL_TAX_ID", ""),
			PreferredProvider: getenv("PORTAL_PREFERRED_PROVIDER", ""),
			XSRFCookie:        getenv("PORTAL_XSRF_COOKIE", "XSRF-TOKEN"),
			UserAgent:         getenv("PORTAL_USER_AGENT", defaultUserAgent),
		},
		Browser: BrowserConfig{
			Headless:      getbool("BROWSER_HEADLESS", true),
			NoSandbox:     getbool("BROWSER_NO_SANDBOX", false),
			NavTimeout:    getdur("BROWSER_NAV_TIMEOUT", 60*time.Second),
			WaitTimeout:   getdur("BROWSER_WAIT_TIMEOUT", 15*time.Second),
			ScreenshotDir: getenv("BROWSER_SCREENSHOT_DIR", ""),
		},
		Email: EmailConfig{
			Host:       getenv("SMTP_HOST", ""),
			Port:       getint("SMTP_PORT", 587),
			Secure:     getbool("SMTP_SECURE", false),
			Username:   getenv("SMTP_USER", ""),
			Password:   getenv("SMTP_PASS", ""),
			From:       getenv("SMTP_FROM", ""),
			Recipients: getlist("SMTP_RECIPIENTS"),
		},
		SMS: SMSConfig{
			AccountSID: getenv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getenv("TWILIO_AUTH_TOKEN", ""),
			From:       getenv("TWILIO_FROM", ""),
			Recipients: getlist("TWILIO_RECIPIENTS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// validate enforces the minimal invariants the worker cannot run without.
// Notification transports are deliberately not required: an unconfigured
// channel is a no-op, not an error.
func (c Config) validate() error {
	var errs []error

	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.Port))
	}
	if c.PollInterval < time.Minute {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL_MINUTES must be >= 1, got %s", c.PollInterval))
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("GIN_MODE must be debug|release|test, got %q", c.GinMode))
	}
	if c.Portal.LoginURL == "" {
		errs = append(errs, errors.New("PORTAL_LOGIN_URL is required"))
	}
	if c.Portal.ReferralsURL == "" {
		errs = append(errs, errors.New("PORTAL_REFERRALS_URL is required"))
	}
	if c.Portal.Username == "" || c.Portal.Password == "" {
		errs = append(errs, errors.New("PORTAL_USERNAME and PORTAL_PASSWORD are required"))
	}

	return errors.Join(errs...)
}

// getenv returns the value of the environment variable or a default.
func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// getint parses an integer environment variable with a fallback default.
func getint(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// getbool parses a boolean environment variable ("1", "true", "yes", "on").
func getbool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// getdur parses a duration environment variable (e.g. "15s", "2m").
func getdur(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// getlist splits a comma-separated environment variable, dropping empties.
func getlist(key string) []string {
	raw := getenv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
