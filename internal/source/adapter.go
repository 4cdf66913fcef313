// Package source fetches candidate referrals from the portal. The primary
// adapter calls the portal's data API directly over HTTP once a browser
// session exists; the secondary adapter reads the rendered referral table
// through the interactive agent. Both return the same candidate type so the
// deduplication contract is symmetric regardless of origin.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/referral-watcher/internal/config"
	"github.com/carebridge/referral-watcher/internal/domain"
)

var (
	// ErrAuthExpired indicates the portal rejected the session cookie
	// (401/403). The caller must invalidate the session and retry on the
	// next cycle, never within the same cycle.
	ErrAuthExpired = errors.New("portal session expired")

	// ErrSourceUnavailable indicates a transient fetch failure (transport
	// error, 5xx, malformed payload). The cycle ends early and the
	// watermark stays put so nothing is missed.
	ErrSourceUnavailable = errors.New("referral source unavailable")
)

// fetchRequest is the fixed body the referral API expects.
type fetchRequest struct {
	Brand     string `json:"brand"`
	NPI       string `json:"npi"`
	State     string `json:"state"`
	TabStatus string `json:"tabStatus"`
	TaxID     string `json:"taxId"`
}

// fetchResponse is the referral API payload.
type fetchResponse struct {
	EffectiveDate string                     `json:"effectiveDate"`
	Referrals     []domain.CandidateReferral `json:"referrals"`
}

// Adapter issues authenticated referral fetches against the data API.
type Adapter struct {
	portal config.PortalConfig
	client *http.Client
	log    zerolog.Logger
}

// NewAdapter builds an Adapter with a bounded-timeout HTTP client.
func NewAdapter(portal config.PortalConfig, log zerolog.Logger) *Adapter {
	return &Adapter{
		portal: portal,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("component", "source").Logger(),
	}
}

// Fetch issues one authenticated request carrying the session cookie jar and
// the CSRF token extracted from it, and returns the candidate list.
func (a *Adapter) Fetch(ctx context.Context, cookieHeader string) ([]domain.CandidateReferral, error) {
	token := ExtractCookie(cookieHeader, a.portal.XSRFCookie)

	body, err := json.Marshal(fetchRequest{
		Brand:     a.portal.Brand,
		NPI:       a.portal.NPI,
		State:     a.portal.State,
		TabStatus: "INCOMING",
		TaxID:     a.portal.TaxID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode body: %v", ErrSourceUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.portal.ReferralsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Cookie", cookieHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-XSRF-TOKEN", token)
	req.Header.Set("User-Agent", a.portal.UserAgent)
	req.Header.Set("Referer", a.portal.LoginURL)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrSourceUnavailable, resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrSourceUnavailable, err)
	}

	var out fetchResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrSourceUnavailable, err)
	}

	a.log.Debug().
		Int("candidates", len(out.Referrals)).
		Str("effective_date", out.EffectiveDate).
		Msg("referral fetch")
	return out.Referrals, nil
}

// ExtractCookie pulls the value of a named cookie out of a Cookie header
// string. Returns "" when absent; the API tolerates an empty token better
// than a missing fetch.
func ExtractCookie(header, name string) string {
	if name == "" {
		return ""
	}
	re := regexp.MustCompile(`(?:^|;\s*)` + regexp.QuoteMeta(name) + `=([^;]*)`)
	m := re.FindStringSubmatch(header)
	if len(m) != 2 {
		return ""
	}
	return m[1]
}
