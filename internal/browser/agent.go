// Package browser provides the rod-backed interactive agent.
//
// The agent owns one Chromium instance and one working page. Every wait is
// bounded: the portal gives no completion signal guarantees, so an unbounded
// element wait would hang the worker forever. Callers pass a context for
// cancellation; the per-step ceiling comes from BrowserConfig.WaitTimeout.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"github.com/carebridge/referral-watcher/internal/config"
)

// Marker is a named page condition used when racing several possible
// outcomes of a navigation (dashboard vs. 2FA form vs. consent banner).
type Marker struct {
	Name     string
	Selector string
}

// Agent drives a single Chromium instance. It is an exclusively-owned
// resource of the session manager: one live agent per worker, never shared
// across cycles.
type Agent struct {
	cfg config.BrowserConfig
	log zerolog.Logger

	launcher *launcher.Launcher
	browser  *rod.Browser
	root     *rod.Page
	active   *rod.Page // root, or an iframe page after EnterFrame
}

// Launch starts Chromium and opens a blank working page.
func Launch(cfg config.BrowserConfig, log zerolog.Logger) (*Agent, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect chromium: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}

	log.Debug().Bool("headless", cfg.Headless).Msg("browser launched")
	return &Agent{
		cfg:      cfg,
		log:      log,
		launcher: l,
		browser:  b,
		root:     page,
		active:   page,
	}, nil
}

// Close tears down the page, browser, and launcher. Safe to call more than
// once; errors during teardown are logged and swallowed because Close runs
// on already-failed paths.
func (a *Agent) Close() error {
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.log.Debug().Err(err).Msg("browser close")
		}
		a.browser = nil
	}
	if a.launcher != nil {
		a.launcher.Cleanup()
		a.launcher = nil
	}
	a.root, a.active = nil, nil
	return nil
}

// page returns the active page bound to ctx and the configured wait ceiling.
func (a *Agent) bound(ctx context.Context, d time.Duration) *rod.Page {
	return a.active.Context(ctx).Timeout(d)
}

// Navigate loads url on the root page and waits for the load event, bounded
// by NavTimeout. Entering a frame is reset by navigation.
func (a *Agent) Navigate(ctx context.Context, url string) error {
	a.active = a.root
	p := a.root.Context(ctx).Timeout(a.cfg.NavTimeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// WaitVisible blocks until the selector resolves to a visible element.
func (a *Agent) WaitVisible(ctx context.Context, selector string) error {
	el, err := a.bound(ctx, a.cfg.WaitTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("wait %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

// Click resolves the selector and clicks it.
func (a *Agent) Click(ctx context.Context, selector string) error {
	el, err := a.bound(ctx, a.cfg.WaitTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// ClickByText clicks the first element matching selector whose text matches
// the given pattern (rod regex semantics).
func (a *Agent) ClickByText(ctx context.Context, selector, pattern string) error {
	el, err := a.bound(ctx, a.cfg.WaitTimeout).ElementR(selector, pattern)
	if err != nil {
		return fmt.Errorf("find %s %q: %w", selector, pattern, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s %q: %w", selector, pattern, err)
	}
	return nil
}

// Type focuses the selector and types text into it, replacing any existing
// value.
func (a *Agent) Type(ctx context.Context, selector, text string) error {
	el, err := a.bound(ctx, a.cfg.WaitTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

// DetectFirst races the markers and returns the name of the first one whose
// selector appears. The race is bounded by the wait ceiling; when nothing
// resolves the caller falls back to URL inspection.
func (a *Agent) DetectFirst(ctx context.Context, markers []Marker) (string, error) {
	var winner string
	race := a.bound(ctx, a.cfg.WaitTimeout).Race()
	for _, m := range markers {
		name := m.Name
		race = race.Element(m.Selector).Handle(func(_ *rod.Element) error {
			winner = name
			return nil
		})
	}
	if _, err := race.Do(); err != nil {
		return "", fmt.Errorf("detect markers: %w", err)
	}
	return winner, nil
}

// CurrentURL reports the root page URL.
func (a *Agent) CurrentURL() (string, error) {
	info, err := a.root.Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// ElementText returns the text content of the first match.
func (a *Agent) ElementText(ctx context.Context, selector string) (string, error) {
	el, err := a.bound(ctx, a.cfg.WaitTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("find %s: %w", selector, err)
	}
	txt, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("text of %s: %w", selector, err)
	}
	return txt, nil
}

// Texts returns the text of every element matching the selector. Used by the
// UI extraction path to read rendered table rows.
func (a *Agent) Texts(ctx context.Context, selector string) ([]string, error) {
	els, err := a.bound(ctx, a.cfg.WaitTimeout).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("find all %s: %w", selector, err)
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		txt, err := el.Text()
		if err != nil {
			continue // detached mid-read, skip the row
		}
		out = append(out, txt)
	}
	return out, nil
}

// EnterFrame switches the active page into the iframe matched by selector.
// Subsequent element operations run inside the frame until ExitFrame or
// Navigate.
func (a *Agent) EnterFrame(ctx context.Context, selector string) error {
	el, err := a.bound(ctx, a.cfg.WaitTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find frame %s: %w", selector, err)
	}
	frame, err := el.Frame()
	if err != nil {
		return fmt.Errorf("enter frame %s: %w", selector, err)
	}
	a.active = frame
	return nil
}

// ExitFrame restores the root page as the active element scope.
func (a *Agent) ExitFrame() {
	a.active = a.root
}

// SelectOption picks an option from a <select>. The preferred text wins when
// present; otherwise the first available option is selected. This is the
// named "preferred value, else first available" policy.
func (a *Agent) SelectOption(ctx context.Context, selector, preferred string) error {
	el, err := a.bound(ctx, a.cfg.WaitTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("find select %s: %w", selector, err)
	}

	_, err = FirstOf(fmt.Sprintf("select option in %s", selector), []Strategy[struct{}]{
		{
			Name: "preferred text",
			Run: func() (struct{}, error) {
				if preferred == "" {
					return struct{}{}, fmt.Errorf("no preferred value configured")
				}
				return struct{}{}, el.Select([]string{preferred}, true, rod.SelectorTypeText)
			},
		},
		{
			Name: "first available",
			Run: func() (struct{}, error) {
				opts, err := el.Elements("option")
				if err != nil {
					return struct{}{}, err
				}
				if len(opts) == 0 {
					return struct{}{}, fmt.Errorf("select has no options")
				}
				txt, err := opts.First().Text()
				if err != nil {
					return struct{}{}, err
				}
				return struct{}{}, el.Select([]string{txt}, true, rod.SelectorTypeText)
			},
		},
	})
	return err
}

// CookieHeader concatenates the browser cookie jar into a single Cookie
// header value for out-of-band HTTP calls against the portal's data API.
func (a *Agent) CookieHeader() (string, error) {
	cookies, err := a.browser.GetCookies()
	if err != nil {
		return "", fmt.Errorf("read cookies: %w", err)
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; "), nil
}

// Screenshot captures the root page as a PNG under dir and returns the file
// path. A diagnostic artifact only: failures are returned for logging, never
// acted on.
func (a *Agent) Screenshot(dir, label string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("screenshot dir: %w", err)
	}
	data, err := a.root.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.png", label, time.Now().Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}
