// Package browser drives the portal UI through a Chromium instance
// controlled with go-rod. It exposes the ordered-fallback strategy helper
// used everywhere a lookup has more than one plausible heuristic: challenge
// selection, dropdown option matching, button discovery.
package browser

import (
	"errors"
	"fmt"
)

// Strategy is one alternative procedure for reaching a goal. Strategies are
// tried in priority order; the first success short-circuits the rest.
type Strategy[T any] struct {
	// Name identifies the heuristic in logs and aggregated errors.
	Name string
	// Run attempts the lookup. An error moves on to the next strategy and
	// never aborts the sequence.
	Run func() (T, error)
}

// FirstOf executes strategies in order and returns the first successful
// result. When every strategy fails, the individual failures are aggregated
// into one error so the terminal failure names everything that was tried.
func FirstOf[T any](goal string, strategies []Strategy[T]) (T, error) {
	var zero T
	if len(strategies) == 0 {
		return zero, fmt.Errorf("%s: no strategies configured", goal)
	}

	errs := make([]error, 0, len(strategies))
	for _, s := range strategies {
		v, err := runStrategy(s)
		if err == nil {
			return v, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return zero, fmt.Errorf("%s: all strategies failed: %w", goal, errors.Join(errs...))
}

// runStrategy converts a panicking strategy into a failed one. rod element
// helpers panic on detached nodes; a panic in one heuristic must not abort
// the sequence.
func runStrategy[T any](s Strategy[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Run()
}
