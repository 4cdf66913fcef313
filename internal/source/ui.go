// Secondary, UI-derived extraction path.
//
// The rendered referral table is read through the interactive agent and
// parsed into the same candidate type the API path produces. Both feed the
// one upsert-by-natural-key contract, so duplicate detection is symmetric.
package source

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carebridge/referral-watcher/internal/domain"
)

// RowReader supplies rendered table rows. The session manager satisfies it.
type RowReader interface {
	Texts(ctx context.Context, selector string) ([]string, error)
}

// UIAdapter extracts candidates from the rendered referral list.
type UIAdapter struct {
	rows     RowReader
	selector string
	log      zerolog.Logger
}

// NewUIAdapter wires the UI extraction path to a row reader and the row
// selector.
func NewUIAdapter(rows RowReader, selector string, log zerolog.Logger) *UIAdapter {
	return &UIAdapter{
		rows:     rows,
		selector: selector,
		log:      log.With().Str("component", "source_ui").Logger(),
	}
}

// Fetch reads and parses the rendered rows. Zero rows is not an error here:
// a UI rendering hiccup must not suppress a cycle whose API path succeeded.
// Rows that cannot be parsed are skipped with a warning.
func (u *UIAdapter) Fetch(ctx context.Context) ([]domain.CandidateReferral, error) {
	raw, err := u.rows.Texts(ctx, u.selector)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		u.log.Warn().Msg("ui extraction produced zero rows")
		return nil, nil
	}

	out := make([]domain.CandidateReferral, 0, len(raw))
	for _, row := range raw {
		c, ok := parseRow(row)
		if !ok {
			u.log.Warn().Str("row", truncate(row, 120)).Msg("unparseable ui row skipped")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// parseRow splits a rendered table row into a candidate. Cells arrive as
// newline- or tab-separated text in column order: member name, member ID,
// service, region, county, plan, preferred start, status, requested on.
func parseRow(row string) (domain.CandidateReferral, bool) {
	cells := splitCells(row)
	if len(cells) < 9 {
		return domain.CandidateReferral{}, false
	}
	c := domain.CandidateReferral{
		MemberName:         cells[0],
		MemberID:           cells[1],
		ServiceName:        cells[2],
		RegionName:         cells[3],
		County:             cells[4],
		Plan:               cells[5],
		PreferredStartDate: cells[6],
		Status:             cells[7],
		RequestOn:          cells[8],
	}
	if c.MemberID == "" || c.RequestOn == "" {
		return domain.CandidateReferral{}, false
	}
	return c, true
}

func splitCells(row string) []string {
	fields := strings.FieldsFunc(row, func(r rune) bool {
		return r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
