// Package dashboard serves hourly median trends and KPIs from the warehouse
// over HTTP and as a terminal report.
package dashboard

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the accepted format for range bounds.
const DateLayout = "2006-01-02"

// ErrBadRange is returned for unparsable or inverted date ranges.
var ErrBadRange = eris.New("dashboard: bad date range")

// Range is a half-open interval [Start, End) of whole local days.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DefaultRange covers the last days days up to and including today in loc.
func DefaultRange(now time.Time, loc *time.Location, days int) Range {
	if days <= 0 {
		days = 7
	}
	today := midnight(now.In(loc))
	return Range{Start: today.AddDate(0, 0, -days), End: today.AddDate(0, 0, 1)}
}

// ParseRange builds a Range from YYYY-MM-DD bounds interpreted in loc. The
// start is that day's local midnight and the end is the midnight after the
// end date. Missing bounds fall back to DefaultRange.
func ParseRange(start, end string, now time.Time, loc *time.Location, defaultDays int) (Range, error) {
	r := DefaultRange(now, loc, defaultDays)

	if s := strings.TrimSpace(start); s != "" {
		d, err := time.ParseInLocation(DateLayout, s, loc)
		if err != nil {
			return Range{}, eris.Wrapf(ErrBadRange, "start %q", start)
		}
		r.Start = d
	}
	if e := strings.TrimSpace(end); e != "" {
		d, err := time.ParseInLocation(DateLayout, e, loc)
		if err != nil {
			return Range{}, eris.Wrapf(ErrBadRange, "end %q", end)
		}
		r.End = d.AddDate(0, 0, 1)
	}
	if !r.Start.Before(r.End) {
		return Range{}, eris.Wrapf(ErrBadRange, "start %s is after end", r.Start.Format(DateLayout))
	}
	return r, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
