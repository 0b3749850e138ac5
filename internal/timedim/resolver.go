// Package timedim derives the local calendar breakdown stored in
// time_metadata for each measurement instant.
package timedim

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/speedtrack/internal/model"
)

// DefaultTimezone is the reference zone for local-time attributes.
const DefaultTimezone = "Africa/Maseru"

// Resolver maps UTC instants to time dimension rows for a fixed zone and
// holiday calendar. It is safe for concurrent use.
type Resolver struct {
	loc      *time.Location
	holidays Calendar
}

// NewResolver creates a Resolver. A nil calendar means no holidays.
func NewResolver(loc *time.Location, holidays Calendar) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if holidays == nil {
		holidays = noHolidays{}
	}
	return &Resolver{loc: loc, holidays: holidays}
}

// NewResolverFor loads the named zone and builds the holiday calendar for
// country, merging any extra dates from extraFile.
func NewResolverFor(timezone, country, extraFile string) (*Resolver, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "timedim: load zone %s", timezone)
	}
	cal, err := CalendarFor(country, extraFile)
	if err != nil {
		return nil, err
	}
	return NewResolver(loc, cal), nil
}

// Location returns the configured zone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve derives the dimension row for instant. Go times always carry a
// zone; values parsed without an offset are already UTC, so they are taken
// as UTC here as well. Resolve never fails.
func (r *Resolver) Resolve(instant time.Time) model.TimeDimension {
	utc := instant.UTC().Truncate(time.Microsecond)
	local := utc.In(r.loc)

	_, week := local.ISOWeek()
	weekday := isoWeekday(local.Weekday())
	month := int(local.Month())

	return model.TimeDimension{
		TimeID:        utc,
		LocalTime:     local,
		DateKey:       local.Year()*10000 + month*100 + local.Day(),
		Year:          local.Year(),
		Month:         month,
		MonthName:     local.Month().String(),
		Day:           local.Day(),
		DayOfWeek:     weekday,
		DayOfWeekName: local.Weekday().String(),
		WeekOfYear:    week,
		Quarter:       (month-1)/3 + 1,
		Hour:          local.Hour(),
		IsWeekend:     weekday >= 6,
		IsHoliday:     r.holidays.IsHoliday(local),
	}
}

// isoWeekday maps Go's Sunday=0 numbering to ISO 8601 (Monday=1 .. Sunday=7).
func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
