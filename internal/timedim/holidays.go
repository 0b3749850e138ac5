package timedim

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Calendar answers whether a local calendar date is a public holiday.
// Implementations must be total: unknown years report false.
type Calendar interface {
	IsHoliday(day time.Time) bool
	HolidayName(day time.Time) (string, bool)
}

type dateKey struct {
	year  int
	month time.Month
	day   int
}

func keyOf(t time.Time) dateKey {
	y, m, d := t.Date()
	return dateKey{y, m, d}
}

type noHolidays struct{}

func (noHolidays) IsHoliday(time.Time) bool { return false }

func (noHolidays) HolidayName(time.Time) (string, bool) { return "", false }

// Lesotho public holidays are known for this range only.
const (
	lesothoFirstYear = 1996
	lesothoLastYear  = 2100
)

// Lesotho is the Kingdom of Lesotho public holiday calendar.
type Lesotho struct{}

// HolidayName returns the holiday observed on day's calendar date.
func (Lesotho) HolidayName(day time.Time) (string, bool) {
	year := day.Year()
	if year < lesothoFirstYear || year > lesothoLastYear {
		return "", false
	}
	name, ok := lesothoHolidays(year)[keyOf(day)]
	return name, ok
}

// IsHoliday reports whether day's calendar date is a holiday.
func (l Lesotho) IsHoliday(day time.Time) bool {
	_, ok := l.HolidayName(day)
	return ok
}

func lesothoHolidays(year int) map[dateKey]string {
	fixed := func(m time.Month, d int) dateKey { return dateKey{year, m, d} }
	h := map[dateKey]string{
		fixed(time.January, 1):   "New Year's Day",
		fixed(time.March, 11):    "Moshoeshoe's Day",
		fixed(time.May, 1):       "Workers' Day",
		fixed(time.October, 4):   "Independence Day",
		fixed(time.December, 25): "Christmas Day",
		fixed(time.December, 26): "Boxing Day",
	}
	if year <= 2002 {
		h[fixed(time.April, 4)] = "Heroes' Day"
		h[fixed(time.May, 25)] = "Africa Day"
	} else {
		h[fixed(time.May, 25)] = "Africa/Heroes' Day"
	}
	if year >= 1998 {
		h[fixed(time.July, 17)] = "King's Birthday"
	}

	easter := easterSunday(year)
	h[keyOf(easter.AddDate(0, 0, -2))] = "Good Friday"
	h[keyOf(easter.AddDate(0, 0, 1))] = "Easter Monday"
	h[keyOf(easter.AddDate(0, 0, 39))] = "Ascension Day"
	return h
}

// easterSunday computes Gregorian Easter with the anonymous (Meeus/Jones/
// Butcher) algorithm.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// Extra adds ad hoc dates (elections, state funerals) on top of a base
// calendar.
type Extra struct {
	base  Calendar
	dates map[dateKey]string
}

// HolidayName checks the extra dates first, then the base calendar.
func (e *Extra) HolidayName(day time.Time) (string, bool) {
	if name, ok := e.dates[keyOf(day)]; ok {
		return name, true
	}
	return e.base.HolidayName(day)
}

// IsHoliday reports whether day is an extra or base holiday.
func (e *Extra) IsHoliday(day time.Time) bool {
	_, ok := e.HolidayName(day)
	return ok
}

type extraFile struct {
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// LoadExtra reads a YAML file of additional holidays:
//
//	holidays:
//	  - date: 2024-05-29
//	    name: National Assembly election
func LoadExtra(base Calendar, path string) (*Extra, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "timedim: read %s", path)
	}

	var f extraFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "timedim: parse %s", path)
	}

	ex := &Extra{base: base, dates: make(map[dateKey]string, len(f.Holidays))}
	for _, h := range f.Holidays {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(h.Date))
		if err != nil {
			return nil, eris.Wrapf(err, "timedim: %s: bad date %q", path, h.Date)
		}
		ex.dates[keyOf(d)] = h.Name
	}
	return ex, nil
}

// CalendarFor returns the holiday calendar for an ISO country code. "none"
// or an empty code yields a calendar without holidays.
func CalendarFor(country, extraPath string) (Calendar, error) {
	var base Calendar
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "LS":
		base = Lesotho{}
	case "", "NONE":
		base = noHolidays{}
	default:
		return nil, eris.Errorf("timedim: no holiday calendar for country %q", country)
	}
	if extraPath == "" {
		return base, nil
	}
	return LoadExtra(base, extraPath)
}
