package normalize

import (
	"fmt"
	"regexp"
	"time"
)

// Precision records how much of a release date the source actually knew.
type Precision int

const (
	PrecisionUnknown Precision = iota
	PrecisionYear
	PrecisionMonth
	PrecisionDay
)

func (p Precision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	}
	return ""
}

// ParsePrecision reads Spotify's release_date_precision value.
func ParsePrecision(s string) (Precision, bool) {
	switch s {
	case "year":
		return PrecisionYear, true
	case "month":
		return PrecisionMonth, true
	case "day":
		return PrecisionDay, true
	}
	return PrecisionUnknown, false
}

// ReleaseDate is a date known to Year, Month or Day precision. Month and Day
// are zero when the precision does not include them.
type ReleaseDate struct {
	Year      int
	Month     int
	Day       int
	Precision Precision
}

var dateFormats = []struct {
	re        *regexp.Regexp
	layout    string
	precision Precision
}{
	{regexp.MustCompile(`^\d{4}$`), "2006", PrecisionYear},
	{regexp.MustCompile(`^\d{4}-\d{2}$`), "2006-01", PrecisionMonth},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), "2006-01-02", PrecisionDay},
}

// ParseReleaseDate accepts YYYY, YYYY-MM and YYYY-MM-DD.
func ParseReleaseDate(s string) (ReleaseDate, error) {
	for _, f := range dateFormats {
		if !f.re.MatchString(s) {
			continue
		}
		t, err := time.Parse(f.layout, s)
		if err != nil {
			return ReleaseDate{}, fmt.Errorf("parsing release date %q as %s: %w", s, f.precision, err)
		}
		// Spotify uses 0000 for an unknown year.
		if t.Year() == 0 {
			return ReleaseDate{}, fmt.Errorf("release date %q has year zero", s)
		}

		d := ReleaseDate{Year: t.Year(), Precision: f.precision}
		if f.precision >= PrecisionMonth {
			d.Month = int(t.Month())
		}
		if f.precision == PrecisionDay {
			d.Day = t.Day()
		}
		return d, nil
	}
	return ReleaseDate{}, fmt.Errorf("invalid release date format: %q", s)
}

// Time is the canonical full date, with unknown parts set to the first.
func (d ReleaseDate) Time() time.Time {
	month, day := d.Month, d.Day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(d.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func (d ReleaseDate) String() string {
	return d.Time().Format(time.DateOnly)
}
