package iso8601date

import (
	"errors"
	"regexp"
	"time"
)

// SiteLayout is the storage layout of site-local datetimes.
const SiteLayout = "2006-01-02 15:04:05"

const localISOLayout = "2006-01-02T15:04:05"

var (
	siteDateRegex  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
	isoDateRegex   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`)
	isoLocalRegex  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)
	ErrNotDatetime = errors.New("invalid iso8601 date format")
)

// Looks reports whether s has the shape of a recognized datetime. It does
// not check that the fields are in range.
func Looks(s string) bool {
	return siteDateRegex.MatchString(s) || isoDateRegex.MatchString(s) || isoLocalRegex.MatchString(s)
}

// Parse reads a site-local "YYYY-MM-DD HH:MM:SS" value or an ISO-8601 value.
// Values without an offset are anchored to loc (UTC when nil).
func Parse(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	switch {
	case siteDateRegex.MatchString(s):
		return time.ParseInLocation(SiteLayout, s, loc)
	case isoDateRegex.MatchString(s):
		return time.Parse(time.RFC3339Nano, s)
	case isoLocalRegex.MatchString(s):
		return time.ParseInLocation(localISOLayout, s, loc)
	}

	return time.Time{}, ErrNotDatetime
}
