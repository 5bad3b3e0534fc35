package utils

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

func NewSQLNullString(s string) sql.NullString {
	if len(s) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{
		String: s,
		Valid:  true,
	}
}

// LoadLocation accepts an IANA zone name ("Europe/London"), "UTC", or a
// fixed offset in the "UTC+8" / "UTC-5:30" form used by sites that store a
// numeric GMT offset instead of a zone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}

	if rest, ok := strings.CutPrefix(name, "UTC"); ok {
		offset, err := parseOffset(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid utc offset %q: %w", name, err)
		}
		return time.FixedZone(name, offset), nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}

func parseOffset(s string) (int, error) {
	if len(s) < 2 || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("offset must start with + or -")
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}

	hoursPart, minutesPart, _ := strings.Cut(s[1:], ":")
	hours, err := strconv.Atoi(hoursPart)
	if err != nil || hours > 14 {
		return 0, fmt.Errorf("bad hours %q", hoursPart)
	}
	minutes := 0
	if minutesPart != "" {
		minutes, err = strconv.Atoi(minutesPart)
		if err != nil || minutes >= 60 {
			return 0, fmt.Errorf("bad minutes %q", minutesPart)
		}
	}

	return sign * (hours*3600 + minutes*60), nil
}
