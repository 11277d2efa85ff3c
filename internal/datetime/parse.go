// Package datetime converts the textual dates exchanged with clients into
// instants and computes the calendar windows used for reporting.
package datetime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// DateLayout is the DD/MM/YYYY rendering used in API payloads.
	DateLayout = "02/01/2006"
	// DateTimeLayout is the DD/MM/YYYY HH:mm:ss rendering.
	DateTimeLayout = "02/01/2006 15:04:05"
)

// ErrInvalidDate is returned for any input that is not an existing
// calendar date in one of the accepted formats.
var ErrInvalidDate = errors.New("datetime: invalid date")

var (
	dateRe     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	fullDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4}) (\d{1,2}):(\d{1,2}):(\d{1,2})$`)
)

// ParseDate parses DD/MM/YYYY in the local time zone.
func ParseDate(s string) (time.Time, error) { return ParseDateIn(s, time.Local) }

// ParseFullDate parses DD/MM/YYYY HH:mm:ss in the local time zone.
func ParseFullDate(s string) (time.Time, error) { return ParseFullDateIn(s, time.Local) }

// ParseDateIn parses DD/MM/YYYY at midnight in loc.
func ParseDateIn(s string, loc *time.Location) (time.Time, error) {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q (want DD/MM/YYYY)", ErrInvalidDate, s)
	}
	return build(s, loc, m[3], m[2], m[1], "0", "0", "0")
}

// ParseFullDateIn parses DD/MM/YYYY HH:mm:ss in loc.
func ParseFullDateIn(s string, loc *time.Location) (time.Time, error) {
	m := fullDateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q (want DD/MM/YYYY HH:mm:ss)", ErrInvalidDate, s)
	}
	return build(s, loc, m[3], m[2], m[1], m[4], m[5], m[6])
}

// ParseAny accepts either layout; the full layout is tried first.
func ParseAny(s string) (time.Time, error) {
	if fullDateRe.MatchString(s) {
		return ParseFullDate(s)
	}
	return ParseDate(s)
}

// build assembles the instant and rejects values time.Date would normalize
// (31/02 becoming 02/03, 24:00:00 becoming the next day).
func build(raw string, loc *time.Location, year, month, day, hour, min, sec string) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	y, _ := strconv.Atoi(year)
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	h, _ := strconv.Atoi(hour)
	mi, _ := strconv.Atoi(min)
	se, _ := strconv.Atoi(sec)
	if y < 1 || mo < 1 || mo > 12 || d < 1 || d > 31 || h > 23 || mi > 59 || se > 59 {
		return time.Time{}, fmt.Errorf("%w: %q out of range", ErrInvalidDate, raw)
	}
	t := time.Date(y, time.Month(mo), d, h, mi, se, 0, loc)
	if t.Year() != y || t.Month() != time.Month(mo) || t.Day() != d {
		return time.Time{}, fmt.Errorf("%w: %q does not exist", ErrInvalidDate, raw)
	}
	return t, nil
}

// FormatDate renders t as DD/MM/YYYY.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// FormatDateTime renders t as DD/MM/YYYY HH:mm:ss.
func FormatDateTime(t time.Time) string { return t.Format(DateTimeLayout) }
