package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnresolvedZone is the timezone label charts carry when an input declared a
// zone abbreviation nothing could be made of. Processing continues with
// unconverted wall-clock times.
const UnresolvedZone = "unresolved"

// defaultTimestamp substitutes a missing first timestamp. Some controller
// dumps are truncated before the first marker line carrying a date.
var defaultTimestamp = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

// zoneOffsets maps the timezone abbreviations controllers write into their
// dumps to fixed UTC offsets. Abbreviations are ambiguous in general, but
// within one dump they are consistent, and a fixed offset is all the charts
// need.
var zoneOffsets = map[string]int{
	"GMT": 0, "UTC": 0, "WET": 0,
	"BST": 1 * 3600, "CET": 1 * 3600, "WEST": 1 * 3600,
	"CEST": 2 * 3600, "EET": 2 * 3600,
	"EEST": 3 * 3600, "MSK": 3 * 3600,
	"GST": 4 * 3600,
	"IST": 5*3600 + 1800,
	"SGT": 8 * 3600, "AWST": 8 * 3600,
	"JST": 9 * 3600, "KST": 9 * 3600,
	"AEST": 10 * 3600, "AEDT": 11 * 3600,
	"NZST": 12 * 3600, "NZDT": 13 * 3600,
	"NST": -(3*3600 + 1800),
	"AST": -4 * 3600, "EDT": -4 * 3600,
	"EST": -5 * 3600, "CDT": -5 * 3600,
	"CST": -6 * 3600, "MDT": -6 * 3600,
	"MST": -7 * 3600, "PDT": -7 * 3600,
	"PST": -8 * 3600, "AKDT": -8 * 3600,
	"AKST": -9 * 3600, "HST": -10 * 3600,
}

var monthNumbers = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ZoneResolver normalizes the timestamps of one input unit into a single
// timezone. Dumps are not consistent about zones across their sections, so
// the first zone successfully resolved becomes the unit's local zone and
// every later timestamp is converted into it.
type ZoneResolver struct {
	local      *time.Location
	label      string
	unresolved bool
}

// NewZoneResolver returns a resolver with no zone pinned yet.
func NewZoneResolver() *ZoneResolver {
	return &ZoneResolver{}
}

// Label returns the resolved zone label, or UnresolvedZone when any zone
// lookup failed, or the empty string when no timestamp carried a zone yet.
func (z *ZoneResolver) Label() string {
	if z.unresolved {
		return UnresolvedZone
	}
	return z.label
}

// Pin fixes the resolver's local zone from an abbreviation, as found in an
// archive's header. Reports whether the abbreviation was known.
func (z *ZoneResolver) Pin(abbr string) bool {
	offset, ok := zoneOffsets[abbr]
	if !ok {
		z.unresolved = true
		return false
	}
	if z.local == nil {
		z.local = time.FixedZone(abbr, offset)
		z.label = abbr
	}
	return true
}

// Location returns the pinned zone, or UTC when none is pinned.
func (z *ZoneResolver) Location() *time.Location {
	if z.local == nil {
		return time.UTC
	}
	return z.local
}

// BuildDate parses a timestamp of the form the controllers print into marker
// lines, like "Mon Jan 01 00:00:00 GMT 2000", and converts it into the
// resolver's local zone. The weekday is ignored.
func (z *ZoneResolver) BuildDate(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) < 6 {
		return time.Time{}, fmt.Errorf("timestamp %q: want 6 fields, got %d", s, len(fields))
	}
	month, ok := monthNumbers[fields[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp %q: unknown month %q", s, fields[1])
	}
	day, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: day: %w", s, err)
	}
	clock := strings.Split(fields[3], ":")
	if len(clock) != 3 {
		return time.Time{}, fmt.Errorf("timestamp %q: malformed clock %q", s, fields[3])
	}
	hour, err := strconv.Atoi(clock[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: hour: %w", s, err)
	}
	minute, err := strconv.Atoi(clock[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: minute: %w", s, err)
	}
	second, err := strconv.Atoi(clock[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: second: %w", s, err)
	}
	year, err := strconv.Atoi(fields[5])
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: year: %w", s, err)
	}

	offset, known := zoneOffsets[fields[4]]
	if !known {
		z.unresolved = true
		// keep the wall-clock reading, unconverted
		return time.Date(year, month, day, hour, minute, second, 0, z.Location()), nil
	}
	if z.local == nil {
		z.local = time.FixedZone(fields[4], offset)
		z.label = fields[4]
	}
	t := time.Date(year, month, day, hour, minute, second, 0, time.FixedZone(fields[4], offset))
	return t.In(z.local), nil
}
