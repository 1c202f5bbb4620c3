// Package identity derives stable integer post ids and timezone-aware
// timestamps from the mixed identity/time encodings the three sources emit.
package identity

import (
	"hash/crc32"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var hexID = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// PostID converts an identity hint (native numeric id, hex-string id, or any
// composite string) into a deterministic int64. The same hint always maps to
// the same id across runs: decimal ids parse directly, short hex ids parse
// base-16, everything else gets an IEEE CRC32 checksum of its UTF-8 bytes.
func PostID(hint string) int64 {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return 0
	}
	if id, err := strconv.ParseInt(hint, 10, 64); err == nil {
		return id
	}
	// Hex ids longer than 15 digits (Mongo ObjectIDs are 24) overflow
	// int64, so those take the checksum path like any other string.
	if len(hint) <= 15 && hexID.MatchString(hint) {
		if id, err := strconv.ParseInt(hint, 16, 64); err == nil {
			return id
		}
	}
	return int64(crc32.ChecksumIEEE([]byte(hint)))
}

// timeStrategy is one parser in the fixed precedence chain. Each either
// recognizes the string and returns a UTC instant, or reports no match.
type timeStrategy struct {
	name  string
	parse func(string) (time.Time, bool)
}

var strategies = []timeStrategy{
	{"iso-offset", parseISOOffset},
	{"iso-zulu", parseISOZulu},
	{"iso-nozone", parseISONoZone},
	{"epoch-seconds", parseEpochSeconds},
	{"naive-local", parseNaiveLocal},
}

func parseISOOffset(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil && !strings.HasSuffix(s, "Z") {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseISOZulu(s string) (time.Time, bool) {
	if !strings.HasSuffix(s, "Z") {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseISONoZone(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseEpochSeconds(s string) (time.Time, bool) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false
	}
	sec := int64(secs)
	nsec := int64((secs - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), true
}

func parseNaiveLocal(s string) (time.Time, bool) {
	// WATI and the Facebook scraper both emit naive local strings. The
	// pipeline treats them as UTC, a documented upstream simplification.
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseTimestamp runs the strategies in precedence order and returns the
// first match as a UTC instant.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, strategy := range strategies {
		if t, ok := strategy.parse(s); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// ResolveTimes picks created/updated instants from whatever a record carried:
// an explicit ISO string wins, then epoch seconds, then now() as the degraded
// last resort. The boolean reports whether the fallback fired so adapters can
// count it. A missing updated value mirrors created.
func ResolveTimes(isoCreated, isoUpdated string, epochSeconds float64, now func() time.Time) (created, updated time.Time, degraded bool) {
	created, ok := ParseTimestamp(isoCreated)
	if !ok && epochSeconds > 0 {
		created, ok = parseEpochSeconds(strconv.FormatFloat(epochSeconds, 'f', -1, 64))
	}
	if !ok {
		created = now().UTC()
		degraded = true
	}

	updated, ok = ParseTimestamp(isoUpdated)
	if !ok || updated.Before(created) {
		updated = created
	}
	return created, updated, degraded
}

// WeekFields derives the calendar date and ISO week bucket for a post.
func WeekFields(t time.Time) (calendarDate string, isoYear, isoWeek int) {
	t = t.UTC()
	isoYear, isoWeek = t.ISOWeek()
	return t.Format("2006-01-02"), isoYear, isoWeek
}

// NormalizePhone reduces a phone-bearing field to digits plus an optional
// leading "+". Returns "" when nothing numeric is left.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && b.Len() == 0 {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "+" {
		return ""
	}
	return out
}
