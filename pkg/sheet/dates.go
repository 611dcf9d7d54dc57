package sheet

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Release dates arrive in whatever format the dataset author typed.
var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"1/2/2006",
	"01/02/2006",
	"1-2-2006",
	"2006/01/02",
	"2006/1/2",
	"January 2006",
	"Jan 2006",
	"2006-01",
	"2006",
}

// ParseDate parses a release date. ok is false for blank or unrecognised input.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	s = strings.Join(strings.Fields(s), " ")
	s = trimOrdinal(s)
	// "Sept" is common in hand-written sheets but not a Go month abbreviation.
	s = strings.Replace(s, "Sept ", "Sep ", 1)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// trimOrdinal rewrites "May 2nd, 2008" to "May 2, 2008".
func trimOrdinal(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		core := strings.TrimSuffix(f, ",")
		for _, suf := range []string{"st", "nd", "rd", "th"} {
			num, found := strings.CutSuffix(core, suf)
			if !found || num == "" {
				continue
			}
			if _, err := strconv.Atoi(num); err == nil {
				fields[i] = num + f[len(core):]
			}
		}
	}
	return strings.Join(fields, " ")
}

// ParseScore reads "94%", "94", "8.1/10" or "4.5/5" as a percent.
func ParseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || strings.EqualFold(s, "n/a") {
		return 0, false
	}
	if num, den, found := strings.Cut(s, "/"); found {
		n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err1 != nil || err2 != nil || d <= 0 || !finite(n) || !finite(d) {
			return 0, false
		}
		return n / d * 100, true
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || !finite(v) {
		return 0, false
	}
	return v, true
}

// finite rejects the NaN and Inf spellings strconv accepts, which JSON cannot carry.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
