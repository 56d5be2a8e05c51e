// Package interval holds the minute-of-day arithmetic shared by the
// availability engine, the booking service and the waitlist dispatcher.
// Times of day are "HH:MM" strings in the data model and plain minute
// counts here.
package interval

import "fmt"

// Minutes converts an "HH:MM" clock string to minutes since midnight.
// Malformed input yields 0 rather than an error, so a bad row degrades
// to a zero-length window instead of failing a whole slot computation.
func Minutes(s string) int {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0
	}
	return h*60 + m
}

// Valid reports whether s is a well-formed "HH:MM" clock string. Request
// validation uses this strict check; Minutes stays forgiving for data
// already in the store.
func Valid(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return false
	}
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}

// Clock renders minutes since midnight as "HH:MM".
func Clock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps is the half-open interval test: endpoints touching do not
// count as overlap, so back-to-back slots never conflict.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}
