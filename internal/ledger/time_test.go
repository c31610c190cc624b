package ledger

import (
	"testing"
	"time"
)

func TestFormatTimeStringOrderMatchesChronology(t *testing.T) {
	base := time.Date(2026, 9, 1, 12, 0, 5, 0, time.UTC)

	// Trimmed fractions would sort ".5Z" after ".52Z"; the fixed-width
	// layout must not.
	earlier := base.Add(500 * time.Millisecond)
	later := base.Add(520 * time.Millisecond)
	if formatTime(earlier) >= formatTime(later) {
		t.Fatalf("string order inverted: %q >= %q", formatTime(earlier), formatTime(later))
	}

	whole := base
	fractional := base.Add(time.Nanosecond)
	if formatTime(whole) >= formatTime(fractional) {
		t.Fatalf("string order inverted: %q >= %q", formatTime(whole), formatTime(fractional))
	}
}

func TestFormatTimeRoundTrips(t *testing.T) {
	stamp := time.Date(2026, 9, 1, 12, 0, 5, 500000000, time.UTC)
	parsed, err := parseTimeString(formatTime(stamp))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(stamp) {
		t.Fatalf("round trip changed %v to %v", stamp, parsed)
	}
}
