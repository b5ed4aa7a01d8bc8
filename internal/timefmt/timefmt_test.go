package timefmt

import (
	"testing"
	"time"
)

func TestFormat(t *testing.T) {
	now := time.Date(2024, time.March, 14, 15, 30, 0, 0, time.UTC) // Thursday

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"earlier today", time.Date(2024, time.March, 14, 9, 5, 0, 0, time.UTC), "9:05 AM"},
		{"noon today", time.Date(2024, time.March, 14, 12, 0, 0, 0, time.UTC), "12:00 PM"},
		{"midnight today", time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC), "12:00 AM"},
		{"yesterday evening", time.Date(2024, time.March, 13, 22, 15, 0, 0, time.UTC), "Yesterday 10:15 PM"},
		{"yesterday start", time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC), "Yesterday 12:00 AM"},
		{"three days ago", time.Date(2024, time.March, 11, 8, 0, 0, 0, time.UTC), "Mon"},
		{"two weeks ago", time.Date(2024, time.February, 29, 8, 0, 0, 0, time.UTC), "Feb 29"},
		{"future time", time.Date(2024, time.March, 14, 18, 0, 0, 0, time.UTC), "6:00 PM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.t, now); got != tt.want {
				t.Errorf("Format(%s) = %q, want %q", tt.t, got, tt.want)
			}
		})
	}
}

func TestFormat_UsesNowLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2024, time.March, 14, 10, 0, 0, 0, loc)

	// 2024-03-14 00:30 UTC is 09:30 in UTC+9, earlier the same local day.
	msg := time.Date(2024, time.March, 14, 0, 30, 0, 0, time.UTC)
	if got := Format(msg, now); got != "9:30 AM" {
		t.Errorf("Format() = %q, want %q", got, "9:30 AM")
	}
}
