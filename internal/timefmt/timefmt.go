// Package timefmt renders message and conversation timestamps as short,
// human-relative labels for the chat list and message bubbles.
package timefmt

import "time"

// Format returns a label for t relative to now, evaluated in now's location:
//
//	yesterday        -> "Yesterday 3:04 PM"
//	within 24 hours  -> "3:04 PM"
//	within 7 days    -> "Mon"
//	older            -> "Jan 6"
func Format(t, now time.Time) string {
	t = t.In(now.Location())

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)

	if !t.Before(yesterday) && t.Before(today) {
		return "Yesterday " + t.Format("3:04 PM")
	}

	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("3:04 PM")
	case diff < 7*24*time.Hour:
		return t.Format("Mon")
	default:
		return t.Format("Jan 2")
	}
}
