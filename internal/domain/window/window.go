// Package window maps symbolic range tokens to cutoffs and filters events by age.
package window

import (
	"time"

	"github.com/okian/formwizard/internal/domain/model"
)

// Recognized range tokens.
const (
	Day   = "24h"
	Week  = "7d"
	Month = "30d"
)

var cutoffs = map[string]time.Duration{
	Day:   24 * time.Hour,
	Week:  7 * 24 * time.Hour,
	Month: 30 * 24 * time.Hour,
}

// ResolveCutoff returns the look-back duration for token.
// Unknown tokens resolve to the 24h window.
func ResolveCutoff(token string) time.Duration {
	if d, ok := cutoffs[token]; ok {
		return d
	}
	return cutoffs[Day]
}

// Known reports whether token is a recognized range.
func Known(token string) bool {
	_, ok := cutoffs[token]
	return ok
}

// Normalize returns token if it is recognized and the 24h token otherwise.
func Normalize(token string) string {
	if Known(token) {
		return token
	}
	return Day
}

// FilterByWindow keeps events no older than the token's window, measured from now.
func FilterByWindow(events []model.Event, token string) []model.Event {
	return FilterByWindowAt(events, token, time.Now())
}

// FilterByWindowAt is FilterByWindow with an explicit reference instant.
// All events of one call are compared against the same cutoff.
func FilterByWindowAt(events []model.Event, token string, now time.Time) []model.Event {
	since := now.Add(-ResolveCutoff(token))
	out := make([]model.Event, 0, len(events))
	for i := range events {
		if !events[i].Timestamp.Before(since) {
			out = append(out, events[i])
		}
	}
	return out
}
