package activation

import "time"

// DefaultActivationDays is the expiry window applied when no explicit
// configuration is provided.
const DefaultActivationDays = 30

// TruncateToDay drops the clock portion of t, keeping its location.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ActivationWindowElapsed checks if the activation window has closed
// for something created at the given time. The window is measured in
// whole days: creation day + windowDays <= today means elapsed, so a
// key created exactly windowDays ago is already expired.
func ActivationWindowElapsed(createdAt time.Time, windowDays int) bool {
	expiresOn := TruncateToDay(createdAt).AddDate(0, 0, windowDays)
	return !TruncateToDay(time.Now()).Before(expiresOn)
}

// PurgeCutoff returns the timestamp below which token rows are dead
// weight: every row with created_at before the cutoff has an elapsed
// activation window.
func PurgeCutoff(windowDays int) time.Time {
	return TruncateToDay(time.Now()).AddDate(0, 0, -windowDays+1)
}
