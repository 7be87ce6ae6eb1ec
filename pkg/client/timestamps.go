package client

import (
	"net/http"
	"time"
)

// signatureTimestampLayout is yyyy-MM-ddTHH:mm:ssZ.
const signatureTimestampLayout = "2006-01-02T15:04:05Z"

// Clock supplies the time used to sign requests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// formatSignatureTimestamp formats t in UTC for the canonical string.
func formatSignatureTimestamp(t time.Time) string {
	return t.UTC().Format(signatureTimestampLayout)
}

// formatDateHeader formats t in UTC as an RFC 1123 date for the x-hd-date header.
func formatDateHeader(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

// parseDateHeader parses an x-hd-date value.
// Returns zero time if parsing fails.
func parseDateHeader(v string) time.Time {
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
