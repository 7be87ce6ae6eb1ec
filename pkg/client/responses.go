package client

import (
	"strings"
)

// Result is the outcome of a successful Send.
type Result struct {
	Op         string
	StatusCode int
	Body       []byte
	// Uploaded is true if the package had to be uploaded first.
	Uploaded bool
	// RoundTrips counts the HTTP exchanges, including the upload.
	RoundTrips int
}

// Session identifies an interview session on the service.
type Session struct {
	ID string
}

func newSession(body []byte) *Session {
	return &Session{ID: strings.TrimSpace(string(body))}
}
