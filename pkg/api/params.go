package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/oapi-codegen/runtime"
)

// PathParam renders value as an escaped path segment.
func PathParam(name, value string) (string, error) {
	segment, err := runtime.StyleParamWithLocation("simple", false, name, runtime.ParamLocationPath, value)
	if err != nil {
		return "", fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	return segment, nil
}

// Query accumulates form-style query parameters in the order they are added.
type Query struct {
	parts []string
	err   error
}

// Add appends name=value. The name is escaped as well as the value, so
// arbitrary setting names cannot break the query structure. Spaces are
// sent as %20.
func (q *Query) Add(name, value string) {
	if q.err != nil {
		return
	}
	part, err := runtime.StyleParamWithLocation("form", true, url.QueryEscape(name), runtime.ParamLocationQuery, value)
	if err != nil {
		q.err = fmt.Errorf("invalid format for parameter %s: %w", name, err)
		return
	}
	q.parts = append(q.parts, percentEncodeSpaces(part))
}

// percentEncodeSpaces rewrites the '+' that query escaping uses for a space.
// A literal '+' is already escaped as %2B, so every '+' left is a space.
func percentEncodeSpaces(s string) string {
	return strings.ReplaceAll(s, "+", "%20")
}

// AddOptional appends name=value unless value is empty.
func (q *Query) AddOptional(name, value string) {
	if value == "" {
		return
	}
	q.Add(name, value)
}

// AddBool appends name=True or name=False.
func (q *Query) AddBool(name string, value bool) {
	q.Add(name, FormatBool(value))
}

// Encode returns the parameters joined with '&'.
func (q *Query) Encode() (string, error) {
	if q.err != nil {
		return "", q.err
	}
	return strings.Join(q.parts, "&"), nil
}

// FormatBool renders b the way the service expects booleans, both in query
// strings and in signatures.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
