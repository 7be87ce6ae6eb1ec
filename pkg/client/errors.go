package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Error kinds
const (
	KindTransport        = "TRANSPORT_ERROR"
	KindRequestFailed    = "REQUEST_FAILED"
	KindUploadFailed     = "UPLOAD_FAILED"
	KindPackageNotCached = "PACKAGE_NOT_CACHED"
)

// Validation error codes
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodePackageUnreadable  = "PACKAGE_UNREADABLE"
	maxErrorMessageBodyLength = 512
)

// Error is returned by every failed send.
//
// StatusCode is zero for transport failures.
type Error struct {
	Kind       string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: %s (status %d)", e.Kind, e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError represents invalid local input, detected before anything
// is sent.
type ValidationError struct {
	Code    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if the service could not be reached.
func IsTransportError(err error) bool {
	return hasKind(err, KindTransport)
}

// IsRequestFailed returns true if the service rejected the request.
func IsRequestFailed(err error) bool {
	return hasKind(err, KindRequestFailed)
}

// IsUploadFailed returns true if the package upload needed by a request
// was rejected.
func IsUploadFailed(err error) bool {
	return hasKind(err, KindUploadFailed)
}

// IsPackageNotCached returns true if the service reported a missing package
// and no upload could be attempted.
func IsPackageNotCached(err error) bool {
	return hasKind(err, KindPackageNotCached)
}

// IsValidationError returns true if the error indicates invalid request data.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

func hasKind(err error, kind string) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func newTransportError(op string, err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Op:      op,
		Message: err.Error(),
		Err:     err,
	}
}

func newStatusError(kind, op string, statusCode int, body []byte) *Error {
	return &Error{
		Kind:       kind,
		Op:         op,
		StatusCode: statusCode,
		Message:    statusMessage(statusCode, body),
	}
}

// statusMessage describes a failed response: the trimmed body when the
// service sent text, the status text otherwise.
func statusMessage(statusCode int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" || !utf8.ValidString(msg) {
		if text := http.StatusText(statusCode); text != "" {
			return strings.ToLower(text)
		}
		return "unexpected status"
	}
	if len(msg) > maxErrorMessageBodyLength {
		msg = strings.ToValidUTF8(msg[:maxErrorMessageBodyLength], "") + "..."
	}
	return msg
}
