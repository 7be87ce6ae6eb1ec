package client

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is the service's signing scheme
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kjanat/hotdocs-cloud/client/pkg/api"
)

// Signer computes request signatures for one subscriber.
//
// The canonical string is the signature timestamp, the subscriber ID and the
// request's HMAC parameters, one per line. The signature is the base64 of
// the raw HMAC-SHA1 digest of that string keyed by the signing key.
//
// A Signer is safe for concurrent use.
type Signer struct {
	subscriberID string
	key          []byte
}

// NewSigner returns a Signer for subscriberID and signingKey.
func NewSigner(subscriberID, signingKey string) *Signer {
	return &Signer{
		subscriberID: subscriberID,
		key:          []byte(signingKey),
	}
}

// SubscriberID returns the subscriber the Signer signs for.
func (s *Signer) SubscriberID() string {
	return s.subscriberID
}

// String implements fmt.Stringer without revealing the signing key.
func (s *Signer) String() string {
	return fmt.Sprintf("Signer{subscriber: %q, key: [redacted]}", s.subscriberID)
}

// Sign returns the signature of params at ts.
func (s *Signer) Sign(ts time.Time, params []any) string {
	mac := hmac.New(sha1.New, s.key)
	mac.Write([]byte(s.CanonicalString(ts, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ErrSignatureMismatch is returned by Verify when a signature does not match.
var ErrSignatureMismatch = errors.New("signature mismatch")

// Verify checks signature against params signed at the time carried by
// dateHeader, an x-hd-date value. The comparison is constant time.
func (s *Signer) Verify(dateHeader string, params []any, signature string) error {
	ts := parseDateHeader(dateHeader)
	if ts.IsZero() {
		return fmt.Errorf("invalid %s header %q", api.HeaderDate, dateHeader)
	}
	want := s.Sign(ts, params)
	if subtle.ConstantTimeCompare([]byte(want), []byte(signature)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// CanonicalString returns the string that Sign authenticates.
func (s *Signer) CanonicalString(ts time.Time, params []any) string {
	values := make([]string, 0, len(params)+2)
	values = append(values, formatSignatureTimestamp(ts), s.subscriberID)
	for _, p := range params {
		values = append(values, canonicalValue(p))
	}
	return strings.Join(values, "\n")
}

// canonicalValue renders one HMAC parameter.
func canonicalValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return api.FormatBool(v)
	case *Settings:
		if v == nil {
			return ""
		}
		lines := make([]string, 0, v.Len())
		for name, value := range v.AllFromFront() {
			lines = append(lines, name+"="+value)
		}
		return strings.Join(lines, "\n")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
