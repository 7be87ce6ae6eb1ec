package client

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/elliotchance/orderedmap/v3"
)

var signedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testSettings(pairs ...string) *Settings {
	s := orderedmap.NewOrderedMap[string, string]()
	for i := 0; i+1 < len(pairs); i += 2 {
		s.Set(pairs[i], pairs[i+1])
	}
	return s
}

// TestSignKnownVectors checks signatures against values computed outside Go
func TestSignKnownVectors(t *testing.T) {
	signer := NewSigner("sub-1", "signing-key")

	tests := []struct {
		name   string
		params []any
		want   string
	}{
		{
			name:   "create session with settings",
			params: []any{"Employment Agreement", "hr", "JavaScript", "Native", testSettings("Color", "Blue", "Size", "10")},
			want:   "9E29cXFRQ9J3YV7N0y0ajITajUw=",
		},
		{
			name:   "create session without settings",
			params: []any{"Employment Agreement", "", "JavaScript", "Native", testSettings()},
			want:   "gfgGDiuE/IG4euvy7klEzZKqOCM=",
		},
		{
			name:   "upload placeholders",
			params: []any{"pkg", nil, true, ""},
			want:   "BKW4tEPv3PDT3L0yu+QYui6ycNI=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signer.Sign(signedAt, tt.params); got != tt.want {
				t.Errorf("Sign() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalString(t *testing.T) {
	signer := NewSigner("sub-1", "signing-key")

	tests := []struct {
		name   string
		ts     time.Time
		params []any
		want   string
	}{
		{
			name:   "no params",
			ts:     signedAt,
			params: nil,
			want:   "2024-03-01T12:00:00Z\nsub-1",
		},
		{
			name:   "nil renders empty",
			ts:     signedAt,
			params: []any{"a", nil, "b"},
			want:   "2024-03-01T12:00:00Z\nsub-1\na\n\nb",
		},
		{
			name:   "booleans",
			ts:     signedAt,
			params: []any{true, false},
			want:   "2024-03-01T12:00:00Z\nsub-1\nTrue\nFalse",
		},
		{
			name:   "bytes",
			ts:     signedAt,
			params: []any{[]byte("<snapshot/>")},
			want:   "2024-03-01T12:00:00Z\nsub-1\n<snapshot/>",
		},
		{
			name:   "settings keep insertion order",
			ts:     signedAt,
			params: []any{testSettings("z", "1", "a", "2")},
			want:   "2024-03-01T12:00:00Z\nsub-1\nz=1\na=2",
		},
		{
			name:   "timestamp converted to UTC",
			ts:     time.Date(2024, 3, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*60*60)),
			params: nil,
			want:   "2024-03-01T12:00:00Z\nsub-1",
		},
		{
			name:   "sub-second precision dropped",
			ts:     signedAt.Add(750 * time.Millisecond),
			params: nil,
			want:   "2024-03-01T12:00:00Z\nsub-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signer.CanonicalString(tt.ts, tt.params); got != tt.want {
				t.Errorf("CanonicalString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignDeterministic(t *testing.T) {
	signer := NewSigner("sub-1", "signing-key")
	params := []any{"pkg", "ref", "JavaScript", "Native", testSettings("k", "v")}

	first := signer.Sign(signedAt, params)
	for i := 0; i < 10; i++ {
		if got := signer.Sign(signedAt, params); got != first {
			t.Fatalf("signature changed between calls: %q then %q", first, got)
		}
	}
}

func TestSignParameterOrderMatters(t *testing.T) {
	signer := NewSigner("sub-1", "signing-key")

	a := signer.Sign(signedAt, []any{"x", "y"})
	b := signer.Sign(signedAt, []any{"y", "x"})
	if a == b {
		t.Error("swapping parameters should change the signature")
	}

	s1 := signer.Sign(signedAt, []any{testSettings("a", "1", "b", "2")})
	s2 := signer.Sign(signedAt, []any{testSettings("b", "2", "a", "1")})
	if s1 == s2 {
		t.Error("reordering settings should change the signature")
	}
}

func TestSignDependsOnKeyAndSubscriber(t *testing.T) {
	params := []any{"pkg"}
	base := NewSigner("sub-1", "signing-key").Sign(signedAt, params)

	if NewSigner("sub-1", "other-key").Sign(signedAt, params) == base {
		t.Error("different key produced the same signature")
	}
	if NewSigner("sub-2", "signing-key").Sign(signedAt, params) == base {
		t.Error("different subscriber produced the same signature")
	}
	if NewSigner("sub-1", "signing-key").Sign(signedAt.Add(time.Second), params) == base {
		t.Error("different timestamp produced the same signature")
	}
}

func TestVerify(t *testing.T) {
	signer := NewSigner("sub-1", "signing-key")
	params := []any{"pkg", nil, true, ""}
	sig := signer.Sign(signedAt, params)
	date := formatDateHeader(signedAt)

	if err := signer.Verify(date, params, sig); err != nil {
		t.Fatalf("Verify() unexpected error: %v", err)
	}

	err := signer.Verify(date, []any{"other", nil, true, ""}, sig)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch for changed params, got %v", err)
	}

	err = signer.Verify(formatDateHeader(signedAt.Add(time.Second)), params, sig)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch for changed date, got %v", err)
	}

	err = signer.Verify("yesterday", params, sig)
	if err == nil || !strings.Contains(err.Error(), "x-hd-date") {
		t.Errorf("expected invalid date header error, got %v", err)
	}
}

func TestSignerStringRedactsKey(t *testing.T) {
	s := NewSigner("sub-1", "super-secret")
	got := s.String()
	if strings.Contains(got, "super-secret") {
		t.Errorf("String() leaked the signing key: %s", got)
	}
	if !strings.Contains(got, "sub-1") {
		t.Errorf("String() should name the subscriber: %s", got)
	}
}
