package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/kjanat/hotdocs-cloud/client/pkg/api"
)

// Operation names reported in errors and logs.
const (
	OpCreateSession = "CreateSession"
	OpResumeSession = "ResumeSession"
	OpUploadPackage = "UploadPackage"
)

// Default CreateSession formats.
const (
	DefaultInterviewFormat = "JavaScript"
	DefaultOutputFormat    = "Native"
)

// ErrRequestSealed is returned when a request is modified after it was signed.
var ErrRequestSealed = errors.New("request already signed")

// ErrReservedSetting is returned when a setting name collides with one of
// the fixed CreateSession query parameters.
var ErrReservedSetting = errors.New("setting name is reserved")

// reservedSettings are the fixed CreateSession query parameters, lowercase.
var reservedSettings = map[string]bool{
	"interviewformat":   true,
	"outputformat":      true,
	"showdownloadlinks": true,
	"billingref":        true,
	"theme":             true,
}

// Request is a service operation the Client can sign and send.
//
// HMACParams is part of the wire contract: the service recomputes the
// signature from the same values in the same order.
type Request interface {
	Operation() string
	PackageID() string
	PackageFilePath() string
	BillingRef() string
	Content() []byte
	PathPrefix() string
	Query() (string, error)
	Method() string
	HMACParams() []any
}

// Settings holds extra named CreateSession settings in insertion order.
type Settings = orderedmap.OrderedMap[string, string]

// CreateSessionRequest creates an embedded interview session for a package.
type CreateSessionRequest struct {
	packageID         string
	packageFilePath   string
	billingRef        string
	answers           []byte
	interviewFormat   string
	outputFormat      string
	theme             string
	showDownloadLinks bool
	settings          *Settings
	sealed            atomic.Bool
}

// SessionOption configures a CreateSessionRequest.
type SessionOption func(*CreateSessionRequest)

// WithBillingRef sets the billing reference recorded against the session.
func WithBillingRef(ref string) SessionOption {
	return func(r *CreateSessionRequest) {
		r.billingRef = ref
	}
}

// WithAnswers sets the initial answer content.
func WithAnswers(answers []byte) SessionOption {
	return func(r *CreateSessionRequest) {
		r.answers = answers
	}
}

// WithInterviewFormat overrides the interview format. Default is JavaScript.
func WithInterviewFormat(format string) SessionOption {
	return func(r *CreateSessionRequest) {
		r.interviewFormat = format
	}
}

// WithOutputFormat overrides the assembled document format. Default is Native.
func WithOutputFormat(format string) SessionOption {
	return func(r *CreateSessionRequest) {
		r.outputFormat = format
	}
}

// WithTheme sets the interview theme.
func WithTheme(theme string) SessionOption {
	return func(r *CreateSessionRequest) {
		r.theme = theme
	}
}

// WithShowDownloadLinks controls whether download links are shown once the
// documents are assembled. Default is true.
func WithShowDownloadLinks(show bool) SessionOption {
	return func(r *CreateSessionRequest) {
		r.showDownloadLinks = show
	}
}

// NewCreateSessionRequest returns a request for a new session on packageID.
// packageFilePath is only read if the package has to be uploaded.
func NewCreateSessionRequest(packageID, packageFilePath string, opts ...SessionOption) *CreateSessionRequest {
	r := &CreateSessionRequest{
		packageID:         packageID,
		packageFilePath:   packageFilePath,
		interviewFormat:   DefaultInterviewFormat,
		outputFormat:      DefaultOutputFormat,
		showDownloadLinks: true,
		settings:          orderedmap.NewOrderedMap[string, string](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetSetting adds or replaces an extra named setting. Settings keep the
// order in which they were first added. Once the request has been signed
// it can no longer be changed. Names of the fixed query parameters, in any
// case, are rejected with ErrReservedSetting.
func (r *CreateSessionRequest) SetSetting(name, value string) error {
	if r.sealed.Load() {
		return ErrRequestSealed
	}
	if reservedSettings[strings.ToLower(name)] {
		return fmt.Errorf("%w: %q", ErrReservedSetting, name)
	}
	r.settings.Set(name, value)
	return nil
}

// Settings returns a copy of the extra settings.
func (r *CreateSessionRequest) Settings() *Settings {
	return r.settings.Copy()
}

func (r *CreateSessionRequest) seal() {
	r.sealed.Store(true)
}

// Operation implements Request.
func (r *CreateSessionRequest) Operation() string { return OpCreateSession }

// PackageID implements Request.
func (r *CreateSessionRequest) PackageID() string { return r.packageID }

// PackageFilePath implements Request.
func (r *CreateSessionRequest) PackageFilePath() string { return r.packageFilePath }

// BillingRef implements Request.
func (r *CreateSessionRequest) BillingRef() string { return r.billingRef }

// Content implements Request.
func (r *CreateSessionRequest) Content() []byte { return r.answers }

// PathPrefix implements Request.
func (r *CreateSessionRequest) PathPrefix() string { return api.PathNewSession }

// Method implements Request.
func (r *CreateSessionRequest) Method() string { return http.MethodPost }

// Query implements Request.
func (r *CreateSessionRequest) Query() (string, error) {
	var q api.Query
	q.Add("interviewformat", r.interviewFormat)
	q.Add("outputformat", r.outputFormat)
	q.AddBool("showdownloadlinks", r.showDownloadLinks)
	q.AddOptional("billingref", r.billingRef)
	q.AddOptional("theme", r.theme)
	for name, value := range r.settings.AllFromFront() {
		q.Add(name, value)
	}
	return q.Encode()
}

// HMACParams implements Request. The settings are a copy.
func (r *CreateSessionRequest) HMACParams() []any {
	return []any{r.packageID, r.billingRef, r.interviewFormat, r.outputFormat, r.settings.Copy()}
}

// ResumeSessionRequest resumes a session from a saved snapshot.
type ResumeSessionRequest struct {
	snapshot []byte
}

// NewResumeSessionRequest returns a request that resumes snapshot.
func NewResumeSessionRequest(snapshot []byte) *ResumeSessionRequest {
	return &ResumeSessionRequest{snapshot: snapshot}
}

// Operation implements Request.
func (r *ResumeSessionRequest) Operation() string { return OpResumeSession }

// PackageID implements Request.
func (r *ResumeSessionRequest) PackageID() string { return "" }

// PackageFilePath implements Request.
func (r *ResumeSessionRequest) PackageFilePath() string { return "" }

// BillingRef implements Request.
func (r *ResumeSessionRequest) BillingRef() string { return "" }

// Content implements Request.
func (r *ResumeSessionRequest) Content() []byte { return r.snapshot }

// PathPrefix implements Request.
func (r *ResumeSessionRequest) PathPrefix() string { return api.PathResumeSession }

// Method implements Request.
func (r *ResumeSessionRequest) Method() string { return http.MethodPost }

// Query implements Request.
func (r *ResumeSessionRequest) Query() (string, error) { return "", nil }

// HMACParams implements Request.
func (r *ResumeSessionRequest) HMACParams() []any {
	return []any{r.snapshot}
}

// UploadPackageRequest stores a package in the service cache, replacing any
// cached copy.
type UploadPackageRequest struct {
	packageID  string
	content    []byte
	billingRef string
}

// NewUploadPackageRequest returns an upload of content as packageID.
func NewUploadPackageRequest(packageID string, content []byte) *UploadPackageRequest {
	return &UploadPackageRequest{packageID: packageID, content: content}
}

// Operation implements Request.
func (r *UploadPackageRequest) Operation() string { return OpUploadPackage }

// PackageID implements Request.
func (r *UploadPackageRequest) PackageID() string { return r.packageID }

// PackageFilePath implements Request.
func (r *UploadPackageRequest) PackageFilePath() string { return "" }

// BillingRef implements Request.
func (r *UploadPackageRequest) BillingRef() string { return r.billingRef }

// Content implements Request.
func (r *UploadPackageRequest) Content() []byte { return r.content }

// PathPrefix implements Request.
func (r *UploadPackageRequest) PathPrefix() string { return api.PathPackageCache }

// Method implements Request.
func (r *UploadPackageRequest) Method() string { return http.MethodPut }

// Query implements Request.
func (r *UploadPackageRequest) Query() (string, error) { return "", nil }

// HMACParams implements Request. The nil and true placeholders select
// "always overwrite" on the service side.
func (r *UploadPackageRequest) HMACParams() []any {
	return []any{r.packageID, nil, true, r.billingRef}
}

var (
	_ Request = (*CreateSessionRequest)(nil)
	_ Request = (*ResumeSessionRequest)(nil)
	_ Request = (*UploadPackageRequest)(nil)
)
