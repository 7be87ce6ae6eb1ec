// Package fakecloud is an in-process stand-in for HotDocs Cloud Services.
//
// It verifies request signatures the way the service does, keeps a package
// cache and issues session IDs, and records every call so tests can assert
// on the exact sequence of round-trips a client made.
package fakecloud

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kjanat/hotdocs-cloud/client/pkg/api"
	"github.com/kjanat/hotdocs-cloud/client/pkg/client"
)

// Call is one request received by the Service.
type Call struct {
	Op         string
	Method     string
	PackageID  string
	RawQuery   string
	Body       []byte
	Authorized bool
	Status     int
}

// Service is a fake HotDocs Cloud Services deployment for one subscriber.
type Service struct {
	signer *client.Signer

	mu       sync.Mutex
	packages map[string][]byte
	sessions map[string]string
	forced   map[string][]int
	calls    []Call
}

// New returns a Service that accepts requests signed with signingKey for
// subscriberID.
func New(subscriberID, signingKey string) *Service {
	return &Service{
		signer:   client.NewSigner(subscriberID, signingKey),
		packages: make(map[string][]byte),
		sessions: make(map[string]string),
		forced:   make(map[string][]int),
	}
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the service endpoints on r.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Post(api.PathNewSession+"/{subscriberId}/{packageId}", s.createSession)
	r.Post(api.PathResumeSession+"/{subscriberId}", s.resumeSession)
	r.Put(api.PathPackageCache+"/{subscriberId}/{packageId}", s.uploadPackage)
}

// AddPackage puts a package in the cache.
func (s *Service) AddPackage(packageID string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[packageID] = content
}

// Package returns a cached package.
func (s *Service) Package(packageID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.packages[packageID]
	return content, ok
}

// SessionPackage returns the package a session was created for.
func (s *Service) SessionPackage(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.sessions[sessionID]
	return pkg, ok
}

// Force makes the next calls to op answer with statuses, one per call, once
// their signature has been verified.
func (s *Service) Force(op string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[op] = append(s.forced[op], statuses...)
}

// Calls returns the calls received so far.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the operation of each call received so far, in order.
func (s *Service) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]string, len(s.calls))
	for i, c := range s.calls {
		ops[i] = c.Op
	}
	return ops
}

func (s *Service) createSession(w http.ResponseWriter, r *http.Request) {
	call, ok := s.begin(w, r, client.OpCreateSession)
	if !ok {
		return
	}

	params, err := createSessionParams(call.PackageID, r.URL.RawQuery)
	if err != nil {
		s.finish(w, call, http.StatusBadRequest, err.Error())
		return
	}
	if !s.authorize(w, r, call, params) {
		return
	}

	s.mu.Lock()
	_, cached := s.packages[call.PackageID]
	s.mu.Unlock()
	if !cached {
		s.finish(w, call, http.StatusNotFound, fmt.Sprintf("package %q not found", call.PackageID))
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = call.PackageID
	s.mu.Unlock()
	s.finish(w, call, http.StatusOK, id)
}

func (s *Service) resumeSession(w http.ResponseWriter, r *http.Request) {
	call, ok := s.begin(w, r, client.OpResumeSession)
	if !ok {
		return
	}
	if !s.authorize(w, r, call, []any{call.Body}) {
		return
	}
	if len(call.Body) == 0 {
		s.finish(w, call, http.StatusBadRequest, "snapshot required")
		return
	}
	s.finish(w, call, http.StatusOK, uuid.NewString())
}

func (s *Service) uploadPackage(w http.ResponseWriter, r *http.Request) {
	call, ok := s.begin(w, r, client.OpUploadPackage)
	if !ok {
		return
	}
	if !s.authorize(w, r, call, []any{call.PackageID, nil, true, ""}) {
		return
	}

	s.mu.Lock()
	_, exists := s.packages[call.PackageID]
	if !exists {
		s.packages[call.PackageID] = call.Body
	}
	s.mu.Unlock()

	if exists {
		s.finish(w, call, http.StatusConflict, "package already cached")
		return
	}
	s.finish(w, call, http.StatusCreated, "")
}

// begin reads the request into a Call and checks the parts every operation
// shares: subscriber, body and content type.
func (s *Service) begin(w http.ResponseWriter, r *http.Request, op string) (*Call, bool) {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	call := &Call{
		Op:       op,
		Method:   r.Method,
		RawQuery: r.URL.RawQuery,
		Body:     body,
	}
	if err != nil {
		s.finish(w, call, http.StatusBadRequest, err.Error())
		return nil, false
	}

	if raw := chi.URLParam(r, "packageId"); raw != "" {
		call.PackageID, err = url.PathUnescape(raw)
		if err != nil {
			s.finish(w, call, http.StatusBadRequest, err.Error())
			return nil, false
		}
	}

	subscriber, err := url.PathUnescape(chi.URLParam(r, "subscriberId"))
	if err != nil || subscriber != s.signer.SubscriberID() {
		s.finish(w, call, http.StatusUnauthorized, "unknown subscriber")
		return nil, false
	}

	if len(body) > 0 && r.Header.Get(api.HeaderContentType) != api.ContentTypeBinary {
		s.finish(w, call, http.StatusUnsupportedMediaType, "expected "+api.ContentTypeBinary)
		return nil, false
	}

	return call, true
}

// authorize verifies the request signature over params and applies any
// forced status. It writes the response and returns false when the call
// must not proceed.
func (s *Service) authorize(w http.ResponseWriter, r *http.Request, call *Call, params []any) bool {
	err := s.signer.Verify(r.Header.Get(api.HeaderDate), params, r.Header.Get(api.HeaderAuthorization))
	if err != nil {
		s.finish(w, call, http.StatusUnauthorized, err.Error())
		return false
	}
	call.Authorized = true

	s.mu.Lock()
	var forced int
	if queue := s.forced[call.Op]; len(queue) > 0 {
		forced, s.forced[call.Op] = queue[0], queue[1:]
	}
	s.mu.Unlock()

	if forced != 0 {
		s.finish(w, call, forced, fmt.Sprintf("forced status %d", forced))
		return false
	}
	return true
}

func (s *Service) finish(w http.ResponseWriter, call *Call, status int, body string) {
	call.Status = status

	s.mu.Lock()
	s.calls = append(s.calls, *call)
	s.mu.Unlock()

	w.Header().Set(api.HeaderContentType, "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

var createSessionKeys = map[string]bool{
	"interviewformat":   true,
	"outputformat":      true,
	"showdownloadlinks": true,
	"billingref":        true,
	"theme":             true,
}

// createSessionParams rebuilds the signed parameters of a CreateSession
// call from its query string. Settings are every parameter that is not one
// of the fixed ones, in query order.
func createSessionParams(packageID, rawQuery string) ([]any, error) {
	fixed := make(map[string]string)
	settings := orderedmap.NewOrderedMap[string, string]()

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return nil, fmt.Errorf("bad query parameter %q: %w", rawName, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("bad value for %q: %w", name, err)
		}
		if createSessionKeys[name] {
			fixed[name] = value
			continue
		}
		settings.Set(name, value)
	}

	for _, required := range []string{"interviewformat", "outputformat", "showdownloadlinks"} {
		if _, ok := fixed[required]; !ok {
			return nil, fmt.Errorf("missing query parameter %q", required)
		}
	}
	if v := fixed["showdownloadlinks"]; v != "True" && v != "False" {
		return nil, fmt.Errorf("showdownloadlinks must be True or False, got %q", v)
	}

	return []any{packageID, fixed["billingref"], fixed["interviewformat"], fixed["outputformat"], settings}, nil
}
