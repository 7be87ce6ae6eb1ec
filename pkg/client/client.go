package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjanat/hotdocs-cloud/client/pkg/api"
)

// Client signs and sends requests to HotDocs Cloud Services.
//
// A Client is immutable after New and safe for concurrent use by multiple
// goroutines. The subscriber's signing key is held by the Client and never
// exposed.
type Client struct {
	raw      *api.Client
	signer   *Signer
	opts     *Options
	log      *slog.Logger
	validate api.RequestEditorFn
}

// New creates a client for subscriberID, signing with signingKey.
func New(subscriberID, signingKey string, opts ...Option) (*Client, error) {
	if subscriberID == "" {
		return nil, errors.New("subscriberID cannot be empty")
	}
	if signingKey == "" {
		return nil, errors.New("signingKey cannot be empty")
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	// Validate options
	if options.baseURL == "" {
		return nil, errors.New("baseURL cannot be empty")
	}
	if options.timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}
	if options.clock == nil {
		return nil, errors.New("clock cannot be nil")
	}
	if options.readPackage == nil {
		return nil, errors.New("package reader cannot be nil")
	}
	if options.logger == nil {
		options.logger = slog.New(slog.DiscardHandler)
	}

	doer := options.doer
	if doer == nil {
		httpClient, err := newHTTPClient(options)
		if err != nil {
			return nil, err
		}
		doer = httpClient
	}

	rawClient, err := api.NewClient(options.baseURL, api.WithHTTPClient(doer))
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	c := &Client{
		raw:    rawClient,
		signer: NewSigner(subscriberID, signingKey),
		opts:   options,
		log:    options.logger,
	}

	if options.validateRequests {
		c.validate, err = api.NewRequestValidator(rawClient.Server)
		if err != nil {
			return nil, fmt.Errorf("create request validator: %w", err)
		}
	}

	return c, nil
}

func newHTTPClient(o *Options) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	if o.proxy != "" {
		proxyURL, err := parseProxy(o.proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if o.insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // explicit opt-in for test deployments
		}
	}

	return &http.Client{
		Timeout:   o.timeout,
		Transport: transport,
	}, nil
}

func parseProxy(addr string) (*url.URL, error) {
	raw := addr
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy address %q", addr)
	}
	return u, nil
}

// SubscriberID returns the subscriber the client signs for.
func (c *Client) SubscriberID() string {
	return c.signer.SubscriberID()
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.raw.Server
}

// SendRequest sends req and returns the body of the final response.
// See Send for the handling of packages missing from the service cache.
func (c *Client) SendRequest(ctx context.Context, req Request) ([]byte, error) {
	res, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

// CreateSession creates an interview session and returns its ID.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	if req == nil || req.PackageID() == "" {
		return nil, &ValidationError{
			Code:    ErrCodeInvalidRequest,
			Message: "packageID cannot be empty",
		}
	}

	body, err := c.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return newSession(body), nil
}

// ResumeSession resumes a saved session and returns its ID.
func (c *Client) ResumeSession(ctx context.Context, req *ResumeSessionRequest) (*Session, error) {
	if req == nil || len(req.Content()) == 0 {
		return nil, &ValidationError{
			Code:    ErrCodeInvalidRequest,
			Message: "snapshot cannot be empty",
		}
	}

	body, err := c.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	return newSession(body), nil
}

// UploadPackage stores the package at packageFilePath as packageID. A
// package the service already holds is not an error.
func (c *Client) UploadPackage(ctx context.Context, packageID, packageFilePath string) error {
	if packageID == "" {
		return &ValidationError{
			Code:    ErrCodeInvalidRequest,
			Message: "packageID cannot be empty",
		}
	}

	content, err := c.opts.readPackage(packageFilePath)
	if err != nil {
		return &ValidationError{
			Code:    ErrCodePackageUnreadable,
			Message: fmt.Sprintf("read package %s: %v", packageFilePath, err),
			Err:     err,
		}
	}

	_, err = c.Send(ctx, NewUploadPackageRequest(packageID, content))
	if err != nil && StatusCode(err) == http.StatusConflict {
		c.log.Debug("package already cached", "package", packageID)
		return nil
	}
	return err
}

// roundTrip signs and sends one request and reads its response.
func (c *Client) roundTrip(ctx context.Context, req Request) (*api.Response, error) {
	if s, ok := req.(sealer); ok {
		s.seal()
	}

	query, err := req.Query()
	if err != nil {
		return nil, &ValidationError{
			Code:    ErrCodeInvalidRequest,
			Message: err.Error(),
			Err:     err,
		}
	}

	call := api.Call{
		Method:       req.Method(),
		PathPrefix:   req.PathPrefix(),
		SubscriberID: c.signer.SubscriberID(),
		PackageID:    req.PackageID(),
		RawQuery:     query,
		Body:         req.Content(),
	}

	editors := []api.RequestEditorFn{c.signEditor(req)}
	if c.validate != nil {
		editors = append(editors, c.validate)
	}

	start := time.Now()
	rsp, err := c.raw.DoWithResponse(ctx, call, editors...)
	if err != nil {
		if errors.Is(err, api.ErrInvalidRequest) {
			return nil, &ValidationError{
				Code:    ErrCodeInvalidRequest,
				Message: err.Error(),
				Err:     err,
			}
		}
		c.log.Debug("round-trip failed",
			"op", req.Operation(),
			"method", call.Method,
			"path", call.PathPrefix,
			"error", err,
		)
		return nil, newTransportError(req.Operation(), err)
	}

	c.log.Debug("round-trip",
		"op", req.Operation(),
		"method", call.Method,
		"path", call.PathPrefix,
		"status", rsp.StatusCode(),
		"duration", time.Since(start),
	)
	return rsp, nil
}

// signEditor attaches the signature and date headers, both derived from a
// single clock reading.
func (c *Client) signEditor(req Request) api.RequestEditorFn {
	return func(_ context.Context, httpReq *http.Request) error {
		now := c.opts.clock.Now()
		httpReq.Header.Set(api.HeaderAuthorization, c.signer.Sign(now, req.HMACParams()))
		httpReq.Header.Set(api.HeaderDate, formatDateHeader(now))
		return nil
	}
}

// sealer is implemented by requests that must not change once signed.
type sealer interface {
	seal()
}
