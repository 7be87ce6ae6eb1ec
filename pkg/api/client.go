// Package api provides the low-level wire layer for HotDocs Cloud Services.
//
// It turns a Call (method, path prefix, subscriber and package identifiers,
// raw query and body) into an *http.Request, runs it through an
// HttpRequestDoer and hands back the fully read response. Authentication is
// not applied here; callers attach signature headers with a RequestEditorFn.
//
// The operations it describes are documented in the embedded OpenAPI
// description, see GetSwagger.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Path prefixes of the service operations.
const (
	PathNewSession    = "/embed/newsession"
	PathResumeSession = "/embed/resumesession"
	PathPackageCache  = "/hdcs"
)

// Header names and values used on the wire.
const (
	HeaderAuthorization = "Authorization"
	HeaderDate          = "x-hd-date"
	HeaderContentType   = "Content-Type"
	ContentTypeBinary   = "application/binary"
)

// HttpRequestDoer performs HTTP requests.
//
// The standard http.Client implements this interface.
//
//revive:disable-next-line:var-naming // matches the generated client naming
type HttpRequestDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestEditorFn is the function signature for the RequestEditor callback function.
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// Call describes one outbound service call.
type Call struct {
	Method       string
	PathPrefix   string
	SubscriberID string
	PackageID    string
	RawQuery     string
	Body         []byte
}

// Client builds and executes service calls.
type Client struct {
	// The endpoint of the server conforming to this interface, with scheme,
	// https://cloud.hotdocs.ws for example. No trailing slash.
	Server string

	// Doer for performing requests, typically a *http.Client with any
	// customized settings, such as certificate chains.
	Client HttpRequestDoer

	// A list of callbacks for modifying requests which are generated before
	// sending over the network.
	RequestEditors []RequestEditorFn
}

// ClientOption allows setting custom parameters during construction.
type ClientOption func(*Client) error

// NewClient creates a new Client, with reasonable defaults.
func NewClient(server string, opts ...ClientOption) (*Client, error) {
	client := Client{Server: server}
	for _, o := range opts {
		if err := o(&client); err != nil {
			return nil, err
		}
	}
	client.Server = strings.TrimSuffix(client.Server, "/")
	if client.Server == "" {
		return nil, fmt.Errorf("server cannot be empty")
	}
	if client.Client == nil {
		client.Client = &http.Client{}
	}
	return &client, nil
}

// WithHTTPClient allows overriding the default Doer, which is
// automatically created using http.Client.
func WithHTTPClient(doer HttpRequestDoer) ClientOption {
	return func(c *Client) error {
		c.Client = doer
		return nil
	}
}

// WithBaseURL overrides the baseURL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) error {
		if _, err := url.Parse(baseURL); err != nil {
			return err
		}
		c.Server = baseURL
		return nil
	}
}

// WithRequestEditorFn allows setting up a callback function, which will be
// called right before sending the request. This can be used to mutate the request.
func WithRequestEditorFn(fn RequestEditorFn) ClientOption {
	return func(c *Client) error {
		c.RequestEditors = append(c.RequestEditors, fn)
		return nil
	}
}

// NewRequest builds the http.Request for call against server.
//
// The URL is server + prefix + "/" + subscriber, followed by "/" + package
// when the call names a package and "?" + query when it has one. A non-empty
// body is sent as application/binary.
func NewRequest(server string, call Call) (*http.Request, error) {
	if call.PathPrefix == "" {
		return nil, fmt.Errorf("path prefix cannot be empty")
	}

	subscriber, err := PathParam("subscriberId", call.SubscriberID)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSuffix(server, "/"))
	sb.WriteString(call.PathPrefix)
	sb.WriteByte('/')
	sb.WriteString(subscriber)

	if call.PackageID != "" {
		pkg, err := PathParam("packageId", call.PackageID)
		if err != nil {
			return nil, err
		}
		sb.WriteByte('/')
		sb.WriteString(pkg)
	}

	if call.RawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(call.RawQuery)
	}

	target, err := url.Parse(sb.String())
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}

	var body io.Reader
	if len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequest(call.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	if len(call.Body) > 0 {
		req.Header.Set(HeaderContentType, ContentTypeBinary)
	}

	return req, nil
}

// Do builds call, applies the client and per-call editors and sends it.
// The caller owns the returned response body.
func (c *Client) Do(ctx context.Context, call Call, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewRequest(c.Server, call)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	if err := c.applyEditors(ctx, req, reqEditors); err != nil {
		return nil, err
	}
	return c.Client.Do(req)
}

func (c *Client) applyEditors(ctx context.Context, req *http.Request, additionalEditors []RequestEditorFn) error {
	for _, r := range c.RequestEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	for _, r := range additionalEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// Response is a fully read service response.
type Response struct {
	Body         []byte
	HTTPResponse *http.Response
}

// Status returns HTTPResponse.Status
func (r Response) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return ""
}

// StatusCode returns HTTPResponse.StatusCode
func (r Response) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// DoWithResponse sends call and parses the response.
func (c *Client) DoWithResponse(ctx context.Context, call Call, reqEditors ...RequestEditorFn) (*Response, error) {
	rsp, err := c.Do(ctx, call, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseResponse(rsp)
}

// ParseResponse reads and closes the body of rsp.
func ParseResponse(rsp *http.Response) (*Response, error) {
	bodyBytes, err := io.ReadAll(rsp.Body)
	defer func() { _ = rsp.Body.Close() }()
	if err != nil {
		return nil, err
	}

	return &Response{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}, nil
}
