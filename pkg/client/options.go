package client

import (
	"log/slog"
	"os"
	"time"

	"github.com/kjanat/hotdocs-cloud/client/pkg/api"
)

// DefaultBaseURL is the HotDocs Cloud Services address.
const DefaultBaseURL = "https://cloud.hotdocs.ws"

// PackageReader loads package bytes from a local path.
type PackageReader func(path string) ([]byte, error)

// Options configures the client behavior.
type Options struct {
	baseURL            string
	timeout            time.Duration
	proxy              string
	insecureSkipVerify bool
	doer               api.HttpRequestDoer
	clock              Clock
	readPackage        PackageReader
	logger             *slog.Logger
	validateRequests   bool
}

func defaultOptions() *Options {
	return &Options{
		baseURL:     DefaultBaseURL,
		timeout:     30 * time.Second,
		clock:       systemClock{},
		readPackage: os.ReadFile,
		logger:      slog.New(slog.DiscardHandler),
	}
}

// Option configures the client.
type Option func(*Options)

// WithBaseURL sets the service address.
// Default is https://cloud.hotdocs.ws.
func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		o.baseURL = baseURL
	}
}

// WithTimeout sets the timeout of each HTTP round-trip.
// Default is 30s.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.timeout = d
	}
}

// WithProxy routes every call through the proxy at addr. A bare host:port
// is treated as an http:// proxy.
func WithProxy(addr string) Option {
	return func(o *Options) {
		o.proxy = addr
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
// Only use it against test deployments.
func WithInsecureSkipVerify() Option {
	return func(o *Options) {
		o.insecureSkipVerify = true
	}
}

// WithHTTPClient replaces the HTTP client built from the timeout, proxy and
// TLS options, which are then ignored.
func WithHTTPClient(doer api.HttpRequestDoer) Option {
	return func(o *Options) {
		o.doer = doer
	}
}

// WithClock sets the clock used to timestamp signatures.
func WithClock(c Clock) Option {
	return func(o *Options) {
		o.clock = c
	}
}

// WithPackageReader sets how package files are read when an upload is
// needed. Default is os.ReadFile.
func WithPackageReader(fn PackageReader) Option {
	return func(o *Options) {
		o.readPackage = fn
	}
}

// WithLogger sets the structured logger. By default nothing is logged.
// Credentials and signatures are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.logger = l
	}
}

// WithRequestValidation checks every outbound request against the service's
// OpenAPI description before sending it.
func WithRequestValidation() Option {
	return func(o *Options) {
		o.validateRequests = true
	}
}
