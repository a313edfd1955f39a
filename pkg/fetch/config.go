// Package fetch provides a memoizing HTTP fetcher for asset rehosting: at
// most one network request is issued per URL and body kind per run, and every
// caller shares the outcome of that single request.
package fetch

import (
	"net/http"
	"time"
)

// DefaultUserAgent identifies as a current desktop browser so that content
// negotiation (notably compressed web font formats) resolves the same way it
// would for a real visitor.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 30 * time.Second

// HTTPClient is an interface matching the Do method of *http.Client.
// This allows injection of mock clients for testing and custom transports.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds configuration for a Memoizer.
type Config struct {
	// HTTPClient is the underlying HTTP client used for requests.
	// If nil, a client with DefaultTimeout is used.
	HTTPClient HTTPClient

	// UserAgent is the User-Agent header sent with every request.
	// Default: DefaultUserAgent.
	UserAgent string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HTTPClient: nil, // Will use a default client with DefaultTimeout.
		UserAgent:  DefaultUserAgent,
	}
}
