package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"syscall"
)

// call is the shared state behind every handle for one (URL, kind) pair.
// body and err are written exactly once, before done is closed.
type call struct {
	done chan struct{}
	body []byte
	err  error
}

// TextHandle is a shared handle to the eventual text body of a URL.
// All requesters of the same URL receive the same underlying call.
type TextHandle struct {
	call *call
}

// Wait blocks until the fetch completes and returns the body as a string.
func (handle *TextHandle) Wait(ctx context.Context) (string, error) {
	select {
	case <-handle.call.done:
		return string(handle.call.body), handle.call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// BufferHandle is a shared handle to the eventual raw bytes of a URL.
type BufferHandle struct {
	call *call
}

// Wait blocks until the fetch completes and returns the body bytes.
func (handle *BufferHandle) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-handle.call.done:
		return handle.call.body, handle.call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Memoizer deduplicates network requests per URL. It keeps two handle maps,
// one for text content and one for binary content, because an asset
// discovered as a stylesheet (scanned as text) may be re-discovered as a raw
// asset (needed as bytes); the two must not collide.
//
// A Memoizer holds per-run state. Construct one at the start of a build pass
// and discard it at the end; separate runs get isolated state.
type Memoizer struct {
	client    HTTPClient
	userAgent string

	mu     sync.Mutex
	text   map[string]*call
	binary map[string]*call
}

// NewMemoizer creates a Memoizer with the given configuration.
func NewMemoizer(config Config) *Memoizer {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Memoizer{
		client:    client,
		userAgent: userAgent,
		text:      make(map[string]*call),
		binary:    make(map[string]*call),
	}
}

// FetchText returns a shared handle to the text body of rawURL, starting the
// request if this is the first text fetch for that exact URL string. The
// request runs with the first caller's context.
func (memoizer *Memoizer) FetchText(ctx context.Context, rawURL string) *TextHandle {
	return &TextHandle{call: memoizer.fetch(ctx, rawURL, memoizer.text)}
}

// FetchBuffer returns a shared handle to the raw bytes of rawURL, starting
// the request if this is the first buffer fetch for that exact URL string.
func (memoizer *Memoizer) FetchBuffer(ctx context.Context, rawURL string) *BufferHandle {
	return &BufferHandle{call: memoizer.fetch(ctx, rawURL, memoizer.binary)}
}

// fetch returns the existing call for rawURL in the given handle map, or
// creates and starts one. Handle creation happens synchronously under the
// lock, before any network I/O, so duplicate detection is race-free.
func (memoizer *Memoizer) fetch(ctx context.Context, rawURL string, handles map[string]*call) *call {
	memoizer.mu.Lock()
	if existing, exists := handles[rawURL]; exists {
		memoizer.mu.Unlock()
		return existing
	}

	pending := &call{done: make(chan struct{})}
	handles[rawURL] = pending
	memoizer.mu.Unlock()

	go func() {
		pending.body, pending.err = memoizer.download(ctx, rawURL)
		close(pending.done)
	}()

	return pending
}

// download performs the request, retrying exactly once on a transient
// connection reset. Other failures propagate to every waiter.
func (memoizer *Memoizer) download(ctx context.Context, rawURL string) ([]byte, error) {
	requestURL := rawURL
	if strings.HasPrefix(requestURL, "//") {
		requestURL = "https:" + requestURL
	}

	body, err := memoizer.attempt(ctx, requestURL)
	if err != nil && isConnectionReset(err) {
		body, err = memoizer.attempt(ctx, requestURL)
	}
	return body, err
}

// attempt performs a single GET request and reads the full body.
func (memoizer *Memoizer) attempt(ctx context.Context, requestURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", requestURL, err)
	}
	request.Header.Set("User-Agent", memoizer.userAgent)

	response, err := memoizer.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", requestURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", response.StatusCode, requestURL)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", requestURL, err)
	}
	return body, nil
}

// isConnectionReset reports whether err looks like a transient TCP reset.
func isConnectionReset(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset by peer")
}
