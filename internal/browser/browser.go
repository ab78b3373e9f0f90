// internal/browser/browser.go
//
// Package browser defines the rendering-engine capability the scrape
// session consumes: isolated contexts with a fixed device profile and an
// outbound proxy, pages with request interception and response
// observation. The chromedp-backed implementation lives in chrome.go;
// tests drive the session against fakes.
package browser

import (
	"context"
	"time"
)

// ResourceType classifies an outbound request the way the rendering
// engine sees it.
type ResourceType string

const (
	ResourceDocument   ResourceType = "document"
	ResourceStylesheet ResourceType = "stylesheet"
	ResourceImage      ResourceType = "image"
	ResourceFont       ResourceType = "font"
	ResourceMedia      ResourceType = "media"
	ResourceScript     ResourceType = "script"
	ResourceXHR        ResourceType = "xhr"
	ResourceFetch      ResourceType = "fetch"
	ResourceOther      ResourceType = "other"
)

// Decision is the verdict of a request handler.
type Decision int

const (
	// Allow lets the request proceed to the network.
	Allow Decision = iota
	// Abort cancels the request before it is issued.
	Abort
)

// Request is the view of an outbound resource request offered to the
// interception handler before the engine issues it.
type Request struct {
	URL  string
	Type ResourceType
	// IsNavigation marks the top-frame document load. Document-typed
	// subresources (frames) carry Type == ResourceDocument with this
	// unset.
	IsNavigation bool
}

// RequestHandler decides synchronously whether a request proceeds.
type RequestHandler func(req Request) Decision

// Response is one inbound response observed during a session. Body
// performs the (possibly slow) transfer of the full payload; callers
// are expected to invoke it off the event path.
type Response interface {
	URL() string
	Status() int
	ContentType() string
	Body(ctx context.Context) ([]byte, error)
}

// ResponseHandler observes every response whose body has finished
// loading. It is invoked concurrently with page activity and must not
// block the engine.
type ResponseHandler func(resp Response)

// DeviceProfile pins the emulated client fingerprint for a context.
type DeviceProfile struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	Timezone       string
}

// ContextOptions configures an isolated rendering context.
type ContextOptions struct {
	Profile DeviceProfile
	// ProxyAddress routes all context traffic through the given proxy
	// (scheme://host:port). Empty means direct.
	ProxyAddress string
}

// Browser creates isolated rendering contexts. A context and the pages
// opened from it are exclusively owned by one session.
type Browser interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close() error
}

// Context is one isolated browsing context.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one tab. Handlers must be installed before Navigate; the
// engine may start issuing requests the moment navigation begins.
type Page interface {
	OnRequest(h RequestHandler)
	OnResponse(h ResponseHandler)
	Navigate(ctx context.Context, url string) error
	// Content returns the current serialized document.
	Content(ctx context.Context) (string, error)
	// WaitReady blocks until selector is present in the DOM, bounded by
	// timeout. The returned error wraps context.DeadlineExceeded when
	// the bound is hit.
	WaitReady(ctx context.Context, selector string, timeout time.Duration) error
	// Location returns the page URL after navigation and redirects.
	Location(ctx context.Context) (string, error)
	Close() error
}
