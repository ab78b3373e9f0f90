// internal/session/capture.go
package session

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/websentry/scraperd/internal/browser"
	"github.com/websentry/scraperd/internal/detect"
)

// captureTimeout bounds one script body transfer.
const captureTimeout = 10 * time.Second

// Capture accumulates script bodies observed during one session. Every
// 200 javascript response is read concurrently; URL and body are
// appended as a unit so the two slices never desynchronize. Wait must
// be called before the session is declared complete so late captures
// are not lost.
type Capture struct {
	ctx context.Context

	mu     sync.Mutex
	closed bool
	urls   []string
	bodies []string
	wg     sync.WaitGroup
}

// NewCapture creates a Capture whose body reads are bounded by ctx.
func NewCapture(ctx context.Context) *Capture {
	return &Capture{ctx: ctx}
}

// Observe implements browser.ResponseHandler. Non-200 responses are
// skipped; body read failures are logged and never fail the session.
func (c *Capture) Observe(resp browser.Response) {
	if resp.Status() != 200 {
		log.Debug().Str("url", resp.URL()).Int("status", resp.Status()).Msg("Skipping non-200 response")
		return
	}
	if !strings.Contains(strings.ToLower(resp.ContentType()), "javascript") {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		log.Debug().Str("url", resp.URL()).Msg("Skipping response after capture close")
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		bodyCtx, cancel := context.WithTimeout(c.ctx, captureTimeout)
		defer cancel()

		body, err := resp.Body(bodyCtx)
		if err != nil {
			log.Debug().Str("url", resp.URL()).Err(err).Msg("Failed to capture script body")
			return
		}

		c.mu.Lock()
		c.urls = append(c.urls, resp.URL())
		c.bodies = append(c.bodies, string(body))
		c.mu.Unlock()
	}()
}

// Wait closes the capture to new responses, then joins every
// outstanding body read. Responses observed after Wait begins are
// dropped; the session snapshots paths and bodies right after the join.
func (c *Capture) Wait() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

// ScriptPaths returns the URL path of every captured script.
func (c *Capture) ScriptPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make([]string, 0, len(c.urls))
	for _, raw := range c.urls {
		if u, err := url.Parse(raw); err == nil {
			paths = append(paths, u.Path)
		} else {
			paths = append(paths, raw)
		}
	}
	return paths
}

// Obfuscated runs the detector over the captured bodies, stopping at
// the first positive.
func (c *Capture) Obfuscated(d detect.Detector) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, body := range c.bodies {
		if d.Scan(body) {
			return true
		}
	}
	return false
}
