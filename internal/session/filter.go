// internal/session/filter.go
package session

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/websentry/scraperd/internal/browser"
)

// DefaultBlocklist holds URL substrings identifying ad, analytics and
// tag-manager hosts that never contribute to the scraped content.
var DefaultBlocklist = []string{
	"ads",
	"analytics",
	"doubleclick",
	"googletagmanager",
	"adservice",
}

// blockedResourceTypes are the resource classes a session never needs:
// the page is scraped for markup and script, not rendered for a human.
var blockedResourceTypes = map[browser.ResourceType]struct{}{
	browser.ResourceImage:      {},
	browser.ResourceStylesheet: {},
	browser.ResourceFont:       {},
	browser.ResourceMedia:      {},
	browser.ResourceDocument:   {},
}

// Filter is the per-session request interception policy. It is installed
// on the page before navigation and consulted for every outbound request.
// First match wins: blocked resource class, then blocklisted host, then
// duplicate URL; anything else is recorded and allowed. The dedup set is
// scoped to one session and never shared.
type Filter struct {
	blocklist []string

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewFilter creates a Filter with the given host blocklist. A nil
// blocklist falls back to DefaultBlocklist.
func NewFilter(blocklist []string) *Filter {
	if blocklist == nil {
		blocklist = DefaultBlocklist
	}
	return &Filter{
		blocklist: blocklist,
		seen:      make(map[string]struct{}),
	}
}

// Decide implements browser.RequestHandler. Safe for concurrent calls;
// the engine dispatches interception events from multiple goroutines.
func (f *Filter) Decide(req browser.Request) browser.Decision {
	if _, blocked := blockedResourceTypes[req.Type]; blocked && !req.IsNavigation {
		log.Debug().Str("url", req.URL).Str("type", string(req.Type)).Msg("Aborting blocked resource class")
		return browser.Abort
	}

	for _, fragment := range f.blocklist {
		if strings.Contains(req.URL, fragment) {
			log.Debug().Str("url", req.URL).Msg("Aborting blocklisted request")
			return browser.Abort
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[req.URL]; dup {
		log.Debug().Str("url", req.URL).Msg("Aborting repeated request")
		return browser.Abort
	}
	f.seen[req.URL] = struct{}{}
	return browser.Allow
}
