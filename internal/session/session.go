// internal/session/session.go
//
// Package session owns the scrape lifecycle of one task: DNS gate,
// browser context and page, request filtering, response capture, the
// content-stability convergence loop and result assembly. No error
// escapes a session; every path collapses into exactly one ScrapeResult.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/websentry/scraperd/internal/browser"
	"github.com/websentry/scraperd/internal/detect"
	"github.com/websentry/scraperd/internal/model"
	"github.com/websentry/scraperd/internal/proxy"
)

// DefaultProfile is the fixed device emulation every session runs with:
// a mobile Firefox on iOS fingerprint with a mismatched locale/timezone
// pair, matching the fleet's crawling identity.
var DefaultProfile = browser.DeviceProfile{
	UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_7 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) FxiOS/131.0 Mobile/15E148 Safari/605.1.15",
	ViewportWidth:  390,
	ViewportHeight: 844,
	Locale:         "en-GB",
	Timezone:       "America/New_York",
}

// Config holds the timing constants of the navigation and convergence
// steps.
type Config struct {
	// NavigationTimeout bounds the initial page load.
	NavigationTimeout time.Duration
	// MaxWaitTime bounds the baseline structural readiness wait.
	MaxWaitTime time.Duration
	// CheckInterval is the convergence loop poll period.
	CheckInterval time.Duration
	// NoChangeLimit is the number of consecutive unchanged snapshots
	// after which content is deemed stable.
	NoChangeLimit int
	// ChangeLimit is the number of consecutive changed snapshots after
	// which the loop bails out to bound wall-clock time.
	ChangeLimit int
}

// DefaultConfig returns the production timing constants.
func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 30 * time.Second,
		MaxWaitTime:       12 * time.Second,
		CheckInterval:     400 * time.Millisecond,
		NoChangeLimit:     3,
		ChangeLimit:       4,
	}
}

// ProxyProvider supplies one outbound proxy per task and receives
// elapsed time and success after every task, regardless of outcome.
type ProxyProvider interface {
	GetProxy() *proxy.Proxy
	UpdateLoadTime(prx *proxy.Proxy, elapsed time.Duration, success bool)
}

// Resolver is the DNS pre-check gate: addresses, or nothing.
type Resolver interface {
	Resolve(ctx context.Context, domain string) []string
}

// ControllerOptions wires a Controller's collaborators.
type ControllerOptions struct {
	Engine   browser.Browser
	Proxies  ProxyProvider
	Resolver Resolver
	Config   Config
	// Profile defaults to DefaultProfile when zero.
	Profile browser.DeviceProfile
	// Blocklist defaults to DefaultBlocklist when nil.
	Blocklist []string
	// Detector defaults to detect.DefaultDetector when zero.
	Detector detect.Detector
}

// Controller drives scrape sessions. One Controller is shared by all
// workers; per-task state lives on the stack of Run.
type Controller struct {
	engine    browser.Browser
	proxies   ProxyProvider
	resolver  Resolver
	cfg       Config
	profile   browser.DeviceProfile
	blocklist []string
	detector  detect.Detector
}

// NewController creates a Controller from opts.
func NewController(opts ControllerOptions) *Controller {
	profile := opts.Profile
	if profile == (browser.DeviceProfile{}) {
		profile = DefaultProfile
	}
	detector := opts.Detector
	if detector == (detect.Detector{}) {
		detector = detect.DefaultDetector()
	}
	return &Controller{
		engine:    opts.Engine,
		proxies:   opts.Proxies,
		resolver:  opts.Resolver,
		cfg:       opts.Config,
		profile:   profile,
		blocklist: opts.Blocklist,
		detector:  detector,
	}
}

// stepOutcome is the tagged terminal state a pipeline step produces.
// Steps report their own taxonomy instead of relying on error-type
// matching at the session boundary.
type stepOutcome struct {
	status model.Status
	errMsg string
}

// Run executes one scrape session and always returns a result. Proxy
// health feedback is reported exactly once on every exit path; only the
// Failed path counts against the proxy.
func (sc *Controller) Run(ctx context.Context, task model.ScrapeTask) model.ScrapeResult {
	start := task.StartedAt
	if start.IsZero() {
		start = time.Now()
	}

	target := task.Domain
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}
	host := hostOf(target)

	res := model.ScrapeResult{
		Domain:      host,
		StatusCode:  model.StatusFailed,
		ScriptPaths: []string{},
	}

	prx := sc.proxies.GetProxy()
	proxySuccess := true
	defer func() {
		sc.proxies.UpdateLoadTime(prx, time.Since(start), proxySuccess)
	}()

	if ctx.Err() != nil {
		res.StatusCode = model.StatusCancelled
		res.Error = fmt.Sprintf("task cancelled before start for %s", host)
		return res
	}

	ips := sc.resolver.Resolve(ctx, host)
	if len(ips) == 0 {
		log.Debug().Str("domain", host).Msg("DNS pre-check failed, skipping browser work")
		res.StatusCode = model.StatusDNSError
		res.Error = fmt.Sprintf("DNS resolution failed for %s", host)
		return res
	}
	res.IP = ips

	outcome := sc.scrape(ctx, target, host, prx, &res)
	res.StatusCode = outcome.status
	res.Error = outcome.errMsg
	if outcome.status == model.StatusFailed {
		proxySuccess = false
	}

	log.Debug().
		Str("domain", host).
		Str("status", string(res.StatusCode)).
		Dur("elapsed", time.Since(start)).
		Msg("Scrape session finished")
	return res
}

// scrape runs the browser portion of the session, populating res
// incrementally so every outcome carries whatever was already known.
func (sc *Controller) scrape(ctx context.Context, target, host string, prx *proxy.Proxy, res *model.ScrapeResult) stepOutcome {
	proxyAddr := ""
	if prx != nil {
		proxyAddr = "http://" + prx.Address
	}

	bctx, err := sc.engine.NewContext(ctx, browser.ContextOptions{
		Profile:      sc.profile,
		ProxyAddress: proxyAddr,
	})
	if err != nil {
		return classify(ctx, err, "open browser context")
	}

	var page browser.Page
	defer func() {
		// Every teardown step is attempted regardless of the previous
		// one; failures are logged and swallowed.
		if err := bctx.Close(); err != nil {
			log.Debug().Str("domain", host).Err(err).Msg("Error closing browser context")
		}
		if page != nil {
			if err := page.Close(); err != nil {
				log.Debug().Str("domain", host).Err(err).Msg("Error closing page")
			}
		}
	}()

	page, err = bctx.NewPage(ctx)
	if err != nil {
		return classify(ctx, err, "open page")
	}

	filter := NewFilter(sc.blocklist)
	capture := NewCapture(ctx)
	page.OnRequest(filter.Decide)
	page.OnResponse(capture.Observe)

	navCtx, cancelNav := context.WithTimeout(ctx, sc.cfg.NavigationTimeout)
	err = page.Navigate(navCtx, target)
	cancelNav()
	if err != nil {
		return classify(ctx, err, "navigate")
	}

	html, err := page.Content(ctx)
	if err != nil {
		return classify(ctx, err, "first content snapshot")
	}
	res.HTMLContent = html

	if err := page.WaitReady(ctx, "body", sc.cfg.MaxWaitTime); err != nil {
		return classify(ctx, err, "wait for body")
	}

	if loc, err := page.Location(ctx); err == nil {
		res.RedirectDomain = redirectDomain(host, loc)
	}

	status := model.StatusComplete
	current := html

	// Convergence loop. At least one fresh snapshot is always taken
	// before the stability predicate is evaluated, so a stable verdict
	// never rests on the navigation-time snapshot alone.
	unchanged, changed := 0, 0
	previous := ""
	for {
		snap, err := page.Content(ctx)
		if err != nil {
			res.HTMLContent = current
			return classify(ctx, err, "content snapshot")
		}
		current = snap

		if current != previous {
			previous = current
			unchanged = 0
			changed++
			if changed >= sc.cfg.ChangeLimit {
				// Content still actively churning; bail out to bound
				// wall-clock time.
				status = model.StatusLoading
				break
			}
		} else {
			unchanged++
			changed = 0
		}
		if unchanged >= sc.cfg.NoChangeLimit {
			break
		}

		select {
		case <-ctx.Done():
			res.HTMLContent = current
			return stepOutcome{model.StatusCancelled, "task cancelled while polling content"}
		case <-time.After(sc.cfg.CheckInterval):
		}
	}
	res.HTMLContent = current

	// Join every capture, including ones spawned after the loop ended.
	capture.Wait()
	res.ScriptPaths = capture.ScriptPaths()
	res.Obfuscation = capture.Obfuscated(sc.detector)

	return stepOutcome{status, ""}
}

// classify converts a step error into the session taxonomy: external
// cancellation first, then a blown step deadline, then generic failure.
func classify(ctx context.Context, err error, step string) stepOutcome {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return stepOutcome{model.StatusCancelled, fmt.Sprintf("task cancelled during %s", step)}
	case errors.Is(err, context.DeadlineExceeded):
		return stepOutcome{model.StatusTimeout, fmt.Sprintf("timeout during %s", step)}
	default:
		return stepOutcome{model.StatusFailed, fmt.Sprintf("%s: %v", step, err)}
	}
}

// redirectDomain reports the post-navigation host when navigation
// crossed to a different registrable domain, and the zero value (JSON
// false) otherwise.
func redirectDomain(initialHost, finalURL string) model.RedirectDomain {
	u, err := url.Parse(finalURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if registrableHost(u.Host) != registrableHost(initialHost) {
		return model.RedirectDomain(u.Host)
	}
	return ""
}

// registrableHost normalizes a host down to its eTLD+1 so that
// www.example.com and example.com compare equal.
func registrableHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(stripPort(host), "."))
	if etld, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld
	}
	return host
}

func stripPort(host string) string {
	if !strings.Contains(host, ":") {
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// hostOf extracts the host from a URL, falling back to the raw string
// with any scheme prefix removed.
func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	return strings.SplitN(trimmed, "/", 2)[0]
}
