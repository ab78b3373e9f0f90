// internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// bodyFetchTimeout bounds a single response-body transfer over CDP.
const bodyFetchTimeout = 10 * time.Second

// ChromeOptions configures the chromedp-backed engine.
type ChromeOptions struct {
	// ExecPath overrides Chrome binary auto-detection.
	ExecPath string
	Headless bool
}

// Chrome implements Browser on top of headless Chrome via chromedp.
// Each context gets its own browser process so the outbound proxy can
// differ per session.
type Chrome struct {
	execPath string
	headless bool
}

// NewChrome creates the engine, locating the Chrome binary if no
// explicit path is configured.
func NewChrome(opts ChromeOptions) *Chrome {
	path := opts.ExecPath
	if path == "" {
		path = findChrome()
	}
	return &Chrome{execPath: path, headless: opts.Headless}
}

// NewContext starts an isolated browser process with the given device
// profile and proxy. Startup is lazy: the process launches on the first
// page action.
func (c *Chrome) NewContext(ctx context.Context, opts ContextOptions) (Context, error) {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", c.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("disk-cache-size", "0"),
	}
	if c.execPath != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(c.execPath)}, allocOpts...)
	}
	if opts.Profile.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.Profile.UserAgent))
	}
	if opts.ProxyAddress != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyAddress))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &chromeContext{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		profile:       opts.Profile,
	}, nil
}

// Close implements Browser. Per-session processes are torn down with
// their contexts; the engine itself holds nothing.
func (c *Chrome) Close() error {
	return nil
}

type chromeContext struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	profile       DeviceProfile
}

func (cc *chromeContext) NewPage(ctx context.Context) (Page, error) {
	if err := cc.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser context closed: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(cc.browserCtx)
	return &chromePage{
		ctx:     tabCtx,
		cancel:  tabCancel,
		profile: cc.profile,
		pending: make(map[network.RequestID]*chromeResponse),
	}, nil
}

func (cc *chromeContext) Close() error {
	cc.browserCancel()
	cc.allocCancel()
	return nil
}

type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	profile DeviceProfile

	reqHandler  RequestHandler
	respHandler ResponseHandler
	started     bool

	mu      sync.Mutex
	pending map[network.RequestID]*chromeResponse
}

func (p *chromePage) OnRequest(h RequestHandler)   { p.reqHandler = h }
func (p *chromePage) OnResponse(h ResponseHandler) { p.respHandler = h }

// run executes chromedp actions against the tab, honoring the caller's
// deadline and cancellation without tearing the tab down.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(p.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(p.ctx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate wires interception and emulation on first use, then drives
// the page to url. Handlers installed via OnRequest/OnResponse are live
// before the first request leaves the engine.
func (p *chromePage) Navigate(ctx context.Context, url string) error {
	var tasks chromedp.Tasks
	if !p.started {
		p.started = true
		tasks = append(tasks,
			chromedp.ActionFunc(func(ctx context.Context) error {
				p.listen(ctx)
				return nil
			}),
			network.Enable(),
			fetch.Enable(),
			emulation.SetUserAgentOverride(p.profile.UserAgent).
				WithAcceptLanguage(p.profile.Locale),
			emulation.SetDeviceMetricsOverride(
				int64(p.profile.ViewportWidth),
				int64(p.profile.ViewportHeight),
				1.0,
				p.profile.ViewportWidth < 768,
			),
			emulation.SetTimezoneOverride(p.profile.Timezone),
		)
	}
	tasks = append(tasks, chromedp.Navigate(url))
	return p.run(ctx, tasks...)
}

// listen subscribes to target events. Runs inside the first chromedp
// action, once the target exists.
func (p *chromePage) listen(ctx context.Context) {
	c := chromedp.FromContext(ctx)
	mainFrame := string(c.Target.TargetID)

	chromedp.ListenTarget(ctx, func(event interface{}) {
		switch ev := event.(type) {
		case *fetch.EventRequestPaused:
			// Decide off the event loop; the verdict is delivered over
			// CDP and must not block listener dispatch.
			go p.resolvePaused(ev, mainFrame)

		case *network.EventResponseReceived:
			p.mu.Lock()
			p.pending[ev.RequestID] = &chromeResponse{
				page:        p,
				requestID:   ev.RequestID,
				url:         ev.Response.URL,
				status:      int(ev.Response.Status),
				contentType: ev.Response.MimeType,
			}
			p.mu.Unlock()

		case *network.EventLoadingFinished:
			p.mu.Lock()
			resp := p.pending[ev.RequestID]
			delete(p.pending, ev.RequestID)
			p.mu.Unlock()
			if resp != nil && p.respHandler != nil {
				go p.respHandler(resp)
			}

		case *network.EventLoadingFailed:
			p.mu.Lock()
			delete(p.pending, ev.RequestID)
			p.mu.Unlock()
		}
	})
}

// resolvePaused asks the installed filter for a verdict and continues or
// aborts the paused request. Callbacks racing a torn-down tab are benign:
// the CDP command fails and is only logged.
func (p *chromePage) resolvePaused(ev *fetch.EventRequestPaused, mainFrame string) {
	decision := Allow
	if p.reqHandler != nil {
		decision = p.reqHandler(Request{
			URL:          ev.Request.URL,
			Type:         mapResourceType(ev.ResourceType),
			IsNavigation: ev.ResourceType == network.ResourceTypeDocument && string(ev.FrameID) == mainFrame,
		})
	}

	cmdCtx, cancel := context.WithTimeout(p.ctx, 2*time.Second)
	defer cancel()
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(cmdCtx, c.Target)

	if decision == Abort {
		if err := fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(execCtx); err != nil {
			log.Debug().Str("url", ev.Request.URL).Err(err).Msg("Failed to abort request")
		}
		return
	}
	if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil {
		log.Debug().Str("url", ev.Request.URL).Err(err).Msg("Failed to continue request")
		// A request stuck in the paused state hangs the page; fail it.
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(execCtx)
	}
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

func mapResourceType(t network.ResourceType) ResourceType {
	switch t {
	case network.ResourceTypeDocument:
		return ResourceDocument
	case network.ResourceTypeStylesheet:
		return ResourceStylesheet
	case network.ResourceTypeImage:
		return ResourceImage
	case network.ResourceTypeFont:
		return ResourceFont
	case network.ResourceTypeMedia:
		return ResourceMedia
	case network.ResourceTypeScript:
		return ResourceScript
	case network.ResourceTypeXHR:
		return ResourceXHR
	case network.ResourceTypeFetch:
		return ResourceFetch
	default:
		return ResourceOther
	}
}

// chromeResponse defers the body transfer until the capture goroutine
// asks for it.
type chromeResponse struct {
	page        *chromePage
	requestID   network.RequestID
	url         string
	status      int
	contentType string
}

func (r *chromeResponse) URL() string         { return r.url }
func (r *chromeResponse) Status() int         { return r.status }
func (r *chromeResponse) ContentType() string { return r.contentType }

func (r *chromeResponse) Body(ctx context.Context) ([]byte, error) {
	c := chromedp.FromContext(r.page.ctx)
	if c == nil || c.Target == nil {
		return nil, fmt.Errorf("page closed before body for %s could be read", r.url)
	}

	bodyCtx, cancel := context.WithTimeout(r.page.ctx, bodyFetchTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	body, err := network.GetResponseBody(r.requestID).Do(cdp.WithExecutor(bodyCtx, c.Target))
	if err != nil {
		return nil, fmt.Errorf("fetch body for %s: %w", r.url, err)
	}
	return body, nil
}
