// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/websentry/scraperd/internal/browser"
	"github.com/websentry/scraperd/internal/config"
	"github.com/websentry/scraperd/internal/dispatch"
	"github.com/websentry/scraperd/internal/dnscheck"
	"github.com/websentry/scraperd/internal/identity"
	"github.com/websentry/scraperd/internal/metrics"
	"github.com/websentry/scraperd/internal/proxy"
	"github.com/websentry/scraperd/internal/queue"
	"github.com/websentry/scraperd/internal/ratelimit"
	"github.com/websentry/scraperd/internal/retry"
	"github.com/websentry/scraperd/internal/session"
)

// Application holds all worker dependencies and manages their lifecycle.
//
// It is created once at startup. Use Close() to ensure proper resource
// cleanup on shutdown.
type Application struct {
	Config     *config.Config
	Logger     *zerolog.Logger
	Name       string
	Proxies    *proxy.Pool
	Engine     *browser.Chrome
	Queue      queue.Client
	Controller *session.Controller
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics

	metricsSrv *http.Server
	startTime  time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Configures logging based on the provided config
//   - Loads or generates the persisted worker identity
//   - Builds the proxy pool and the Chrome engine
//   - Connects to Pulsar (with retry) and opens the consumer/producer pair
//   - Wires the session controller and the dispatcher
//
// If any step fails, an error is returned and already-opened resources
// are released.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := newLogger(cfg)

	name, err := identity.Load(cfg.ClientNameFile)
	if err != nil {
		return nil, fmt.Errorf("loading worker identity: %w", err)
	}

	pool := proxy.NewPool(cfg.Proxies)
	logger.Debug().
		Int("proxies", len(cfg.Proxies)).
		Msg("Proxy pool initialized")

	engine := browser.NewChrome(browser.ChromeOptions{
		ExecPath: cfg.ChromePath,
		Headless: cfg.Headless,
	})

	var client *queue.PulsarClient
	err = retry.WithRetry(ctx, retry.DefaultConfig(), func() error {
		var cerr error
		client, cerr = queue.NewPulsarClient(cfg.PulsarURL)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to pulsar at %s: %w", cfg.PulsarURL, err)
	}

	consumer, err := client.Consumer(cfg.DomainTopic, cfg.Subscription)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening consumer on %s: %w", cfg.DomainTopic, err)
	}
	producer, err := client.Producer(cfg.ResultTopic)
	if err != nil {
		consumer.Close()
		client.Close()
		return nil, fmt.Errorf("opening producer on %s: %w", cfg.ResultTopic, err)
	}

	controller := session.NewController(session.ControllerOptions{
		Engine:   engine,
		Proxies:  pool,
		Resolver: dnscheck.New(cfg.DNSTimeout),
		Config: session.Config{
			NavigationTimeout: cfg.NavigationTimeout,
			MaxWaitTime:       cfg.MaxWaitTime,
			CheckInterval:     cfg.CheckInterval,
			NoChangeLimit:     cfg.NoChangeLimit,
			ChangeLimit:       cfg.ChangeLimit,
		},
		Blocklist: append(append([]string{}, session.DefaultBlocklist...), cfg.BlockedHosts...),
	})

	mtr := metrics.New()

	dispatcher := dispatch.New(dispatch.Options{
		Consumer:  consumer,
		Producer:  producer,
		Runner:    controller,
		Pacer:     ratelimit.NewPacer(cfg.ReceiveInterval, 1),
		Metrics:   mtr,
		Processor: name,
		Slots:     cfg.ConcurrentTasks,
	})

	app := &Application{
		Config:     cfg,
		Logger:     &logger,
		Name:       name,
		Proxies:    pool,
		Engine:     engine,
		Queue:      client,
		Controller: controller,
		Dispatcher: dispatcher,
		Metrics:    mtr,
		startTime:  time.Now(),
	}
	app.serveMetrics()

	logger.Info().
		Str("name", name).
		Str("pulsar", cfg.PulsarURL).
		Msg("Application initialized successfully")
	return app, nil
}

// Run drives the dispatcher until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	return a.Dispatcher.Run(ctx)
}

// serveMetrics exposes the Prometheus registry over HTTP when a listen
// address is configured.
func (a *Application) serveMetrics() {
	if a.Config.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Metrics.Registry, promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{Addr: a.Config.MetricsAddr, Handler: mux}

	go func() {
		a.Logger.Debug().Str("addr", a.Config.MetricsAddr).Msg("Metrics endpoint listening")
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Warn().Err(err).Msg("Metrics endpoint failed")
		}
	}()
}

// Close gracefully shuts down the application and all its resources.
//
// The dispatcher closes its own consumer and producer when Run returns;
// Close releases everything else. Any errors during shutdown are logged
// but do not prevent other shutdown steps.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application")

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing metrics endpoint")
		}
	}

	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing browser engine")
		}
	}

	if a.Queue != nil {
		a.Queue.Close()
	}

	uptime := time.Since(a.startTime)
	a.Logger.Info().Dur("uptime", uptime).Msg("Application shutdown complete")
	return nil
}

// newLogger configures the global zerolog setup and returns the
// application logger.
func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	var logWriter io.Writer
	if cfg.JSONLog {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.NewConsoleWriter()
	}

	logger := log.Output(logWriter).With().Timestamp().Logger()
	log.Logger = logger

	logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")
	return logger
}
