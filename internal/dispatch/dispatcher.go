// internal/dispatch/dispatcher.go
//
// Package dispatch runs the worker's outer loop: receive a domain from
// the inbound topic, acknowledge it, hand it to a scrape session, and
// publish the result. Concurrency is bounded by a slot channel; the
// receive loop itself is paced, not bounded, so acknowledgement never
// waits on a free slot.
package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/websentry/scraperd/internal/metrics"
	"github.com/websentry/scraperd/internal/model"
	"github.com/websentry/scraperd/internal/queue"
	"github.com/websentry/scraperd/internal/ratelimit"
	"github.com/websentry/scraperd/internal/session"
)

const publishTimeout = 30 * time.Second

// Runner executes one scrape session end to end.
type Runner interface {
	Run(ctx context.Context, task model.ScrapeTask) model.ScrapeResult
}

var _ Runner = (*session.Controller)(nil)

// Options wires a Dispatcher's collaborators.
type Options struct {
	Consumer queue.Consumer
	Producer queue.Producer
	Runner   Runner
	Pacer    *ratelimit.Pacer
	Metrics  *metrics.Metrics
	// Processor is stamped onto every published result.
	Processor string
	// Slots is the maximum number of concurrent sessions.
	Slots int
}

// Dispatcher consumes domains and fans them out to scrape sessions.
type Dispatcher struct {
	consumer  queue.Consumer
	producer  queue.Producer
	runner    Runner
	pacer     *ratelimit.Pacer
	metrics   *metrics.Metrics
	processor string
	slots     chan struct{}
	wg        sync.WaitGroup
}

// New creates a Dispatcher from opts.
func New(opts Options) *Dispatcher {
	slots := opts.Slots
	if slots <= 0 {
		slots = 1
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = ratelimit.NewPacer(0, 0)
	}
	return &Dispatcher{
		consumer:  opts.Consumer,
		producer:  opts.Producer,
		runner:    opts.Runner,
		pacer:     pacer,
		metrics:   opts.Metrics,
		processor: opts.Processor,
		slots:     make(chan struct{}, slots),
	}
}

// Run receives until ctx is cancelled, then drains in-flight sessions
// before closing the consumer and producer. In-flight results are still
// published during the drain.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info().
		Int("slots", cap(d.slots)).
		Str("processor", d.processor).
		Msg("Dispatcher started")

	for {
		if err := d.pacer.Wait(ctx); err != nil {
			break
		}

		msg, err := d.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error().Err(err).Msg("Error receiving message")
			continue
		}

		domain := strings.TrimSpace(string(msg.Payload()))
		d.consumer.Ack(msg)
		if domain == "" {
			log.Warn().Msg("Discarding empty domain message")
			continue
		}

		d.wg.Add(1)
		go d.handle(ctx, domain)
	}

	log.Info().Msg("Dispatcher stopping, draining in-flight sessions")
	d.wg.Wait()
	d.consumer.Close()
	d.producer.Close()
	log.Info().Msg("Dispatcher stopped")
	return ctx.Err()
}

// handle runs one session inside a slot. The slot is acquired here, not
// in the receive loop, so a full pipeline delays work rather than
// acknowledgements. A session cancelled while waiting for its slot still
// runs and reports Cancelled through the normal result path.
func (d *Dispatcher) handle(ctx context.Context, domain string) {
	defer d.wg.Done()

	d.slots <- struct{}{}
	defer func() { <-d.slots }()

	task := model.ScrapeTask{Domain: domain, StartedAt: time.Now()}
	res := d.runner.Run(ctx, task)
	res.Processor = d.processor
	d.metrics.ObserveResult(res, time.Since(task.StartedAt))

	d.publish(res)
}

// publish serializes and sends one result. A fresh timeout context is
// used so results from drained sessions still go out after the receive
// loop's context is cancelled.
func (d *Dispatcher) publish(res model.ScrapeResult) {
	payload, err := json.Marshal(res)
	if err != nil {
		log.Error().Str("domain", res.Domain).Err(err).Msg("Error serializing result")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.producer.Send(ctx, payload); err != nil {
		log.Error().Str("domain", res.Domain).Err(err).Msg("Error publishing result")
		return
	}
	log.Debug().
		Str("domain", res.Domain).
		Str("status", string(res.StatusCode)).
		Msg("Result published")
}
