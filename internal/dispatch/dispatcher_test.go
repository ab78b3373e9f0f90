package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/websentry/scraperd/internal/model"
	"github.com/websentry/scraperd/internal/queue"
	"github.com/websentry/scraperd/internal/ratelimit"
)

type fakeMessage struct {
	payload []byte
}

func (m *fakeMessage) Payload() []byte { return m.payload }

// fakeConsumer serves a fixed set of messages, then blocks until the
// receive context is cancelled.
type fakeConsumer struct {
	mu     sync.Mutex
	queue  []queue.Message
	acked  []string
	closed bool
}

func newFakeConsumer(domains ...string) *fakeConsumer {
	c := &fakeConsumer{}
	for _, d := range domains {
		c.queue = append(c.queue, &fakeMessage{payload: []byte(d)})
	}
	return c
}

func (c *fakeConsumer) Receive(ctx context.Context) (queue.Message, error) {
	c.mu.Lock()
	if len(c.queue) > 0 {
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConsumer) Ack(msg queue.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, string(msg.Payload()))
}

func (c *fakeConsumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConsumer) ackedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acked)
}

type fakeProducer struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
}

func (p *fakeProducer) Send(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakeProducer) results(t *testing.T) []model.ScrapeResult {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ScrapeResult, 0, len(p.payloads))
	for _, payload := range p.payloads {
		var res model.ScrapeResult
		if err := json.Unmarshal(payload, &res); err != nil {
			t.Fatalf("unmarshal published result: %v", err)
		}
		out = append(out, res)
	}
	return out
}

type fakeRunner struct {
	fn func(ctx context.Context, task model.ScrapeTask) model.ScrapeResult
}

func (r *fakeRunner) Run(ctx context.Context, task model.ScrapeTask) model.ScrapeResult {
	return r.fn(ctx, task)
}

func completeRunner() *fakeRunner {
	return &fakeRunner{fn: func(_ context.Context, task model.ScrapeTask) model.ScrapeResult {
		return model.ScrapeResult{Domain: task.Domain, StatusCode: model.StatusComplete}
	}}
}

// runUntilPublished runs the dispatcher and cancels it once want results
// have been published.
func runUntilPublished(t *testing.T, d *Dispatcher, producer *fakeProducer, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		producer.mu.Lock()
		n := len(producer.payloads)
		producer.mu.Unlock()
		if n >= want {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("timed out waiting for %d published results, got %d", want, n)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestRun_PublishesOneResultPerMessage(t *testing.T) {
	consumer := newFakeConsumer("example.com", "other.org")
	producer := &fakeProducer{}
	d := New(Options{
		Consumer:  consumer,
		Producer:  producer,
		Runner:    completeRunner(),
		Pacer:     ratelimit.NewPacer(time.Microsecond, 1),
		Processor: "worker-test-1",
		Slots:     2,
	})

	runUntilPublished(t, d, producer, 2)

	results := producer.results(t)
	if len(results) != 2 {
		t.Fatalf("published %d results, want 2", len(results))
	}
	seen := map[string]bool{}
	for _, res := range results {
		seen[res.Domain] = true
		if res.StatusCode != model.StatusComplete {
			t.Errorf("result for %s has status %q, want %q", res.Domain, res.StatusCode, model.StatusComplete)
		}
		if res.Processor != "worker-test-1" {
			t.Errorf("result for %s has processor %q, want worker-test-1", res.Domain, res.Processor)
		}
	}
	if !seen["example.com"] || !seen["other.org"] {
		t.Errorf("published domains = %v, want both example.com and other.org", seen)
	}
	if consumer.ackedCount() != 2 {
		t.Errorf("acked %d messages, want 2", consumer.ackedCount())
	}
	if !consumer.closed || !producer.closed {
		t.Error("consumer and producer should be closed after Run returns")
	}
}

func TestRun_AcksBeforeSessionCompletes(t *testing.T) {
	consumer := newFakeConsumer("slow.example")
	producer := &fakeProducer{}
	release := make(chan struct{})
	ackedBeforeRun := make(chan int, 1)
	runner := &fakeRunner{fn: func(_ context.Context, task model.ScrapeTask) model.ScrapeResult {
		ackedBeforeRun <- consumer.ackedCount()
		<-release
		return model.ScrapeResult{Domain: task.Domain, StatusCode: model.StatusComplete}
	}}
	d := New(Options{
		Consumer: consumer,
		Producer: producer,
		Runner:   runner,
		Pacer:    ratelimit.NewPacer(time.Microsecond, 1),
		Slots:    1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case n := <-ackedBeforeRun:
		if n != 1 {
			t.Errorf("message acked %d times before session ran, want 1", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session never started")
	}
	close(release)
	cancel()
	<-done

	if got := len(producer.results(t)); got != 1 {
		t.Errorf("published %d results, want 1", got)
	}
}

func TestRun_ConcurrencyIsBoundedBySlots(t *testing.T) {
	const tasks = 8
	const slots = 2

	domains := make([]string, tasks)
	for i := range domains {
		domains[i] = "example.com"
	}
	consumer := newFakeConsumer(domains...)
	producer := &fakeProducer{}

	var active, peak atomic.Int32
	runner := &fakeRunner{fn: func(_ context.Context, task model.ScrapeTask) model.ScrapeResult {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return model.ScrapeResult{Domain: task.Domain, StatusCode: model.StatusComplete}
	}}
	d := New(Options{
		Consumer: consumer,
		Producer: producer,
		Runner:   runner,
		Pacer:    ratelimit.NewPacer(time.Microsecond, 1),
		Slots:    slots,
	})

	runUntilPublished(t, d, producer, tasks)

	if p := peak.Load(); p > slots {
		t.Errorf("peak concurrency %d exceeds slot limit %d", p, slots)
	}
}

func TestRun_DiscardsEmptyDomains(t *testing.T) {
	consumer := newFakeConsumer("  ", "example.com")
	producer := &fakeProducer{}
	d := New(Options{
		Consumer: consumer,
		Producer: producer,
		Runner:   completeRunner(),
		Pacer:    ratelimit.NewPacer(time.Microsecond, 1),
		Slots:    1,
	})

	runUntilPublished(t, d, producer, 1)

	results := producer.results(t)
	if len(results) != 1 || results[0].Domain != "example.com" {
		t.Errorf("published results = %+v, want only example.com", results)
	}
	// The blank message is still acknowledged so it is not redelivered.
	if consumer.ackedCount() != 2 {
		t.Errorf("acked %d messages, want 2", consumer.ackedCount())
	}
}

func TestRun_DrainPublishesInFlightResults(t *testing.T) {
	consumer := newFakeConsumer("draining.example")
	producer := &fakeProducer{}
	started := make(chan struct{})
	release := make(chan struct{})
	runner := &fakeRunner{fn: func(_ context.Context, task model.ScrapeTask) model.ScrapeResult {
		close(started)
		<-release
		return model.ScrapeResult{Domain: task.Domain, StatusCode: model.StatusComplete}
	}}
	d := New(Options{
		Consumer: consumer,
		Producer: producer,
		Runner:   runner,
		Pacer:    ratelimit.NewPacer(time.Microsecond, 1),
		Slots:    1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("session never started")
	}

	// Cancel while the session is in flight, then let it finish.
	cancel()
	close(release)

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not drain and return")
	}

	if got := len(producer.results(t)); got != 1 {
		t.Errorf("published %d results after drain, want 1", got)
	}
}
