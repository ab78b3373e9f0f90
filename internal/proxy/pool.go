// internal/proxy/pool.go
package proxy

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// failureCooldown is how long a proxy is skipped after being reported
// unhealthy before it becomes eligible again.
const failureCooldown = 5 * time.Minute

// loadTimeSmoothing is the EMA weight applied to the newest sample when
// updating a proxy's rolling load time.
const loadTimeSmoothing = 0.2

// Proxy is one outbound endpoint plus its rolling health stats. The
// stats are owned by the pool; sessions hold the handle only long enough
// to configure a browser context and report back once.
type Proxy struct {
	Address string

	mu          sync.Mutex
	tasks       int
	failures    int
	avgLoadTime float64 // seconds, exponential moving average
	lastFailure time.Time
}

// AvgLoadTime returns the rolling average task duration through this proxy.
func (p *Proxy) AvgLoadTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.avgLoadTime * float64(time.Second))
}

// Stats returns the task and failure counters.
func (p *Proxy) Stats() (tasks, failures int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks, p.failures
}

// Pool hands out proxies round-robin, skipping endpoints that failed
// recently, and aggregates per-task health feedback. Many sessions
// report concurrently; each reports exactly once per task.
type Pool struct {
	mu      sync.Mutex
	proxies []*Proxy
	index   int
}

// NewPool creates a Pool from a list of proxy addresses.
func NewPool(addresses []string) *Pool {
	proxies := make([]*Proxy, 0, len(addresses))
	for _, addr := range addresses {
		proxies = append(proxies, &Proxy{Address: addr})
	}
	return &Pool{proxies: proxies}
}

// Size returns the number of proxies in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// GetProxy returns the next healthy proxy, or nil when the pool is
// empty. When every proxy is inside its failure cooldown the current
// rotation candidate is returned anyway rather than stalling tasks.
func (p *Pool) GetProxy() *Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return nil
	}

	start := p.index
	for {
		prx := p.proxies[p.index]
		p.index = (p.index + 1) % len(p.proxies)

		prx.mu.Lock()
		cooling := !prx.lastFailure.IsZero() && time.Since(prx.lastFailure) < failureCooldown
		if !cooling && !prx.lastFailure.IsZero() {
			// Cooldown expired.
			prx.lastFailure = time.Time{}
		}
		prx.mu.Unlock()

		if cooling {
			if p.index == start {
				// Cycled through the whole pool; everything is cooling.
				return prx
			}
			continue
		}
		return prx
	}
}

// UpdateLoadTime records the outcome of one task routed through prx:
// elapsed wall time and whether the proxy held up. Called exactly once
// per task, on every exit path. A nil handle is a no-op so sessions
// running without a proxy need no special casing.
func (p *Pool) UpdateLoadTime(prx *Proxy, elapsed time.Duration, success bool) {
	if prx == nil {
		return
	}

	prx.mu.Lock()
	defer prx.mu.Unlock()

	prx.tasks++
	seconds := elapsed.Seconds()
	if prx.avgLoadTime == 0 {
		prx.avgLoadTime = seconds
	} else {
		prx.avgLoadTime = loadTimeSmoothing*seconds + (1-loadTimeSmoothing)*prx.avgLoadTime
	}

	if !success {
		prx.failures++
		prx.lastFailure = time.Now()
		log.Debug().
			Str("proxy", prx.Address).
			Dur("elapsed", elapsed).
			Int("failures", prx.failures).
			Msg("Proxy marked failed")
	}
}
