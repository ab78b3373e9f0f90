package proxy

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPool_Rotation(t *testing.T) {
	pool := NewPool([]string{"p1:8080", "p2:8080", "p3:8080"})

	for _, want := range []string{"p1:8080", "p2:8080", "p3:8080", "p1:8080"} {
		if got := pool.GetProxy().Address; got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}

func TestPool_Empty(t *testing.T) {
	pool := NewPool(nil)

	if prx := pool.GetProxy(); prx != nil {
		t.Errorf("Expected nil from empty pool, got %v", prx)
	}

	// Feedback for a nil handle must not panic.
	pool.UpdateLoadTime(nil, time.Second, true)
}

func TestPool_SkipsFailedProxy(t *testing.T) {
	pool := NewPool([]string{"p1:8080", "p2:8080", "p3:8080"})

	p1 := pool.GetProxy() // p1, index now at p2
	pool.UpdateLoadTime(pool.proxies[1], 2*time.Second, false)

	if got := pool.GetProxy().Address; got != "p3:8080" {
		t.Errorf("Expected p3 (skipping failed p2), got %s", got)
	}
	if got := pool.GetProxy().Address; got != p1.Address {
		t.Errorf("Expected p1, got %s", got)
	}
	if got := pool.GetProxy().Address; got != "p3:8080" {
		t.Errorf("Expected p3 (still skipping p2), got %s", got)
	}
}

func TestPool_AllFailedStillServes(t *testing.T) {
	pool := NewPool([]string{"p1:8080", "p2:8080"})

	pool.UpdateLoadTime(pool.proxies[0], time.Second, false)
	pool.UpdateLoadTime(pool.proxies[1], time.Second, false)

	if prx := pool.GetProxy(); prx == nil {
		t.Fatal("Expected a proxy even when every endpoint is cooling down")
	}
}

func TestPool_LoadTimeAveraging(t *testing.T) {
	pool := NewPool([]string{"p1:8080"})
	prx := pool.GetProxy()

	pool.UpdateLoadTime(prx, 10*time.Second, true)
	if got := prx.AvgLoadTime(); got != 10*time.Second {
		t.Errorf("Expected first sample to seed the average, got %v", got)
	}

	pool.UpdateLoadTime(prx, 20*time.Second, true)
	got := prx.AvgLoadTime()
	if got <= 10*time.Second || got >= 20*time.Second {
		t.Errorf("Expected smoothed average between samples, got %v", got)
	}

	tasks, failures := prx.Stats()
	if tasks != 2 || failures != 0 {
		t.Errorf("Expected 2 tasks and 0 failures, got %d/%d", tasks, failures)
	}
}

func TestPool_ConcurrentFeedback(t *testing.T) {
	addrs := make([]string, 4)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("p%d:8080", i)
	}
	pool := NewPool(addrs)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prx := pool.GetProxy()
			pool.UpdateLoadTime(prx, time.Duration(i)*time.Millisecond, i%7 != 0)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, prx := range pool.proxies {
		tasks, _ := prx.Stats()
		total += tasks
	}
	if total != 100 {
		t.Errorf("Expected 100 recorded tasks across the pool, got %d", total)
	}
}
