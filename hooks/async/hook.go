// Package asynchook moves hook delivery off the caller's goroutine.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{FactoryFailedEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c := oncecache.NewConcurrent[string, User](oncecache.Options{Hooks: hooks})
//
// Events are dropped, not queued without bound, when the workers fall behind.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/oncecache"
)

type Hooks struct {
	inner   oncecache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends racing Close
	closed  bool
	dropped atomic.Uint64
}

var _ oncecache.Hooks = (*Hooks)(nil)

func New(inner oncecache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for range workers {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Events sent after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) RecursiveAccess(k any) { h.try(func() { h.inner.RecursiveAccess(k) }) }
func (h *Hooks) FactoryFailed(k any, err error) {
	h.try(func() { h.inner.FactoryFailed(k, err) })
}
func (h *Hooks) InvalidationCleared(n int) { h.try(func() { h.inner.InvalidationCleared(n) }) }
func (h *Hooks) TokenRefreshError(name string, err error) {
	h.try(func() { h.inner.TokenRefreshError(name, err) })
}
func (h *Hooks) TokenBumpError(name string, err error) {
	h.try(func() { h.inner.TokenBumpError(name, err) })
}
