package oncecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/oncecache/genstore"
)

// SharedTokenOptions configure a SharedToken.
type SharedTokenOptions struct {
	Store genstore.GenStore // required
	Name  string            // required; the generation's name in Store

	RefreshInterval time.Duration // 0 => 1s; < 0 disables the background loop
	BumpTimeout     time.Duration // 0 => 2s; also bounds background reads

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
}

const (
	defaultRefreshInterval = time.Second
	defaultBumpTimeout     = 2 * time.Second
)

func (o SharedTokenOptions) withDefaults() SharedTokenOptions {
	o.RefreshInterval = coalesce(o.RefreshInterval, defaultRefreshInterval)
	o.BumpTimeout = coalesce(o.BumpTimeout, defaultBumpTimeout)
	o.Logger = coalesce[Logger](o.Logger, NopLogger{})
	o.Hooks = coalesce[Hooks](o.Hooks, NopHooks{})
	return o
}

var (
	errNoStore = errors.New("oncecache: shared token requires a Store")
	errNoName  = errors.New("oncecache: shared token requires a Name")
)

// SharedToken is an InvalidationToken whose invalidations travel through a
// generation store, so that caches in several processes drop their entries
// together. Reads are local; another process's Invalidate becomes visible
// after the next refresh.
//
// The local revision only moves forward. It advances whenever the observed
// store generation changes, in either direction, and on every local
// Invalidate even when the store cannot be reached.
type SharedToken struct {
	id    uint64
	store genstore.GenStore
	name  string
	opts  SharedTokenOptions

	rev     atomic.Uint64
	mu      sync.Mutex // serializes updates of rev and lastGen
	lastGen uint64

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ InvalidationToken = (*SharedToken)(nil)

// NewSharedToken reads the current generation and starts the refresh loop.
func NewSharedToken(ctx context.Context, opts SharedTokenOptions) (*SharedToken, error) {
	if opts.Store == nil {
		return nil, errNoStore
	}
	if opts.Name == "" {
		return nil, errNoName
	}
	opts = opts.withDefaults()

	g, err := opts.Store.Snapshot(ctx, opts.Name)
	if err != nil {
		return nil, fmt.Errorf("oncecache: shared token %q initial snapshot: %w", opts.Name, err)
	}

	t := &SharedToken{
		id:      nextTokenID(),
		store:   opts.Store,
		name:    opts.Name,
		opts:    opts,
		lastGen: g,
	}
	t.rev.Store(seed())

	if opts.RefreshInterval > 0 {
		t.ticker = time.NewTicker(opts.RefreshInterval)
		t.stopCh = make(chan struct{})
		t.wg.Add(1)
		go t.loop()
	}
	return t, nil
}

func (t *SharedToken) loop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.opts.BumpTimeout)
			_ = t.Refresh(ctx) // reported by Refresh
			cancel()
		case <-t.stopCh:
			return
		}
	}
}

func (t *SharedToken) GetCurrent() Revision {
	return Revision{value: t.rev.Load(), owner: t.id}
}

func (t *SharedToken) IsCurrent(r Revision) bool {
	checkRevision(t.id, r)
	return r.value == t.rev.Load()
}

// Invalidate bumps the shared generation. The local revision advances even
// if the bump fails; other processes then miss this invalidation, which is
// logged and reported through Hooks.TokenBumpError.
func (t *SharedToken) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.BumpTimeout)
	g, err := t.store.Bump(ctx, t.name)
	cancel()

	t.mu.Lock()
	t.rev.Add(1)
	if err == nil {
		t.lastGen = g
	}
	t.mu.Unlock()

	if err != nil {
		t.opts.Logger.Error("shared token bump failed; invalidation is local only", Fields{"name": t.name, "err": err})
		t.opts.Hooks.TokenBumpError(t.name, err)
	}
}

// Refresh reads the shared generation now. A changed generation advances
// the local revision.
func (t *SharedToken) Refresh(ctx context.Context) error {
	g, err := t.store.Snapshot(ctx, t.name)
	if err != nil {
		t.opts.Logger.Warn("shared token refresh failed", Fields{"name": t.name, "err": err})
		t.opts.Hooks.TokenRefreshError(t.name, err)
		return err
	}

	t.mu.Lock()
	changed := g != t.lastGen
	if changed {
		t.lastGen = g
		t.rev.Add(1)
	}
	t.mu.Unlock()

	if changed {
		t.opts.Logger.Debug("shared token observed new generation", Fields{"name": t.name, "gen": g})
	}
	return nil
}

// Name returns the generation name in the store.
func (t *SharedToken) Name() string { return t.name }

// Close stops the refresh loop. It does not close the store.
func (t *SharedToken) Close(ctx context.Context) error {
	if t.stopCh == nil {
		return nil
	}
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stopCh)
	})
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
