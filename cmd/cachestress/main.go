// Command cachestress drives concurrent GetOrCreateValue load through a cache
// built from a mode name and reports how often factories ran.
//
//	cachestress -mode concurrent -workers 32 -keys 100 -iterations 10000
//	cachestress -mode concurrent+invalidation -invalidate-every 500 -redis localhost:6379
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/unkn0wn-root/oncecache"
	"github.com/unkn0wn-root/oncecache/genstore"
	zaplog "github.com/unkn0wn-root/oncecache/log/zap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type config struct {
	mode            string
	invalidation    string
	workers         int
	keys            int
	iterations      int
	invalidateEvery int
	invalidateRate  float64
	shared          bool
	redisAddr       string
	debug           bool
}

func parseFlags(args []string) (config, error) {
	var c config
	fs := flag.NewFlagSet("cachestress", flag.ContinueOnError)
	fs.StringVar(&c.mode, "mode", "concurrent", "plain, concurrent, legacy-locking or legacy-lazy-locking, optionally with +invalidation")
	fs.StringVar(&c.invalidation, "invalidation", "", "none, plain-token or atomic-token (default depends on -mode)")
	fs.IntVar(&c.workers, "workers", 16, "concurrent callers")
	fs.IntVar(&c.keys, "keys", 64, "distinct keys")
	fs.IntVar(&c.iterations, "iterations", 10000, "lookups per worker")
	fs.IntVar(&c.invalidateEvery, "invalidate-every", 0, "invalidate the token every n lookups of worker 0 (0 = never)")
	fs.Float64Var(&c.invalidateRate, "invalidate-rate", 0, "invalidate the token this many times per second while running (0 = never)")
	fs.BoolVar(&c.shared, "shared", false, "use a SharedToken over a generation store")
	fs.StringVar(&c.redisAddr, "redis", "", "redis address for -shared (in-process store when empty)")
	fs.BoolVar(&c.debug, "debug", false, "log cache events at debug level")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.workers <= 0 || c.keys <= 0 || c.iterations <= 0 {
		return c, errors.New("workers, keys and iterations must be positive")
	}
	return c, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

// buildConfig resolves flags into a cache config. The returned closer
// releases the shared token and its store, if any.
func buildConfig(ctx context.Context, c config, log oncecache.Logger) (oncecache.Config, func(), error) {
	ts, withInv, err := oncecache.ParseMode(c.mode)
	if err != nil {
		return oncecache.Config{}, nil, err
	}
	cfg := oncecache.Config{ThreadSafety: ts, Options: oncecache.Options{Logger: log}}
	if withInv {
		cfg.Invalidation = oncecache.DefaultInvalidation(ts)
	}
	if c.invalidation != "" {
		if cfg.Invalidation, err = oncecache.ParseInvalidation(c.invalidation); err != nil {
			return oncecache.Config{}, nil, err
		}
	}
	if !c.shared {
		return cfg, func() {}, nil
	}

	var store genstore.GenStore = genstore.NewLocalGenStore(0, 0)
	if c.redisAddr != "" {
		store = genstore.NewRedisGenStoreWithTTL(redis.NewClient(&redis.Options{Addr: c.redisAddr}), "cachestress", time.Hour)
	}
	tok, err := oncecache.NewSharedToken(ctx, oncecache.SharedTokenOptions{
		Store:  store,
		Name:   "stress",
		Logger: log,
	})
	if err != nil {
		_ = store.Close(ctx)
		return oncecache.Config{}, nil, err
	}
	cfg.Token = tok
	return cfg, func() {
		_ = tok.Close(context.Background())
		_ = store.Close(context.Background())
	}, nil
}

type result struct {
	calls         []atomic.Int64
	invalidations atomic.Int64
	errors        atomic.Int64
	elapsed       time.Duration
}

var errBadValue = errors.New("factory result mismatch")

// run fans the workers out on an errgroup. A worker stops at its first bad
// result, so errors counts failing workers rather than lookups.
func run(ctx context.Context, c config, cache oncecache.Cache[int, int], tok oncecache.InvalidationToken) *result {
	res := &result{calls: make([]atomic.Int64, c.keys)}
	factory := func(_ context.Context, k int) (int, error) {
		res.calls[k].Add(1)
		return k * k, nil
	}

	start := time.Now()
	eg, eCtx := errgroup.WithContext(ctx)
	for w := range c.workers {
		eg.Go(func() error {
			for i := range c.iterations {
				if eCtx.Err() != nil {
					return nil
				}
				k := (i*31 + w) % c.keys
				v, err := cache.GetOrCreateValue(eCtx, k, factory)
				if err == nil && v != k*k {
					err = fmt.Errorf("%w: key %d got %d", errBadValue, k, v)
				}
				if err != nil {
					res.errors.Add(1)
					return err
				}
				if w == 0 && tok != nil && c.invalidateEvery > 0 && (i+1)%c.invalidateEvery == 0 {
					tok.Invalidate()
					res.invalidations.Add(1)
				}
			}
			return nil
		})
	}

	stopInv := make(chan struct{})
	invDone := make(chan struct{})
	go func() {
		defer close(invDone)
		if tok == nil || c.invalidateRate <= 0 {
			return
		}
		lim := rate.NewLimiter(rate.Limit(c.invalidateRate), 1)
		for {
			if err := lim.Wait(eCtx); err != nil {
				return
			}
			select {
			case <-stopInv:
				return
			default:
			}
			tok.Invalidate()
			res.invalidations.Add(1)
		}
	}()

	_ = eg.Wait() // failures are counted in res.errors
	close(stopInv)
	<-invDone
	res.elapsed = time.Since(start)
	return res
}

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	c, err := parseFlags(args)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "cachestress:", err)
		}
		return 2
	}
	zl, err := newLogger(c.debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, closeTok, err := buildConfig(ctx, c, zaplog.New(zl))
	if err != nil {
		zl.Error("invalid configuration", zap.Error(err))
		return 2
	}
	defer closeTok()

	if cfg.ThreadSafety == oncecache.NoThreadSafety && c.workers > 1 {
		zl.Warn("plain mode is single-goroutine; forcing one worker", zap.Int("requested", c.workers))
		c.workers = 1
	}

	cache, err := oncecache.Build[int, int](cfg)
	if err != nil {
		zl.Error("build cache", zap.Error(err))
		return 2
	}

	res := run(ctx, c, cache, oncecache.TokenOf(cache))

	var total, maxPerKey int64
	for i := range res.calls {
		n := res.calls[i].Load()
		total += n
		maxPerKey = max(maxPerKey, n)
	}
	zl.Info("stress run finished",
		zap.String("mode", c.mode),
		zap.Stringer("invalidation", cfg.Invalidation),
		zap.Int("workers", c.workers),
		zap.Int("keys", c.keys),
		zap.Int("lookups", c.workers*c.iterations),
		zap.Int64("factory_calls", total),
		zap.Int64("max_calls_per_key", maxPerKey),
		zap.Int64("invalidations", res.invalidations.Load()),
		zap.Int64("errors", res.errors.Load()),
		zap.Duration("elapsed", res.elapsed),
	)
	if st, ok := cfg.Token.(*oncecache.SharedToken); ok {
		zl.Info("shared token", zap.String("name", st.Name()))
	}

	if res.errors.Load() > 0 {
		return 1
	}
	if cfg.Token == nil && cfg.Invalidation == oncecache.NoInvalidation && maxPerKey > 1 {
		zl.Error("a key's factory ran more than once without invalidation", zap.Int64("max_calls_per_key", maxPerKey))
		return 1
	}
	return 0
}
