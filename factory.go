package oncecache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/oncecache/equality"
)

// ThreadSafety selects the core used by Build.
type ThreadSafety uint8

const (
	NoThreadSafety ThreadSafety = iota // Plain
	PerKey                             // Concurrent
	WholeCacheLock                     // Locking over Plain (legacy)
	LazyLock                           // LazyLocking (legacy)
)

func (t ThreadSafety) String() string {
	switch t {
	case NoThreadSafety:
		return "plain"
	case PerKey:
		return "concurrent"
	case WholeCacheLock:
		return "legacy-locking"
	case LazyLock:
		return "legacy-lazy-locking"
	default:
		return fmt.Sprintf("ThreadSafety(%d)", uint8(t))
	}
}

// Invalidation selects the token Build creates when Config.Token is nil.
type Invalidation uint8

const (
	NoInvalidation Invalidation = iota
	PlainInvalidation
	AtomicInvalidation
)

func (i Invalidation) String() string {
	switch i {
	case NoInvalidation:
		return "none"
	case PlainInvalidation:
		return "plain-token"
	case AtomicInvalidation:
		return "atomic-token"
	default:
		return fmt.Sprintf("Invalidation(%d)", uint8(i))
	}
}

// DefaultInvalidation is the token kind that is safe for t: a plain token
// for the single-goroutine core, an atomic one otherwise.
func DefaultInvalidation(t ThreadSafety) Invalidation {
	if t == NoThreadSafety {
		return PlainInvalidation
	}
	return AtomicInvalidation
}

// Config describes a cache for Build.
type Config struct {
	ThreadSafety ThreadSafety
	Invalidation Invalidation

	// Token, when set, is used instead of creating one and implies an
	// Invalidating wrapper regardless of Invalidation.
	Token InvalidationToken

	// Disabled returns a Null cache.
	Disabled bool

	Options Options
}

var (
	errUnknownThreadSafety = errors.New("oncecache: unknown thread-safety mode")
	errUnknownInvalidation = errors.New("oncecache: unknown invalidation kind")
	errPlainTokenShared    = errors.New("oncecache: plain-token invalidation requires the plain mode")
)

// Build composes the cache described by cfg using natural key equality.
func Build[K comparable, V any](cfg Config) (Cache[K, V], error) {
	return BuildWith[K, V](equality.Default[K](), cfg)
}

// BuildWith composes the cache described by cfg comparing keys with cmp.
// With WholeCacheLock the Invalidating layer sits inside the lock, so that
// revision checks and clears run under it.
func BuildWith[K, V any](cmp equality.Comparer[K], cfg Config) (Cache[K, V], error) {
	if cfg.Disabled {
		return Null[K, V]{}, nil
	}
	if cfg.ThreadSafety > LazyLock {
		return nil, fmt.Errorf("%w: %d", errUnknownThreadSafety, uint8(cfg.ThreadSafety))
	}

	tok := cfg.Token
	if tok == nil {
		switch cfg.Invalidation {
		case NoInvalidation:
		case PlainInvalidation:
			if cfg.ThreadSafety != NoThreadSafety {
				return nil, errPlainTokenShared
			}
			tok = NewPlainToken()
		case AtomicInvalidation:
			tok = NewAtomicToken()
		default:
			return nil, fmt.Errorf("%w: %d", errUnknownInvalidation, uint8(cfg.Invalidation))
		}
	}
	wrap := func(c Cache[K, V]) Cache[K, V] {
		if tok == nil {
			return c
		}
		return NewInvalidating[K, V](c, tok, cfg.Options)
	}

	switch cfg.ThreadSafety {
	case NoThreadSafety:
		return wrap(NewPlainWith[K, V](cmp, cfg.Options)), nil
	case PerKey:
		return wrap(NewConcurrentWith[K, V](cmp, cfg.Options)), nil
	case WholeCacheLock:
		return NewLocking[K, V](wrap(NewPlainWith[K, V](cmp, cfg.Options))), nil
	default:
		return wrap(NewLazyLockingWith[K, V](cmp, cfg.Options)), nil
	}
}

// TokenOf returns the token observed by c, looking through Locking, or nil
// when c does not invalidate.
func TokenOf[K, V any](c Cache[K, V]) InvalidationToken {
	for {
		switch t := c.(type) {
		case *Invalidating[K, V]:
			return t.Token()
		case *Locking[K, V]:
			c = t.inner
		default:
			return nil
		}
	}
}

// ParseMode parses a configuration name such as "concurrent" or
// "legacy-locking+invalidation". The bool reports the "+invalidation" suffix.
func ParseMode(s string) (ThreadSafety, bool, error) {
	name, inv := strings.CutSuffix(strings.ToLower(strings.TrimSpace(s)), "+invalidation")
	for _, t := range []ThreadSafety{NoThreadSafety, PerKey, WholeCacheLock, LazyLock} {
		if name == t.String() {
			return t, inv, nil
		}
	}
	return 0, false, fmt.Errorf("%w: %q", errUnknownThreadSafety, s)
}

// ParseInvalidation parses "none", "plain-token" or "atomic-token".
func ParseInvalidation(s string) (Invalidation, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, i := range []Invalidation{NoInvalidation, PlainInvalidation, AtomicInvalidation} {
		if name == i.String() {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownInvalidation, s)
}
