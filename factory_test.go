package oncecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/oncecache/equality"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		ts   ThreadSafety
		inv  bool
		fail bool
	}{
		{"plain", NoThreadSafety, false, false},
		{"plain+invalidation", NoThreadSafety, true, false},
		{"concurrent", PerKey, false, false},
		{" Concurrent+Invalidation ", PerKey, true, false},
		{"legacy-locking", WholeCacheLock, false, false},
		{"legacy-locking+invalidation", WholeCacheLock, true, false},
		{"legacy-lazy-locking", LazyLock, false, false},
		{"legacy-lazy-locking+invalidation", LazyLock, true, false},
		{"sharded", 0, false, true},
		{"", 0, false, true},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			ts, inv, err := ParseMode(c.in)
			if c.fail {
				if !errors.Is(err, errUnknownThreadSafety) {
					t.Fatalf("err=%v", err)
				}
				return
			}
			if err != nil || ts != c.ts || inv != c.inv {
				t.Fatalf("got %v,%v,%v", ts, inv, err)
			}
		})
	}
}

func TestParseInvalidation(t *testing.T) {
	for _, i := range []Invalidation{NoInvalidation, PlainInvalidation, AtomicInvalidation} {
		got, err := ParseInvalidation(i.String())
		if err != nil || got != i {
			t.Fatalf("%s: got %v err=%v", i, got, err)
		}
	}
	if _, err := ParseInvalidation("redis"); !errors.Is(err, errUnknownInvalidation) {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildComposes(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want func(Cache[string, int]) bool
	}{
		{"plain", Config{}, func(c Cache[string, int]) bool { _, ok := c.(*Plain[string, int]); return ok }},
		{"concurrent", Config{ThreadSafety: PerKey}, func(c Cache[string, int]) bool { _, ok := c.(*Concurrent[string, int]); return ok }},
		{"locking", Config{ThreadSafety: WholeCacheLock}, func(c Cache[string, int]) bool { _, ok := c.(*Locking[string, int]); return ok }},
		{"lazy", Config{ThreadSafety: LazyLock}, func(c Cache[string, int]) bool { _, ok := c.(*LazyLocking[string, int]); return ok }},
		{"disabled", Config{ThreadSafety: PerKey, Disabled: true}, func(c Cache[string, int]) bool { _, ok := c.(Null[string, int]); return ok }},
		{"plain+invalidation", Config{Invalidation: PlainInvalidation}, func(c Cache[string, int]) bool {
			inv, ok := c.(*Invalidating[string, int])
			if !ok {
				return false
			}
			_, plain := inv.Token().(*PlainToken)
			return plain
		}},
		{"concurrent+invalidation", Config{ThreadSafety: PerKey, Invalidation: AtomicInvalidation}, func(c Cache[string, int]) bool {
			inv, ok := c.(*Invalidating[string, int])
			if !ok {
				return false
			}
			_, isAtomic := inv.Token().(*AtomicToken)
			return isAtomic
		}},
		{"legacy-locking+invalidation", Config{ThreadSafety: WholeCacheLock, Invalidation: AtomicInvalidation}, func(c Cache[string, int]) bool {
			l, ok := c.(*Locking[string, int])
			if !ok {
				return false
			}
			_, inside := l.inner.(*Invalidating[string, int])
			_, isAtomic := TokenOf(c).(*AtomicToken)
			return inside && isAtomic
		}},
		{"legacy-lazy-locking+invalidation", Config{ThreadSafety: LazyLock, Invalidation: AtomicInvalidation}, func(c Cache[string, int]) bool {
			inv, ok := c.(*Invalidating[string, int])
			if !ok {
				return false
			}
			_, lazy := inv.inner.(*LazyLocking[string, int])
			return lazy && TokenOf(c) == inv.Token()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Build[string, int](tc.cfg)
			if err != nil {
				t.Fatal(err)
			}
			if !tc.want(c) {
				t.Fatalf("got %T", c)
			}
			v, err := c.GetOrCreateValue(context.Background(), "a", constFactory[string](42))
			if err != nil || v != 42 {
				t.Fatalf("v=%d err=%v", v, err)
			}
		})
	}
}

func TestBuildSharedToken(t *testing.T) {
	ctx := context.Background()
	tok := NewAtomicToken()
	a, _ := Build[string, int](Config{ThreadSafety: PerKey, Token: tok})
	b, _ := Build[string, int](Config{ThreadSafety: LazyLock, Token: tok})
	_, _ = a.GetOrCreateValue(ctx, "k", constFactory[string](1))
	_, _ = b.GetOrCreateValue(ctx, "k", constFactory[string](1))

	tok.Invalidate()
	for _, c := range []Cache[string, int]{a, b} {
		if _, ok, _ := c.TryGetValue(ctx, "k"); ok {
			t.Fatalf("%T kept entry across invalidation", c)
		}
	}
}

func TestBuildRejects(t *testing.T) {
	if _, err := Build[string, int](Config{ThreadSafety: PerKey, Invalidation: PlainInvalidation}); !errors.Is(err, errPlainTokenShared) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Build[string, int](Config{ThreadSafety: 9}); !errors.Is(err, errUnknownThreadSafety) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Build[string, int](Config{Invalidation: 9}); !errors.Is(err, errUnknownInvalidation) {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildWithComparer(t *testing.T) {
	ctx := context.Background()
	c, err := BuildWith[string, int](equality.FoldString(), Config{ThreadSafety: PerKey, Invalidation: DefaultInvalidation(PerKey)})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = c.GetOrCreateValue(ctx, "Key", constFactory[string](5))
	if v, ok, _ := c.TryGetValue(ctx, "KEY"); !ok || v != 5 {
		t.Fatalf("v=%d ok=%v", v, ok)
	}
}

func TestTokenOfWithoutInvalidation(t *testing.T) {
	for _, ts := range []ThreadSafety{NoThreadSafety, PerKey, WholeCacheLock, LazyLock} {
		c, err := Build[string, int](Config{ThreadSafety: ts})
		if err != nil {
			t.Fatal(err)
		}
		if tok := TokenOf(c); tok != nil {
			t.Fatalf("%s: TokenOf=%T want nil", ts, tok)
		}
	}
}

// nestedAfterInvalidate creates key "<p>a", whose factory invalidates the
// token and then creates "<p>b" on its own context.
func nestedAfterInvalidate(c Cache[string, int], tok InvalidationToken, p string) (int, error) {
	return c.GetOrCreateValue(context.Background(), p+"a", func(ctx context.Context, _ string) (int, error) {
		tok.Invalidate()
		b, err := c.GetOrCreateValue(ctx, p+"b", constFactory[string](2))
		return b + 1, err
	})
}

func within(t *testing.T, d time.Duration, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("blocked for %s", d)
	}
}

func TestBuildNestedCallAfterInvalidate(t *testing.T) {
	for _, ts := range []ThreadSafety{NoThreadSafety, PerKey, WholeCacheLock, LazyLock} {
		t.Run(ts.String(), func(t *testing.T) {
			tok := NewAtomicToken()
			c, err := Build[string, int](Config{ThreadSafety: ts, Token: tok})
			if err != nil {
				t.Fatal(err)
			}
			within(t, 2*time.Second, func() {
				v, err := nestedAfterInvalidate(c, tok, "")
				if err != nil || v != 3 {
					t.Errorf("v=%d err=%v", v, err)
				}
			})
		})
	}
}

func TestBuildNestedCallsRaceInvalidate(t *testing.T) {
	for _, ts := range []ThreadSafety{PerKey, WholeCacheLock, LazyLock} {
		t.Run(ts.String(), func(t *testing.T) {
			tok := NewAtomicToken()
			c, err := Build[string, int](Config{ThreadSafety: ts, Token: tok})
			if err != nil {
				t.Fatal(err)
			}
			within(t, 5*time.Second, func() {
				stop := make(chan struct{})
				var inv sync.WaitGroup
				inv.Add(1)
				go func() {
					defer inv.Done()
					for {
						select {
						case <-stop:
							return
						default:
							tok.Invalidate()
							time.Sleep(50 * time.Microsecond)
						}
					}
				}()

				var wg sync.WaitGroup
				for g := range 4 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						for i := range 25 {
							v, err := nestedAfterInvalidate(c, tok, fmt.Sprintf("%d/%d/", g, i))
							if err != nil || v != 3 {
								t.Errorf("v=%d err=%v", v, err)
								return
							}
						}
					}()
				}
				wg.Wait()
				close(stop)
				inv.Wait()
			})
		})
	}
}
