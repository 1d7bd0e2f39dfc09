package oncecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockingSerializesAndReenters(t *testing.T) {
	ctx := context.Background()
	c := NewLocking[string, int](NewPlain[string, int](Options{}))

	v, err := c.GetOrCreateValue(ctx, "outer", func(ctx context.Context, _ string) (int, error) {
		// nested access on the factory's ctx must not deadlock
		inner, err := c.GetOrCreateValue(ctx, "inner", constFactory[string](3))
		if err != nil {
			return 0, err
		}
		if _, _, err := c.TryGetValue(ctx, "inner"); err != nil {
			return 0, err
		}
		return inner + 1, nil
	})
	if err != nil || v != 4 {
		t.Fatalf("v=%d err=%v", v, err)
	}

	_, err = c.GetOrCreateValue(ctx, "self", func(ctx context.Context, k string) (int, error) {
		return c.GetOrCreateValue(ctx, k, constFactory[string](0))
	})
	if !errors.Is(err, ErrRecursiveKeyAccess) {
		t.Fatalf("err=%v", err)
	}
}

func TestLockingConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	c := NewLocking[int, int](NewPlain[int, int](Options{}))
	var active, maxActive, calls atomic.Int64
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 20 {
				_, _ = c.GetOrCreateValue(ctx, (g+i)%5, func(context.Context, int) (int, error) {
					n := active.Add(1)
					if n > maxActive.Load() {
						maxActive.Store(n)
					}
					calls.Add(1)
					time.Sleep(time.Millisecond)
					active.Add(-1)
					return 1, nil
				})
			}
		}()
	}
	wg.Wait()
	if maxActive.Load() != 1 {
		t.Fatalf("factories overlapped: %d", maxActive.Load())
	}
	if calls.Load() != 5 {
		t.Fatalf("calls=%d want 5", calls.Load())
	}
	n := 0
	for range c.All() {
		n++
	}
	c.Clear()
	if n != 5 {
		t.Fatalf("All yielded %d", n)
	}
	if _, ok, _ := c.TryGetValue(ctx, 0); ok {
		t.Fatal("value survived Clear")
	}
}

func TestLazyLockingFactoryOutsideCacheLock(t *testing.T) {
	ctx := context.Background()
	c := NewLazyLocking[string, int](Options{})
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = c.GetOrCreateValue(ctx, "slow", func(context.Context, string) (int, error) {
			close(entered)
			<-release
			return 1, nil
		})
	}()
	<-entered

	// another key proceeds while "slow" is still computing
	done := make(chan struct{})
	go func() {
		defer close(done)
		if v, err := c.GetOrCreateValue(ctx, "fast", constFactory[string](2)); err != nil || v != 2 {
			t.Errorf("fast v=%d err=%v", v, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("other key blocked by running factory")
	}

	got := make(chan int, 1)
	go func() {
		v, _ := c.GetOrCreateValue(ctx, "slow", constFactory[string](99))
		got <- v
	}()
	close(release)
	if v := <-got; v != 1 {
		t.Fatalf("waiter v=%d want the first result", v)
	}
	if c.Len() != 2 {
		t.Fatalf("Len=%d", c.Len())
	}
}

func TestLazyLockingRecursionAndRetry(t *testing.T) {
	ctx := context.Background()
	c := NewLazyLocking[string, int](Options{})

	_, err := c.GetOrCreateValue(ctx, "k", func(ctx context.Context, k string) (int, error) {
		if _, _, err := c.TryGetValue(ctx, k); !errors.Is(err, ErrRecursiveKeyAccess) {
			t.Errorf("TryGetValue err=%v", err)
		}
		return c.GetOrCreateValue(ctx, k, constFactory[string](1))
	})
	if !errors.Is(err, ErrRecursiveKeyAccess) {
		t.Fatalf("err=%v", err)
	}
	if _, ok, err := c.TryGetValue(ctx, "k"); ok || err != nil {
		t.Fatalf("failed cell visible: ok=%v err=%v", ok, err)
	}
	v, err := c.GetOrCreateValue(ctx, "k", constFactory[string](6))
	if err != nil || v != 6 {
		t.Fatalf("retry v=%d err=%v", v, err)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len=%d after Clear", c.Len())
	}
}

func TestLazyLockingWaiterCancel(t *testing.T) {
	c := NewLazyLocking[string, int](Options{})
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		_, _ = c.GetOrCreateValue(context.Background(), "k", func(context.Context, string) (int, error) {
			close(entered)
			<-release
			return 1, nil
		})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetOrCreateValue(ctx, "k", constFactory[string](0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestNullAlwaysCalls(t *testing.T) {
	ctx := context.Background()
	var c Cache[string, int] = Null[string, int]{}
	calls := 0
	f := func(context.Context, string) (int, error) { calls++; return calls, nil }
	_, _ = c.GetOrCreateValue(ctx, "a", f)
	v, _ := c.GetOrCreateValue(ctx, "a", f)
	if v != 2 || calls != 2 {
		t.Fatalf("v=%d calls=%d", v, calls)
	}
	if _, ok, err := c.TryGetValue(ctx, "a"); ok || err != nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	c.Clear()
	for range c.All() {
		t.Fatal("Null yielded an entry")
	}
}

func TestLockingFactoryGoroutinesSerialized(t *testing.T) {
	ctx := context.Background()
	c := NewLocking[string, int](NewPlain[string, int](Options{}))
	var active, maxActive atomic.Int64

	v, err := c.GetOrCreateValue(ctx, "root", func(ctx context.Context, _ string) (int, error) {
		var wg sync.WaitGroup
		var sum atomic.Int64
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("child-%d", i)
				v, err := c.GetOrCreateValue(ctx, key, func(ctx context.Context, k string) (int, error) {
					n := active.Add(1)
					defer active.Add(-1)
					if n > maxActive.Load() {
						maxActive.Store(n)
					}
					leaf, err := c.GetOrCreateValue(ctx, k+"/leaf", constFactory[string](1))
					return leaf + i, err
				})
				if err != nil {
					t.Error(err)
					return
				}
				sum.Add(int64(v))
			}()
		}
		wg.Wait()
		return int(sum.Load()), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := 8 + (0+7)*8/2; v != want {
		t.Fatalf("v=%d want %d", v, want)
	}
	if maxActive.Load() != 1 {
		t.Fatalf("nested factories overlapped: %d", maxActive.Load())
	}
	n := 0
	for range c.All() {
		n++
	}
	if n != 17 {
		t.Fatalf("All yielded %d want 17", n)
	}
}

func TestLockingCallAfterFactoryReturned(t *testing.T) {
	ctx := context.Background()
	c := NewLocking[string, int](NewPlain[string, int](Options{}))
	release := make(chan struct{})
	late := make(chan error, 1)

	_, err := c.GetOrCreateValue(ctx, "a", func(ctx context.Context, _ string) (int, error) {
		go func() {
			<-release
			_, err := c.GetOrCreateValue(ctx, "late", constFactory[string](2))
			late <- err
		}()
		return 1, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 50 {
			_, _ = c.GetOrCreateValue(ctx, fmt.Sprint(i), constFactory[string](i))
		}
	}()
	close(release)
	select {
	case err := <-late:
		if err != nil {
			t.Fatalf("late call err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call with a finished factory's context blocked")
	}
	wg.Wait()
	if v, ok, _ := c.TryGetValue(ctx, "late"); !ok || v != 2 {
		t.Fatalf("late v=%d ok=%v", v, ok)
	}
}
