// Package inflight marks contexts with the computations they belong to.
//
// A cache hands its factory a context derived from the caller's context and
// tagged with an owner value (a slot, a lazy cell, a lock). When that context,
// or anything derived from it, comes back into the cache, the owner can be
// found again. This is how reentrant access is told apart from a second
// goroutine waiting on the same computation.
package inflight

import "context"

type frameKey struct{}

type frame struct {
	owner  any
	parent *frame
}

// With returns a copy of ctx that records owner on top of any owners ctx
// already carries. owner must be comparable (pointers are the usual choice).
func With(ctx context.Context, owner any) context.Context {
	parent, _ := ctx.Value(frameKey{}).(*frame)
	return context.WithValue(ctx, frameKey{}, &frame{owner: owner, parent: parent})
}

// Contains reports whether owner was recorded in ctx by With.
func Contains(ctx context.Context, owner any) bool {
	if ctx == nil {
		return false
	}
	f, _ := ctx.Value(frameKey{}).(*frame)
	for ; f != nil; f = f.parent {
		if f.owner == owner {
			return true
		}
	}
	return false
}

// Last returns the most recently recorded owner of type T accepted by match.
func Last[T any](ctx context.Context, match func(T) bool) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	f, _ := ctx.Value(frameKey{}).(*frame)
	for ; f != nil; f = f.parent {
		if o, ok := f.owner.(T); ok && match(o) {
			return o, true
		}
	}
	return zero, false
}

// Depth returns the number of owners recorded in ctx.
func Depth(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	n := 0
	f, _ := ctx.Value(frameKey{}).(*frame)
	for ; f != nil; f = f.parent {
		n++
	}
	return n
}
