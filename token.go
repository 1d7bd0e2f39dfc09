package oncecache

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/unkn0wn-root/oncecache/internal/invariants"
)

// InvalidationToken is a revision counter shared by any number of
// Invalidating caches. Invalidate makes every outstanding Revision stale.
type InvalidationToken interface {
	GetCurrent() Revision
	IsCurrent(Revision) bool
	Invalidate()
}

// Revision is an opaque snapshot of a token's counter. It is only meaningful
// to the token that produced it; the zero Revision belongs to no token.
type Revision struct {
	value uint64
	owner uint64
}

var tokenIDs atomic.Uint64

func nextTokenID() uint64 { return tokenIDs.Add(1) }

// seed starts counters at an arbitrary value so that revisions taken from
// different tokens are unlikely to match by accident.
func seed() uint64 { return uint64(rand.Uint32()) }

// checkRevision panics on a Revision not produced by owner. It compiles to
// nothing unless invariants are enabled.
func checkRevision(owner uint64, r Revision) {
	if !invariants.Enabled {
		return
	}
	if r.owner == 0 {
		panic(fmt.Errorf("%w: zero Revision", ErrRevisionMismatch))
	}
	if r.owner != owner {
		panic(fmt.Errorf("%w: revision of token %d checked against token %d", ErrRevisionMismatch, r.owner, owner))
	}
}

// PlainToken is an unsynchronized counter. Use it only from one goroutine or
// under external locking; AtomicToken is the concurrent variant.
type PlainToken struct {
	id       uint64
	revision uint64
}

var _ InvalidationToken = (*PlainToken)(nil)

func NewPlainToken() *PlainToken {
	return &PlainToken{id: nextTokenID(), revision: seed()}
}

func (t *PlainToken) GetCurrent() Revision {
	return Revision{value: t.revision, owner: t.id}
}

func (t *PlainToken) IsCurrent(r Revision) bool {
	checkRevision(t.id, r)
	return r.value == t.revision
}

func (t *PlainToken) Invalidate() { t.revision++ }

// AtomicToken is safe for unsynchronized concurrent use.
type AtomicToken struct {
	id       uint64
	revision atomic.Uint64
}

var _ InvalidationToken = (*AtomicToken)(nil)

func NewAtomicToken() *AtomicToken {
	t := &AtomicToken{id: nextTokenID()}
	t.revision.Store(seed())
	return t
}

func (t *AtomicToken) GetCurrent() Revision {
	return Revision{value: t.revision.Load(), owner: t.id}
}

func (t *AtomicToken) IsCurrent(r Revision) bool {
	checkRevision(t.id, r)
	return r.value == t.revision.Load()
}

func (t *AtomicToken) Invalidate() { t.revision.Add(1) }
