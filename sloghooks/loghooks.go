// Package sloghooks reports oncecache hook events through log/slog.
// High-volume events can be sampled, and keys are redacted before logging.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/oncecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FactoryFailedEvery uint64
	ClearedEvery       uint64
	// Optional key redactor. Defaults to a SHA-256 prefix of fmt.Sprint(key).
	Redact func(any) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	failedCtr  atomic.Uint64
	clearedCtr atomic.Uint64
}

var _ oncecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k any) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(fmt.Sprint(k)))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) RecursiveAccess(key any) {
	if h.l == nil {
		return
	}
	h.l.Error("oncecache.recursive_access", "key", h.redact(key))
}

func (h *Hooks) FactoryFailed(key any, err error) {
	if h.l == nil || !sample(h.opts.FactoryFailedEvery, &h.failedCtr) {
		return
	}
	h.l.Debug("oncecache.factory_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) InvalidationCleared(attempts int) {
	if h.l == nil || !sample(h.opts.ClearedEvery, &h.clearedCtr) {
		return
	}
	h.l.Debug("oncecache.invalidation_cleared", "attempts", attempts)
}

func (h *Hooks) TokenRefreshError(name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("oncecache.token_refresh_error",
		"name", name,
		"err", err)
}

func (h *Hooks) TokenBumpError(name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("oncecache.token_bump_error",
		"name", name,
		"err", err)
}
