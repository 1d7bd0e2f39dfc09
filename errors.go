package oncecache

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/oncecache/internal/inflight"
)

// ErrRecursiveKeyAccess reports that a key was requested again while its own
// factory was still running. It is always a bug in the calling code.
var ErrRecursiveKeyAccess = errors.New("oncecache: recursive access to key")

// ErrRevisionMismatch is the panic value (wrapped) raised by invariant
// builds when a Revision is checked against a token that did not create it.
var ErrRevisionMismatch = errors.New("oncecache: revision mismatch")

// RecursiveKeyAccessError carries the key that was re-entered.
// errors.Is(err, ErrRecursiveKeyAccess) is true for it.
type RecursiveKeyAccessError struct {
	Key any
}

func (e *RecursiveKeyAccessError) Error() string {
	return fmt.Sprintf("oncecache: recursive access to key %v while its value is being created", e.Key)
}

func (e *RecursiveKeyAccessError) Is(target error) bool {
	return target == ErrRecursiveKeyAccess
}

// recursive reports a reentrant access. depth counts the computations
// running on ctx's call chain.
func recursive(ctx context.Context, key any, log Logger, hooks Hooks) error {
	log.Debug("recursive key access detected", Fields{"key": key, "depth": inflight.Depth(ctx)})
	hooks.RecursiveAccess(key)
	return &RecursiveKeyAccessError{Key: key}
}
