package oncecache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; several are called while
// the cache holds a lock.
type Hooks interface {
	// A factory re-entered its own key (ErrRecursiveKeyAccess returned).
	RecursiveAccess(key any)

	// A factory returned an error; the key was left uncached.
	FactoryFailed(key any, err error)

	// An Invalidating cache cleared its inner cache after observing a new
	// revision. attempts > 1 means invalidations raced the clear.
	InvalidationCleared(attempts int)

	// SharedToken could not read or bump its generation store.
	TokenRefreshError(name string, err error)
	TokenBumpError(name string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RecursiveAccess(any)             {}
func (NopHooks) FactoryFailed(any, error)        {}
func (NopHooks) InvalidationCleared(int)         {}
func (NopHooks) TokenRefreshError(string, error) {}
func (NopHooks) TokenBumpError(string, error)    {}
