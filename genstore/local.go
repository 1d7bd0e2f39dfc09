package genstore

import (
	"context"
	"sync"
	"time"
)

type localGen struct {
	gen      uint64
	bumpedAt time.Time
}

// LocalGenStore keeps generations in process memory. It is shared by the
// tokens of one process only; use RedisGenStore across processes.
// With a cleanup interval and retention, names idle for longer than
// retention are pruned in the background and read as 0 afterwards.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]localGen

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGen)}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, name string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[name].gen, nil
}

func (s *LocalGenStore) Bump(_ context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.gens[name]
	e.gen++
	e.bumpedAt = time.Now()
	s.gens[name] = e
	return e.gen, nil
}

// Cleanup forgets names not bumped within retention.
func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for n, e := range s.gens {
		if e.bumpedAt.Before(cutoff) {
			delete(s.gens, n)
		}
	}
	s.mu.Unlock()
}

// Close stops the cleanup loop. It is safe to call more than once.
func (s *LocalGenStore) Close(_ context.Context) error {
	if s.stopCh == nil {
		return nil
	}
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.stopCh)
	})
	s.wg.Wait()
	return nil
}
