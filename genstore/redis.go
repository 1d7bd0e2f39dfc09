package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore shares generations across processes through Redis.
// With a TTL, a name that is not bumped for ttl expires and reads as 0;
// SharedToken treats that drop as one more invalidation.
type RedisGenStore struct {
	rdb redis.UniversalClient
	ns  string
	ttl time.Duration // 0 disables expiry
}

var _ GenStore = (*RedisGenStore)(nil)

// NewRedisGenStore stores generations under "oncecache:gen:<namespace>:<name>".
func NewRedisGenStore(client redis.UniversalClient, namespace string) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace}
}

// NewRedisGenStoreWithTTL is NewRedisGenStore with key expiry. ttl <= 0
// disables expiry.
func NewRedisGenStoreWithTTL(client redis.UniversalClient, namespace string, ttl time.Duration) *RedisGenStore {
	return &RedisGenStore{rdb: client, ns: namespace, ttl: ttl}
}

func (s *RedisGenStore) key(name string) string { return "oncecache:gen:" + s.ns + ":" + name }

func parseGen(name string, v any) (uint64, error) {
	var str string
	switch vv := v.(type) {
	case nil:
		return 0, nil
	case string:
		str = vv
	case []byte:
		str = string(vv)
	default:
		str = fmt.Sprint(vv)
	}
	u, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: parse generation of %q: %w", name, err)
	}
	return u, nil
}

func (s *RedisGenStore) Snapshot(ctx context.Context, name string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGen(name, res)
}

// Bump runs INCR, pipelined with EXPIRE when a TTL is set.
func (s *RedisGenStore) Bump(ctx context.Context, name string) (uint64, error) {
	k := s.key(name)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Close closes the Redis client.
func (s *RedisGenStore) Close(context.Context) error { return s.rdb.Close() }
