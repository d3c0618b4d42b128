package memorystore

import (
	"github.com/gomodule/redigo/redis"
)

/*Store - a thin client over a redis pool for the shared-cache usages of the node:
* advisory locks, daily counters and staging sets. Lock keys and counter keys are
* namespaced by their callers so they cannot collide. */
type Store struct {
	pool *redis.Pool
}

/*NewStore - create a store over the given pool */
func NewStore(pool *redis.Pool) *Store {
	return &Store{pool: pool}
}

// AcquireLock sets key if absent with a TTL in seconds. Returns false when the
// lock is already held by someone else.
func (ms *Store) AcquireLock(key string, ttlSeconds int) (bool, error) {
	conn := ms.pool.Get()
	defer conn.Close()
	reply, err := conn.Do("SET", key, "1", "NX", "EX", ttlSeconds)
	if err != nil {
		return false, err
	}
	return reply != nil, nil
}

/*ReleaseLock - delete the lock key */
func (ms *Store) ReleaseLock(key string) error {
	conn := ms.pool.Get()
	defer conn.Close()
	_, err := conn.Do("DEL", key)
	return err
}

/*IsLocked - whether the lock key currently exists */
func (ms *Store) IsLocked(key string) (bool, error) {
	conn := ms.pool.Get()
	defer conn.Close()
	return redis.Bool(conn.Do("EXISTS", key))
}

/*Incr - increment a counter key, creating it at 0 if absent */
func (ms *Store) Incr(key string) (int64, error) {
	conn := ms.pool.Get()
	defer conn.Close()
	return redis.Int64(conn.Do("INCR", key))
}

/*Expire - set the expiration of a key in seconds */
func (ms *Store) Expire(key string, seconds int) error {
	conn := ms.pool.Get()
	defer conn.Close()
	_, err := conn.Do("EXPIRE", key, seconds)
	return err
}

// ScanKeys returns all keys matching pattern using cursor-based SCAN, never KEYS.
func (ms *Store) ScanKeys(pattern string) ([]string, error) {
	conn := ms.pool.Get()
	defer conn.Close()

	var keys []string
	cursor := 0
	for {
		values, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", pattern, "COUNT", 1000))
		if err != nil {
			return nil, err
		}
		var page []string
		if _, err := redis.Scan(values, &cursor, &page); err != nil {
			return nil, err
		}
		keys = append(keys, page...)
		if cursor == 0 {
			return keys, nil
		}
	}
}

// MGetInts fetches the integer values of keys in one round trip.
// The returned slice is parallel to keys; missing keys yield 0.
func (ms *Store) MGetInts(keys []string) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	conn := ms.pool.Get()
	defer conn.Close()

	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	values, err := redis.Values(conn.Do("MGET", args...))
	if err != nil {
		return nil, err
	}
	counts := make([]int64, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		n, err := redis.Int64(v, nil)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}
	return counts, nil
}

/*SAdd - add members to a set */
func (ms *Store) SAdd(key string, members []string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}
	conn := ms.pool.Get()
	defer conn.Close()
	args := make([]interface{}, 0, len(members)+1)
	args = append(args, key)
	for _, m := range members {
		args = append(args, m)
	}
	return redis.Int(conn.Do("SADD", args...))
}

/*SPopN - pop up to n members from a set */
func (ms *Store) SPopN(key string, n int) ([]string, error) {
	conn := ms.pool.Get()
	defer conn.Close()
	members, err := redis.Strings(conn.Do("SPOP", key, n))
	if err == redis.ErrNil {
		return nil, nil
	}
	return members, err
}

/*SCard - the cardinality of a set */
func (ms *Store) SCard(key string) (int, error) {
	conn := ms.pool.Get()
	defer conn.Close()
	return redis.Int(conn.Do("SCARD", key))
}

/*Del - delete a key */
func (ms *Store) Del(key string) error {
	conn := ms.pool.Get()
	defer conn.Close()
	_, err := conn.Do("DEL", key)
	return err
}
