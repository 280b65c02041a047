package device

import "sync"

const shardCount = 32

// shardedMap is a map keyed by player id with one lock per shard, so work on
// one player never waits on an unrelated one.
type shardedMap[V any] struct {
	shards [shardCount]mapShard[V]
}

type mapShard[V any] struct {
	mu sync.Mutex
	m  map[int]V
}

func newShardedMap[V any]() *shardedMap[V] {
	s := &shardedMap[V]{}
	for i := range s.shards {
		s.shards[i].m = make(map[int]V)
	}
	return s
}

func (s *shardedMap[V]) shard(key int) *mapShard[V] {
	return &s.shards[uint(key)%shardCount]
}

func (s *shardedMap[V]) Load(key int) (V, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	return v, ok
}

func (s *shardedMap[V]) Store(key int, v V) {
	sh := s.shard(key)
	sh.mu.Lock()
	sh.m[key] = v
	sh.mu.Unlock()
}

func (s *shardedMap[V]) LoadAndDelete(key int) (V, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.m[key]
	if ok {
		delete(sh.m, key)
	}
	return v, ok
}

// Compute replaces the value for key with fn's result while holding the
// shard lock. The key is deleted when fn returns keep=false.
func (s *shardedMap[V]) Compute(key int, fn func(old V, loaded bool) (v V, keep bool)) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old, ok := sh.m[key]
	v, keep := fn(old, ok)
	if keep {
		sh.m[key] = v
	} else if ok {
		delete(sh.m, key)
	}
}

// Range calls fn for every entry, one shard at a time. fn must not touch the map.
func (s *shardedMap[V]) Range(fn func(key int, v V) bool) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, v := range sh.m {
			if !fn(k, v) {
				sh.mu.Unlock()
				return
			}
		}
		sh.mu.Unlock()
	}
}

func (s *shardedMap[V]) Keys() []int {
	var keys []int
	s.Range(func(k int, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

func (s *shardedMap[V]) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}
