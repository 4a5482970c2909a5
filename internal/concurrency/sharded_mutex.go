package concurrency

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ShardedMutex serializes work per string key using a fixed set of lock
// shards. Distinct keys may share a shard; one key always maps to one shard.
type ShardedMutex struct {
	shards []sync.Mutex
}

func NewShardedMutex(numShards int) *ShardedMutex {
	if numShards < 1 {
		numShards = 16
	}
	return &ShardedMutex{shards: make([]sync.Mutex, numShards)}
}

func (sm *ShardedMutex) shard(key string) *sync.Mutex {
	return &sm.shards[xxhash.Sum64String(key)%uint64(len(sm.shards))]
}

func (sm *ShardedMutex) Lock(key string) {
	sm.shard(key).Lock()
}

func (sm *ShardedMutex) Unlock(key string) {
	sm.shard(key).Unlock()
}

// With runs fn while holding the lock for key.
func (sm *ShardedMutex) With(key string, fn func()) {
	mu := sm.shard(key)
	mu.Lock()
	defer mu.Unlock()
	fn()
}
