// Package syncutil provides the per-bet locking primitive used by the
// bet state machine.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const numShards = 256

// ShardedMutex is a fixed pool of mutexes keyed by string, used to
// serialize state transitions per bet ID. Memory stays bounded no
// matter how many bets pass through, at the cost of occasional false
// sharing between IDs that hash to the same shard.
type ShardedMutex struct {
	shards [numShards]sync.Mutex
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := s.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (s *ShardedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%numShards]
}
