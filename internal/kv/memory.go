package kv

import (
	"context"
	"fmt"
	"sync"

	"github.com/23skdu/field/internal/concurrency"
	"github.com/23skdu/field/internal/grid"
)

// MemoryStore is an in-process Store. Bitfield batches on one key are
// serialized by a sharded key lock, which makes each batch atomic.
type MemoryStore struct {
	locks *concurrency.ShardedMutex

	mu       sync.RWMutex
	bits     map[string][]byte
	counters map[string]int64
	hashes   map[string]map[string]int64
	lists    map[string][][]byte
	sets     map[string]map[string]struct{}
	values   map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    concurrency.NewShardedMutex(64),
		bits:     make(map[string][]byte),
		counters: make(map[string]int64),
		hashes:   make(map[string]map[string]int64),
		lists:    make(map[string][][]byte),
		sets:     make(map[string]map[string]struct{}),
		values:   make(map[string][]byte),
	}
}

func (s *MemoryStore) Bitfield(ctx context.Context, key string, width int, ops []BitOp) ([]uint8, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if width < 1 || width > grid.MaxWidth {
		return nil, fmt.Errorf("kv: bitfield width %d out of range", width)
	}

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	s.mu.RLock()
	buf := s.bits[key]
	s.mu.RUnlock()

	// Grow like Redis: the key is extended to cover the highest addressed cell.
	maxIdx := -1
	for _, op := range ops {
		if op.Index < 0 {
			return nil, fmt.Errorf("kv: negative bitfield index %d", op.Index)
		}
		if op.Set && int(op.Value) >= 1<<width {
			return nil, fmt.Errorf("kv: value %d does not fit in %d bits", op.Value, width)
		}
		maxIdx = max(maxIdx, op.Index)
	}
	if need := grid.ByteLen(maxIdx+1, width); need > len(buf) {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
		s.mu.Lock()
		s.bits[key] = buf
		s.mu.Unlock()
	}

	out := make([]uint8, len(ops))
	for i, op := range ops {
		if op.Set {
			out[i] = grid.WriteBits(buf, op.Index, width, op.Value)
		} else {
			out[i] = grid.ReadBits(buf, op.Index, width)
		}
	}
	return out, nil
}

func (s *MemoryStore) Bytes(ctx context.Context, key string) ([]byte, error) {
	s.locks.Lock(key)
	defer s.locks.Unlock(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.bits[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

func (s *MemoryStore) Counter(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[key], nil
}

func (s *MemoryStore) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]int64)
		s.hashes[key] = h
	}
	h[field] += n
	return h[field], nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) RPush(ctx context.Context, key string, values ...[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], values...)
	return nil
}

func (s *MemoryStore) Drain(ctx context.Context, key string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.lists[key]
	delete(s.lists, key)
	return out, nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *MemoryStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}
