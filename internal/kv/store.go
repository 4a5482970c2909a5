// Package kv defines the partitioned key-value store the field is kept in,
// with an in-memory adapter and a Redis adapter.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kv: key not found")

// BitOp is one sub-command of a Bitfield batch on a cell index.
// A get returns the current value; a set writes Value and returns the previous one.
type BitOp struct {
	Set   bool
	Index int
	Value uint8
}

// GetOp reads cell i.
func GetOp(i int) BitOp { return BitOp{Index: i} }

// SetOp writes v to cell i.
func SetOp(i int, v uint8) BitOp { return BitOp{Set: true, Index: i, Value: v} }

// Store is the storage primitive the claim algorithm relies on.
//
// Bitfield MUST execute all ops for one key atomically and return one result
// per op in submission order. The claim race resolution depends on it.
type Store interface {
	Bitfield(ctx context.Context, key string, width int, ops []BitOp) ([]uint8, error)
	// Bytes returns the raw packed value of a bitfield key, nil when absent.
	Bytes(ctx context.Context, key string) ([]byte, error)

	Incr(ctx context.Context, key string) (int64, error)
	// Counter reads an Incr counter; a missing key reads as 0.
	Counter(ctx context.Context, key string) (int64, error)
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]int64, error)

	// RPush appends values to a list; Drain atomically returns and clears it.
	RPush(ctx context.Context, key string, values ...[]byte) error
	Drain(ctx context.Context, key string) ([][]byte, error)

	SAdd(ctx context.Context, key, member string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
