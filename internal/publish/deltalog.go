// Package publish turns claimed deltas into published partition blobs.
package publish

import (
	"context"

	"github.com/23skdu/field/internal/codec"
	"github.com/23skdu/field/internal/core"
	fielderrors "github.com/23skdu/field/internal/errors"
	"github.com/23skdu/field/internal/kv"
	"github.com/23skdu/field/internal/round"
)

// RoundSource resolves round ids.
type RoundSource interface {
	Get(ctx context.Context, id string) (round.Config, error)
}

// DeltaLog queues encoded delta records per partition until the next tick.
// Each Append pushes one list entry of whole 3-byte records, so a drained
// list concatenates into a valid patch.
type DeltaLog struct {
	store  kv.Store
	rounds RoundSource
}

func NewDeltaLog(store kv.Store, rounds RoundSource) *DeltaLog {
	return &DeltaLog{store: store, rounds: rounds}
}

func (l *DeltaLog) Append(ctx context.Context, roundID string, pxy core.PartitionXY, deltas []core.Delta) error {
	if len(deltas) == 0 {
		return nil
	}
	cfg, err := l.rounds.Get(ctx, roundID)
	if err != nil {
		return err
	}
	rec, err := codec.EncodeDeltas(pxy, cfg.PartitionSize, deltas)
	if err != nil {
		return fielderrors.WrapCodecError(err, "deltalog.append", pxy.String())
	}
	if err := l.store.RPush(ctx, kv.DeltasKey(roundID, pxy), rec); err != nil {
		return fielderrors.WrapStorageError(err, "deltalog.append", pxy.String())
	}
	return nil
}

// Drain removes and returns the queued records of a partition as one patch.
func (l *DeltaLog) Drain(ctx context.Context, roundID string, pxy core.PartitionXY) ([]byte, error) {
	entries, err := l.store.Drain(ctx, kv.DeltasKey(roundID, pxy))
	if err != nil {
		return nil, fielderrors.WrapStorageError(err, "deltalog.drain", pxy.String())
	}
	var n int
	for _, e := range entries {
		n += len(e)
	}
	patch := make([]byte, 0, n)
	for _, e := range entries {
		patch = append(patch, e...)
	}
	return patch, nil
}
