package storage

import (
	"context"

	"github.com/23skdu/field/internal/breaker"
)

// GuardedUploader fails uploads fast while the blob store is unhealthy.
type GuardedUploader struct {
	next Uploader
	cb   *breaker.CircuitBreaker
}

func NewGuardedUploader(next Uploader, cb *breaker.CircuitBreaker) *GuardedUploader {
	return &GuardedUploader{next: next, cb: cb}
}

func (g *GuardedUploader) Upload(ctx context.Context, key BlobKey, data []byte) error {
	return g.cb.Do(ctx, func(ctx context.Context) error {
		return g.next.Upload(ctx, key, data)
	})
}
