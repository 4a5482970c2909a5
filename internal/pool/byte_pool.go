package pool

import (
	"bytes"
	"sync"

	"github.com/23skdu/field/internal/metrics"
)

// BytePool pools bytes.Buffer instances used to encode partition blobs.
type BytePool struct {
	pool sync.Pool
	// maxRetain drops buffers that grew past it instead of pooling them.
	maxRetain int
}

// NewBytePool creates a new buffer pool. maxRetain <= 0 retains every buffer.
func NewBytePool(maxRetain int) *BytePool {
	return &BytePool{
		pool: sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
		maxRetain: maxRetain,
	}
}

// Get retrieves a buffer from the pool.
// The buffer is guaranteed to be empty (Reset called).
func (p *BytePool) Get() *bytes.Buffer {
	metrics.BufferPoolOperations.WithLabelValues("get").Inc()
	return p.pool.Get().(*bytes.Buffer)
}

// Put returns a buffer to the pool after resetting it.
func (p *BytePool) Put(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if p.maxRetain > 0 && buf.Cap() > p.maxRetain {
		metrics.BufferPoolOperations.WithLabelValues("discard").Inc()
		return
	}
	metrics.BufferPoolOperations.WithLabelValues("put").Inc()
	buf.Reset()
	p.pool.Put(buf)
}
