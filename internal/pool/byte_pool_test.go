package pool

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/23skdu/field/internal/metrics"
)

func TestBytePool_ReturnsEmptyBuffers(t *testing.T) {
	p := NewBytePool(0)
	buf := p.Get()
	buf.WriteString("partition bytes")
	p.Put(buf)

	again := p.Get()
	assert.Equal(t, 0, again.Len())
	p.Put(again)
	p.Put(nil)
}

func TestBytePool_DiscardsOversized(t *testing.T) {
	p := NewBytePool(64)
	before := testutil.ToFloat64(metrics.BufferPoolOperations.WithLabelValues("discard"))

	buf := p.Get()
	buf.Grow(1024)
	p.Put(buf)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.BufferPoolOperations.WithLabelValues("discard")))
}

func BenchmarkBytePool(b *testing.B) {
	p := NewBytePool(1 << 20)
	payload := make([]byte, 4096)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := p.Get()
		buf.Write(payload)
		p.Put(buf)
	}
}
