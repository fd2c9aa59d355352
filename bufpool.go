package datafetch

import (
	"bytes"
	"sync"
)

// maxPooledBuffer caps the capacity of buffers returned to the pool.
const maxPooledBuffer = 64 << 10

// bufferPool is a wrapper around sync.Pool for request body encoding.
type bufferPool struct {
	pool    *sync.Pool
	maxSize int
}

// newBufferPool creates a new bufferPool.
func newBufferPool(maxSize int) *bufferPool {
	return &bufferPool{
		pool: &sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
		maxSize: maxSize,
	}
}

// Get returns an empty buffer from the pool.
func (p *bufferPool) Get() *bytes.Buffer {
	b, _ := p.pool.Get().(*bytes.Buffer)
	b.Reset()

	return b
}

// Put puts a buffer back in the pool. Oversized buffers are dropped.
func (p *bufferPool) Put(b *bytes.Buffer) {
	if b == nil || b.Cap() > p.maxSize {
		return
	}

	b.Reset()
	p.pool.Put(b)
}
