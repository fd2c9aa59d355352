package datafetch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	t.Parallel()

	pool := newBufferPool(16)

	buf := pool.Get()
	require.NotNil(t, buf, "Buffer should not be nil")
	require.Zero(t, buf.Len(), "Buffer from the pool should be empty")

	buf.WriteString("payload")
	pool.Put(buf)

	// Whatever the pool hands out next must be reset
	next := pool.Get()
	require.Zero(t, next.Len(), "Buffer should be reset after Put")
}

func TestBufferPool_DropsOversized(t *testing.T) {
	t.Parallel()

	pool := newBufferPool(16)

	big := bytes.NewBuffer(make([]byte, 0, 1024))
	big.WriteString("large")
	pool.Put(big)

	require.Equal(t, "large", big.String(), "Oversized buffer should not be reset by Put")
	require.NotPanics(t, func() { pool.Put(nil) })
}
