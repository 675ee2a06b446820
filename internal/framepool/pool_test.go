package framepool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseConservation(t *testing.T) {
	p := New(2, 16)
	require.Equal(t, 2, p.Len())

	b1, err := p.Acquire()
	require.NoError(t, err)
	require.Len(t, b1, 16)
	require.Equal(t, 1, p.Len())

	b2, err := p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 0, p.Len())

	require.NoError(t, p.Release(b1))
	require.Equal(t, 1, p.Len())
	require.NoError(t, p.Release(b2))
	require.Equal(t, 2, p.Len())
}

func TestAcquireBlocksWhenEmpty(t *testing.T) {
	p := New(1, 8)
	b1, err := p.Acquire()
	require.NoError(t, err)

	acquired := make(chan []byte, 1)
	go func() {
		b, err := p.Acquire()
		require.NoError(t, err)
		acquired <- b
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire on empty pool should block")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, p.Release(b1))
	require.Eventually(t, func() bool {
		select {
		case <-acquired:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestReleaseUnownedBlockFails(t *testing.T) {
	p := New(1, 8)
	foreign := make([]byte, 8)
	err := p.Release(foreign)
	require.ErrorIs(t, err, ErrNotOwned)
}

func TestResetReturnsAllBlocks(t *testing.T) {
	p := New(3, 8)
	_, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())

	p.Reset()
	require.Equal(t, 3, p.Len())
}

func TestCloseFailsSubsequentOps(t *testing.T) {
	p := New(1, 8)
	p.Close()
	p.Close() // idempotent

	_, err := p.Acquire()
	require.ErrorIs(t, err, ErrClosed)
}
