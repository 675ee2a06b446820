// Package framepool implements the fixed-capacity pool of reusable raw
// video-frame storage blocks described in spec.md §4.2. It exists to avoid
// per-frame allocation of large video buffers and to bound total memory
// used by in-flight video frames.
package framepool

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Acquire/Release once the pool has been closed.
var ErrClosed = errors.New("framepool: closed")

// ErrNotOwned is returned by Release when passed a block the pool did not
// hand out via Acquire. Releasing an unowned block is a programming error.
var ErrNotOwned = errors.New("framepool: block not owned by this pool")

// Pool is a fixed-size allocator of []byte blocks, all of the same size
// (the video format's bufferCapacity, in bytes-per-decoded-frame).
type Pool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	all      [][]byte      // every block this pool ever created, for Reset
	owned    map[*byte]int // backing-array identity -> index into all
	free     [][]byte
	closed   bool
}

// New creates a pool of `count` blocks, each `blockSize` bytes.
func New(count, blockSize int) *Pool {
	p := &Pool{
		all:   make([][]byte, 0, count),
		owned: make(map[*byte]int, count),
		free:  make([][]byte, 0, count),
	}
	p.notEmpty = sync.NewCond(&p.mu)
	for i := 0; i < count; i++ {
		block := make([]byte, blockSize)
		p.all = append(p.all, block)
		p.owned[blockKey(block)] = i
		p.free = append(p.free, block)
	}
	return p
}

func blockKey(b []byte) *byte {
	if cap(b) == 0 {
		return nil
	}
	return &b[:1][0]
}

// Acquire blocks while the pool has no free block, then returns one.
func (p *Pool) Acquire() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && len(p.free) == 0 {
		p.notEmpty.Wait()
	}
	if p.closed {
		return nil, ErrClosed
	}

	n := len(p.free)
	block := p.free[n-1]
	p.free = p.free[:n-1]
	return block, nil
}

// AcquireContext behaves like Acquire but also returns ctx.Err() promptly
// if ctx is canceled while blocked, so a buffer loop's stop() can
// interrupt a decoder stuck waiting for a free video block.
func (p *Pool) AcquireContext(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, p.notEmpty.Broadcast)
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && ctx.Err() == nil && len(p.free) == 0 {
		p.notEmpty.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.closed {
		return nil, ErrClosed
	}

	n := len(p.free)
	block := p.free[n-1]
	p.free = p.free[:n-1]
	return block, nil
}

// Release returns a previously acquired block to the free list.
func (p *Pool) Release(block []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	key := blockKey(block)
	if key == nil {
		return ErrNotOwned
	}
	if _, ok := p.owned[key]; !ok {
		return ErrNotOwned
	}

	p.free = append(p.free, block)
	p.notEmpty.Signal()
	return nil
}

// Reset returns every outstanding block to the free list. Callers must
// guarantee no acquirer holds a block when calling Reset (typically: the
// buffer loop that acquired blocks has already been stopped).
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.free = p.free[:0]
	p.free = append(p.free, p.all...)
	p.notEmpty.Broadcast()
}

// Close frees all blocks; subsequent Acquire/Release calls fail.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.all = nil
	p.free = nil
	p.owned = nil
	p.mu.Unlock()
	p.notEmpty.Broadcast()
}

// Len returns the number of currently free blocks.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
