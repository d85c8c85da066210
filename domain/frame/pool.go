package frame

import (
	"errors"
	"fmt"
	"sync"
)

// Fixed ring of reusable backing buffers for producers that render into fresh
// memory every frame. A slot is leased by Acquire and comes back when the
// payload built on it is released by its last holder. The ring never grows:
// when every slot is leased Acquire fails and the producer drops the frame,
// which bounds memory to slots * largest frame.
//
// Slots whose capacity is too small for a request are reallocated in place.
// Backing memory comes from allocBacking, so it is returned to the OS
// deterministically instead of waiting for the collector.

var (
	// ErrPoolExhausted means every slot is still held downstream.
	ErrPoolExhausted = errors.New("frame: pool exhausted")
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("frame: pool closed")
)

// PoolStats summarises pool usage.
type PoolStats struct {
	Slots     int
	InUse     int
	Acquired  uint64
	Exhausted uint64
	Reallocs  uint64
	Bytes     uint64
}

type poolSlot struct {
	data  []byte
	free  func()
	inUse bool
}

// Pool is a fixed-size ring of backing buffers. Safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	slots  []*poolSlot
	next   int
	closed bool
	stats  PoolStats
}

// NewPool returns a ring with n slots (at least 1). Memory is allocated
// lazily on first use of each slot.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{slots: make([]*poolSlot, n)}
	for i := range p.slots {
		p.slots[i] = &poolSlot{}
	}
	p.stats.Slots = n
	return p
}

// Acquire leases a slot of at least size bytes. The returned slice has
// length size. release hands the slot back and must be called exactly once,
// normally as the Payload release callback.
func (p *Pool) Acquire(size int) (data []byte, release func(), err error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("frame: invalid pool request of %d bytes", size)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, nil, ErrPoolClosed
	}
	for i := 0; i < len(p.slots); i++ {
		idx := (p.next + i) % len(p.slots)
		s := p.slots[idx]
		if s.inUse {
			continue
		}
		if cap(s.data) < size {
			if s.free != nil {
				p.stats.Bytes -= uint64(cap(s.data))
				s.free()
				s.data, s.free = nil, nil
				p.stats.Reallocs++
			}
			b, free, err := allocBacking(size)
			if err != nil {
				return nil, nil, err
			}
			s.data, s.free = b, free
			p.stats.Bytes += uint64(cap(b))
		}
		s.inUse = true
		p.next = (idx + 1) % len(p.slots)
		p.stats.Acquired++
		p.stats.InUse++
		var once sync.Once
		return s.data[:size], func() { once.Do(func() { p.recycle(s) }) }, nil
	}
	p.stats.Exhausted++
	return nil, nil, ErrPoolExhausted
}

func (p *Pool) recycle(s *poolSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.inUse = false
	p.stats.InUse--
	if p.closed && s.free != nil {
		p.stats.Bytes -= uint64(cap(s.data))
		s.free()
		s.data, s.free = nil, nil
	}
}

// Close frees idle slots. Leased slots are freed when their lease is
// released. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, s := range p.slots {
		if !s.inUse && s.free != nil {
			p.stats.Bytes -= uint64(cap(s.data))
			s.free()
			s.data, s.free = nil, nil
		}
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Alloc returns size bytes of fresh backing memory with a release function
// that frees it once. This is the per-frame allocation policy.
func Alloc(size int) (data []byte, release func(), err error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("frame: invalid allocation of %d bytes", size)
	}
	b, free, err := allocBacking(size)
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	return b, func() { once.Do(free) }, nil
}
