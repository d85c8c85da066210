package frame

import "sync/atomic"

// Plane is one image plane of a payload.
type Plane struct {
	Data   []byte
	Stride int
}

// Payload is reference-counted pixel memory. It is immutable after
// construction: holders may read planes but never write them. The release
// callback runs exactly once, when the last reference is dropped.
type Payload struct {
	planes  []Plane
	refs    atomic.Int32
	release func()
}

// NewPayload wraps planes with a single reference owned by the caller.
// release may be nil for heap memory.
func NewPayload(planes []Plane, release func()) *Payload {
	p := &Payload{planes: planes, release: release}
	p.refs.Store(1)
	return p
}

// Retain adds a reference and returns p.
func (p *Payload) Retain() *Payload {
	if p.refs.Add(1) <= 1 {
		panic("frame: retain of released payload")
	}
	return p
}

// Release drops a reference. The last release invokes the release callback.
func (p *Payload) Release() {
	if p == nil {
		return
	}
	switch n := p.refs.Add(-1); {
	case n == 0:
		if p.release != nil {
			p.release()
		}
	case n < 0:
		panic("frame: payload released more times than retained")
	}
}

// Refs returns the current reference count.
func (p *Payload) Refs() int { return int(p.refs.Load()) }

// PlaneCount returns the number of planes.
func (p *Payload) PlaneCount() int { return len(p.planes) }

// Plane returns plane i.
func (p *Payload) Plane(i int) Plane { return p.planes[i] }

// Size returns the total byte length across planes.
func (p *Payload) Size() int {
	n := 0
	for _, pl := range p.planes {
		n += len(pl.Data)
	}
	return n
}
