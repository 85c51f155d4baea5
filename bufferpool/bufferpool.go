// Package bufferpool implements the buffer descriptor pool of §3/§4.2:
// two lists (free/ready) that partition a fixed set of host-provided
// descriptors, plus the ownership handoff discipline with the host.
package bufferpool

import (
	"container/list"
	"errors"
)

// ErrNoData is returned by TakeReady when the ready list is empty.
var ErrNoData = errors.New("bufferpool: ready list empty")

// ErrNoSpace is returned by TakeFree when the free list is empty.
var ErrNoSpace = errors.New("bufferpool: free list empty")

// Header is the per-chunk metadata stamped on captured data and read
// back on playback data, per §3.
type Header struct {
	Sequence  int64
	PTS       int64 // presentation timestamp, wall-clock nanoseconds
	DTSOffset int64
}

// Descriptor is a host-owned buffer region (§3). Payload is the raw
// storage; Offset/Size describe, in frames, the current sub-range
// carrying data (for playback: the frames the host queued, with
// consumption tracked by the transfer engine's own cursor; for
// capture: the frames written by the driver).
type Descriptor struct {
	ID      int
	Payload []byte
	Stride  int
	Offset  int
	Size    int
	Header  Header

	// Out is set once the descriptor has been handed back to the
	// host; while set, the driver must not read or write it.
	Out bool

	elem *list.Element
}

// Pool holds the free/ready partition of a fixed set of descriptors
// plus the host callbacks used on handoff. It is not safe for
// concurrent use; the engine's data-loop confinement (§5) is what
// makes single-threaded access correct.
type Pool struct {
	free  *list.List
	ready *list.List
	byID  map[int]*Descriptor

	// Reuse is invoked when a descriptor is returned to the host
	// (§4.2's reuse_buffer callback).
	Reuse func(d *Descriptor)
	// Publish pushes an id through the host's I/O channel
	// (§6.2's shared I/O slot / ready() callback machinery lives a
	// layer above this package; Publish is the narrow hook this
	// package needs).
	Publish func(id int)
}

// New creates an empty pool. Descriptors are added with Add.
func New() *Pool {
	return &Pool{
		free:  list.New(),
		ready: list.New(),
		byID:  make(map[int]*Descriptor),
	}
}

// Add registers a new descriptor, host-owned (Out=true) until the
// caller explicitly places it with ResetForPlayback/ResetForCapture or
// Submit.
func (p *Pool) Add(d *Descriptor) {
	d.Out = true
	p.byID[d.ID] = d
}

// ResetForPlayback marks every descriptor OUT (the driver starts with
// none; the host owns them all), per §4.2's reset behaviour.
func (p *Pool) ResetForPlayback() {
	p.free.Init()
	p.ready.Init()
	for _, d := range p.byID {
		d.Out = true
		d.elem = nil
	}
}

// ResetForCapture moves every descriptor onto free and clears OUT,
// per §4.2's reset behaviour.
func (p *Pool) ResetForCapture() {
	p.free.Init()
	p.ready.Init()
	for _, d := range p.byID {
		d.Out = false
		d.Offset, d.Size = 0, 0
		d.elem = p.free.PushBack(d)
	}
}

// Submit appends a descriptor to ready (playback: host has filled it
// with data to send) or free (capture: host has returned a consumed
// buffer for reuse), per §6.1's submit_buffer.
func (p *Pool) Submit(d *Descriptor, toReady bool) {
	d.Out = false
	if toReady {
		d.elem = p.ready.PushBack(d)
	} else {
		d.Offset, d.Size = 0, 0
		d.elem = p.free.PushBack(d)
	}
}

// TakeReady pops the head of ready (playback source data).
func (p *Pool) TakeReady() (*Descriptor, error) {
	e := p.ready.Front()
	if e == nil {
		return nil, ErrNoData
	}
	p.ready.Remove(e)
	d := e.Value.(*Descriptor)
	d.elem = nil
	return d, nil
}

// PeekReady returns the head of ready without removing it, or nil.
func (p *Pool) PeekReady() *Descriptor {
	e := p.ready.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*Descriptor)
}

// PopReadyHead removes the current head of ready (used once a
// partially-drained head descriptor is fully consumed).
func (p *Pool) PopReadyHead() {
	if e := p.ready.Front(); e != nil {
		p.ready.Remove(e)
	}
}

// ReadyEmpty reports whether the ready list has no descriptors.
func (p *Pool) ReadyEmpty() bool { return p.ready.Len() == 0 }

// TakeFree pops the head of free (capture destination buffer).
func (p *Pool) TakeFree() (*Descriptor, error) {
	e := p.free.Front()
	if e == nil {
		return nil, ErrNoSpace
	}
	p.free.Remove(e)
	d := e.Value.(*Descriptor)
	d.elem = nil
	return d, nil
}

// FreeEmpty reports whether the free list has no descriptors.
func (p *Pool) FreeEmpty() bool { return p.free.Len() == 0 }

// ReturnToHost sets OUT, publishes the id, and invokes the reuse
// callback, per §4.2.
func (p *Pool) ReturnToHost(d *Descriptor) {
	d.Out = true
	if p.Publish != nil {
		p.Publish(d.ID)
	}
	if p.Reuse != nil {
		p.Reuse(d)
	}
}

// Invariant checks every descriptor is in exactly one of
// {free, ready, OUT}; used by tests (§8 invariant 2).
func (p *Pool) Invariant() bool {
	locations := make(map[int]int, len(p.byID))
	count := func(l *list.List) {
		for e := l.Front(); e != nil; e = e.Next() {
			d := e.Value.(*Descriptor)
			locations[d.ID]++
		}
	}
	count(p.free)
	count(p.ready)
	for id, d := range p.byID {
		if d.Out {
			locations[id]++
		}
	}
	for _, n := range locations {
		if n != 1 {
			return false
		}
	}
	return len(locations) == len(p.byID)
}
