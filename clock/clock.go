// Package clock implements the shared clock record of §6.3 and the
// master/slave coordination registry described in §9: engines never
// hold a direct pointer to each other, only an opaque handle into a
// Coordinator the host owns.
package clock

import "sync/atomic"

// Shared is the clock record published by the master and read by
// slaves (§6.3). It is written only on the data loop (§5); the
// atomic.Pointer swap below gives slaves on the same loop a
// consistent snapshot without needing their own lock, matching the
// "single writer, race-free by construction" guarantee of §5.
type Shared struct {
	NSec     uint64
	RateHz   int
	Position int64 // frames
	Delay    int64 // frames
	RateDiff float64
}

// Record is a handle to one engine's published clock. Held by the
// Coordinator, never passed around as a raw pointer between engines.
type Record struct {
	v atomic.Pointer[Shared]
}

// Publish writes a new snapshot. Only the owning engine's data-loop
// goroutine may call this.
func (r *Record) Publish(s Shared) {
	cp := s
	r.v.Store(&cp)
}

// Read returns the last published snapshot, or the zero value if
// nothing has been published yet.
func (r *Record) Read() Shared {
	p := r.v.Load()
	if p == nil {
		return Shared{}
	}
	return *p
}

// Handle is what an engine holds to address another engine's clock
// without a back-pointer (§9).
type Handle int

// Coordinator is a host-owned registry of clock Records, and of which
// Handle (if any) is the current master. Engines register themselves
// at configuration time and thereafter only ever touch the
// Coordinator through their Handle.
type Coordinator struct {
	records []*Record
	master  Handle
	hasMaster bool
}

// NewCoordinator creates an empty registry.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Register adds a new engine's clock record and returns its handle.
func (c *Coordinator) Register() Handle {
	c.records = append(c.records, &Record{})
	return Handle(len(c.records) - 1)
}

// Record returns the Record for h, for Publish/Read.
func (c *Coordinator) Record(h Handle) *Record {
	return c.records[h]
}

// SetMaster designates h as the clock master. Followers call Master
// to find out whose Record to read.
func (c *Coordinator) SetMaster(h Handle) {
	c.master = h
	c.hasMaster = true
}

// Master returns the current master handle, if one is set.
func (c *Coordinator) Master() (Handle, bool) {
	return c.master, c.hasMaster
}

// IsMaster reports whether h is the current master.
func (c *Coordinator) IsMaster(h Handle) bool {
	return c.hasMaster && c.master == h
}
