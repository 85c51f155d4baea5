package transfer

import (
	"github.com/sidechain-audio/alsaengine/bufferpool"
	"github.com/sidechain-audio/alsaengine/device"
)

// DropNotifier is called when capture has to drop frames because the
// free list is empty (§4.5.3 step 1); used to record the xrun-adjacent
// telemetry event without making this package depend on a logger.
type DropNotifier func(droppedFrames int)

// Capture implements §4.5.3's push loop: pull a free descriptor, fill
// it from the device's mmap window (wrap-aware), stamp its header,
// and hand it back to the host.
type Capture struct {
	Dev       device.Device
	Pool      *bufferpool.Pool
	FrameSize int

	// Now returns the wall-clock timestamp stamped into captured
	// buffer headers (§4.5.3: "pts = wall_clock").
	Now func() int64
	// OnDrop is invoked whenever frames are dropped for lack of a
	// free descriptor.
	OnDrop DropNotifier
}

// Push transfers up to budget frames (the caller passes
// min(avail, threshold) per §4.4's capture tick step 5), looping
// mmap begin/fill/commit until the budget is exhausted or the device
// reports nothing left.
func (c *Capture) Push(budget int, counters Counters) error {
	remaining := budget
	for remaining > 0 {
		off, frames, err := c.Dev.MmapBegin()
		if err != nil {
			return err
		}
		if frames == 0 {
			break
		}
		frames = minInt(frames, remaining)

		if c.Pool.FreeEmpty() {
			committed, err := c.Dev.MmapCommit(off, frames)
			if err != nil {
				return err
			}
			counters.AddProduced(int64(committed))
			remaining -= committed
			if c.OnDrop != nil && committed > 0 {
				c.OnDrop(committed)
			}
			if committed == 0 {
				break
			}
			continue
		}

		d, err := c.Pool.TakeFree()
		if err != nil {
			return err
		}

		capacityFrames := len(d.Payload) / c.FrameSize
		n := minInt(capacityFrames, frames)

		data, err := c.Dev.ReadFrames(off, n)
		if err != nil {
			return err
		}
		wrapWrite(d.Payload, 0, data)
		d.Offset = 0
		d.Size = n

		committed, err := c.Dev.MmapCommit(off, n)
		if err != nil {
			return err
		}

		seq := counters.Produced()
		counters.AddProduced(int64(committed))
		d.Header = bufferpool.Header{Sequence: seq, PTS: c.now(), DTSOffset: 0}

		c.Pool.ReturnToHost(d)
		remaining -= committed

		if committed == 0 {
			break
		}
	}
	return nil
}

func (c *Capture) now() int64 {
	if c.Now != nil {
		return c.Now()
	}
	return 0
}
