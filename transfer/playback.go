package transfer

import (
	"github.com/sidechain-audio/alsaengine/bufferpool"
	"github.com/sidechain-audio/alsaengine/device"
)

// Playback implements §4.5.2's write loop against a ring device and a
// ready-buffer list.
type Playback struct {
	Dev       device.Device
	Pool      *bufferpool.Pool
	FrameSize int

	readyOffset int  // frames already consumed from the ready head
	started     bool
}

// Write drains ready, wrap-copying into the device's mmap window,
// pads with up to silencePad frames of silence when ready runs short,
// and explicitly starts the device on the first successful write when
// start is true. It returns the total frames committed, or an error —
// ErrPipe/ErrStrpipe classify as a recoverable xrun (use IsXrun).
func (p *Playback) Write(silencePad int, start bool, produced *int64) (int64, error) {
	var total int64
	wroteAny := false

	for {
		off, frames, err := p.Dev.MmapBegin()
		if err != nil {
			return total, err
		}
		if frames == 0 {
			break
		}

		used := 0
		for used < frames {
			head := p.Pool.PeekReady()
			if head == nil {
				break
			}
			avail := head.Size - p.readyOffset
			if avail <= 0 {
				p.Pool.PopReadyHead()
				p.Pool.ReturnToHost(head)
				p.readyOffset = 0
				continue
			}
			chunk := minInt(avail, frames-used)

			srcByteStart := (head.Offset + p.readyOffset) * p.FrameSize
			data := wrapRead(head.Payload, srcByteStart, chunk*p.FrameSize)
			if err := p.Dev.WriteFrames(off+used, data); err != nil {
				return total, err
			}

			used += chunk
			p.readyOffset += chunk
			if p.readyOffset >= head.Size {
				p.Pool.PopReadyHead()
				p.Pool.ReturnToHost(head)
				p.readyOffset = 0
			}
		}

		if remaining := frames - used; remaining > 0 && silencePad > 0 {
			fill := minInt(remaining, silencePad)
			if err := p.Dev.AreasSilence(off+used, fill); err != nil {
				return total, err
			}
			used += fill
			silencePad -= fill
		}

		committed, err := p.Dev.MmapCommit(off, used)
		if err != nil {
			return total, err
		}
		total += int64(committed)
		if produced != nil {
			*produced += int64(committed)
		}
		if committed > 0 {
			wroteAny = true
		}

		if p.Pool.ReadyEmpty() || committed == 0 {
			break
		}
	}

	if !p.started && start && wroteAny {
		if err := p.Dev.Start(); err != nil {
			return total, err
		}
		p.started = true
	}

	return total, nil
}

// MarkStopped clears the started flag, used after Drop/xrun recovery
// where the device needs an explicit re-start (§4.6).
func (p *Playback) MarkStopped() { p.started = false }

// Started reports whether Start has been issued since the last
// MarkStopped.
func (p *Playback) Started() bool { return p.started }

// ResetCursor clears the ready-consumption cursor, used on
// ResetForPlayback/recovery.
func (p *Playback) ResetCursor() { p.readyOffset = 0 }
