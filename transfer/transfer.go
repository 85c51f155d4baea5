// Package transfer implements the §4.5 mmap-based ring transfer
// engine: begin/commit cycles, wrap-around copies, silence padding on
// underrun, and the time/delay → next-deadline arithmetic that feeds
// the scheduler.
package transfer

import (
	"errors"

	"github.com/sidechain-audio/alsaengine/clock"
	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/dll"
)

// Counters is the narrow slice of the device session (§3) the
// transfer engine needs: the monotonically increasing sample count.
type Counters interface {
	Produced() int64
	AddProduced(delta int64)
}

// IsXrun reports whether err is one of the recoverable device errors
// §4.6 handles locally (never surfaced as a hard error).
func IsXrun(err error) bool {
	return errors.Is(err, device.ErrPipe) || errors.Is(err, device.ErrStrpipe)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// wrapRead extracts n bytes from buf starting at byte offset start,
// wrapping around buf's length, per §3's ring-view rule that any
// (offset, frames) pair may need to be treated as two segments.
func wrapRead(buf []byte, start, n int) []byte {
	out := make([]byte, n)
	if len(buf) == 0 {
		return out
	}
	start %= len(buf)
	for i := 0; i < n; i++ {
		out[i] = buf[(start+i)%len(buf)]
	}
	return out
}

// wrapWrite copies src into buf starting at byte offset start,
// wrapping around buf's length.
func wrapWrite(buf []byte, start int, src []byte) {
	if len(buf) == 0 {
		return
	}
	start %= len(buf)
	for i, b := range src {
		buf[(start+i)%len(buf)] = b
	}
}

// ComputeNextDeadline implements §4.5.1: feed (tw, elapsed) to the
// DLL and derive the next absolute wake time.
//
//   - sdelaySeconds is the signed queue depth in seconds (playback:
//     -delay/rate; capture: (delay-elapsed)/rate), computed by the
//     caller since only it knows direction.
//   - elapsedSeconds is the wall-clock delta between ticks (master)
//     or threshold/rate (slave).
//   - extraSeconds is threshold/rate for capture, 0 for playback.
//   - safety is the configurable guard margin from §6.5/§9, default 0.
func ComputeNextDeadline(d *dll.DLL, nowS, sdelaySeconds, elapsedSeconds, safety, extraSeconds float64) (nextTimeNS int64, dt float64) {
	tw := nowS - sdelaySeconds - safety
	_, dt = d.Update(tw, elapsedSeconds)
	nextS := tw + extraSeconds - safety
	return int64(nextS * 1e9), dt
}

// PublishClock writes the §6.3 shared clock record. lastTimeNS is the
// pre-update wall clock (§4.5.1: "nsec = last_time (pre-update)").
func PublishClock(rec *clock.Record, lastTimeNS uint64, rateHz int, samples, sdelayFrames int64, dt float64) {
	rec.Publish(clock.Shared{
		NSec:     lastTimeNS,
		RateHz:   rateHz,
		Position: samples,
		Delay:    sdelayFrames,
		RateDiff: dt,
	})
}
