package engine

import (
	"github.com/sidechain-audio/alsaengine/timer"
	"github.com/sidechain-audio/alsaengine/transfer"
)

// captureTick implements §4.4's capture tick handler.
func (e *Engine) captureTick() {
	nowNS := timer.Now()
	nowS := float64(nowNS) / 1e9
	rate := e.Sess.Rate()
	threshold := e.effectiveThreshold()

	d, err := e.Sess.Device().Avail()
	if transfer.IsXrun(err) {
		e.recoverFromXrun(err)
		return
	}
	if err != nil {
		e.onFatal(err)
		return
	}

	// Early-wake guard (§4.4 step 3, §8 boundary): not enough frames
	// available yet.
	if d < threshold {
		nextNS := nowNS + int64((float64(threshold-d)/float64(rate))*1e9)
		e.scheduleAt(nextNS)
		return
	}

	elapsedSeconds := float64(threshold) / float64(rate)
	sdelaySeconds := (float64(d) - float64(threshold)) / float64(rate)
	extraSeconds := elapsedSeconds
	nextNS, dt := transfer.ComputeNextDeadline(e.DLL, nowS, sdelaySeconds, elapsedSeconds, e.Cfg.Safety, extraSeconds)

	transfer.PublishClock(e.Clock, uint64(e.lastTimeNS), rate, e.Sess.Produced(), int64(d-threshold), dt)
	e.lastTimeNS = nowNS

	budget := threshold
	if d < budget {
		budget = d
	}
	before := e.Sess.Produced()
	werr := e.Capture.Push(budget, e.Sess)
	if transfer.IsXrun(werr) {
		e.recoverFromXrun(werr)
		return
	}
	if werr != nil {
		e.onFatal(werr)
		return
	}
	// Capture.Push hands filled descriptors straight back to the host
	// through Pool.Publish/Pool.Reuse as it goes (§4.5.3); notifyReady
	// here is the higher-level "some frames moved" signal mirrored
	// from §6.2's ready() callback.
	if e.Sess.Produced() > before {
		e.notifyReady(StatusHaveBuffer)
	}

	e.scheduleAt(nextNS)
}
