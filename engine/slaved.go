package engine

import (
	"github.com/sidechain-audio/alsaengine/clock"
	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/transfer"
)

// OnMasterTick is the slaved-mode counterpart of the timer-driven
// onTick: the host (or the master engine's own tick handler) calls
// this every time the master publishes a fresh clock.Shared, instead
// of this engine arming its own timer (§4.4 "Slaved mode", §9).
//
// The spec leaves the exact sdelay/error formula for this branch
// unstated; this follows the same shape as the master tick's DLL
// feed, with sdelay taken from this engine's own measured device
// delay and elapsed always equal to threshold/rate (we are ticked
// once per master period, never woken early or late on our own
// clock).
//
// master_nsec is computed per §4.4's explicit formula,
// (master.position + master.delay)·NS/rate, not the master's last
// wall-clock publish timestamp.
func (e *Engine) OnMasterTick(master clock.Shared) error {
	return e.invoke(func() error {
		e.onMasterTick(master)
		return nil
	})
}

func (e *Engine) onMasterTick(master clock.Shared) {
	if e.state != StateRunning && e.state != StateRecovering {
		return
	}

	rate := e.Sess.Rate()
	threshold := e.effectiveThreshold()
	elapsedSeconds := float64(threshold) / float64(rate)

	status, err := e.Sess.Device().Status()
	if transfer.IsXrun(err) {
		e.recoverFromXrun(err)
		return
	}
	if err != nil {
		e.onFatal(err)
		return
	}
	localDelay := status.DelayFrames

	var sdelaySeconds float64
	var sdelayFrames int64
	if e.Sess.Direction() == device.Playback {
		sdelayFrames = -int64(localDelay)
		sdelaySeconds = -float64(localDelay) / float64(rate)
	} else {
		sdelayFrames = int64(localDelay - threshold)
		sdelaySeconds = (float64(localDelay) - float64(threshold)) / float64(rate)
	}

	nowS := (float64(master.Position) + float64(master.Delay)) / float64(rate)
	_, dt := transfer.ComputeNextDeadline(e.DLL, nowS, sdelaySeconds, elapsedSeconds, e.Cfg.Safety, 0)
	prevTimeNS := e.lastTimeNS
	e.lastTimeNS = int64(nowS * 1e9)

	// Catch-up: if we've drifted more than 2 periods behind the
	// master, rewind the device by one threshold rather than let the
	// gap grow (§4.4 "Slaved mode"). This is a lightweight nudge, not
	// the full §4.6 xrun-recovery sequence: no DLL reset, no silence
	// re-prime, normal scheduling just continues below.
	if localDelay > 2*threshold {
		_ = e.Sess.Device().Rewind(threshold)
	}

	if e.Sess.Direction() == device.Playback {
		if e.Pool.ReadyEmpty() {
			e.notifyReady(StatusNeedBuffer)
			if e.Telemetry != nil {
				e.Telemetry.NeedBuffer(threshold)
			}
		} else {
			var produced int64
			_, werr := e.Playback.Write(0, true, &produced)
			e.Sess.AddProduced(produced)
			if transfer.IsXrun(werr) {
				e.recoverFromXrun(werr)
				return
			}
			if werr != nil {
				e.onFatal(werr)
				return
			}
		}
	} else {
		budget := threshold
		if localDelay < budget {
			budget = localDelay
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
		if e.Sess.Produced() > before {
			e.notifyReady(StatusHaveBuffer)
		}
	}

	transfer.PublishClock(e.Clock, uint64(prevTimeNS), rate, e.Sess.Produced(), sdelayFrames, dt)
}
