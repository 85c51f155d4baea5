package engine

import (
	"github.com/sidechain-audio/alsaengine/timer"
	"github.com/sidechain-audio/alsaengine/transfer"
)

// playbackTick implements §4.4's playback tick handler.
func (e *Engine) playbackTick() {
	nowNS := timer.Now()
	nowS := float64(nowNS) / 1e9
	rate := e.Sess.Rate()
	threshold := e.effectiveThreshold()

	status, err := e.Sess.Device().Status()
	if transfer.IsXrun(err) {
		e.recoverFromXrun(err)
		return
	}
	if err != nil {
		e.onFatal(err)
		return
	}
	d := status.DelayFrames

	// Early-wake guard (§4.4 step 4, §8 boundary): woken too early.
	if d >= 2*threshold {
		nextNS := nowNS + int64((float64(threshold)/2/float64(rate))*1e9)
		e.scheduleAt(nextNS)
		return
	}

	sdelaySeconds := -float64(d) / float64(rate)
	elapsedSeconds := nowS - float64(e.lastTimeNS)/1e9
	if e.lastTimeNS == 0 {
		elapsedSeconds = float64(threshold) / float64(rate)
	}
	nextNS, dt := transfer.ComputeNextDeadline(e.DLL, nowS, sdelaySeconds, elapsedSeconds, e.Cfg.Safety, 0)

	transfer.PublishClock(e.Clock, uint64(e.lastTimeNS), rate, e.Sess.Produced(), int64(-d), dt)
	e.lastTimeNS = nowNS

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

	e.scheduleAt(nextNS)
}

func (e *Engine) onFatal(err error) {
	if e.Telemetry != nil {
		e.Telemetry.StateChange(e.state.String(), "paused (device error)")
	}
	_ = e.doPause()
}
