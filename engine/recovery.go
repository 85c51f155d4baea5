package engine

import (
	"time"

	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/timer"
)

// recoverFromXrun implements §4.6: query status for telemetry, ask
// the device to recover, re-seed the DLL at BWMax, re-prime/restart,
// then resume normal scheduling.
func (e *Engine) recoverFromXrun(cause error) {
	e.setState(StateRecovering)

	status, _ := e.Sess.Device().Status()
	magnitude := int(time.Since(status.TriggerTime).Seconds() * float64(e.Sess.Rate()))
	if e.Telemetry != nil {
		e.Telemetry.Xrun(e.Sess.Direction().String(), magnitude)
	}

	_ = e.Sess.Device().Recover(cause)
	e.DLL.Reset()

	threshold := e.effectiveThreshold()
	if e.Sess.Direction() == device.Playback {
		e.Playback.MarkStopped()
		e.Playback.ResetCursor()
		var produced int64
		_, _ = e.Playback.Write(2*threshold, true, &produced)
		e.Sess.AddProduced(produced)
	} else {
		_ = e.Sess.Device().Start()
	}

	e.setState(StateRunning)
	e.scheduleAt(timer.Now() + 1)
}
