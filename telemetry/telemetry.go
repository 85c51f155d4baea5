// Package telemetry is the ambient logging surface for the engine.
// §7 classifies xruns as "never surfaced as an error, but recorded as
// a telemetry event" — this package is where that recording happens,
// kept as a narrow interface so the engine itself never imports a
// logging library directly.
package telemetry

// Sink receives the engine's non-fatal diagnostic events. A nil Sink
// is valid everywhere it's accepted; callers should nil-check before
// invoking.
type Sink interface {
	// Xrun records a recoverable buffer underrun/overrun (§4.6),
	// magnitudeFrames being the trigger-vs-now delta converted to
	// frames.
	Xrun(direction string, magnitudeFrames int)
	// CaptureDropped records frames dropped because the free list was
	// empty (§4.5.3 step 1).
	CaptureDropped(frames int)
	// StateChange records an engine state-machine transition (§4.6's
	// Closed/Opened/Configured/Started/Paused machine).
	StateChange(from, to string)
	// NeedBuffer records a NEED_BUFFER handshake (§4.4 playback tick
	// step 6), useful for diagnosing sustained underrun pressure.
	NeedBuffer(requestedFrames int)
}
