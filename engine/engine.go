// Package engine implements the §4.4 scheduler: the timer-driven
// state machine tying the device session (C2), buffer pool (C3), DLL
// rate tracker (C4), and transfer engine (C5) together, in both
// playback and capture variants, plus the slaved (clock-follower)
// mode described in §4.4 and §9.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sidechain-audio/alsaengine/bufferpool"
	"github.com/sidechain-audio/alsaengine/clock"
	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/dll"
	"github.com/sidechain-audio/alsaengine/session"
	"github.com/sidechain-audio/alsaengine/telemetry"
	"github.com/sidechain-audio/alsaengine/timer"
	"github.com/sidechain-audio/alsaengine/transfer"
)

// Config is the engine-level configuration surface (§6.5), beyond
// what session.Config already covers.
type Config struct {
	// ThresholdFrames is min_latency: the fallback frames-per-tick
	// target used when the host has not set an override via
	// SetThresholdOverride.
	ThresholdFrames int
	// Safety is the configurable deadline guard margin (§9 open
	// question), in seconds. Defaults to 0, as in the source this
	// spec was distilled from.
	Safety float64
	// Slaved, when true, means this engine's clock is driven by
	// another engine's published record rather than its own timer
	// (§4.4 "Slaved mode", §9).
	Slaved bool
	// EnableChannelMapEnumeration is the §9 open question toggle,
	// forwarded into session.Config.
	EnableChannelMapEnumeration bool
}

// Engine is the C6 scheduler. Apart from the threshold override, all
// of its state is exclusively mutated on the data-loop goroutine
// started by Run (§5); Start/Pause/Close/SubmitBuffer are synchronous
// invokes that post to that loop and block until the handler has run.
// SetThresholdOverride is an atomic store made on the caller's
// goroutine.
type Engine struct {
	Sess     *session.Session
	Pool     *bufferpool.Pool
	DLL      *dll.DLL
	Playback *transfer.Playback
	Capture  *transfer.Capture
	Clock    *clock.Record // this engine's own published record
	Master   *clock.Record // set iff Cfg.Slaved
	Timer    timer.Timer
	Telemetry telemetry.Sink

	Cfg Config

	// ReadyCallback is invoked with NEED_BUFFER/HAVE_BUFFER, mirroring
	// §6.2's ready() callback.
	ReadyCallback func(status IOStatus)

	state      State
	lastTimeNS int64

	thresholdOverride int32 // atomic; 0 = no override

	invokeCh chan invocation
	done     chan struct{}
}

// IOStatus mirrors §6.2's ready() status values.
type IOStatus int

const (
	StatusOK IOStatus = iota
	StatusNeedBuffer
	StatusHaveBuffer
)

type invocation struct {
	fn   func() error
	done chan error
}

// New constructs an Engine in state Closed. Open/SetFormat must run
// on the Session before Configure is called.
func New(sess *session.Session, pool *bufferpool.Pool, d *dll.DLL, clockRec *clock.Record, tm timer.Timer, cfg Config) *Engine {
	return &Engine{
		Sess:     sess,
		Pool:     pool,
		DLL:      d,
		Clock:    clockRec,
		Timer:    tm,
		Cfg:      cfg,
		state:    StateClosed,
		invokeCh: make(chan invocation),
		done:     make(chan struct{}),
	}
}

// State returns the engine's current lifecycle state. Safe to call
// from any goroutine; it's only ever written on the data loop and
// reads of a word-sized value are not torn.
func (e *Engine) State() State { return e.state }

// Configure moves the engine from Closed (the state New leaves it
// in) to Configured once the session has been opened and its
// hardware/software parameters negotiated, building the transfer
// engines against them. Must be called before Run.
func (e *Engine) Configure() {
	frameSize := e.Sess.FrameSize()
	e.Playback = &transfer.Playback{Dev: e.Sess.Device(), Pool: e.Pool, FrameSize: frameSize}
	e.Capture = &transfer.Capture{
		Dev: e.Sess.Device(), Pool: e.Pool, FrameSize: frameSize,
		Now: func() int64 { return timer.Now() },
		OnDrop: func(frames int) {
			if e.Telemetry != nil {
				e.Telemetry.CaptureDropped(frames)
			}
		},
	}
	e.setState(StateConfigured)
}

func (e *Engine) setState(s State) {
	from := e.state
	e.state = s
	if e.Telemetry != nil && from != s {
		e.Telemetry.StateChange(from.String(), s.String())
	}
}

// Run drives the data loop until ctx is cancelled. It is the only
// goroutine that ever touches engine/session/DLL/pool state (§5).
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case inv := <-e.invokeCh:
			inv.done <- inv.fn()
		case <-e.Timer.C():
			if e.Cfg.Slaved {
				continue // slaved engines never arm their own timer
			}
			e.onTick()
		}
	}
}

// invoke posts fn to the data loop and blocks for its result. Used by
// every external (host-thread) operation, guaranteeing the handler
// has finished before control returns (§5's "synchronous invoke").
func (e *Engine) invoke(fn func() error) error {
	inv := invocation{fn: fn, done: make(chan error, 1)}
	select {
	case e.invokeCh <- inv:
	case <-e.done:
		return fmt.Errorf("engine: closed")
	}
	select {
	case err := <-inv.done:
		return err
	case <-e.done:
		return fmt.Errorf("engine: closed")
	}
}

// Start transitions Configured→Started (arming the timer at now+1ns
// to provoke an immediate first tick, per §4.6) or Paused→Started
// (resuming without resetting counters).
func (e *Engine) Start() error {
	return e.invoke(e.doStart)
}

func (e *Engine) doStart() error {
	switch e.state {
	case StateConfigured:
		e.Sess.ResetCounters()
		e.DLL.Reset()
		if e.Sess.Direction() == device.Playback {
			e.Pool.ResetForPlayback()
		} else {
			e.Pool.ResetForCapture()
		}
	case StatePaused:
		// resume: keep counters and DLL state.
	case StateRunning, StateRecovering:
		return nil // already started
	default:
		return fmt.Errorf("engine: cannot start from state %s", e.state)
	}

	e.setState(StateRunning)
	if !e.Cfg.Slaved {
		if err := e.Timer.ArmAbsolute(timer.Now() + 1); err != nil {
			return fmt.Errorf("engine: arm timer: %w", err)
		}
	}
	return nil
}

// Pause cancels by disarming the timer; any in-flight tick completes
// first since Pause is itself just another invocation queued behind
// it. Idempotent after the first call (§8 round-trip property).
func (e *Engine) Pause() error {
	return e.invoke(e.doPause)
}

func (e *Engine) doPause() error {
	if e.state == StatePaused {
		return nil
	}
	if !e.state.started() {
		return fmt.Errorf("engine: cannot pause from state %s", e.state)
	}
	if !e.Cfg.Slaved {
		if err := e.Timer.Disarm(); err != nil {
			return fmt.Errorf("engine: disarm timer: %w", err)
		}
	}
	e.setState(StatePaused)
	return nil
}

// Close pauses (if needed), disposes the device and timer, and
// transitions to Closed.
func (e *Engine) Close() error {
	err := e.invoke(func() error {
		if e.state.started() {
			if pauseErr := e.doPause(); pauseErr != nil {
				return pauseErr
			}
		}
		if e.state == StateClosed {
			return nil
		}
		if closeErr := e.Sess.Close(); closeErr != nil {
			return closeErr
		}
		if timerErr := e.Timer.Close(); timerErr != nil {
			return timerErr
		}
		e.setState(StateClosed)
		return nil
	})
	return err
}

// SubmitBuffer appends a descriptor to ready (playback) or free
// (capture), per §6.1's submit_buffer.
func (e *Engine) SubmitBuffer(d *bufferpool.Descriptor) error {
	return e.invoke(func() error {
		e.Pool.Submit(d, e.Sess.Direction() == device.Playback)
		return nil
	})
}

// SetThresholdOverride sets the host's per-tick frame target (the
// shared position.size override of §4.4 step 1). framesPerTick==0
// clears the override, falling back to Cfg.ThresholdFrames.
func (e *Engine) SetThresholdOverride(framesPerTick int) {
	atomic.StoreInt32(&e.thresholdOverride, int32(framesPerTick))
}

func (e *Engine) effectiveThreshold() int {
	if ovr := atomic.LoadInt32(&e.thresholdOverride); ovr > 0 {
		return int(ovr)
	}
	return e.Cfg.ThresholdFrames
}

func (e *Engine) onTick() {
	if e.state != StateRunning && e.state != StateRecovering {
		return
	}
	if e.Sess.Direction() == device.Playback {
		e.playbackTick()
	} else {
		e.captureTick()
	}
}

func (e *Engine) notifyReady(status IOStatus) {
	if e.ReadyCallback != nil {
		e.ReadyCallback(status)
	}
}

func (e *Engine) scheduleAt(deadlineNS int64) {
	_ = e.Timer.ArmAbsolute(deadlineNS)
}
