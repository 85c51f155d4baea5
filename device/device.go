// Package device defines the narrow contract the engine requires of
// the underlying sound device (§6.4), independent of any concrete
// backend. The alsahw package implements it against real ALSA
// hardware; this package also ships a Mock used by the engine's own
// tests and by §8's scenario tests.
package device

import (
	"errors"
	"time"

	"github.com/sidechain-audio/alsaengine/format"
)

// Direction is which way frames flow through the device.
type Direction int

const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// Errors surfaced by the device-layer contract. ErrPipe and
// ErrStrpipe are recoverable xruns (§4.6); everything else that a
// method returns is fatal to the current tick (§7).
var (
	// ErrPipe mirrors ALSA's -EPIPE: a buffer underrun (playback) or
	// overrun (capture).
	ErrPipe = errors.New("device: buffer underrun/overrun (xrun)")
	// ErrStrpipe mirrors ALSA's -ESTRPIPE: the device was suspended
	// by the system and needs to be resumed before it can recover.
	ErrStrpipe = errors.New("device: stream suspended")
	// ErrNoData names the empty-ready-list condition. Not a true
	// device error, and nothing in the transfer engine returns it: a
	// playback tick with an empty ready list signals NEED_BUFFER
	// instead, and bufferpool.TakeReady reports bufferpool.ErrNoData.
	ErrNoData = errors.New("device: no data available")
	// ErrNoSpace mirrors ErrNoData for the capture side: the free
	// list is empty.
	ErrNoSpace = errors.New("device: no free buffer space")
	// ErrUnsupportedFormat is returned by SetFormat when the
	// requested encoding has no native counterpart.
	ErrUnsupportedFormat = errors.New("device: unsupported format")
	// ErrInexactNotAllowed is returned when a near-match differs from
	// the request and the caller did not set NEAREST (§4.1).
	ErrInexactNotAllowed = errors.New("device: requested value unavailable and NEAREST not set")
)

// OpenFlags mirror the "no auto resample / channels / format"
// semantics required by §4.1: the engine refuses to let the OS layer
// silently convert on its behalf.
type OpenFlags struct {
	NonBlocking        bool
	NoAutoResample     bool
	NoAutoChannels     bool
	NoAutoFormat       bool
}

// DefaultOpenFlags is what Session.Open uses unless overridden.
func DefaultOpenFlags() OpenFlags {
	return OpenFlags{
		NonBlocking:    true,
		NoAutoResample: true,
		NoAutoChannels: true,
		NoAutoFormat:   true,
	}
}

// SetFormatFlags controls how SetFormat resolves a near match.
type SetFormatFlags struct {
	// Nearest accepts a near match and writes it back to the caller.
	// Without it, a near match that differs from the request fails
	// with ErrInexactNotAllowed.
	Nearest bool
}

// Params is a requested or negotiated (encoding, rate, channels,
// positions) tuple, the parameter object of §4.1's enum_format.
type Params struct {
	Encoding  format.Encoding
	RateHz    int
	Channels  int
	Positions []format.Position // optional; nil if unset
}

// RateRange and ChannelRange describe the device's negotiable bounds
// and the enumeration default, per §4.1.
type RateRange struct {
	Min, Max, Default int
}

type ChannelRange struct {
	Min, Max, Default int
}

// Status is the device's reported state (§6.4 status()).
type Status struct {
	// TriggerTime is when the device last started/stopped.
	TriggerTime time.Time
	// AvailFrames is the last-known available frame count.
	AvailFrames int
	// DelayFrames is the last-known queued-ahead (playback) or
	// queued-unread (capture) frame count.
	DelayFrames int
}

// SWParams mirrors §4.1's software parameters.
type SWParams struct {
	TimestampMode  bool
	StartThreshold int // frames; engine sets this to "max" so the
	// device never auto-starts on write (§4.1).
	PeriodEvent bool
}

// Device is the §6.4 device-layer contract. All methods are
// non-blocking except where noted; the only blocking primitive used
// anywhere in this engine is the scheduler's monotonic timer (§5).
type Device interface {
	// Open opens the device handle for dir with flags. Must be called
	// before any other method.
	Open(name string, dir Direction, flags OpenFlags) error
	// Close releases the device handle.
	Close() error

	// EnumerateFormats returns the parameter space this device
	// supports, intersected with the engine's known encodings.
	EnumerateFormats() (encodings []format.Encoding, rates RateRange, channels ChannelRange, err error)

	// HWParamsAny resets the hardware parameter negotiation space.
	HWParamsAny() error
	// SetAccessMMapInterleaved selects mmap-interleaved access.
	SetAccessMMapInterleaved() error
	// SetPeriodWakeup disables (enabled=false) or enables
	// device-driven period wake-ups. The engine always disables it;
	// it drives its own timer instead (§4.1).
	SetPeriodWakeup(enabled bool) error
	// SetFormatExact requests an exact format; fails if unsupported.
	SetFormatExact(e format.Encoding) error
	// SetChannelsNear requests a channel count near n, returning the
	// value the device actually chose.
	SetChannelsNear(n int) (int, error)
	// SetRateNear requests a sample rate near hz, returning the value
	// the device actually chose.
	SetRateNear(hz int) (int, error)
	// SetPeriodSizeNear requests a period size near frames (≈1024 by
	// default per §4.1), returning the value chosen.
	SetPeriodSizeNear(frames int) (int, error)
	// SetBufferSizeNear requests a hardware buffer size near frames,
	// returning the value chosen. The engine asks for the device's
	// maximum (§4.1).
	SetBufferSizeNear(frames int) (int, error)
	// CommitHWParams commits the negotiated hardware parameters.
	CommitHWParams() error
	// SetSWParams applies the §4.1 software parameters.
	SetSWParams(sw SWParams) error

	// Avail returns the number of frames currently available to
	// write (playback) or read (capture) without blocking. Returns
	// ErrPipe/ErrStrpipe on xrun.
	Avail() (int, error)
	// Status returns the device's current reported state.
	Status() (Status, error)

	// MmapBegin acquires a transfer window: an offset into the ring
	// and the number of frames available there, per the glossary's
	// "mmap begin/commit" definition.
	MmapBegin() (offset, frames int, err error)
	// MmapCommit publishes how many frames of the window returned by
	// MmapBegin were actually touched, returning the frames accepted
	// by the device (which may be less than requested on a short
	// write) or ErrPipe/ErrStrpipe on xrun.
	MmapCommit(offset, frames int) (int, error)
	// AreasSilence zero-fills frames frames at offset in the ring
	// using the device-native silence routine (format-aware).
	AreasSilence(offset, frames int) error
	// WriteFrames copies raw frame-interleaved bytes into the mmap
	// window at offset. len(data) must be a multiple of the
	// negotiated frame size. On real hardware this is a memcpy into
	// the mmap'd pointer; it never blocks or fails on its own (the
	// surrounding MmapCommit is what can report an xrun).
	WriteFrames(offset int, data []byte) error
	// ReadFrames copies frames frames of raw interleaved bytes out of
	// the mmap window at offset.
	ReadFrames(offset, frames int) ([]byte, error)

	// Recover attempts to bring the device back from an xrun:
	// prepare + silent continuation (§4.6).
	Recover(cause error) error
	// Start explicitly starts the device (the engine never relies on
	// auto-start; §4.1 sets start_threshold to MAX).
	Start() error
	// Rewind moves the device's play/capture pointer back by frames,
	// used by the slaved-mode catch-up path (§4.4).
	Rewind(frames int) error
	// Drop immediately stops the device and discards pending frames.
	Drop() error

	// HWParams returns the negotiated format/rate/channels/buffer/
	// period once CommitHWParams has succeeded.
	HWParams() (Params, BufferSizes, error)
}

// BufferSizes bundles the negotiated hardware buffer and period size,
// B and P in §3's data model, both in frames.
type BufferSizes struct {
	BufferFrames int
	PeriodFrames int
}
