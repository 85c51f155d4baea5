// Package session implements the §4.1 device session: opening and
// closing the device handle, negotiating hardware/software
// parameters, and enumerating supported formats. It owns the §3 data
// model fields that are immutable once opened.
package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/format"
)

// ErrInvalidArgument is returned for unknown formats, refused
// rate/channel requests, or otherwise malformed parameters (§7).
var ErrInvalidArgument = errors.New("session: invalid argument")

const defaultPeriodFrames = 1024

// Config is the subset of §6.5's configuration surface a Session
// needs to open and negotiate a device.
type Config struct {
	DeviceName         string
	Direction          device.Direction
	PreferredRateHz    int
	PreferredChannels  int
	PreferredFormat    format.Encoding
	PeriodSizeFrames   int // 0 → defaultPeriodFrames
	BufferSizeFrames   int // 0 → device maximum
	EnableChannelMapEnumeration bool // §9 open question: feature-gated, off by default
}

// Session is the §3 device-session data model. Once Open succeeds,
// Rate/Channels/Format/FrameSize/Buffer/Period are immutable until
// Close.
type Session struct {
	dev    device.Device
	cfg    Config
	opened bool

	rate     int
	channels int
	encoding format.Encoding
	frameSize int

	bufferFrames int
	periodFrames int

	produced int64 // samples_produced: monotonically increasing
}

// New wraps an already-constructed Device (real hardware or mock).
func New(dev device.Device, cfg Config) *Session {
	return &Session{dev: dev, cfg: cfg}
}

// Open opens the device non-blocking with the "no auto resample /
// channels / format" semantics (§4.1) and resets sample counters.
func (s *Session) Open() error {
	flags := device.DefaultOpenFlags()
	if err := s.dev.Open(s.cfg.DeviceName, s.cfg.Direction, flags); err != nil {
		return fmt.Errorf("session: open: %w", err)
	}
	s.opened = true
	s.produced = 0
	return nil
}

// Close releases the device handle. (rate, channels, format) become
// mutable again only after a fresh Open.
func (s *Session) Close() error {
	if !s.opened {
		return nil
	}
	err := s.dev.Close()
	s.opened = false
	return err
}

// EnumerateFormats returns one parameter object per encoding the
// device supports out of this engine's known set. Each object carries
// the device's default rate and default channel count only; the
// negotiable rate and channel ranges are not included. Sanitized
// default channel positions are attached only when
// EnableChannelMapEnumeration is set. filterEncodings, if non-nil,
// restricts the emitted encodings to that set (the "optional filter
// pod").
func (s *Session) EnumerateFormats(filterEncodings map[format.Encoding]bool) ([]device.Params, error) {
	encodings, rates, channels, err := s.dev.EnumerateFormats()
	if err != nil {
		return nil, fmt.Errorf("session: enumerate: %w", err)
	}

	var out []device.Params
	for _, e := range encodings {
		if filterEncodings != nil && !filterEncodings[e] {
			continue
		}
		var positions []format.Position
		if s.cfg.EnableChannelMapEnumeration {
			positions = format.SanitizeChannelMap(format.DefaultLayout(channels.Default))
		}
		out = append(out, device.Params{
			Encoding:  e,
			RateHz:    rates.Default,
			Channels:  channels.Default,
			Positions: positions,
		})
	}
	return out, nil
}

// SetFormat negotiates hardware parameters per §4.1. On success,
// Session.Rate/Channels/Format/Buffer/Period reflect the values
// echoed back to the caller (§8 invariant 3).
func (s *Session) SetFormat(req device.Params, flags device.SetFormatFlags) (device.Params, error) {
	if !s.opened {
		return device.Params{}, fmt.Errorf("%w: session not open", ErrInvalidArgument)
	}

	if err := s.dev.HWParamsAny(); err != nil {
		return device.Params{}, fmt.Errorf("session: hw_params_any: %w", err)
	}
	if err := s.dev.SetAccessMMapInterleaved(); err != nil {
		return device.Params{}, fmt.Errorf("session: set_access: %w", err)
	}
	if err := s.dev.SetPeriodWakeup(false); err != nil {
		return device.Params{}, fmt.Errorf("session: set_period_wakeup: %w", err)
	}

	if err := s.dev.SetFormatExact(req.Encoding); err != nil {
		return device.Params{}, fmt.Errorf("%w: format %s unsupported: %v", ErrInvalidArgument, req.Encoding, err)
	}

	gotChannels, err := s.dev.SetChannelsNear(req.Channels)
	if err != nil {
		return device.Params{}, fmt.Errorf("session: set_channels_near: %w", err)
	}
	if gotChannels != req.Channels && !flags.Nearest {
		return device.Params{}, fmt.Errorf("%w: %w: channels %d unavailable, got %d", ErrInvalidArgument, device.ErrInexactNotAllowed, req.Channels, gotChannels)
	}

	gotRate, err := s.dev.SetRateNear(req.RateHz)
	if err != nil {
		return device.Params{}, fmt.Errorf("session: set_rate_near: %w", err)
	}
	if gotRate != req.RateHz && !flags.Nearest {
		return device.Params{}, fmt.Errorf("%w: %w: rate %d unavailable, got %d", ErrInvalidArgument, device.ErrInexactNotAllowed, req.RateHz, gotRate)
	}

	periodReq := s.cfg.PeriodSizeFrames
	if periodReq == 0 {
		periodReq = defaultPeriodFrames
	}
	gotPeriod, err := s.dev.SetPeriodSizeNear(periodReq)
	if err != nil {
		return device.Params{}, fmt.Errorf("session: set_period_size_near: %w", err)
	}

	bufferReq := s.cfg.BufferSizeFrames
	if bufferReq == 0 {
		// Read back the maximum buffer size and request it near, per
		// §4.1. The real backend's near-match for a very large request
		// clamps to the device maximum; the mock returns the request
		// unchanged.
		bufferReq = 1 << 30
	}
	gotBuffer, err := s.dev.SetBufferSizeNear(bufferReq)
	if err != nil {
		return device.Params{}, fmt.Errorf("session: set_buffer_size_near: %w", err)
	}
	if gotBuffer < 2*gotPeriod {
		return device.Params{}, fmt.Errorf("%w: buffer %d smaller than 2x period %d", ErrInvalidArgument, gotBuffer, gotPeriod)
	}

	if err := s.dev.CommitHWParams(); err != nil {
		return device.Params{}, fmt.Errorf("session: commit hw params: %w", err)
	}

	if err := s.dev.SetSWParams(device.SWParams{
		TimestampMode:  true,
		StartThreshold: math.MaxInt, // never reached: the device never auto-starts; engine calls Start explicitly.
		PeriodEvent:    false,
	}); err != nil {
		return device.Params{}, fmt.Errorf("session: sw_params: %w", err)
	}

	s.rate = gotRate
	s.channels = gotChannels
	s.encoding = req.Encoding
	s.frameSize = gotChannels * req.Encoding.BytesPerSample()
	s.bufferFrames = gotBuffer
	s.periodFrames = gotPeriod

	got := device.Params{Encoding: req.Encoding, RateHz: gotRate, Channels: gotChannels}
	if s.cfg.EnableChannelMapEnumeration {
		got.Positions = format.SanitizeChannelMap(format.DefaultLayout(gotChannels))
	}
	return got, nil
}

// Rate, Channels, Format, FrameSize, BufferFrames, PeriodFrames expose
// the negotiated, now-immutable parameters (§3).
func (s *Session) Rate() int          { return s.rate }
func (s *Session) Channels() int      { return s.channels }
func (s *Session) Format() format.Encoding { return s.encoding }
func (s *Session) FrameSize() int     { return s.frameSize }
func (s *Session) BufferFrames() int  { return s.bufferFrames }
func (s *Session) PeriodFrames() int  { return s.periodFrames }
func (s *Session) Opened() bool       { return s.opened }
func (s *Session) Direction() device.Direction { return s.cfg.Direction }
func (s *Session) Device() device.Device { return s.dev }

// Produced/AddProduced satisfy transfer.Counters: samples_produced
// from §3, monotonically increasing (§8 invariant 1).
func (s *Session) Produced() int64 { return s.produced }
func (s *Session) AddProduced(delta int64) {
	if delta < 0 {
		return
	}
	s.produced += delta
}

// ResetCounters zeroes samples_produced, used by Start (§3 lifecycle:
// "mutated ... by start (resets counters)").
func (s *Session) ResetCounters() { s.produced = 0 }
