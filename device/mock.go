package device

import (
	"fmt"
	"time"

	"github.com/sidechain-audio/alsaengine/format"
)

// Mock is an in-memory Device used by the engine's own tests and by
// §8's scenario suite. It models a ring of BufferFrames frames with
// the same mmap begin/commit discipline as real hardware, and lets
// tests script availability, xruns, and delay.
type Mock struct {
	name string
	dir  Direction
	open bool

	encoding format.Encoding
	rate     int
	channels int
	bufSize  int
	perSize  int
	frameSz  int

	ring []byte // BufferFrames*frameSz bytes, opaque payload

	started bool
	// delay is the simulated queue depth the engine observes via
	// Avail/Status; the mmap offset is derived from it (playPosition).
	delay int

	// Scripted behaviour for tests.
	AvailFn       func() (int, error)
	CommitErr     error // if set, the next MmapCommit returns this error once
	RecoverCalls  int
	StartCalls    int
	DropCalls     int
	RewindCalls   int
	CommittedLog  [][]byte // copies of what was committed, in order, for assertions
	SilenceRanges [][2]int // (offset, frames) passed to AreasSilence
}

// NewMock creates an unopened mock device.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Open(name string, dir Direction, _ OpenFlags) error {
	m.name = name
	m.dir = dir
	m.open = true
	return nil
}

func (m *Mock) Close() error {
	m.open = false
	m.started = false
	return nil
}

func (m *Mock) EnumerateFormats() ([]format.Encoding, RateRange, ChannelRange, error) {
	return []format.Encoding{format.EncodingS16LE, format.EncodingS32LE, format.EncodingF32LE},
		RateRange{Min: 8000, Max: 192000, Default: 48000},
		ChannelRange{Min: 1, Max: 8, Default: 2},
		nil
}

func (m *Mock) HWParamsAny() error                { return nil }
func (m *Mock) SetAccessMMapInterleaved() error   { return nil }
func (m *Mock) SetPeriodWakeup(bool) error        { return nil }

func (m *Mock) SetFormatExact(e format.Encoding) error {
	if e.BytesPerSample() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, e)
	}
	m.encoding = e
	return nil
}

func (m *Mock) SetChannelsNear(n int) (int, error) {
	m.channels = n
	return n, nil
}

func (m *Mock) SetRateNear(hz int) (int, error) {
	m.rate = hz
	return hz, nil
}

func (m *Mock) SetPeriodSizeNear(frames int) (int, error) {
	m.perSize = frames
	return frames, nil
}

func (m *Mock) SetBufferSizeNear(frames int) (int, error) {
	m.bufSize = frames
	return frames, nil
}

func (m *Mock) CommitHWParams() error {
	m.frameSz = m.channels * m.encoding.BytesPerSample()
	if m.frameSz == 0 {
		return fmt.Errorf("%w: commit with zero frame size", ErrUnsupportedFormat)
	}
	m.ring = make([]byte, m.bufSize*m.frameSz)
	return nil
}

func (m *Mock) SetSWParams(SWParams) error { return nil }

func (m *Mock) Avail() (int, error) {
	if m.AvailFn != nil {
		return m.AvailFn()
	}
	if m.dir == Playback {
		return m.bufSize - m.delay, nil
	}
	return m.delay, nil
}

func (m *Mock) Status() (Status, error) {
	avail, err := m.Avail()
	if err != nil {
		return Status{}, err
	}
	return Status{TriggerTime: time.Now(), AvailFrames: avail, DelayFrames: m.delay}, nil
}

func (m *Mock) MmapBegin() (int, int, error) {
	avail, err := m.Avail()
	if err != nil {
		return 0, 0, err
	}
	if avail <= 0 {
		return 0, 0, nil
	}
	offset := m.playPosition() % m.bufSize
	frames := avail
	if offset+frames > m.bufSize {
		frames = m.bufSize - offset
	}
	return offset, frames, nil
}

func (m *Mock) playPosition() int {
	if m.dir == Playback {
		return m.bufSize - m.delay
	}
	return m.delay
}

func (m *Mock) MmapCommit(offset, frames int) (int, error) {
	if m.CommitErr != nil {
		err := m.CommitErr
		m.CommitErr = nil
		return 0, err
	}
	if frames <= 0 {
		return 0, nil
	}
	chunk := make([]byte, frames*m.frameSz)
	copy(chunk, m.ring[offset*m.frameSz:(offset+frames)*m.frameSz])
	m.CommittedLog = append(m.CommittedLog, chunk)
	if m.dir == Playback {
		m.delay += frames
	} else {
		m.delay -= frames
		if m.delay < 0 {
			m.delay = 0
		}
	}
	return frames, nil
}

func (m *Mock) WriteFrames(offset int, data []byte) error {
	if m.frameSz == 0 || len(m.ring) == 0 {
		return fmt.Errorf("%w: write before hw params committed", ErrUnsupportedFormat)
	}
	for i, b := range data {
		idx := (offset*m.frameSz + i) % len(m.ring)
		m.ring[idx] = b
	}
	return nil
}

func (m *Mock) ReadFrames(offset, frames int) ([]byte, error) {
	out := make([]byte, frames*m.frameSz)
	for i := range out {
		idx := (offset*m.frameSz + i) % len(m.ring)
		out[i] = m.ring[idx]
	}
	return out, nil
}

func (m *Mock) AreasSilence(offset, frames int) error {
	m.SilenceRanges = append(m.SilenceRanges, [2]int{offset, frames})
	for i := 0; i < frames*m.frameSz; i++ {
		idx := (offset*m.frameSz + i) % len(m.ring)
		m.ring[idx] = 0
	}
	return nil
}

func (m *Mock) Recover(error) error {
	m.RecoverCalls++
	m.delay = 0
	return nil
}

func (m *Mock) Start() error {
	m.StartCalls++
	m.started = true
	return nil
}

func (m *Mock) Rewind(frames int) error {
	m.RewindCalls++
	if m.delay -= frames; m.delay < 0 {
		m.delay = 0
	}
	return nil
}

func (m *Mock) Drop() error {
	m.DropCalls++
	m.delay = 0
	m.started = false
	return nil
}

func (m *Mock) HWParams() (Params, BufferSizes, error) {
	return Params{Encoding: m.encoding, RateHz: m.rate, Channels: m.channels},
		BufferSizes{BufferFrames: m.bufSize, PeriodFrames: m.perSize},
		nil
}

// WriteRing writes raw frame payload into the mock's ring at offset,
// with wrap-around, for tests that want to assert exact bytes landed
// where §8 scenario 1 expects.
func (m *Mock) WriteRing(offset int, data []byte) {
	for i, b := range data {
		idx := (offset*m.frameSz + i) % len(m.ring)
		m.ring[idx] = b
	}
}

// RingSnapshot returns a copy of the ring's current contents, for
// assertions.
func (m *Mock) RingSnapshot() []byte {
	out := make([]byte, len(m.ring))
	copy(out, m.ring)
	return out
}

// SetDelay scripts the device's reported queue depth, used to drive
// the early-wake guard and capture-lag scenarios (§8).
func (m *Mock) SetDelay(d int) { m.delay = d }

// Delay returns the mock's current simulated queue depth.
func (m *Mock) Delay() int { return m.delay }

// Started reports whether Start has been called since the last Drop.
func (m *Mock) Started() bool { return m.started }

var _ Device = (*Mock)(nil)
