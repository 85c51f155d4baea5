package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidechain-audio/alsaengine/bufferpool"
	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/format"
)

type testCounters struct{ produced int64 }

func (c *testCounters) Produced() int64          { return c.produced }
func (c *testCounters) AddProduced(delta int64)  { c.produced += delta }

func newPlaybackMock(t *testing.T, bufFrames, periodFrames int) *device.Mock {
	t.Helper()
	m := device.NewMock()
	require.NoError(t, m.Open("mock0", device.Playback, device.DefaultOpenFlags()))
	require.NoError(t, m.SetFormatExact(format.EncodingS16LE))
	if _, err := m.SetChannelsNear(2); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SetRateNear(48000); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SetPeriodSizeNear(periodFrames); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SetBufferSizeNear(bufFrames); err != nil {
		t.Fatal(err)
	}
	require.NoError(t, m.CommitHWParams())
	return m
}

// TestPlaybackStartupScenario is §8 scenario 1.
func TestPlaybackStartupScenario(t *testing.T) {
	const frameSize = 4 // 2ch * S16LE
	m := newPlaybackMock(t, 8192, 1024)

	pattern1 := make([]byte, 1024*frameSize)
	pattern2 := make([]byte, 1024*frameSize)
	for i := range pattern1 {
		pattern1[i] = byte(i)
	}
	for i := range pattern2 {
		pattern2[i] = byte(255 - i)
	}

	d1 := &bufferpool.Descriptor{ID: 1, Payload: pattern1, Size: 1024}
	d2 := &bufferpool.Descriptor{ID: 2, Payload: pattern2, Size: 1024}
	pool := bufferpool.New()
	pool.Add(d1)
	pool.Add(d2)
	pool.ResetForPlayback()
	pool.Submit(d1, true)
	pool.Submit(d2, true)

	var counter testCounters
	pw := &Playback{Dev: m, Pool: pool, FrameSize: frameSize}

	written, err := pw.Write(0, true, &counter.produced)
	require.NoError(t, err)
	require.Equal(t, int64(2048), written)
	require.True(t, m.Started())
	require.Equal(t, int64(2048), counter.produced)

	snap := m.RingSnapshot()
	require.Equal(t, pattern1, snap[0:1024*frameSize])
	require.Equal(t, pattern2, snap[1024*frameSize:2048*frameSize])
}

// TestPlaybackUnderrunFillsSilence is §8 scenario 2.
func TestPlaybackUnderrunFillsSilence(t *testing.T) {
	const frameSize = 4
	const threshold = 1024
	m := newPlaybackMock(t, 8192, 1024)
	pool := bufferpool.New()
	pool.ResetForPlayback()

	var counter testCounters
	pw := &Playback{Dev: m, Pool: pool, FrameSize: frameSize}

	written, err := pw.Write(2*threshold, true, &counter.produced)
	require.NoError(t, err)
	require.Equal(t, int64(2*threshold), written)
	require.True(t, pool.ReadyEmpty())

	snap := m.RingSnapshot()
	for _, b := range snap[:2*threshold*frameSize] {
		require.Equal(t, byte(0), b)
	}
}

// TestPlaybackXrunIsClassifiedRecoverable is §8 scenario 4 (the
// transfer-layer half; recovery orchestration is engine's job).
func TestPlaybackXrunIsClassifiedRecoverable(t *testing.T) {
	const frameSize = 4
	m := newPlaybackMock(t, 8192, 1024)
	m.CommitErr = device.ErrPipe
	pool := bufferpool.New()
	d := &bufferpool.Descriptor{ID: 1, Payload: make([]byte, 1024*frameSize), Size: 1024}
	pool.Add(d)
	pool.ResetForPlayback()
	pool.Submit(d, true)

	pw := &Playback{Dev: m, Pool: pool, FrameSize: frameSize}
	var counter testCounters
	_, err := pw.Write(0, true, &counter.produced)
	require.Error(t, err)
	require.True(t, IsXrun(err))
}

// TestCaptureLagCapsAtThreshold is §8 scenario 3.
func TestCaptureLagCapsAtThreshold(t *testing.T) {
	const frameSize = 4
	const threshold = 1024
	m := device.NewMock()
	require.NoError(t, m.Open("mock0", device.Capture, device.DefaultOpenFlags()))
	require.NoError(t, m.SetFormatExact(format.EncodingS16LE))
	m.SetChannelsNear(2)
	m.SetRateNear(48000)
	m.SetPeriodSizeNear(1024)
	m.SetBufferSizeNear(8192)
	require.NoError(t, m.CommitHWParams())
	m.SetDelay(3 * threshold) // avail grows to 3x threshold before first tick

	pool := bufferpool.New()
	d := &bufferpool.Descriptor{ID: 1, Payload: make([]byte, threshold*frameSize)}
	pool.Add(d)
	pool.ResetForCapture()

	var counter testCounters
	capt := &Capture{Dev: m, Pool: pool, FrameSize: frameSize}

	budget := minInt(m.Delay(), threshold)
	require.Equal(t, threshold, budget)

	err := capt.Push(budget, &counter)
	require.NoError(t, err)
	require.Equal(t, int64(threshold), counter.produced)
}
