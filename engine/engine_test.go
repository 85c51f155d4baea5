package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sidechain-audio/alsaengine/bufferpool"
	"github.com/sidechain-audio/alsaengine/clock"
	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/dll"
	"github.com/sidechain-audio/alsaengine/format"
	"github.com/sidechain-audio/alsaengine/session"
	"github.com/sidechain-audio/alsaengine/timer"
)

func newPlaybackEngine(t *testing.T) (*Engine, *device.Mock, *timer.Fake, *bufferpool.Pool) {
	t.Helper()
	m := device.NewMock()

	sess := session.New(m, session.Config{
		DeviceName: "mock0", Direction: device.Playback,
	})
	require.NoError(t, sess.Open())
	_, err := sess.SetFormat(device.Params{
		Encoding: format.EncodingS16LE, RateHz: 48000, Channels: 2,
	}, device.SetFormatFlags{Nearest: true})
	require.NoError(t, err)

	pool := bufferpool.New()
	for i := 0; i < 4; i++ {
		pool.Add(&bufferpool.Descriptor{ID: i, Payload: make([]byte, sess.PeriodFrames()*sess.FrameSize())})
	}

	tm := timer.NewFake()
	eng := New(sess, pool, dll.New(), &clock.Record{}, tm, Config{ThresholdFrames: sess.PeriodFrames()})
	eng.Configure()
	return eng, m, tm, pool
}

func runEngineInBackground(t *testing.T, eng *Engine) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	return cancel, done
}

// TestStartPauseCloseRoundTrip is §8's round-trip lifecycle property:
// Start/Pause/Pause/Start/Close never errors and a second Pause is a
// no-op.
func TestStartPauseCloseRoundTrip(t *testing.T) {
	eng, _, _, _ := newPlaybackEngine(t)
	cancel, done := runEngineInBackground(t, eng)
	defer cancel()

	require.NoError(t, eng.Start())
	require.Equal(t, StateRunning, eng.State())
	require.NoError(t, eng.Pause())
	require.Equal(t, StatePaused, eng.State())
	require.NoError(t, eng.Pause()) // idempotent
	require.NoError(t, eng.Start())
	require.Equal(t, StateRunning, eng.State())
	require.NoError(t, eng.Close())
	require.Equal(t, StateClosed, eng.State())

	cancel()
	<-done
}

// TestPlaybackTickEmitsNeedBufferWhenReadyEmpty exercises §4.4's
// playback tick with no data queued: it should surface NEED_BUFFER
// rather than touch the device.
func TestPlaybackTickEmitsNeedBufferWhenReadyEmpty(t *testing.T) {
	eng, m, tm, _ := newPlaybackEngine(t)
	var gotStatus IOStatus
	eng.ReadyCallback = func(s IOStatus) { gotStatus = s }

	cancel, done := runEngineInBackground(t, eng)
	defer cancel()

	require.NoError(t, eng.Start())
	tm.Fire()
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, StatusNeedBuffer, gotStatus)
	require.Equal(t, 0, len(m.CommittedLog))

	cancel()
	<-done
}

// TestXrunRecoveryScenario is §8 scenario 4 at the engine level: a
// commit that reports ErrPipe drives the engine through Recovering
// back to Running, with the device's Recover having fired exactly
// once.
func TestXrunRecoveryScenario(t *testing.T) {
	eng, m, tm, pool := newPlaybackEngine(t)

	cancel, done := runEngineInBackground(t, eng)
	defer cancel()

	// Start resets the pool for playback, so the ready descriptor must
	// be submitted after it, not before.
	require.NoError(t, eng.Start())
	d := &bufferpool.Descriptor{ID: 100, Payload: make([]byte, 1024*4), Size: 1024}
	pool.Add(d)
	require.NoError(t, eng.SubmitBuffer(d))

	m.CommitErr = device.ErrPipe
	tm.Fire()
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, StateRunning, eng.State())
	require.Equal(t, 1, m.RecoverCalls)

	cancel()
	<-done
}
