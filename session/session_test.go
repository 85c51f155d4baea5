package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/format"
)

func TestSetFormatNegotiatesAndLatches(t *testing.T) {
	m := device.NewMock()
	s := New(m, Config{DeviceName: "mock0", Direction: device.Playback})
	require.NoError(t, s.Open())

	got, err := s.SetFormat(device.Params{
		Encoding: format.EncodingS16LE, RateHz: 48000, Channels: 2,
	}, device.SetFormatFlags{Nearest: true})
	require.NoError(t, err)
	require.Equal(t, 48000, got.RateHz)
	require.Equal(t, 2, got.Channels)

	require.Equal(t, 48000, s.Rate())
	require.Equal(t, 2, s.Channels())
	require.Equal(t, format.EncodingS16LE, s.Format())
	require.Equal(t, 4, s.FrameSize())
	require.GreaterOrEqual(t, s.BufferFrames(), 2*s.PeriodFrames())
}

func TestSetFormatRequiresOpenSession(t *testing.T) {
	m := device.NewMock()
	s := New(m, Config{DeviceName: "mock0", Direction: device.Capture})

	_, err := s.SetFormat(device.Params{Encoding: format.EncodingS16LE, RateHz: 48000, Channels: 2}, device.SetFormatFlags{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestProducedCounterMonotonicAndResettable(t *testing.T) {
	m := device.NewMock()
	s := New(m, Config{DeviceName: "mock0", Direction: device.Playback})
	require.NoError(t, s.Open())
	_, err := s.SetFormat(device.Params{Encoding: format.EncodingS16LE, RateHz: 48000, Channels: 2}, device.SetFormatFlags{Nearest: true})
	require.NoError(t, err)

	s.AddProduced(100)
	s.AddProduced(50)
	require.Equal(t, int64(150), s.Produced())

	s.AddProduced(-10) // negative deltas are rejected, never go backwards
	require.Equal(t, int64(150), s.Produced())

	s.ResetCounters()
	require.Equal(t, int64(0), s.Produced())
}
