package clock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordPublishReadRoundTrip(t *testing.T) {
	var r Record
	require.Equal(t, Shared{}, r.Read()) // nothing published yet

	s := Shared{NSec: 123, RateHz: 48000, Position: 4096, Delay: 512, RateDiff: 1.0002}
	r.Publish(s)
	require.Equal(t, s, r.Read())

	r.Publish(Shared{NSec: 456})
	require.Equal(t, uint64(456), r.Read().NSec)
}

func TestCoordinatorRegisterAndMaster(t *testing.T) {
	c := NewCoordinator()

	_, ok := c.Master()
	require.False(t, ok)

	h1 := c.Register()
	h2 := c.Register()
	require.NotEqual(t, h1, h2)
	require.False(t, c.IsMaster(h1))

	c.SetMaster(h2)
	master, ok := c.Master()
	require.True(t, ok)
	require.Equal(t, h2, master)
	require.True(t, c.IsMaster(h2))
	require.False(t, c.IsMaster(h1))

	c.Record(h1).Publish(Shared{NSec: 1})
	c.Record(h2).Publish(Shared{NSec: 2})
	require.Equal(t, uint64(1), c.Record(h1).Read().NSec)
	require.Equal(t, uint64(2), c.Record(h2).Read().NSec)
}
