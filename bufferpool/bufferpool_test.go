package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newPopulatedPool(n int) *Pool {
	p := New()
	for i := 0; i < n; i++ {
		p.Add(&Descriptor{ID: i, Payload: make([]byte, 64)})
	}
	return p
}

func TestPlaybackResetOwnership(t *testing.T) {
	p := newPopulatedPool(4)
	p.ResetForPlayback()
	require.True(t, p.Invariant())
	require.True(t, p.ReadyEmpty())
	_, err := p.TakeReady()
	require.ErrorIs(t, err, ErrNoData)
}

func TestCaptureResetOwnership(t *testing.T) {
	p := newPopulatedPool(4)
	p.ResetForCapture()
	require.True(t, p.Invariant())
	require.False(t, p.FreeEmpty())

	d, err := p.TakeFree()
	require.NoError(t, err)
	require.True(t, p.Invariant()) // d is neither free/ready/out yet... caller must place it

	p.ReturnToHost(d)
	require.True(t, p.Invariant())
}

func TestTakeFreeEmptyErrors(t *testing.T) {
	p := New()
	_, err := p.TakeFree()
	require.ErrorIs(t, err, ErrNoSpace)
}

// TestInvariantUnderRandomOps is a property test for §8 invariant 2:
// every descriptor is in exactly one of {free, ready, OUT}, never two.
func TestInvariantUnderRandomOps(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		p := newPopulatedPool(n)
		toCapture := rapid.Bool().Draw(rt, "capture")
		if toCapture {
			p.ResetForCapture()
		} else {
			p.ResetForPlayback()
		}
		require.True(rt, p.Invariant())

		steps := rapid.IntRange(0, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.IntRange(0, 3).Draw(rt, "op")
			switch op {
			case 0:
				if d, err := p.TakeFree(); err == nil {
					p.Submit(d, true) // simulate capture fill -> ready
				}
			case 1:
				if d, err := p.TakeReady(); err == nil {
					p.ReturnToHost(d)
				}
			case 2:
				// host returns a buffer it was holding: find an OUT one.
				for _, d := range p.byID {
					if d.Out {
						p.Submit(d, toCapture == false)
						break
					}
				}
			case 3:
				// no-op tick
			}
			require.True(rt, p.Invariant())
		}
	})
}
