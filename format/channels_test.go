package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultLayoutBoundaries(t *testing.T) {
	require.Equal(t, []Position{PositionFC}, DefaultLayout(1))
	require.Equal(t, []Position{
		PositionFL, PositionFR, PositionRL, PositionRR,
		PositionSL, PositionSR, PositionFC, PositionLFE,
	}, DefaultLayout(8))
	require.Nil(t, DefaultLayout(0))
	require.Nil(t, DefaultLayout(9))
}

func TestSanitizeChannelMapScenario(t *testing.T) {
	// §8 scenario 6: [FL, FR, FR, UNKNOWN, FC] n=5
	in := []Position{PositionFL, PositionFR, PositionFR, PositionUnknown, PositionFC}
	got := SanitizeChannelMap(in)

	assert.Len(t, got, 5)
	seen := map[Position]bool{}
	for _, p := range got {
		assert.NotEqual(t, PositionUnknown, p)
		assert.False(t, seen[p], "duplicate position %v", p)
		seen[p] = true
	}
	// RL and RR are the only 5-channel defaults not already present.
	assert.True(t, seen[PositionRL])
	assert.True(t, seen[PositionRR])
}

func TestSanitizeChannelMapIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		in := make([]Position, n)
		for i := range in {
			in[i] = Position(rapid.IntRange(-2, int(positionCount)+2).Draw(rt, "pos"))
		}

		once := SanitizeChannelMap(in)
		twice := SanitizeChannelMap(once)

		require.Equal(rt, once, twice)
		require.Len(rt, once, n)

		seen := map[Position]bool{}
		for _, p := range once {
			if p == PositionUnknown {
				continue
			}
			require.True(rt, isValidPosition(p))
			require.False(rt, seen[p], "duplicate %v in %v", p, once)
			seen[p] = true
		}
	})
}
