package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 5, 22, 0, 0, 0, time.UTC)

func tick(i int) time.Time {
	return t0.Add(time.Duration(i) * 10 * time.Millisecond)
}

func TestSamplerFirstSampleIsBaseline(t *testing.T) {
	s := NewSampler(t0)
	require.False(t, s.IsBaselined())

	edges := s.Process(Input{Rotary: true, Button: false, Time: tick(0)})
	require.Empty(t, edges)
	require.True(t, s.IsBaselined())

	rotary, button := s.Levels()
	require.True(t, rotary)
	require.False(t, button)
}

func TestSamplerNoEdgesForStableLevels(t *testing.T) {
	s := NewSampler(t0)
	for i := 0; i < 10; i++ {
		edges := s.Process(Input{Rotary: false, Button: true, Time: tick(i)})
		require.Empty(t, edges, "tick %d", i)
	}
	require.Equal(t, EdgeCounts{}, s.Counts())
}

func TestSamplerEmitsOneEdgePerChange(t *testing.T) {
	s := NewSampler(t0)
	s.Process(Input{Rotary: false, Button: true, Time: tick(0)})

	// Button pressed (pull-up goes low).
	edges := s.Process(Input{Rotary: false, Button: false, Time: tick(1)})
	require.Equal(t, []Edge{{Line: LineButton, Direction: Falling, Time: tick(1)}}, edges)
	require.True(t, edges[0].IsButtonPress())

	// Held: nothing.
	require.Empty(t, s.Process(Input{Rotary: false, Button: false, Time: tick(2)}))

	// Released.
	edges = s.Process(Input{Rotary: false, Button: true, Time: tick(3)})
	require.Len(t, edges, 1)
	require.Equal(t, Rising, edges[0].Direction)
	require.False(t, edges[0].IsButtonPress())

	require.Equal(t, EdgeCounts{ButtonPresses: 1}, s.Counts())
}

func TestSamplerSimultaneousEdgesRotaryFirst(t *testing.T) {
	s := NewSampler(t0)
	s.Process(Input{Rotary: false, Button: true, Time: tick(0)})

	edges := s.Process(Input{Rotary: true, Button: false, Time: tick(1)})
	require.Len(t, edges, 2)
	require.Equal(t, LineRotary, edges[0].Line)
	require.True(t, edges[0].IsRotaryPulse())
	require.Equal(t, LineButton, edges[1].Line)
	require.True(t, edges[1].IsButtonPress())

	// Trailing edge of the detent pulse is an edge but not a pulse.
	edges = s.Process(Input{Rotary: false, Button: false, Time: tick(2)})
	require.Len(t, edges, 1)
	require.False(t, edges[0].IsRotaryPulse())

	require.Equal(t, EdgeCounts{RotaryPulses: 1, ButtonPresses: 1}, s.Counts())
}

func TestSamplerBounceIsNotFiltered(t *testing.T) {
	s := NewSampler(t0)
	s.Process(Input{Button: true, Time: tick(0)})

	var presses int
	for i, level := range []bool{false, true, false, true} {
		for _, e := range s.Process(Input{Button: level, Time: tick(i + 1)}) {
			if e.IsButtonPress() {
				presses++
			}
		}
	}
	require.Equal(t, 2, presses)
}

func TestSamplerHeartbeat(t *testing.T) {
	s := NewSampler(t0)

	require.Nil(t, s.CheckHeartbeat(t0.Add(time.Hour), 0), "disabled interval")
	require.Nil(t, s.CheckHeartbeat(t0.Add(14*time.Minute), 15*time.Minute))

	hb := s.CheckHeartbeat(t0.Add(15*time.Minute), 15*time.Minute)
	require.NotNil(t, hb)
	require.Equal(t, 15*time.Minute, hb.Uptime)

	require.Nil(t, s.CheckHeartbeat(t0.Add(20*time.Minute), 15*time.Minute))
	require.NotNil(t, s.CheckHeartbeat(t0.Add(30*time.Minute), 15*time.Minute))
}
