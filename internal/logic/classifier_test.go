package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const window = 300 * time.Millisecond

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func TestTimerFiresOnce(t *testing.T) {
	var tm Timer
	require.False(t, tm.Fire(ms(0)))

	tm.Arm(ms(0), window)
	require.True(t, tm.Pending())
	require.Equal(t, ms(300), tm.Due())
	require.False(t, tm.Fire(ms(299)))
	require.True(t, tm.Fire(ms(300)))
	require.False(t, tm.Fire(ms(400)))
	require.False(t, tm.Pending())
}

func TestTimerCancelIsIdempotent(t *testing.T) {
	var tm Timer
	tm.Cancel()
	tm.Cancel()

	tm.Arm(ms(0), window)
	tm.Cancel()
	tm.Cancel()
	require.False(t, tm.Fire(ms(1000)))

	tm.Arm(ms(0), window)
	require.True(t, tm.Fire(ms(300)))
	tm.Cancel()
	require.False(t, tm.Pending())
}

func TestClassifierSingleClick(t *testing.T) {
	c := NewClassifier(window)
	c.Press(ms(0))

	_, ok := c.Poll(ms(299))
	require.False(t, ok)

	click, ok := c.Poll(ms(300))
	require.True(t, ok)
	require.Equal(t, SingleClick, click.Kind)
	require.Equal(t, 1, click.Count)
	require.Equal(t, ms(0), click.OpenedAt)

	_, ok = c.Poll(ms(1000))
	require.False(t, ok, "dispatches only once")
	require.Equal(t, ClickBatch{}, c.Batch())
}

func TestClassifierDoubleClickRearmsWindow(t *testing.T) {
	c := NewClassifier(window)
	c.Press(ms(0))
	c.Press(ms(250))

	// The first deadline (300ms) was replaced by 550ms.
	_, ok := c.Poll(ms(300))
	require.False(t, ok)
	_, ok = c.Poll(ms(549))
	require.False(t, ok)

	click, ok := c.Poll(ms(550))
	require.True(t, ok)
	require.Equal(t, DoubleClick, click.Kind)
	require.Equal(t, ms(0), click.OpenedAt)
}

func TestClassifierSeparatedPressesAreTwoSingles(t *testing.T) {
	c := NewClassifier(window)
	c.Press(ms(0))
	click, ok := c.Poll(ms(300))
	require.True(t, ok)
	require.Equal(t, SingleClick, click.Kind)

	c.Press(ms(400))
	click, ok = c.Poll(ms(700))
	require.True(t, ok)
	require.Equal(t, SingleClick, click.Kind)
	require.Equal(t, ms(400), click.OpenedAt)
}

func TestClassifierTripleIsIgnored(t *testing.T) {
	c := NewClassifier(window)
	c.Press(ms(0))
	c.Press(ms(100))
	c.Press(ms(200))

	click, ok := c.Poll(ms(500))
	require.True(t, ok)
	require.Equal(t, IgnoredClick, click.Kind)
	require.Equal(t, 3, click.Count)
}

func TestClassifierCancelDropsBatch(t *testing.T) {
	c := NewClassifier(window)
	c.Cancel()

	c.Press(ms(0))
	require.True(t, c.Pending())
	c.Cancel()
	require.False(t, c.Pending())
	require.Equal(t, ClickBatch{}, c.Batch())

	_, ok := c.Poll(ms(1000))
	require.False(t, ok, "nothing dispatched after cancel")
}
