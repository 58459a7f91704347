package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestClockRunsInWakeOrder(t *testing.T) {
	c := New(t0)

	var fired []string
	c.At(t0.Add(2*time.Hour), func(time.Time) { fired = append(fired, "b") })
	c.At(t0.Add(time.Hour), func(time.Time) { fired = append(fired, "a") })
	c.At(t0.Add(3*time.Hour), func(time.Time) { fired = append(fired, "c") })

	c.Run()
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, t0.Add(3*time.Hour), c.Now())
}

func TestSameInstantIsFIFO(t *testing.T) {
	c := New(t0)
	at := t0.Add(time.Hour)

	var fired []int
	for i := 0; i < 5; i++ {
		i := i
		c.At(at, func(time.Time) { fired = append(fired, i) })
	}
	c.Run()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, fired)
}

func TestPastInstantClampsToNow(t *testing.T) {
	c := New(t0)
	c.At(t0.Add(time.Hour), func(time.Time) {})
	require.True(t, c.Step())

	var at time.Time
	c.At(t0, func(now time.Time) { at = now })
	require.True(t, c.Step())
	assert.Equal(t, t0.Add(time.Hour), at, "past instants run at current virtual time")
}

func TestTimersArmedDuringRunFire(t *testing.T) {
	c := New(t0)

	var fired []string
	c.At(t0.Add(time.Hour), func(now time.Time) {
		fired = append(fired, "first")
		c.At(now.Add(time.Hour), func(time.Time) { fired = append(fired, "chained") })
	})
	c.Run()
	assert.Equal(t, []string{"first", "chained"}, fired)
}

func TestRunUntilStopsAtHorizon(t *testing.T) {
	c := New(t0)

	var fired int
	c.At(t0.Add(time.Hour), func(time.Time) { fired++ })
	c.At(t0.Add(48*time.Hour), func(time.Time) { fired++ })

	c.RunUntil(t0.Add(24 * time.Hour))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, c.Pending())
}
