package roulette

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fired(ch <-chan time.Time) bool {
	select {
	case <-ch:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func TestClockScheduler_DisarmedChannelsAreNil(t *testing.T) {
	s := NewClockScheduler(clockwork.NewFakeClock())

	assert.Nil(t, s.TickC())
	assert.Nil(t, s.RevealC())
	assert.False(t, s.TickArmed())
	assert.False(t, s.RevealArmed())

	// cancelling nothing is fine
	s.CancelAll()
}

func TestClockScheduler_TickRepeats(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewClockScheduler(clock)

	s.ScheduleTick(time.Second)
	require.True(t, s.TickArmed())

	for range 3 {
		clock.Advance(time.Second)
		require.True(t, fired(s.TickC()))
	}

	s.CancelTick()
	assert.Nil(t, s.TickC())
}

func TestClockScheduler_RevealFiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewClockScheduler(clock)

	s.ScheduleReveal(5 * time.Second)
	ch := s.RevealC()

	clock.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("reveal fired early")
	default:
	}

	clock.Advance(time.Second)
	assert.True(t, fired(ch))
}

func TestClockScheduler_CancelDrainsPendingFire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewClockScheduler(clock)

	s.ScheduleTick(time.Second)
	old := s.TickC()
	clock.Advance(time.Second)

	s.CancelTick()

	select {
	case <-old:
		t.Fatal("cancelled tick still delivered a fire")
	default:
	}
}

func TestClockScheduler_RescheduleReplaces(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewClockScheduler(clock)

	s.ScheduleReveal(time.Second)
	first := s.RevealC()
	s.ScheduleReveal(3 * time.Second)

	clock.Advance(time.Second)
	select {
	case <-first:
		t.Fatal("replaced timer fired")
	case <-s.RevealC():
		t.Fatal("new timer fired early")
	default:
	}

	clock.Advance(2 * time.Second)
	assert.True(t, fired(s.RevealC()))
}

func TestClockScheduler_Now(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewClockScheduler(clock)

	start := s.Now()
	clock.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), s.Now())
}
