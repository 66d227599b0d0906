package roulette

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLog struct {
	slots []int
}

func (l *recordingLog) RecordSelection(slot int) {
	l.slots = append(l.slots, slot)
}

type panickingLog struct{}

func (panickingLog) RecordSelection(int) { panic("disk on fire") }

type recordingObserver struct {
	views []View
	cues  []Cue
}

func (o *recordingObserver) Publish(v View) { o.views = append(o.views, v) }
func (o *recordingObserver) Cue(c Cue)      { o.cues = append(o.cues, c) }

func (o *recordingObserver) count(c Cue) int {
	n := 0
	for _, got := range o.cues {
		if got == c {
			n++
		}
	}
	return n
}

type harness struct {
	m     *Machine
	clock *clockwork.FakeClock
	sched *ClockScheduler
	log   *recordingLog
	obs   *recordingObserver
}

func newHarness(t *testing.T, settings Settings, registry Registry) *harness {
	t.Helper()
	require.NoError(t, settings.Validate())

	clock := clockwork.NewFakeClock()
	h := &harness{
		clock: clock,
		sched: NewClockScheduler(clock),
		log:   &recordingLog{},
		obs:   &recordingObserver{},
	}

	h.m = NewMachine(settings, Deps{
		Registry:  registry,
		Scheduler: h.sched,
		Selector:  NewRandomSelector(rand.New(rand.NewPCG(42, 42))),
		GameLog:   h.log,
		Observer:  h.obs,
		Logger:    zerolog.Nop(),
	})

	return h
}

// tick advances the clock by one interval and delivers the fire the way the
// table loop would.
func (h *harness) tick() Outcome {
	h.clock.Advance(time.Second)
	return h.m.Tick()
}

func TestMachine_TwoPlayersRoundToReveal(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 100, 100)
	h.m.Press(2, 200, 200)

	v := h.m.View()
	assert.Equal(t, PhaseCountdown, v.Phase)
	assert.Equal(t, 3, v.Remaining)
	assert.Equal(t, []int{1, 2}, slotsOf(v.Contacts))
	assert.Nil(t, v.Winner)
	assert.True(t, h.sched.TickArmed())
	assert.Equal(t, 1, h.obs.count(CueTick), "first value ticks straight away")

	assert.Equal(t, OutcomeTicked, h.tick())
	assert.Equal(t, 2, h.m.View().Remaining)
	assert.Equal(t, OutcomeTicked, h.tick())
	assert.Equal(t, 1, h.m.View().Remaining)
	assert.Equal(t, OutcomeWinner, h.tick())

	v = h.m.View()
	assert.Equal(t, PhaseRevealing, v.Phase)
	assert.Zero(t, v.Remaining)
	require.NotNil(t, v.Winner)
	assert.Contains(t, []int{1, 2}, v.Winner.Slot)

	require.Len(t, h.log.slots, 1)
	assert.Equal(t, v.Winner.Slot, h.log.slots[0])
	assert.Equal(t, 3, h.obs.count(CueTick))
	assert.Equal(t, 1, h.obs.count(CueSelect))
	assert.False(t, h.sched.TickArmed(), "countdown timer cancelled on reveal")
	assert.True(t, h.sched.RevealArmed())

	h.m.RevealElapsed()

	v = h.m.View()
	assert.Equal(t, PhaseWaiting, v.Phase)
	assert.Nil(t, v.Winner)
	assert.Empty(t, v.Contacts, "registry cleared for the next round")
	assert.False(t, h.sched.RevealArmed())
}

func TestMachine_WinnerIsSnapshotNotLiveContact(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 10, 20)
	h.tick()
	h.tick()
	h.tick()

	h.m.Move(1, 500, 600)

	v := h.m.View()
	require.NotNil(t, v.Winner)
	assert.Equal(t, Winner{Slot: 1, X: 10, Y: 20}, *v.Winner)
	assert.Equal(t, 500.0, v.Contacts[0].X)
}

func TestMachine_ReleaseBeforeFirstTickAborts(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 0, 0)
	require.Equal(t, PhaseCountdown, h.m.Phase())

	h.m.Release(1)

	v := h.m.View()
	assert.Equal(t, PhaseWaiting, v.Phase)
	assert.Zero(t, v.Remaining)
	assert.False(t, h.sched.TickArmed())
	assert.Empty(t, h.log.slots)

	// a stale fire after the abort does nothing
	assert.Equal(t, OutcomeIgnored, h.m.Tick())
	assert.Empty(t, h.log.slots)
}

func TestMachine_EmptyingMidCountdownAborts(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 0, 0)
	h.m.Press(2, 0, 0)
	h.tick()
	h.m.Release(1)
	h.m.Release(2)

	assert.Equal(t, PhaseWaiting, h.m.Phase())
	assert.Empty(t, h.log.slots)

	// the next press is a new 0→N transition and starts a fresh round
	h.m.Press(3, 0, 0)
	v := h.m.View()
	assert.Equal(t, PhaseCountdown, v.Phase)
	assert.Equal(t, 3, v.Remaining)
	assert.Equal(t, 2, v.Round)
}

func TestMachine_LateDepartureDoesNotCancel(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 0, 0)
	h.m.Press(2, 0, 0)
	h.m.Press(3, 0, 0)
	h.tick()
	h.tick()
	h.m.Release(2)

	assert.Equal(t, PhaseCountdown, h.m.Phase())
	assert.Equal(t, OutcomeWinner, h.tick())

	require.Len(t, h.log.slots, 1)
	assert.Contains(t, []int{1, 3}, h.log.slots[0])
}

func TestMachine_CountdownStartsOncePerEmptyToNonEmpty(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 0, 0)
	h.tick()
	h.m.Press(2, 0, 0)
	h.m.Release(1)
	h.m.Press(4, 0, 0)

	v := h.m.View()
	assert.Equal(t, PhaseCountdown, v.Phase)
	assert.Equal(t, 2, v.Remaining, "joining does not restart the countdown")
	assert.Equal(t, 1, v.Round)
	assert.Equal(t, 2, h.obs.count(CueTick))
}

func TestMachine_EmptiesAsFinalTickFires(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 10, 10)
	h.m.Press(2, 20, 20)
	h.tick()
	h.tick()

	// the final tick is now due but the loop sees both releases first
	h.clock.Advance(time.Second)
	h.m.Release(1)
	h.m.Release(2)

	require.Equal(t, PhaseCountdown, h.m.Phase(), "a due final tick is not cancelled")
	assert.Equal(t, OutcomeWinner, h.m.Tick())

	v := h.m.View()
	assert.Equal(t, PhaseRevealing, v.Phase)
	assert.Empty(t, v.Contacts)
	require.NotNil(t, v.Winner)
	assert.Contains(t, []int{1, 2}, v.Winner.Slot)
	assert.Equal(t, []int{v.Winner.Slot}, h.log.slots)
}

func TestMachine_NoWinnerWhenEverythingIsGone(t *testing.T) {
	settings := DefaultSettings()
	settings.Abort = AbortNever
	h := newHarness(t, settings, nil)

	h.m.Press(1, 0, 0)
	h.tick()

	// cleared behind the machine's back, so nothing was remembered
	h.m.registry.Clear()
	h.m.lastKnown = nil

	h.tick()
	assert.Equal(t, OutcomeNoWinner, h.tick())

	v := h.m.View()
	assert.Equal(t, PhaseWaiting, v.Phase)
	assert.Nil(t, v.Winner)
	assert.Empty(t, h.log.slots)
	assert.Zero(t, h.obs.count(CueSelect))
	assert.False(t, h.sched.TickArmed())
	assert.False(t, h.sched.RevealArmed())
}

func TestMachine_AbortPolicies(t *testing.T) {
	cases := []struct {
		name      string
		policy    AbortPolicy
		presses   []ContactID
		releases  []ContactID
		wantPhase Phase
	}{
		{name: "zero keeps going with one left", policy: AbortAtZero, presses: []ContactID{1, 2}, releases: []ContactID{1}, wantPhase: PhaseCountdown},
		{name: "zero aborts when empty", policy: AbortAtZero, presses: []ContactID{1, 2}, releases: []ContactID{1, 2}, wantPhase: PhaseWaiting},
		{name: "below-two waits for a second player", policy: AbortBelowTwo, presses: []ContactID{1}, wantPhase: PhaseWaiting},
		{name: "below-two starts with two", policy: AbortBelowTwo, presses: []ContactID{1, 2}, wantPhase: PhaseCountdown},
		{name: "below-two aborts with one left", policy: AbortBelowTwo, presses: []ContactID{1, 2}, releases: []ContactID{2}, wantPhase: PhaseWaiting},
		{name: "never keeps going when empty", policy: AbortNever, presses: []ContactID{1}, releases: []ContactID{1}, wantPhase: PhaseCountdown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.Abort = tc.policy
			h := newHarness(t, settings, nil)

			for _, id := range tc.presses {
				h.m.Press(id, 0, 0)
			}
			for _, id := range tc.releases {
				h.m.Release(id)
			}

			assert.Equal(t, tc.wantPhase, h.m.Phase())
		})
	}
}

func TestMachine_NeverPolicyFallsBackToLastKnown(t *testing.T) {
	settings := DefaultSettings()
	settings.Abort = AbortNever
	h := newHarness(t, settings, nil)

	h.m.Press(1, 0, 0)
	h.m.Press(2, 0, 0)
	h.m.Release(2)
	h.m.Release(1)

	h.tick()
	h.tick()
	assert.Equal(t, OutcomeWinner, h.tick())
	assert.Contains(t, []int{1, 2}, h.log.slots[0])
}

func TestMachine_RestartFromAnyPhase(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 0, 0)
	h.tick()
	h.m.Restart()

	assert.Equal(t, PhaseWaiting, h.m.Phase())
	assert.Zero(t, h.m.registry.Size())
	assert.False(t, h.sched.TickArmed())
	assert.Equal(t, 1, h.obs.count(CueRestart))

	h.m.Press(1, 0, 0)
	h.tick()
	h.tick()
	h.tick()
	require.Equal(t, PhaseRevealing, h.m.Phase())

	h.m.Restart()
	assert.Equal(t, PhaseWaiting, h.m.Phase())
	assert.False(t, h.sched.RevealArmed())
	assert.Nil(t, h.m.View().Winner)
	assert.Len(t, h.log.slots, 1, "restart never undoes a recorded reveal")
}

func TestMachine_ForceStart(t *testing.T) {
	settings := DefaultSettings()
	settings.Abort = AbortBelowTwo
	h := newHarness(t, settings, nil)

	h.m.Start()
	assert.Equal(t, PhaseWaiting, h.m.Phase(), "nobody down, nothing to start")

	h.m.Press(1, 0, 0)
	require.Equal(t, PhaseWaiting, h.m.Phase())

	h.m.Start()
	require.Equal(t, PhaseCountdown, h.m.Phase())

	h.tick()
	h.tick()
	assert.Equal(t, OutcomeWinner, h.tick(), "a forced round with one player still crowns them")
	assert.Equal(t, []int{1}, h.log.slots)
}

func TestMachine_PressesDuringRevealAreTrackedOnly(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 0, 0)
	h.tick()
	h.tick()
	h.tick()
	require.Equal(t, PhaseRevealing, h.m.Phase())

	h.m.Release(1)
	h.m.Press(2, 0, 0)

	v := h.m.View()
	assert.Equal(t, PhaseRevealing, v.Phase)
	assert.Len(t, v.Contacts, 1)
	assert.Len(t, h.log.slots, 1)
}

func TestMachine_ReleaseAll(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.ReleaseAll()
	assert.Empty(t, h.obs.views, "nothing to release, nothing published")

	h.m.Press(1, 0, 0)
	h.m.Press(2, 0, 0)
	h.m.ReleaseAll()

	assert.Equal(t, PhaseWaiting, h.m.Phase())
	assert.Zero(t, h.m.registry.Size())
}

func TestMachine_CollaboratorPanicDoesNotUndoReveal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sched := NewClockScheduler(clock)
	m := NewMachine(DefaultSettings(), Deps{
		Scheduler: sched,
		GameLog:   panickingLog{},
		Logger:    zerolog.Nop(),
	})

	m.Press(1, 0, 0)
	for range 3 {
		clock.Advance(time.Second)
		m.Tick()
	}

	assert.Equal(t, PhaseRevealing, m.Phase())
	assert.True(t, sched.RevealArmed())
}

func TestMachine_PublishesAfterEveryChange(t *testing.T) {
	h := newHarness(t, DefaultSettings(), nil)

	h.m.Press(1, 0, 0)
	h.m.Move(1, 5, 5)

	// stale and duplicate events publish nothing
	h.m.Move(9, 5, 5)
	h.m.Release(9)
	h.m.Press(1, 0, 0)

	require.Len(t, h.obs.views, 2)
	assert.Equal(t, 5.0, h.obs.views[1].Contacts[0].X)
}

func TestSettings_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr error
	}{
		{name: "defaults", mutate: func(*Settings) {}},
		{name: "zero countdown", mutate: func(s *Settings) { s.Countdown = 0 }, wantErr: ErrInvalidSettings},
		{name: "zero tick", mutate: func(s *Settings) { s.TickEvery = 0 }, wantErr: ErrInvalidSettings},
		{name: "negative hold", mutate: func(s *Settings) { s.RevealHold = -time.Second }, wantErr: ErrInvalidSettings},
		{name: "bad policy", mutate: func(s *Settings) { s.Abort = "sometimes" }, wantErr: ErrUnknownAbortPolicy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)

			err := s.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
