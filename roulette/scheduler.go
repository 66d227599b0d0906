/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package roulette

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler owns the two round timers: a repeating countdown tick and a
// one-shot reveal hold. Arming either one replaces any timer of the same kind.
type Scheduler interface {
	Now() time.Time
	ScheduleTick(every time.Duration)
	ScheduleReveal(after time.Duration)
	CancelTick()
	CancelReveal()
	CancelAll()
}

// ClockScheduler backs Scheduler with a clockwork clock. The owning loop
// selects on TickC and RevealC; both are nil while disarmed, so a stopped
// timer can never be observed firing.
type ClockScheduler struct {
	clock  clockwork.Clock
	ticker clockwork.Ticker
	reveal clockwork.Timer
}

func NewClockScheduler(clock clockwork.Clock) *ClockScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &ClockScheduler{clock: clock}
}

func (s *ClockScheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *ClockScheduler) ScheduleTick(every time.Duration) {
	s.CancelTick()
	s.ticker = s.clock.NewTicker(every)
}

func (s *ClockScheduler) ScheduleReveal(after time.Duration) {
	s.CancelReveal()
	s.reveal = s.clock.NewTimer(after)
}

func (s *ClockScheduler) CancelTick() {
	if s.ticker == nil {
		return
	}

	s.ticker.Stop()
	select {
	case <-s.ticker.Chan():
	default:
	}
	s.ticker = nil
}

func (s *ClockScheduler) CancelReveal() {
	if s.reveal == nil {
		return
	}

	stopAndDrainTimer(s.reveal)
	s.reveal = nil
}

func (s *ClockScheduler) CancelAll() {
	s.CancelTick()
	s.CancelReveal()
}

// TickC is the countdown channel, or nil when no countdown is running.
func (s *ClockScheduler) TickC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}

	return s.ticker.Chan()
}

// RevealC is the reveal-hold channel, or nil when nothing is being revealed.
func (s *ClockScheduler) RevealC() <-chan time.Time {
	if s.reveal == nil {
		return nil
	}

	return s.reveal.Chan()
}

// TickArmed and RevealArmed report which timers are live.
func (s *ClockScheduler) TickArmed() bool   { return s.ticker != nil }
func (s *ClockScheduler) RevealArmed() bool { return s.reveal != nil }

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
