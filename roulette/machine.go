/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package roulette

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownAbortPolicy = errors.New("unknown abort policy")
	ErrInvalidSettings    = errors.New("invalid round settings")
)

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhaseRevealing Phase = "revealing"
)

// Cue is a discrete sound event for the audio layer.
type Cue string

const (
	CueTick    Cue = "tick"
	CueSelect  Cue = "select"
	CueRestart Cue = "restart"
)

// Outcome reports what a countdown tick did.
type Outcome string

const (
	OutcomeIgnored  Outcome = "ignored"
	OutcomeTicked   Outcome = "ticked"
	OutcomeWinner   Outcome = "winner"
	OutcomeNoWinner Outcome = "no_winner"
)

// AbortPolicy decides when departures cancel a running countdown.
type AbortPolicy string

const (
	// AbortAtZero cancels only once every contact has left.
	AbortAtZero AbortPolicy = "zero"
	// AbortBelowTwo needs two players to start and cancels below two.
	AbortBelowTwo AbortPolicy = "below-two"
	// AbortNever keeps counting even with nobody left.
	AbortNever AbortPolicy = "never"
)

func ParseAbortPolicy(s string) (AbortPolicy, error) {
	switch p := AbortPolicy(s); p {
	case AbortAtZero, AbortBelowTwo, AbortNever:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAbortPolicy, s)
	}
}

func (p AbortPolicy) quorum() int {
	if p == AbortBelowTwo {
		return 2
	}

	return 1
}

func (p AbortPolicy) aborts(size int) bool {
	if p == AbortNever {
		return false
	}

	return size < p.quorum()
}

// Winner is the chosen contact as it was at selection time.
type Winner struct {
	Slot int     `json:"slot"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// View is the read-only picture handed to renderers after every change.
type View struct {
	Phase     Phase     `json:"phase"`
	Remaining int       `json:"countdown_remaining"`
	Contacts  []Contact `json:"contacts"`
	Winner    *Winner   `json:"winner"`
	Circles   []Circle  `json:"circles,omitempty"`
	Round     int       `json:"round"`
}

// GameLog receives one call per round that produced a winner.
type GameLog interface {
	RecordSelection(slot int)
}

// Observer is told about every state change and every cue.
type Observer interface {
	Publish(v View)
	Cue(c Cue)
}

type Settings struct {
	Countdown  int
	TickEvery  time.Duration
	RevealHold time.Duration
	Abort      AbortPolicy
}

func DefaultSettings() Settings {
	return Settings{
		Countdown:  3,
		TickEvery:  time.Second,
		RevealHold: 5 * time.Second,
		Abort:      AbortAtZero,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.Countdown < 1:
		return fmt.Errorf("%w: countdown must be at least 1, got %d", ErrInvalidSettings, s.Countdown)
	case s.TickEvery <= 0:
		return fmt.Errorf("%w: tick interval must be positive, got %s", ErrInvalidSettings, s.TickEvery)
	case s.RevealHold <= 0:
		return fmt.Errorf("%w: reveal hold must be positive, got %s", ErrInvalidSettings, s.RevealHold)
	}

	_, err := ParseAbortPolicy(string(s.Abort))

	return err
}

// Deps are the collaborators of a Machine. Nil entries get inert defaults,
// except Scheduler which falls back to a real-clock ClockScheduler.
type Deps struct {
	Registry  Registry
	Scheduler Scheduler
	Selector  Selector
	GameLog   GameLog
	Observer  Observer
	Logger    zerolog.Logger
}

// Machine is the round state machine. It is not safe for concurrent use;
// one event loop owns it and feeds it inputs and timer fires in order.
type Machine struct {
	settings Settings
	registry Registry
	sched    Scheduler
	selector Selector
	gameLog  GameLog
	observer Observer
	log      zerolog.Logger

	phase     Phase
	remaining int
	winner    *Winner
	lastKnown []Contact
	deadline  time.Time
	round     int
}

func NewMachine(settings Settings, deps Deps) *Machine {
	m := &Machine{
		settings: settings,
		registry: deps.Registry,
		sched:    deps.Scheduler,
		selector: deps.Selector,
		gameLog:  deps.GameLog,
		observer: deps.Observer,
		log:      deps.Logger,
		phase:    PhaseWaiting,
	}

	if m.registry == nil {
		m.registry = NewPointerRegistry()
	}
	if m.sched == nil {
		m.sched = NewClockScheduler(nil)
	}
	if m.selector == nil {
		m.selector = NewRandomSelector(nil)
	}
	if m.gameLog == nil {
		m.gameLog = nopGameLog{}
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}

	return m
}

func (m *Machine) Press(id ContactID, x, y float64) {
	before := m.registry.Size()
	if !m.registry.Add(id, x, y) {
		return
	}

	switch m.phase {
	case PhaseWaiting:
		quorum := m.settings.Abort.quorum()
		if before < quorum && m.registry.Size() >= quorum {
			m.startCountdown()
		}
	case PhaseCountdown:
		m.remember()
	}

	m.publish()
}

func (m *Machine) Move(id ContactID, x, y float64) {
	if !m.registry.Update(id, x, y) {
		return
	}

	if m.phase == PhaseCountdown {
		m.remember()
	}

	m.publish()
}

func (m *Machine) Release(id ContactID) {
	if !m.registry.Remove(id) {
		return
	}

	m.afterDeparture()
	m.publish()
}

// ReleaseAll drops every contact, as when the board is torn down.
func (m *Machine) ReleaseAll() {
	if m.registry.Size() == 0 {
		return
	}

	m.registry.Clear()
	m.afterDeparture()
	m.publish()
}

// Start begins the countdown by hand from waiting, provided someone is down.
// It bypasses the abort policy's quorum, so a lone player can be started.
func (m *Machine) Start() {
	if m.phase != PhaseWaiting || m.registry.Size() == 0 {
		return
	}

	m.startCountdown()
	m.publish()
}

// Restart abandons whatever is going on and returns to an empty waiting board.
func (m *Machine) Restart() {
	m.reset()
	m.observer.Cue(CueRestart)
	m.publish()
}

// Tick handles one fire of the countdown timer.
func (m *Machine) Tick() Outcome {
	if m.phase != PhaseCountdown {
		return OutcomeIgnored
	}

	m.remember()
	m.remaining--

	if m.remaining > 0 {
		m.observer.Cue(CueTick)
		m.publish()

		return OutcomeTicked
	}

	return m.reveal()
}

// RevealElapsed handles the end of the reveal hold.
func (m *Machine) RevealElapsed() {
	if m.phase != PhaseRevealing {
		return
	}

	m.reset()
	m.publish()
}

func (m *Machine) Phase() Phase {
	return m.phase
}

func (m *Machine) View() View {
	v := View{
		Phase:    m.phase,
		Contacts: m.registry.Snapshot(),
		Round:    m.round,
	}

	if m.phase == PhaseCountdown {
		v.Remaining = m.remaining
	}

	if m.winner != nil {
		w := *m.winner
		v.Winner = &w
	}

	if p, ok := m.registry.(*PresetRegistry); ok {
		v.Circles = p.Circles()
	}

	return v
}

func (m *Machine) startCountdown() {
	m.round++
	m.phase = PhaseCountdown
	m.remaining = m.settings.Countdown
	m.winner = nil
	m.deadline = m.sched.Now().Add(m.settings.TickEvery * time.Duration(m.settings.Countdown))
	m.lastKnown = m.registry.Snapshot()

	m.sched.CancelReveal()
	m.sched.ScheduleTick(m.settings.TickEvery)

	m.log.Debug().
		Int("round", m.round).
		Int("contacts", len(m.lastKnown)).
		Time("deadline", m.deadline).
		Msg("TABLE: countdown started")

	m.observer.Cue(CueTick)
}

func (m *Machine) afterDeparture() {
	if m.phase != PhaseCountdown {
		return
	}

	size := m.registry.Size()

	// Once the final tick is due its fire is already queued behind this
	// input, so the round goes ahead on whoever was last seen.
	if m.settings.Abort.aborts(size) && m.sched.Now().Before(m.deadline) {
		m.log.Debug().
			Int("round", m.round).
			Int("contacts", size).
			Msg("TABLE: countdown abandoned")

		m.sched.CancelAll()
		m.phase = PhaseWaiting
		m.remaining = 0
		m.lastKnown = nil

		return
	}

	m.remember()
}

func (m *Machine) reveal() Outcome {
	m.sched.CancelTick()

	pool := m.registry.Snapshot()
	source := "live"
	if len(pool) == 0 {
		pool = m.lastKnown
		source = "last_known"
	}

	chosen, ok := m.selector.Select(pool)
	if !ok {
		m.log.Warn().
			Int("round", m.round).
			Msg("TABLE: countdown expired with nobody to choose from")

		m.reset()
		m.publish()

		return OutcomeNoWinner
	}

	m.phase = PhaseRevealing
	m.remaining = 0
	m.lastKnown = nil
	m.winner = &Winner{Slot: chosen.Slot, X: chosen.X, Y: chosen.Y}

	m.log.Info().
		Int("round", m.round).
		Int("slot", chosen.Slot).
		Int("pool", len(pool)).
		Str("source", source).
		Msg("TABLE: winner chosen")

	m.record(chosen.Slot)
	m.observer.Cue(CueSelect)
	m.sched.ScheduleReveal(m.settings.RevealHold)
	m.publish()

	return OutcomeWinner
}

func (m *Machine) record(slot int) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Interface("panic", r).
				Int("slot", slot).
				Msg("LOG: recording selection failed")
		}
	}()

	m.gameLog.RecordSelection(slot)
}

// remember keeps the latest non-empty set of contacts seen in this countdown.
func (m *Machine) remember() {
	if m.registry.Size() == 0 {
		return
	}

	m.lastKnown = m.registry.Snapshot()
}

func (m *Machine) reset() {
	m.sched.CancelAll()
	m.registry.Clear()

	m.phase = PhaseWaiting
	m.remaining = 0
	m.winner = nil
	m.lastKnown = nil
	m.deadline = time.Time{}
}

func (m *Machine) publish() {
	m.observer.Publish(m.View())
}

type nopGameLog struct{}

func (nopGameLog) RecordSelection(int) {}

type nopObserver struct{}

func (nopObserver) Publish(View) {}
func (nopObserver) Cue(Cue)      {}
