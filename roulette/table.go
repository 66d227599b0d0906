/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package roulette

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Msg is anything a Table's loop accepts on its inbox.
type Msg interface{ isTableMsg() }

type Press struct {
	ID   ContactID
	X, Y float64
}

type Move struct {
	ID   ContactID
	X, Y float64
}

type Release struct{ ID ContactID }

type ReleaseAll struct{}

type Start struct{}

type Restart struct{}

// Subscribe registers Outbox for events. The table sends the current view
// straight away and closes Outbox when the subscriber leaves, falls behind,
// or the table shuts down.
type Subscribe struct {
	ID     string
	Outbox chan Event
}

type Unsubscribe struct{ ID string }

type GetView struct {
	Reply chan View
}

type Shutdown struct{}

func (Press) isTableMsg()       {}
func (Move) isTableMsg()        {}
func (Release) isTableMsg()     {}
func (ReleaseAll) isTableMsg()  {}
func (Start) isTableMsg()       {}
func (Restart) isTableMsg()     {}
func (Subscribe) isTableMsg()   {}
func (Unsubscribe) isTableMsg() {}
func (GetView) isTableMsg()     {}
func (Shutdown) isTableMsg()    {}

type EventKind string

const (
	EventState EventKind = "state"
	EventCue   EventKind = "cue"
)

// Event is what subscribers receive: either a fresh View or a Cue.
type Event struct {
	Kind EventKind
	View View
	Cue  Cue
}

type TableOptions struct {
	Clock    clockwork.Clock
	Registry Registry
	Selector Selector
	GameLog  GameLog
	Logger   zerolog.Logger
}

// Table runs one board: a single goroutine owns the registry, the round
// machine and its timers, so every input and timer fire is applied in full
// before the next one is looked at.
type Table struct {
	id      string
	inbox   chan Msg
	machine *Machine
	sched   *ClockScheduler
	clock   clockwork.Clock
	subs    map[string]chan Event
	log     zerolog.Logger

	lastActive atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTable(parent context.Context, id string, settings Settings, opts TableOptions) *Table {
	ctx, cancel := context.WithCancel(parent)

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	logger := opts.Logger.With().Str("table", id).Logger()

	t := &Table{
		id:     id,
		inbox:  make(chan Msg, 64),
		sched:  NewClockScheduler(clock),
		clock:  clock,
		subs:   make(map[string]chan Event),
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	t.machine = NewMachine(settings, Deps{
		Registry:  opts.Registry,
		Scheduler: t.sched,
		Selector:  opts.Selector,
		GameLog:   opts.GameLog,
		Observer:  t,
		Logger:    logger,
	})

	t.touch()

	go t.loop()

	return t
}

func (t *Table) ID() string { return t.id }

// Send queues m for the loop. It reports false once the table has stopped.
func (t *Table) Send(m Msg) bool {
	select {
	case <-t.ctx.Done():
		return false
	default:
	}

	select {
	case t.inbox <- m:
		return true
	case <-t.ctx.Done():
		return false
	}
}

// View asks the loop for the current state.
func (t *Table) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !t.Send(GetView{Reply: reply}) {
		return View{}, context.Canceled
	}

	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-t.done:
		return View{}, context.Canceled
	}
}

// LastActive is the time of the last input or subscriber change.
func (t *Table) LastActive() time.Time {
	return time.Unix(0, t.lastActive.Load())
}

// Close stops the loop and waits for it to finish.
func (t *Table) Close() {
	t.cancel()
	<-t.done
}

// Done is closed once the loop has exited.
func (t *Table) Done() <-chan struct{} { return t.done }

func (t *Table) loop() {
	defer close(t.done)

	for {
		select {
		case <-t.ctx.Done():
			t.shutdown()
			return

		case <-t.sched.TickC():
			t.machine.Tick()

		case <-t.sched.RevealC():
			t.machine.RevealElapsed()

		case m := <-t.inbox:
			if _, stop := m.(Shutdown); stop {
				t.shutdown()
				return
			}

			t.handle(m)
		}
	}
}

func (t *Table) handle(m Msg) {
	switch msg := m.(type) {
	case Press:
		t.touch()
		t.machine.Press(msg.ID, msg.X, msg.Y)

	case Move:
		t.machine.Move(msg.ID, msg.X, msg.Y)

	case Release:
		t.touch()
		t.machine.Release(msg.ID)

	case ReleaseAll:
		t.touch()
		t.machine.ReleaseAll()

	case Start:
		t.touch()
		t.machine.Start()

	case Restart:
		t.touch()
		t.machine.Restart()

	case Subscribe:
		t.touch()
		if old, ok := t.subs[msg.ID]; ok && old != msg.Outbox {
			close(old)
		}
		t.subs[msg.ID] = msg.Outbox
		t.deliver(msg.ID, msg.Outbox, Event{Kind: EventState, View: t.machine.View()})

		t.log.Debug().Str("subscriber", msg.ID).Int("subscribers", len(t.subs)).Msg("TABLE: subscriber joined")

	case Unsubscribe:
		t.touch()
		if ch, ok := t.subs[msg.ID]; ok {
			close(ch)
			delete(t.subs, msg.ID)
		}

	case GetView:
		msg.Reply <- t.machine.View()
	}
}

// Publish and Cue make the table the machine's observer.
func (t *Table) Publish(v View) {
	t.broadcast(Event{Kind: EventState, View: v})
}

func (t *Table) Cue(c Cue) {
	t.broadcast(Event{Kind: EventCue, Cue: c})
}

func (t *Table) broadcast(ev Event) {
	for id, ch := range t.subs {
		t.deliver(id, ch, ev)
	}
}

func (t *Table) deliver(id string, ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		// slow subscriber, drop it
		close(ch)
		delete(t.subs, id)

		t.log.Warn().Str("subscriber", id).Msg("TABLE: dropped slow subscriber")
	}
}

func (t *Table) shutdown() {
	t.sched.CancelAll()
	t.machine.registry.Clear()

	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}

	t.cancel()

	t.log.Debug().Msg("TABLE: closed")
}

func (t *Table) touch() {
	t.lastActive.Store(t.clock.Now().UnixNano())
}
