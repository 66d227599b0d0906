/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gamelog

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// baseSlots are always reported by Stats, even with no selections.
const baseSlots = 8

// SlotStat is how often one slot has been chosen since the last reset.
type SlotStat struct {
	Slot  int        `json:"slot"`
	Count int        `json:"count"`
	Last  *time.Time `json:"last,omitempty"`
}

type Options struct {
	// Policy overrides the stored policy when set.
	Policy   Policy
	Clock    clockwork.Clock
	Location *time.Location
	Logger   zerolog.Logger
}

// Log is the selection history shared by every table.
type Log struct {
	mu    sync.Mutex
	store Store
	meta  Meta
	clock clockwork.Clock
	loc   *time.Location
	log   zerolog.Logger
}

// Open loads the reset bookkeeping from store. Under the session policy the
// history is cleared, since every start of the server is a new session.
func Open(ctx context.Context, store Store, opts Options) (*Log, error) {
	l := &Log{
		store: store,
		clock: opts.Clock,
		loc:   opts.Location,
		log:   opts.Logger,
	}

	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.loc == nil {
		l.loc = time.Local
	}

	meta, err := store.Meta(ctx)
	if err != nil {
		return nil, err
	}

	if meta.Policy == "" {
		meta.Policy = PolicySession
	}
	if meta.LastReset.IsZero() {
		meta.LastReset = l.clock.Now()
	}
	if opts.Policy != "" {
		if _, err := ParsePolicy(string(opts.Policy)); err != nil {
			return nil, err
		}
		meta.Policy = opts.Policy
	}

	l.meta = meta

	if meta.Policy == PolicySession {
		if err := l.Reset(ctx); err != nil {
			return nil, err
		}

		return l, nil
	}

	if err := store.SaveMeta(ctx, meta); err != nil {
		return nil, err
	}

	return l, nil
}

// Record appends a selection of slot at table.
func (l *Log) Record(ctx context.Context, table string, slot int) (Entry, error) {
	e := Entry{
		ID:    uuid.New(),
		Table: table,
		Slot:  slot,
		At:    l.clock.Now().UTC(),
	}

	if err := l.store.Append(ctx, e); err != nil {
		return Entry{}, err
	}

	l.log.Debug().
		Str("table", table).
		Int("slot", slot).
		Str("entry", e.ID.String()).
		Msg("LOG: selection recorded")

	return e, nil
}

// Count is how many times slot was chosen at table. An empty table counts
// across every table.
func (l *Log) Count(ctx context.Context, table string, slot int) (int, error) {
	entries, err := l.store.Entries(ctx, table)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if e.Slot == slot {
			n++
		}
	}

	return n, nil
}

// Stats reports per-slot counts for table, ordered by slot. Slots 1 through 8
// are always present.
func (l *Log) Stats(ctx context.Context, table string) ([]SlotStat, error) {
	entries, err := l.store.Entries(ctx, table)
	if err != nil {
		return nil, err
	}

	bySlot := make(map[int]*SlotStat, baseSlots)
	for slot := 1; slot <= baseSlots; slot++ {
		bySlot[slot] = &SlotStat{Slot: slot}
	}

	for _, e := range entries {
		st, ok := bySlot[e.Slot]
		if !ok {
			st = &SlotStat{Slot: e.Slot}
			bySlot[e.Slot] = st
		}

		st.Count++
		if st.Last == nil || e.At.After(*st.Last) {
			at := e.At
			st.Last = &at
		}
	}

	out := make([]SlotStat, 0, len(bySlot))
	for _, st := range bySlot {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b SlotStat) int { return a.Slot - b.Slot })

	return out, nil
}

// Recent returns up to n of the newest entries at table, newest first. A
// non-positive n returns them all.
func (l *Log) Recent(ctx context.Context, table string, n int) ([]Entry, error) {
	entries, err := l.store.Entries(ctx, table)
	if err != nil {
		return nil, err
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}

	out := make([]Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}

	return out, nil
}

// Top is the most chosen slot, the lowest slot winning ties. It reports false
// when nothing has been chosen.
func Top(slots []SlotStat) (SlotStat, bool) {
	var best SlotStat
	for _, st := range slots {
		if st.Count > best.Count || (st.Count == best.Count && st.Count > 0 && st.Slot < best.Slot) {
			best = st
		}
	}

	return best, best.Count > 0
}

// Reset wipes the history and stamps the reset time.
func (l *Log) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.resetLocked(ctx)
}

func (l *Log) resetLocked(ctx context.Context) error {
	if err := l.store.Clear(ctx); err != nil {
		return err
	}

	meta := Meta{Policy: l.meta.Policy, LastReset: l.clock.Now()}
	if err := l.store.SaveMeta(ctx, meta); err != nil {
		return err
	}
	l.meta = meta

	l.log.Info().
		Str("policy", string(meta.Policy)).
		Msg("LOG: history reset")

	return nil
}

// CheckAndReset resets the history if the policy says the last reset is
// stale. It reports whether a reset happened.
func (l *Log) CheckAndReset(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.meta.Policy.due(l.meta.LastReset, l.clock.Now(), l.loc) {
		return false, nil
	}

	if err := l.resetLocked(ctx); err != nil {
		return false, err
	}

	return true, nil
}

func (l *Log) SetPolicy(ctx context.Context, p Policy) error {
	if _, err := ParsePolicy(string(p)); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	meta := Meta{Policy: p, LastReset: l.meta.LastReset}
	if err := l.store.SaveMeta(ctx, meta); err != nil {
		return fmt.Errorf("set policy %s: %w", p, err)
	}
	l.meta = meta

	return nil
}

func (l *Log) Policy() Policy {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.meta.Policy
}

func (l *Log) LastReset() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.meta.LastReset
}

func (l *Log) Close() error {
	return l.store.Close()
}
