package roulette

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotsOf(contacts []Contact) []int {
	slots := make([]int, 0, len(contacts))
	for _, c := range contacts {
		slots = append(slots, c.Slot)
	}
	return slots
}

func TestPointerRegistry_LowestFreeSlot(t *testing.T) {
	r := NewPointerRegistry()

	require.True(t, r.Add(10, 1, 1))
	require.True(t, r.Add(11, 2, 2))
	require.True(t, r.Add(12, 3, 3))
	assert.Equal(t, []int{1, 2, 3}, slotsOf(r.Snapshot()))

	require.True(t, r.Remove(11))
	require.True(t, r.Add(13, 4, 4))

	snap := r.Snapshot()
	assert.Equal(t, []int{1, 2, 3}, slotsOf(snap))
	assert.Equal(t, ContactID(13), snap[1].ID, "freed slot 2 goes to the next arrival")
}

func TestPointerRegistry_DuplicateAndStaleEvents(t *testing.T) {
	cases := []struct {
		name string
		run  func(r *PointerRegistry) bool
	}{
		{name: "duplicate press", run: func(r *PointerRegistry) bool { return r.Add(1, 50, 50) }},
		{name: "move unknown id", run: func(r *PointerRegistry) bool { return r.Update(99, 5, 5) }},
		{name: "release unknown id", run: func(r *PointerRegistry) bool { return r.Remove(99) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewPointerRegistry()
			r.Add(1, 10, 10)

			assert.False(t, tc.run(r))
			assert.Equal(t, 1, r.Size())

			snap := r.Snapshot()
			assert.Equal(t, Contact{ID: 1, X: 10, Y: 10, Slot: 1}, snap[0])
		})
	}
}

func TestPointerRegistry_UpdateKeepsSlot(t *testing.T) {
	r := NewPointerRegistry()
	r.Add(MouseID, 1, 2)
	r.Add(7, 3, 4)

	require.True(t, r.Update(7, 30, 40))

	snap := r.Snapshot()
	assert.Equal(t, Contact{ID: 7, X: 30, Y: 40, Slot: 2}, snap[1])
}

func TestPointerRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewPointerRegistry()
	r.Add(1, 0, 0)

	snap := r.Snapshot()
	snap[0].Slot = 42
	snap[0].X = 99

	again := r.Snapshot()
	assert.Equal(t, 1, again[0].Slot)
	assert.Equal(t, 0.0, again[0].X)
}

func TestPointerRegistry_Clear(t *testing.T) {
	r := NewPointerRegistry()
	r.Add(1, 0, 0)
	r.Add(2, 0, 0)

	r.Clear()

	assert.Zero(t, r.Size())
	assert.Empty(t, r.Snapshot())

	r.Add(3, 0, 0)
	assert.Equal(t, []int{1}, slotsOf(r.Snapshot()))
}

func TestPointerRegistry_SlotsStayUniqueAndSmall(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	r := NewPointerRegistry()

	active := map[ContactID]bool{}
	maxActive := 0

	for step := range 5000 {
		id := ContactID(rng.IntN(24))

		switch rng.IntN(3) {
		case 0, 1:
			r.Add(id, float64(step), float64(step))
			active[id] = true
		case 2:
			r.Remove(id)
			delete(active, id)
		}

		maxActive = max(maxActive, len(active))

		seen := map[int]bool{}
		for _, c := range r.Snapshot() {
			require.False(t, seen[c.Slot], "slot %d used twice at step %d", c.Slot, step)
			seen[c.Slot] = true
			require.GreaterOrEqual(t, c.Slot, 1)
			require.LessOrEqual(t, c.Slot, maxActive)
		}
		require.Equal(t, len(active), r.Size())
	}
}
