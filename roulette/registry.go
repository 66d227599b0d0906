/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package roulette

import (
	"cmp"
	"slices"
)

// ContactID identifies an input point for as long as it stays down.
type ContactID int64

// MouseID is reserved for the single mouse pointer.
const MouseID ContactID = -1

// Contact is one active input point and the player number it was given.
type Contact struct {
	ID   ContactID `json:"-"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
	Slot int       `json:"slot"`
}

// Registry tracks active contacts. Mutations report whether anything changed;
// unknown ids and duplicate presses are ignored.
type Registry interface {
	Add(id ContactID, x, y float64) bool
	Update(id ContactID, x, y float64) bool
	Remove(id ContactID) bool
	Clear()
	Size() int
	Snapshot() []Contact
}

// PointerRegistry hands out the lowest free slot to each new contact.
type PointerRegistry struct {
	contacts map[ContactID]Contact
}

func NewPointerRegistry() *PointerRegistry {
	return &PointerRegistry{
		contacts: make(map[ContactID]Contact),
	}
}

func (r *PointerRegistry) Add(id ContactID, x, y float64) bool {
	if _, ok := r.contacts[id]; ok {
		return false
	}

	used := make(map[int]bool, len(r.contacts))
	for _, c := range r.contacts {
		used[c.Slot] = true
	}

	slot := 1
	for used[slot] {
		slot++
	}

	r.contacts[id] = Contact{ID: id, X: x, Y: y, Slot: slot}

	return true
}

func (r *PointerRegistry) Update(id ContactID, x, y float64) bool {
	c, ok := r.contacts[id]
	if !ok {
		return false
	}

	c.X, c.Y = x, y
	r.contacts[id] = c

	return true
}

func (r *PointerRegistry) Remove(id ContactID) bool {
	if _, ok := r.contacts[id]; !ok {
		return false
	}

	delete(r.contacts, id)

	return true
}

func (r *PointerRegistry) Clear() {
	clear(r.contacts)
}

func (r *PointerRegistry) Size() int {
	return len(r.contacts)
}

// Snapshot returns a copy of the active contacts ordered by slot.
func (r *PointerRegistry) Snapshot() []Contact {
	out := make([]Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		out = append(out, c)
	}

	sortBySlot(out)

	return out
}

func sortBySlot(contacts []Contact) {
	slices.SortFunc(contacts, func(a, b Contact) int {
		return cmp.Compare(a.Slot, b.Slot)
	})
}
