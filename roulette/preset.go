/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package roulette

import (
	"math"
)

const (
	MinPresetSlots = 2
	MaxPresetSlots = 16
)

// Circle is one fixed seat of a preset layout, in board units (0..1).
type Circle struct {
	Slot   int     `json:"slot"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// PresetLayout places n circles evenly on a ring around the board centre,
// slot 1 at twelve o'clock and numbering clockwise.
func PresetLayout(n int) []Circle {
	const (
		ring = 0.35
		cx   = 0.5
		cy   = 0.5
	)

	if n <= 0 {
		return nil
	}

	// half the chord between neighbours, capped so large circles stay on the board
	radius := math.Min(0.12, ring*math.Sin(math.Pi/float64(n))*0.9)

	circles := make([]Circle, n)
	for i := range circles {
		angle := -math.Pi/2 + 2*math.Pi*float64(i)/float64(n)
		circles[i] = Circle{
			Slot:   i + 1,
			X:      cx + ring*math.Cos(angle),
			Y:      cy + ring*math.Sin(angle),
			Radius: radius,
		}
	}

	return circles
}

// PresetRegistry seats contacts on a fixed set of circles instead of numbering
// them as they arrive. A press only counts when it lands on a free circle, and
// the contact stays pinned to that circle's centre until released.
type PresetRegistry struct {
	circles  []Circle
	contacts map[ContactID]Contact
	taken    map[int]ContactID
}

func NewPresetRegistry(circles []Circle) *PresetRegistry {
	return &PresetRegistry{
		circles:  append([]Circle(nil), circles...),
		contacts: make(map[ContactID]Contact),
		taken:    make(map[int]ContactID),
	}
}

// Circles returns the layout for rendering.
func (r *PresetRegistry) Circles() []Circle {
	return append([]Circle(nil), r.circles...)
}

func (r *PresetRegistry) Add(id ContactID, x, y float64) bool {
	if _, ok := r.contacts[id]; ok {
		return false
	}

	for _, c := range r.circles {
		if _, busy := r.taken[c.Slot]; busy {
			continue
		}
		if math.Hypot(x-c.X, y-c.Y) > c.Radius {
			continue
		}

		r.contacts[id] = Contact{ID: id, X: c.X, Y: c.Y, Slot: c.Slot}
		r.taken[c.Slot] = id

		return true
	}

	return false
}

// Update never moves a seated contact, so there is never anything to report.
func (r *PresetRegistry) Update(ContactID, float64, float64) bool {
	return false
}

func (r *PresetRegistry) Remove(id ContactID) bool {
	c, ok := r.contacts[id]
	if !ok {
		return false
	}

	delete(r.contacts, id)
	delete(r.taken, c.Slot)

	return true
}

func (r *PresetRegistry) Clear() {
	clear(r.contacts)
	clear(r.taken)
}

func (r *PresetRegistry) Size() int {
	return len(r.contacts)
}

func (r *PresetRegistry) Snapshot() []Contact {
	out := make([]Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		out = append(out, c)
	}

	sortBySlot(out)

	return out
}
