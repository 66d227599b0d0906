/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package roulette

import (
	"math/rand/v2"
)

// Selector picks the winner of a round.
type Selector interface {
	Select(contacts []Contact) (Contact, bool)
}

// RandomSelector draws uniformly over the contacts ordered by slot.
type RandomSelector struct {
	rng *rand.Rand
}

// NewRandomSelector uses rng when given, or the runtime's seeded source.
func NewRandomSelector(rng *rand.Rand) *RandomSelector {
	return &RandomSelector{rng: rng}
}

// Select returns false only for an empty input. The input is left untouched.
func (s *RandomSelector) Select(contacts []Contact) (Contact, bool) {
	if len(contacts) == 0 {
		return Contact{}, false
	}

	ordered := append([]Contact(nil), contacts...)
	sortBySlot(ordered)

	return ordered[s.intN(len(ordered))], true
}

func (s *RandomSelector) intN(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}

	return s.rng.IntN(n)
}
