/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

/*
Package roulette is the core of the finger roulette game.

Players put a finger (or hold the mouse) on a shared board. When the first one
lands, a short countdown starts; when it runs out, one of the contacts still
down is picked at random and revealed, and after a hold the board clears for
the next round.

# Pieces

  - Registry: the active contacts. PointerRegistry numbers contacts with the
    lowest free slot as they arrive; PresetRegistry seats them on a fixed ring
    of circles.
  - Machine: the round state machine, waiting → countdown → revealing → waiting.
  - Selector: the uniform random pick.
  - Scheduler: the countdown ticker and the reveal-hold timer.
  - Table: the event loop that owns one board and fans out View and Cue
    events to subscribers.

# Departures

By default a countdown is only abandoned when every contact has left before
the final tick is due. If the board empties just as the final tick fires, the
winner is drawn from the last set of contacts seen during the countdown.
AbortPolicy switches between this and the stricter or looser variants.
*/
package roulette
