/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package gamelog

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownPolicy = errors.New("unknown reset policy")

// Policy controls when the selection history is wiped automatically.
type Policy string

const (
	PolicyNever   Policy = "never"
	PolicySession Policy = "session"
	PolicyDaily   Policy = "daily"
	PolicyWeekly  Policy = "weekly"
	PolicyMonthly Policy = "monthly"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyNever, PolicySession, PolicyDaily, PolicyWeekly, PolicyMonthly:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// due reports whether a reset at last is stale at now. Calendar comparisons
// are made in loc.
func (p Policy) due(last, now time.Time, loc *time.Location) bool {
	last, now = last.In(loc), now.In(loc)

	switch p {
	case PolicyDaily:
		ly, lm, ld := last.Date()
		ny, nm, nd := now.Date()

		return ly != ny || lm != nm || ld != nd
	case PolicyWeekly:
		return last.Before(now.Add(-7 * 24 * time.Hour))
	case PolicyMonthly:
		return last.Year() != now.Year() || last.Month() != now.Month()
	default:
		return false
	}
}
