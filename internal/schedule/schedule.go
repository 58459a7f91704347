// Package schedule computes recurring market opening instants from a
// recurrence rule. It is a leaf with no dependencies beyond the domain types.
package schedule

import (
	"time"

	"github.com/gridsim/marketsim/internal/domain"
)

// Next returns the first occurrence of the rule strictly after ref, or false
// when the rule has no further occurrences.
func Next(rule domain.Recurrence, ref time.Time) (time.Time, bool) {
	if !ref.Before(rule.Start) {
		// Jump to the first multiple of Interval after ref.
		elapsed := ref.Sub(rule.Start)
		steps := elapsed/rule.Interval + 1
		ref = rule.Start.Add(steps * rule.Interval)
	} else {
		ref = rule.Start
	}
	if rule.Bounded() && ref.After(rule.Until) {
		return time.Time{}, false
	}
	return ref, true
}

// First returns the first occurrence at or after ref, or false when none
// exists. Used for the initial timer of a freshly constructed market.
func First(rule domain.Recurrence, ref time.Time) (time.Time, bool) {
	if !ref.After(rule.Start) {
		if rule.Bounded() && rule.Start.After(rule.Until) {
			return time.Time{}, false
		}
		return rule.Start, true
	}
	return Next(rule, ref.Add(-time.Nanosecond))
}

// NextOpening returns the next opening and matching closing instant after
// ref. An opening whose closing instant would exceed the rule's end bound is
// suppressed entirely, so a market never opens a period it cannot fully close
// within bounds.
func NextOpening(rule domain.Recurrence, openDuration time.Duration, ref time.Time) (open, closing time.Time, ok bool) {
	open, ok = Next(rule, ref)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	closing = open.Add(openDuration)
	if rule.Bounded() && closing.After(rule.Until) {
		return time.Time{}, time.Time{}, false
	}
	return open, closing, true
}

// FirstOpening is NextOpening with at-or-after semantics for the initial
// call.
func FirstOpening(rule domain.Recurrence, openDuration time.Duration, ref time.Time) (open, closing time.Time, ok bool) {
	open, ok = First(rule, ref)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	closing = open.Add(openDuration)
	if rule.Bounded() && closing.After(rule.Until) {
		return time.Time{}, time.Time{}, false
	}
	return open, closing, true
}
