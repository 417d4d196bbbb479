// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for deciding which trigger days
// are due on a given date. Each policy has its own matcher.

package services

import (
	"fmt"
	"time"

	"hardline/internal/core"
)

// TriggerPolicy names a trigger-day matching strategy.
type TriggerPolicy string

const (
	// PolicyStrict matches only records whose trigger day equals today's day
	// of month. A trigger day missing from the month never fires that month.
	PolicyStrict TriggerPolicy = "strict"
	// PolicyLastDay additionally fires missing trigger days (29-31) on the
	// last day of shorter months.
	PolicyLastDay TriggerPolicy = "last_day"
)

// TriggerDayMatcher returns the trigger days that are due on today.
type TriggerDayMatcher interface {
	DaysFor(today time.Time) []int
}

// StrictMatcher implements TriggerDayMatcher with exact day matching.
type StrictMatcher struct{}

func (StrictMatcher) DaysFor(today time.Time) []int {
	return []int{today.Day()}
}

// LastDayMatcher implements TriggerDayMatcher with end-of-month rollover.
type LastDayMatcher struct{}

// DaysFor returns today's day, plus every day up to 31 when today is the last
// day of the month.
func (LastDayMatcher) DaysFor(today time.Time) []int {
	day := today.Day()
	if day != core.DaysInMonth(today) {
		return []int{day}
	}
	days := make([]int, 0, 32-day)
	for d := day; d <= 31; d++ {
		days = append(days, d)
	}
	return days
}

var triggerMatchers = map[TriggerPolicy]TriggerDayMatcher{
	PolicyStrict:  StrictMatcher{},
	PolicyLastDay: LastDayMatcher{},
}

// GetTriggerDayMatcher returns the matcher for policy. An empty policy means
// PolicyStrict.
func GetTriggerDayMatcher(policy TriggerPolicy) (TriggerDayMatcher, error) {
	if policy == "" {
		policy = PolicyStrict
	}
	m, ok := triggerMatchers[policy]
	if !ok {
		return nil, fmt.Errorf("unknown trigger policy: %s", policy)
	}
	return m, nil
}
