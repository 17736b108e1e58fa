package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRule is returned when a recurrence expression cannot be parsed
// or can never match a calendar date.
var ErrMalformedRule = errors.New("malformed recurrence rule")

// ErrNoOccurrence is returned when a rule has no occurrence inside the search horizon.
var ErrNoOccurrence = errors.New("recurrence rule has no upcoming occurrence")

const wildcard = -1

// searchDays covers a full Gregorian cycle, so every satisfiable
// day-of-month/month/day-of-week combination is found.
const searchDays = 146097

type fieldSpec struct {
	name     string
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12},
	{name: "day-of-week", min: 0, max: 7},
}

// Rule is a restricted five-field cron expression:
//
//	minute hour day-of-month month day-of-week
//
// Every field is either "*" or a single integer. Ranges, lists and steps are
// not supported. Day-of-week accepts 0-7 where both 0 and 7 mean Sunday.
//
// Unlike classic cron, a rule that restricts both day-of-month and
// day-of-week matches only dates satisfying both constraints (AND, not OR).
// "0 9 13 * 5" therefore fires on Friday the 13th only.
type Rule struct {
	Minute     int
	Hour       int
	DayOfMonth int
	Month      int
	DayOfWeek  int
}

// ParseRule parses expr into a Rule. Any error wraps ErrMalformedRule.
func ParseRule(expr string) (Rule, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(fieldSpecs) {
		return Rule{}, fmt.Errorf("%w: %q: expected 5 fields, got %d", ErrMalformedRule, expr, len(parts))
	}

	var values [5]int
	for i, part := range parts {
		v, err := parseField(part, fieldSpecs[i])
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %q: %v", ErrMalformedRule, expr, err)
		}
		values[i] = v
	}
	if values[4] == 7 {
		values[4] = 0
	}

	rule := Rule{
		Minute:     values[0],
		Hour:       values[1],
		DayOfMonth: values[2],
		Month:      values[3],
		DayOfWeek:  values[4],
	}
	if rule.Month != wildcard && rule.DayOfMonth != wildcard && rule.DayOfMonth > maxDaysInMonth(time.Month(rule.Month)) {
		return Rule{}, fmt.Errorf("%w: %q: day %d never occurs in month %d", ErrMalformedRule, expr, rule.DayOfMonth, rule.Month)
	}
	return rule, nil
}

func parseField(raw string, spec fieldSpec) (int, error) {
	if raw == "*" {
		return wildcard, nil
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%s field %q must be '*' or a number", spec.name, raw)
		}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s field %q: %v", spec.name, raw, err)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("%s field %d out of range %d-%d", spec.name, v, spec.min, spec.max)
	}
	return v, nil
}

// String renders the rule back to its five-field form.
func (r Rule) String() string {
	fields := []int{r.Minute, r.Hour, r.DayOfMonth, r.Month, r.DayOfWeek}
	out := make([]string, len(fields))
	for i, v := range fields {
		if v == wildcard {
			out[i] = "*"
		} else {
			out[i] = strconv.Itoa(v)
		}
	}
	return strings.Join(out, " ")
}

// Matches reports whether t, read in its own location, satisfies every
// constrained field of the rule. Seconds are ignored.
func (r Rule) Matches(t time.Time) bool {
	return r.matchesDate(t.Month(), t.Day(), t.Weekday()) &&
		fieldMatches(r.Hour, t.Hour()) &&
		fieldMatches(r.Minute, t.Minute())
}

// Next returns the earliest minute-aligned instant strictly after the given
// time that satisfies the rule. Wall-clock fields are evaluated in
// after.Location(). Local times skipped by a DST transition never match.
func (r Rule) Next(after time.Time) (time.Time, bool) {
	loc := after.Location()
	y, mo, d := after.Date()
	h, mi, _ := after.Clock()
	first := time.Date(y, mo, d, h, mi+1, 0, 0, loc)

	fy, fm, fd := first.Date()
	startHour, startMinute := first.Hour(), first.Minute()
	day0 := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)

	hours := candidates(r.Hour, 23)
	minutes := candidates(r.Minute, 59)

	for i := 0; i < searchDays; i++ {
		day := day0.AddDate(0, 0, i)
		if !r.matchesDate(day.Month(), day.Day(), day.Weekday()) {
			continue
		}
		for _, hour := range hours {
			if i == 0 && hour < startHour {
				continue
			}
			for _, minute := range minutes {
				if i == 0 && hour == startHour && minute < startMinute {
					continue
				}
				t := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
				if t.Day() != day.Day() || t.Hour() != hour || t.Minute() != minute {
					continue
				}
				if t.After(after) {
					return t, true
				}
			}
		}
	}
	return time.Time{}, false
}

func (r Rule) matchesDate(month time.Month, day int, weekday time.Weekday) bool {
	return fieldMatches(r.Month, int(month)) &&
		fieldMatches(r.DayOfMonth, day) &&
		fieldMatches(r.DayOfWeek, int(weekday))
}

func fieldMatches(constraint, value int) bool {
	return constraint == wildcard || constraint == value
}

func candidates(constraint, limit int) []int {
	if constraint != wildcard {
		return []int{constraint}
	}
	out := make([]int, limit+1)
	for i := range out {
		out[i] = i
	}
	return out
}

func maxDaysInMonth(m time.Month) int {
	switch m {
	case time.February:
		return 29
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}
