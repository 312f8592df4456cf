// Package recurrence expands a repeat pattern into the calendar days it covers.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/attendance-tracker/internal/attendance"
)

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the pattern frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily selects every day in the window, optionally filtered by weekday.
	FrequencyDaily
	// FrequencyWeekly selects the listed weekdays only.
	FrequencyWeekly
)

// MaxDays bounds how many days one pattern may expand to.
const MaxDays = 31

// ErrInvalidFrequency indicates the frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidWindow indicates Until precedes From or either bound is unset.
var ErrInvalidWindow = errors.New("recurrence: window requires from <= until")

// ErrWindowTooLong indicates the window spans more than MaxDays days.
var ErrWindowTooLong = errors.New("recurrence: window exceeds the maximum number of days")

// ErrInvalidWeekday indicates an unknown weekday name.
var ErrInvalidWeekday = errors.New("recurrence: invalid weekday")

// Pattern selects calendar days between From and Until, both inclusive.
type Pattern struct {
	Frequency Frequency
	Weekdays  []time.Weekday
	From      attendance.Date
	Until     attendance.Date
}

// ParseFrequency maps "daily" or "weekly". Empty selects daily.
func ParseFrequency(value string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	default:
		return FrequencyUnspecified, fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}
}

// ParseWeekday accepts English weekday names or their three letter prefix.
func ParseWeekday(value string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if len(v) >= 3 {
		for day := time.Sunday; day <= time.Saturday; day++ {
			name := strings.ToLower(day.String())
			if v == name || v == name[:3] {
				return day, nil
			}
		}
	}
	return time.Sunday, fmt.Errorf("%w: %q", ErrInvalidWeekday, value)
}

// Days expands p into chronologically ordered dates.
//
// Weekly patterns with no weekdays select nothing. Daily patterns with
// weekdays keep only those weekdays.
func Days(p Pattern) ([]attendance.Date, error) {
	if p.From.IsZero() || p.Until.IsZero() {
		return nil, ErrInvalidWindow
	}
	// Noon UTC keeps AddDate away from any offset change.
	current := at(p.From)
	last := at(p.Until)
	if last.Before(current) {
		return nil, ErrInvalidWindow
	}
	if span := int(last.Sub(current).Hours()/24) + 1; span > MaxDays {
		return nil, fmt.Errorf("%w: %d > %d", ErrWindowTooLong, span, MaxDays)
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(p.Weekdays))
	for _, day := range p.Weekdays {
		weekdaySet[day] = struct{}{}
	}

	days := make([]attendance.Date, 0)
	for ; !current.After(last); current = current.AddDate(0, 0, 1) {
		include, err := shouldInclude(p.Frequency, weekdaySet, current.Weekday())
		if err != nil {
			return nil, err
		}
		if include {
			days = append(days, attendance.DateOf(current, nil))
		}
	}
	return days, nil
}

func at(d attendance.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
}

func shouldInclude(freq Frequency, weekdaySet map[time.Weekday]struct{}, day time.Weekday) (bool, error) {
	switch freq {
	case FrequencyDaily:
		if len(weekdaySet) == 0 {
			return true, nil
		}
		_, ok := weekdaySet[day]
		return ok, nil
	case FrequencyWeekly:
		if len(weekdaySet) == 0 {
			return false, nil
		}
		_, ok := weekdaySet[day]
		return ok, nil
	case FrequencyUnspecified:
		fallthrough
	default:
		return false, ErrInvalidFrequency
	}
}
