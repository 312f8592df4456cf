package attendance

import (
	"fmt"
	"sort"
	"time"
)

// MissingRulePolicy decides how a stay is credited when no zone rule applies.
type MissingRulePolicy string

const (
	// CreditRaw credits the full unclipped stay.
	CreditRaw MissingRulePolicy = "credit_raw"
	// CreditNone credits nothing.
	CreditNone MissingRulePolicy = "credit_none"
)

// ParseMissingRulePolicy validates a configured policy name. Empty selects CreditRaw.
func ParseMissingRulePolicy(value string) (MissingRulePolicy, error) {
	switch MissingRulePolicy(value) {
	case "", CreditRaw:
		return CreditRaw, nil
	case CreditNone:
		return CreditNone, nil
	default:
		return "", fmt.Errorf("attendance: unknown missing rule policy %q", value)
	}
}

// Breakdown is the result of recognizing a single stay.
type Breakdown struct {
	RawMinutes        int
	DeductionMinutes  int
	RecognizedMinutes int
	// RuleMissing is set when no zone rule was available.
	RuleMissing bool
	// ClockAnomaly is set when the stay ended before it started.
	ClockAnomaly bool
}

// Accountant converts raw stays into recognized minutes.
type Accountant struct {
	MissingRule MissingRulePolicy
}

// Recognize uses the default Accountant.
func Recognize(rawStart, rawEnd time.Time, zone *ZoneRule, referenceDate time.Time) Breakdown {
	return Accountant{}.Recognize(rawStart, rawEnd, zone, referenceDate)
}

// Recognize clips [rawStart, rawEnd) to the zone's session window on the
// calendar date of referenceDate, then subtracts the overlap with the merged
// break intervals. Minutes are floored and the result is never negative.
func (a Accountant) Recognize(rawStart, rawEnd time.Time, zone *ZoneRule, referenceDate time.Time) Breakdown {
	var out Breakdown
	if rawEnd.Before(rawStart) {
		out.ClockAnomaly = true
		rawEnd = rawStart
	}

	if zone == nil {
		out.RuleMissing = true
		if a.MissingRule == CreditNone {
			return out
		}
		out.RawMinutes = floorMinutes(rawEnd.Sub(rawStart))
		out.RecognizedMinutes = out.RawMinutes
		return out
	}

	sessionStart := zone.SessionStart.On(referenceDate)
	sessionEnd := zone.SessionEnd.On(referenceDate)
	start := latest(rawStart, sessionStart)
	end := earliest(rawEnd, sessionEnd)
	if !end.After(start) {
		return out
	}

	out.RawMinutes = floorMinutes(end.Sub(start))
	var overlap time.Duration
	for _, b := range mergeBreaks(zone.Breaks, referenceDate) {
		bs := latest(b.start, start)
		be := earliest(b.end, end)
		if be.After(bs) {
			overlap += be.Sub(bs)
		}
	}
	out.DeductionMinutes = floorMinutes(overlap)
	if out.DeductionMinutes > out.RawMinutes {
		out.DeductionMinutes = out.RawMinutes
	}
	out.RecognizedMinutes = out.RawMinutes - out.DeductionMinutes
	return out
}

type span struct {
	start time.Time
	end   time.Time
}

// mergeBreaks anchors the breaks on referenceDate and unions overlapping or
// touching ones. Empty and inverted breaks are dropped.
func mergeBreaks(breaks []BreakInterval, referenceDate time.Time) []span {
	spans := make([]span, 0, len(breaks))
	for _, b := range breaks {
		s := span{start: b.Start.On(referenceDate), end: b.End.On(referenceDate)}
		if s.end.After(s.start) {
			spans = append(spans, s)
		}
	}
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if !s.start.After(last.end) {
			last.end = latest(last.end, s.end)
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func floorMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
