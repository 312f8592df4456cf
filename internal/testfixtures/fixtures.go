package testfixtures

import (
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
)

// eventLocation is a fixed +09:00 zone so fixtures do not depend on tzdata.
var eventLocation = time.FixedZone("JST", 9*60*60)

var referenceTime = time.Date(2024, time.October, 3, 9, 0, 0, 0, eventLocation)

// ReferenceTime returns the canonical baseline timestamp used by fixtures:
// 09:00 on the first conference day.
func ReferenceTime() time.Time {
	return referenceTime
}

// EventLocation returns the time zone fixtures are anchored in.
func EventLocation() *time.Location {
	return eventLocation
}

// ReferenceDate returns the calendar date of ReferenceTime.
func ReferenceDate() attendance.Date {
	return attendance.DateOf(referenceTime, eventLocation)
}

// At returns hour:minute on the reference date.
func At(hour, minute int) time.Time {
	return time.Date(2024, time.October, 3, hour, minute, 0, 0, eventLocation)
}

// ----------------------------- Rule fixtures -----------------------------

// RuleOption configures the generated daily rule fixture.
type RuleOption func(*attendance.DailyRule)

// NewDailyRule returns the reference conference day: the main hall runs
// 09:00-17:00 with a 12:00-13:00 lunch break and the workshop room runs
// 10:00-16:00 with its own 60 minute goal. The event-wide goal is 120 minutes.
func NewDailyRule(opts ...RuleOption) attendance.DailyRule {
	rule := attendance.DailyRule{
		Date:        ReferenceDate(),
		GoalMinutes: 120,
		Zones: []attendance.ZoneRule{
			{
				ID:           "hall-a",
				Name:         "Main Hall",
				SessionStart: attendance.Clock(9, 0),
				SessionEnd:   attendance.Clock(17, 0),
				Breaks: []attendance.BreakInterval{
					{Start: attendance.Clock(12, 0), End: attendance.Clock(13, 0)},
				},
			},
			{
				ID:           "workshop",
				Name:         "Workshop Room",
				SessionStart: attendance.Clock(10, 0),
				SessionEnd:   attendance.Clock(16, 0),
				GoalMinutes:  60,
			},
		},
	}
	for _, opt := range opts {
		opt(&rule)
	}
	return rule
}

// WithRuleDate overrides the date of the rule.
func WithRuleDate(date attendance.Date) RuleOption {
	return func(r *attendance.DailyRule) {
		r.Date = date
	}
}

// WithGoal overrides the event-wide goal.
func WithGoal(minutes int) RuleOption {
	return func(r *attendance.DailyRule) {
		r.GoalMinutes = minutes
	}
}

// WithZone appends a zone to the rule.
func WithZone(zone attendance.ZoneRule) RuleOption {
	return func(r *attendance.DailyRule) {
		r.Zones = append(r.Zones, zone)
	}
}

// WithoutZones clears the configured zones.
func WithoutZones() RuleOption {
	return func(r *attendance.DailyRule) {
		r.Zones = nil
	}
}

// RuleInput converts a rule into the payload accepted by RuleService.PutDailyRule.
func RuleInput(rule attendance.DailyRule) application.DailyRuleInput {
	input := application.DailyRuleInput{
		Date:        rule.Date.String(),
		GoalMinutes: rule.GoalMinutes,
	}
	for _, zone := range rule.Zones {
		zoneInput := application.ZoneRuleInput{
			ID:           zone.ID,
			Name:         zone.Name,
			SessionStart: zone.SessionStart.String(),
			SessionEnd:   zone.SessionEnd.String(),
			GoalMinutes:  zone.GoalMinutes,
		}
		for _, b := range zone.Breaks {
			zoneInput.Breaks = append(zoneInput.Breaks, application.BreakInput{Start: b.Start.String(), End: b.End.String()})
		}
		input.Zones = append(input.Zones, zoneInput)
	}
	return input
}

// Station returns the scan station used by service and handler tests.
func Station() application.Station {
	return application.Station{ID: "door-1", Name: "Main Hall door"}
}
