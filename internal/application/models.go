package application

import (
	"time"

	"github.com/example/attendance-tracker/internal/attendance"
)

// Station identifies the authenticated scan device performing a staff action.
type Station struct {
	ID   string
	Name string
}

// ScanAction is the transition a scan resolved to.
type ScanAction string

const (
	// ScanAuto lets the service pick the transition from the record's state.
	ScanAuto ScanAction = "auto"
	// ScanCheckIn enters a zone from outside.
	ScanCheckIn ScanAction = "check_in"
	// ScanCheckOut leaves the current zone.
	ScanCheckOut ScanAction = "check_out"
	// ScanSwitch leaves the current zone and enters another one at the same instant.
	ScanSwitch ScanAction = "switch"
)

// ScanParams wraps the data of one staff scan.
type ScanParams struct {
	Station      Station
	RegistrantID string
	// ZoneID is ignored for check-outs.
	ZoneID string
	Action ScanAction
}

// ScanResult is the outcome of an applied transition.
type ScanResult struct {
	Action    ScanAction
	Record    attendance.Record
	Entries   []attendance.LogEntry
	Breakdown *attendance.Breakdown
	// BadgeIssued is set when this scan handed out the registrant's badge.
	BadgeIssued *attendance.BadgeToken
}

// AttendanceSnapshot is the read-only view shown on the attendee's badge screen.
type AttendanceSnapshot struct {
	RegistrantID     string
	Status           attendance.Status
	ZoneID           string
	ZoneLabel        string
	CheckedInAt      *time.Time
	TotalMinutes     int
	ProjectedMinutes int
	GoalMinutes      int
	GoalMet          bool
	AsOf             time.Time
}

// BadgeView is the result of polling a badge token.
type BadgeView struct {
	Token attendance.BadgeToken
	// State is the effective state at AsOf.
	State attendance.BadgeState
	// Attendance is populated once the badge has been issued.
	Attendance *AttendanceSnapshot
	// RedirectTo names the replacement token of an expired voucher.
	RedirectTo string
	AsOf       time.Time
}

// Enrollment is the initial state handed out when a registrant is enrolled.
type Enrollment struct {
	Record attendance.Record
	Badge  attendance.BadgeToken
	// Created is false when the registrant was already enrolled.
	Created bool
}

// BreakInput captures a caller provided break window in "HH:MM" form.
type BreakInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ZoneRuleInput captures caller provided zone configuration.
type ZoneRuleInput struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	SessionStart string       `json:"session_start"`
	SessionEnd   string       `json:"session_end"`
	Breaks       []BreakInput `json:"breaks"`
	GoalMinutes  int          `json:"goal_minutes"`
}

// DailyRuleInput captures the configuration of one calendar date.
type DailyRuleInput struct {
	Date        string          `json:"date"`
	GoalMinutes int             `json:"goal_minutes"`
	Zones       []ZoneRuleInput `json:"zones"`
}

// RuleSeriesInput applies one rule template to every day a repeat pattern
// selects. The template's date is ignored.
type RuleSeriesInput struct {
	Template  DailyRuleInput `json:"template"`
	From      string         `json:"from"`
	Until     string         `json:"until"`
	Frequency string         `json:"frequency"`
	Weekdays  []string       `json:"weekdays"`
}
