package http

import (
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
)

type recordDTO struct {
	RegistrantID           string     `json:"registrant_id"`
	Status                 string     `json:"status"`
	ZoneID                 string     `json:"zone_id,omitempty"`
	LastCheckIn            *time.Time `json:"last_check_in,omitempty"`
	TotalRecognizedMinutes int        `json:"total_recognized_minutes"`
	GoalMet                bool       `json:"goal_met"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func toRecordDTO(rec attendance.Record) recordDTO {
	return recordDTO{
		RegistrantID:           rec.RegistrantID,
		Status:                 string(rec.Status),
		ZoneID:                 rec.CurrentZoneID,
		LastCheckIn:            rec.LastCheckIn,
		TotalRecognizedMinutes: rec.TotalRecognizedMinutes,
		GoalMet:                rec.GoalMet,
		UpdatedAt:              rec.UpdatedAt,
	}
}

type logEntryDTO struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Timestamp         time.Time `json:"timestamp"`
	ZoneID            string    `json:"zone_id"`
	RawMinutes        *int      `json:"raw_minutes,omitempty"`
	DeductionMinutes  *int      `json:"deduction_minutes,omitempty"`
	RecognizedMinutes *int      `json:"recognized_minutes,omitempty"`
}

func toLogEntryDTOs(entries []attendance.LogEntry) []logEntryDTO {
	out := make([]logEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dto := logEntryDTO{
			ID:        entry.ID,
			Type:      string(entry.Type),
			Timestamp: entry.Timestamp,
			ZoneID:    entry.ZoneID,
		}
		if entry.Type == attendance.EntryExit {
			raw, deduction, recognized := entry.RawMinutes, entry.DeductionMinutes, entry.RecognizedMinutes
			dto.RawMinutes, dto.DeductionMinutes, dto.RecognizedMinutes = &raw, &deduction, &recognized
		}
		out = append(out, dto)
	}
	return out
}

type breakdownDTO struct {
	RawMinutes        int  `json:"raw_minutes"`
	DeductionMinutes  int  `json:"deduction_minutes"`
	RecognizedMinutes int  `json:"recognized_minutes"`
	RuleMissing       bool `json:"rule_missing,omitempty"`
	ClockAnomaly      bool `json:"clock_anomaly,omitempty"`
}

type badgeDTO struct {
	Token        string     `json:"token"`
	RegistrantID string     `json:"registrant_id"`
	State        string     `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IssuedAt     *time.Time `json:"issued_at,omitempty"`
	ReplacedBy   string     `json:"replaced_by,omitempty"`
}

func toBadgeDTO(token attendance.BadgeToken) badgeDTO {
	return badgeDTO{
		Token:        token.ID,
		RegistrantID: token.RegistrantID,
		State:        string(token.State),
		CreatedAt:    token.CreatedAt,
		ExpiresAt:    token.ExpiresAt,
		IssuedAt:     token.IssuedAt,
		ReplacedBy:   token.ReplacedBy,
	}
}

type scanResponse struct {
	Action      string        `json:"action"`
	Record      recordDTO     `json:"record"`
	Entries     []logEntryDTO `json:"entries"`
	Breakdown   *breakdownDTO `json:"breakdown,omitempty"`
	BadgeIssued *badgeDTO     `json:"badge_issued,omitempty"`
}

func toScanResponse(result application.ScanResult) scanResponse {
	resp := scanResponse{
		Action:  string(result.Action),
		Record:  toRecordDTO(result.Record),
		Entries: toLogEntryDTOs(result.Entries),
	}
	if b := result.Breakdown; b != nil {
		resp.Breakdown = &breakdownDTO{
			RawMinutes:        b.RawMinutes,
			DeductionMinutes:  b.DeductionMinutes,
			RecognizedMinutes: b.RecognizedMinutes,
			RuleMissing:       b.RuleMissing,
			ClockAnomaly:      b.ClockAnomaly,
		}
	}
	if result.BadgeIssued != nil {
		badge := toBadgeDTO(*result.BadgeIssued)
		resp.BadgeIssued = &badge
	}
	return resp
}

type snapshotDTO struct {
	RegistrantID     string     `json:"registrant_id"`
	Status           string     `json:"status"`
	ZoneID           string     `json:"zone_id,omitempty"`
	ZoneLabel        string     `json:"zone_label,omitempty"`
	CheckedInAt      *time.Time `json:"checked_in_at,omitempty"`
	TotalMinutes     int        `json:"total_minutes"`
	ProjectedMinutes int        `json:"projected_minutes"`
	GoalMinutes      int        `json:"goal_minutes"`
	GoalMet          bool       `json:"goal_met"`
	AsOf             time.Time  `json:"as_of"`
}

func toSnapshotDTO(s application.AttendanceSnapshot) snapshotDTO {
	return snapshotDTO{
		RegistrantID:     s.RegistrantID,
		Status:           string(s.Status),
		ZoneID:           s.ZoneID,
		ZoneLabel:        s.ZoneLabel,
		CheckedInAt:      s.CheckedInAt,
		TotalMinutes:     s.TotalMinutes,
		ProjectedMinutes: s.ProjectedMinutes,
		GoalMinutes:      s.GoalMinutes,
		GoalMet:          s.GoalMet,
		AsOf:             s.AsOf,
	}
}

type badgeViewDTO struct {
	Badge      badgeDTO     `json:"badge"`
	State      string       `json:"state"`
	Attendance *snapshotDTO `json:"attendance,omitempty"`
	RedirectTo string       `json:"redirect_to,omitempty"`
	AsOf       time.Time    `json:"as_of"`
}

func toBadgeViewDTO(view application.BadgeView) badgeViewDTO {
	dto := badgeViewDTO{
		Badge:      toBadgeDTO(view.Token),
		State:      string(view.State),
		RedirectTo: view.RedirectTo,
		AsOf:       view.AsOf,
	}
	if view.Attendance != nil {
		snapshot := toSnapshotDTO(*view.Attendance)
		dto.Attendance = &snapshot
	}
	return dto
}

type enrollmentResponse struct {
	Record recordDTO `json:"record"`
	Badge  badgeDTO  `json:"badge"`
}

// toRuleDTO renders a stored rule in the same shape PUT accepts.
func toRuleDTO(rule attendance.DailyRule) application.DailyRuleInput {
	out := application.DailyRuleInput{
		Date:        rule.Date.String(),
		GoalMinutes: rule.GoalMinutes,
		Zones:       make([]application.ZoneRuleInput, 0, len(rule.Zones)),
	}
	for _, zone := range rule.Zones {
		z := application.ZoneRuleInput{
			ID:           zone.ID,
			Name:         zone.Name,
			SessionStart: zone.SessionStart.String(),
			SessionEnd:   zone.SessionEnd.String(),
			Breaks:       make([]application.BreakInput, 0, len(zone.Breaks)),
			GoalMinutes:  zone.GoalMinutes,
		}
		for _, b := range zone.Breaks {
			z.Breaks = append(z.Breaks, application.BreakInput{Start: b.Start.String(), End: b.End.String()})
		}
		out.Zones = append(out.Zones, z)
	}
	return out
}
