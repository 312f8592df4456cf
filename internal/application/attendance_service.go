package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence"
)

// AttendanceStore captures the persistence operations needed by the attendance service.
type AttendanceStore interface {
	persistence.Transactor
	persistence.RecordRepository
	persistence.BadgeRepository
}

// AttendanceOptions carries the optional collaborators of AttendanceService.
type AttendanceOptions struct {
	Logger  *slog.Logger
	Metrics Metrics
	// VoucherTTL bounds how long an enrollment voucher stays ACTIVE. Zero never expires.
	VoucherTTL time.Duration
	Ticker     *Ticker
}

// AttendanceService applies staff scans to attendance records and serves the
// read-only attendee views.
type AttendanceService struct {
	store       AttendanceStore
	rules       RuleSource
	machine     *attendance.Machine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	metrics     Metrics
	voucherTTL  time.Duration
	ticker      *Ticker
}

// NewAttendanceService constructs an attendance service with the provided dependencies.
func NewAttendanceService(store AttendanceStore, rules RuleSource, machine *attendance.Machine, idGenerator func() string, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithOptions(store, rules, machine, idGenerator, now, AttendanceOptions{})
}

// NewAttendanceServiceWithOptions constructs an attendance service with logger, metrics and voucher settings.
func NewAttendanceServiceWithOptions(store AttendanceStore, rules RuleSource, machine *attendance.Machine, idGenerator func() string, now func() time.Time, opts AttendanceOptions) *AttendanceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if machine == nil {
		machine = attendance.NewMachine(time.UTC, attendance.CreditRaw)
	}
	ticker := opts.Ticker
	if ticker == nil {
		ticker = NewTicker(DefaultProjectionInterval)
	}
	return &AttendanceService{
		store:       store,
		rules:       rules,
		machine:     machine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(opts.Logger),
		metrics:     defaultMetrics(opts.Metrics),
		voucherTTL:  opts.VoucherTTL,
		ticker:      ticker,
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// Enroll creates the OUTSIDE record and the ACTIVE badge voucher of a
// registrant. Enrolling an existing registrant returns the stored state.
func (s *AttendanceService) Enroll(ctx context.Context, station Station, registrantID string) (enrollment Enrollment, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	registrantID = strings.TrimSpace(registrantID)

	ctx, span := startSpan(ctx, "AttendanceService.Enroll", attribute.String("registrant.id", registrantID))
	logger := s.loggerWith(ctx, "Enroll",
		"station_id", station.ID,
		"registrant_id", registrantID,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to enroll registrant", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "registrant enrolled", "badge_token", enrollment.Badge.ID, "created", enrollment.Created)
	}()

	if station.ID == "" {
		err = ErrUnauthorized
		return
	}
	if registrantID == "" {
		vErr := &ValidationError{}
		vErr.add("registrant_id", "registrant_id is required")
		err = vErr
		return
	}
	if s.store == nil {
		err = fmt.Errorf("attendance store not configured")
		return
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.now()
		record, getErr := s.store.GetRecord(ctx, registrantID)
		switch {
		case getErr == nil:
			enrollment.Record = record
		case errors.Is(getErr, persistence.ErrNotFound):
			record = attendance.NewRecord(registrantID, now)
			if createErr := s.store.CreateRecord(ctx, record); createErr != nil {
				return mapRepoError(createErr)
			}
			enrollment.Record = record
			enrollment.Created = true
		default:
			return getErr
		}

		if !enrollment.Created {
			token, badgeErr := s.store.LatestBadgeForRegistrant(ctx, registrantID)
			if badgeErr == nil {
				enrollment.Badge = token
				return nil
			}
			if !errors.Is(badgeErr, persistence.ErrNotFound) {
				return badgeErr
			}
		}

		token := attendance.NewVoucher(s.idGenerator(), registrantID, now, s.voucherTTL)
		if createErr := s.store.CreateBadge(ctx, token); createErr != nil {
			return mapRepoError(createErr)
		}
		enrollment.Badge = token
		return nil
	})
	return
}

// CheckIn enters zoneID from outside.
func (s *AttendanceService) CheckIn(ctx context.Context, station Station, registrantID, zoneID string) (ScanResult, error) {
	return s.Scan(ctx, ScanParams{Station: station, RegistrantID: registrantID, ZoneID: zoneID, Action: ScanCheckIn})
}

// CheckOut closes the registrant's open stay.
func (s *AttendanceService) CheckOut(ctx context.Context, station Station, registrantID string) (ScanResult, error) {
	return s.Scan(ctx, ScanParams{Station: station, RegistrantID: registrantID, Action: ScanCheckOut})
}

// SwitchZone moves an INSIDE registrant to zoneID at a single instant.
func (s *AttendanceService) SwitchZone(ctx context.Context, station Station, registrantID, zoneID string) (ScanResult, error) {
	return s.Scan(ctx, ScanParams{Station: station, RegistrantID: registrantID, ZoneID: zoneID, Action: ScanSwitch})
}

// Scan applies one staff scan. With ScanAuto the transition is chosen from the
// record read inside the transaction: check-in when outside, check-out when
// inside the scanned zone and switch when inside another zone.
func (s *AttendanceService) Scan(ctx context.Context, params ScanParams) (result ScanResult, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	params.RegistrantID = strings.TrimSpace(params.RegistrantID)
	params.ZoneID = strings.TrimSpace(params.ZoneID)
	if params.Action == "" {
		params.Action = ScanAuto
	}

	ctx, span := startSpan(ctx, "AttendanceService.Scan",
		attribute.String("registrant.id", params.RegistrantID),
		attribute.String("zone.id", params.ZoneID),
		attribute.String("scan.action", string(params.Action)),
	)
	logger := s.loggerWith(ctx, "Scan",
		"station_id", params.Station.ID,
		"registrant_id", params.RegistrantID,
		"zone_id", params.ZoneID,
		"requested_action", string(params.Action),
	)
	defer func() {
		s.metrics.ObserveTransition(result.Action, err)
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to apply scan", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "scan applied",
			"action", string(result.Action),
			"status", string(result.Record.Status),
			"total_minutes", result.Record.TotalRecognizedMinutes,
			"goal_met", result.Record.GoalMet,
		)
	}()

	if params.Station.ID == "" {
		err = ErrUnauthorized
		return
	}
	if vErr := validateScanParams(params); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.store == nil {
		err = fmt.Errorf("attendance store not configured")
		return
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		var txErr error
		result, txErr = s.applyScan(ctx, logger, params)
		return txErr
	})
	if err != nil {
		result = ScanResult{Action: result.Action}
	}
	return
}

func validateScanParams(params ScanParams) *ValidationError {
	vErr := &ValidationError{}
	if params.RegistrantID == "" {
		vErr.add("registrant_id", "registrant_id is required")
	}
	switch params.Action {
	case ScanCheckIn, ScanSwitch:
		if params.ZoneID == "" {
			vErr.add("zone_id", "zone_id is required")
		}
	case ScanCheckOut, ScanAuto:
	default:
		vErr.add("action", "action must be one of auto, check_in, check_out, switch")
	}
	return vErr
}

func resolveScanAction(rec attendance.Record, params ScanParams) (ScanAction, error) {
	if params.Action != ScanAuto {
		return params.Action, nil
	}
	switch {
	case !rec.Inside():
		if params.ZoneID == "" {
			vErr := &ValidationError{}
			vErr.add("zone_id", "zone_id is required")
			return ScanAuto, vErr
		}
		return ScanCheckIn, nil
	case params.ZoneID == "" || params.ZoneID == rec.CurrentZoneID:
		return ScanCheckOut, nil
	default:
		return ScanSwitch, nil
	}
}

func (s *AttendanceService) applyScan(ctx context.Context, logger *slog.Logger, params ScanParams) (ScanResult, error) {
	var result ScanResult

	rec, err := s.store.GetRecord(ctx, params.RegistrantID)
	if err != nil {
		return result, mapRepoError(err)
	}
	action, err := resolveScanAction(rec, params)
	result.Action = action
	if err != nil {
		return result, err
	}

	now := s.now()
	var transition attendance.Transition
	switch action {
	case ScanCheckIn:
		rule, ruleErr := s.ruleFor(ctx, logger, attendance.DateOf(now, s.machine.Location()))
		if ruleErr != nil {
			return result, ruleErr
		}
		transition, err = s.machine.CheckIn(rec, params.ZoneID, now, rule)
	case ScanCheckOut:
		rule, ruleErr := s.stayRule(ctx, logger, rec)
		if ruleErr != nil {
			return result, ruleErr
		}
		transition, err = s.machine.CheckOut(rec, now, rule)
	case ScanSwitch:
		exitRule, ruleErr := s.stayRule(ctx, logger, rec)
		if ruleErr != nil {
			return result, ruleErr
		}
		enterRule := exitRule
		today := attendance.DateOf(now, s.machine.Location())
		if exitRule == nil || exitRule.Date != today {
			if enterRule, ruleErr = s.ruleFor(ctx, logger, today); ruleErr != nil {
				return result, ruleErr
			}
		}
		transition, err = s.machine.SwitchZone(rec, params.ZoneID, now, exitRule, enterRule)
	}
	if err != nil {
		return result, err
	}

	if err := s.store.UpdateRecord(ctx, transition.Record); err != nil {
		return result, mapRepoError(err)
	}
	entries := make([]attendance.LogEntry, 0, len(transition.Entries))
	for _, entry := range transition.Entries {
		entry.ID = s.idGenerator()
		if err := s.store.AppendLog(ctx, entry); err != nil {
			return result, mapRepoError(err)
		}
		entries = append(entries, entry)
	}

	if breakdown := transition.Breakdown; breakdown != nil {
		zoneID := rec.CurrentZoneID
		if breakdown.RuleMissing {
			logger.WarnContext(ctx, "no zone rule for stay, applied missing rule policy",
				"stay_zone_id", zoneID,
				"raw_minutes", breakdown.RawMinutes,
				"recognized_minutes", breakdown.RecognizedMinutes,
			)
		}
		if breakdown.ClockAnomaly {
			logger.WarnContext(ctx, "check-out precedes check-in, stay clamped to zero",
				"stay_zone_id", zoneID,
				"check_in", rec.LastCheckIn,
				"check_out", now,
			)
		}
		s.metrics.ObserveCheckOut(zoneID, *breakdown)
		if transition.Record.GoalMet && !rec.GoalMet {
			s.metrics.ObserveGoalMet()
		}
	}

	if transition.Record.Inside() {
		issued, err := s.issueOnEntry(ctx, logger, params.RegistrantID, now)
		if err != nil {
			return result, err
		}
		result.BadgeIssued = issued
	}

	result.Record = transition.Record
	result.Entries = entries
	result.Breakdown = transition.Breakdown
	return result, nil
}

// issueOnEntry hands out the registrant's badge on the first check-in.
func (s *AttendanceService) issueOnEntry(ctx context.Context, logger *slog.Logger, registrantID string, now time.Time) (*attendance.BadgeToken, error) {
	token, err := s.store.LatestBadgeForRegistrant(ctx, registrantID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	from := token.EffectiveState(now)
	next, changed, err := token.Issue(now)
	if errors.Is(err, attendance.ErrBadgeExpired) {
		logger.InfoContext(ctx, "badge voucher expired, left for reissue", "badge_token", token.ID)
		return nil, nil
	}
	if err != nil || !changed {
		return nil, err
	}
	if err := s.store.UpdateBadge(ctx, next); err != nil {
		return nil, mapRepoError(err)
	}
	s.metrics.ObserveBadgeTransition(from, next.State)
	logger.InfoContext(ctx, "badge issued on first check-in", "badge_token", next.ID)
	return &next, nil
}

// stayRule resolves the DailyRule of the record's reference date.
func (s *AttendanceService) stayRule(ctx context.Context, logger *slog.Logger, rec attendance.Record) (*attendance.DailyRule, error) {
	date, ok := s.machine.ReferenceDate(rec)
	if !ok {
		return nil, nil
	}
	return s.ruleFor(ctx, logger, date)
}

func (s *AttendanceService) ruleFor(ctx context.Context, logger *slog.Logger, date attendance.Date) (*attendance.DailyRule, error) {
	if s.rules == nil {
		logger.WarnContext(ctx, "no rule source configured", "date", date.String())
		return nil, nil
	}
	rule, err := s.rules.Lookup(ctx, date)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		logger.WarnContext(ctx, "no daily rule configured", "date", date.String())
	}
	return rule, nil
}

// Status returns the live attendance view of a registrant. at overrides the
// projection instant for display clients and is never persisted.
func (s *AttendanceService) Status(ctx context.Context, registrantID string, at *time.Time) (snapshot AttendanceSnapshot, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("attendance store not configured")
		return
	}

	rec, err := s.store.GetRecord(ctx, registrantID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	asOf := s.now()
	if at != nil {
		asOf = *at
	}

	date, ok := s.machine.ReferenceDate(rec)
	if !ok {
		date = attendance.DateOf(asOf, s.machine.Location())
	}
	var rule *attendance.DailyRule
	if s.rules != nil {
		if rule, err = s.rules.Lookup(ctx, date); err != nil {
			return
		}
	}

	snapshot = AttendanceSnapshot{
		RegistrantID:     rec.RegistrantID,
		Status:           rec.Status,
		ZoneID:           rec.CurrentZoneID,
		TotalMinutes:     rec.TotalRecognizedMinutes,
		ProjectedMinutes: s.machine.Project(rec, rule, asOf),
		GoalMinutes:      attendance.ApplicableGoal(rec.CurrentZoneID, rule),
		GoalMet:          rec.GoalMet,
		AsOf:             asOf,
	}
	if rec.LastCheckIn != nil {
		checkedIn := *rec.LastCheckIn
		snapshot.CheckedInAt = &checkedIn
	}
	if rec.Inside() {
		snapshot.ZoneLabel = rec.CurrentZoneID
		if zone, found := rule.Zone(rec.CurrentZoneID); found {
			snapshot.ZoneLabel = zone.DisplayName()
		}
	}
	return
}

// WatchStatus emits the live view immediately and on every projection tick
// until ctx is cancelled.
func (s *AttendanceService) WatchStatus(ctx context.Context, registrantID string, emit func(AttendanceSnapshot) error) error {
	if s == nil {
		return fmt.Errorf("AttendanceService is nil")
	}
	return s.ticker.Watch(ctx, func(ctx context.Context) error {
		snapshot, err := s.Status(ctx, registrantID, nil)
		if err != nil {
			return err
		}
		return emit(snapshot)
	})
}

// Log returns the append-only attendance log of a registrant.
func (s *AttendanceService) Log(ctx context.Context, registrantID string) (entries []attendance.LogEntry, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	if s.store == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "Log", "registrant_id", registrantID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list attendance log", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "attendance log listed", "entries", len(entries))
	}()

	if _, err = s.store.GetRecord(ctx, registrantID); err != nil {
		err = mapRepoError(err)
		return
	}
	entries, err = s.store.ListLog(ctx, registrantID)
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// Occupants lists the registrants currently inside zoneID.
func (s *AttendanceService) Occupants(ctx context.Context, zoneID string) ([]attendance.Record, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}
	if s.store == nil {
		return nil, nil
	}
	records, err := s.store.ListRecords(ctx, persistence.RecordFilter{Status: attendance.StatusInside, ZoneID: zoneID})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return records, nil
}
