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
	"github.com/example/attendance-tracker/internal/recurrence"
)

// RuleRepository captures the persistence operations needed by the rule service.
type RuleRepository interface {
	PutDailyRule(ctx context.Context, rule attendance.DailyRule) error
	GetDailyRule(ctx context.Context, date attendance.Date) (attendance.DailyRule, error)
}

// RuleSource resolves the DailyRule of a calendar date. A nil rule with a nil
// error means no rule is configured for that date.
type RuleSource interface {
	Lookup(ctx context.Context, date attendance.Date) (*attendance.DailyRule, error)
}

// RuleCacheConfig sizes the read-through rule cache.
type RuleCacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// RuleService authors and serves the per-day zone configuration.
type RuleService struct {
	rules  RuleRepository
	cache  *ruleCache
	logger *slog.Logger
}

// NewRuleService constructs a rule service with the provided repository.
func NewRuleService(rules RuleRepository, cache RuleCacheConfig) *RuleService {
	return NewRuleServiceWithLogger(rules, cache, nil)
}

// NewRuleServiceWithLogger constructs a rule service with a specified logger.
func NewRuleServiceWithLogger(rules RuleRepository, cache RuleCacheConfig, logger *slog.Logger) *RuleService {
	return &RuleService{
		rules:  rules,
		cache:  newRuleCache(cache.TTL, cache.MaxEntries),
		logger: defaultLogger(logger),
	}
}

func (s *RuleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RuleService", operation, attrs...)
}

// PutDailyRule validates input and replaces the configuration of its date.
func (s *RuleService) PutDailyRule(ctx context.Context, station Station, input DailyRuleInput) (rule attendance.DailyRule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}

	ctx, span := startSpan(ctx, "RuleService.PutDailyRule", attribute.String("rule.date", input.Date))
	logger := s.loggerWith(ctx, "PutDailyRule",
		"station_id", station.ID,
		"date", input.Date,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to store daily rule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "daily rule stored", "zones", len(rule.Zones))
	}()

	if station.ID == "" {
		err = ErrUnauthorized
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	var vErr *ValidationError
	rule, vErr = parseDailyRuleInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = s.rules.PutDailyRule(ctx, rule); err != nil {
		err = mapRepoError(err)
		return
	}
	s.cache.Invalidate(rule.Date)
	return
}

// PutRuleSeries stores the template rule on every selected day. Either all
// days are written or none are.
func (s *RuleService) PutRuleSeries(ctx context.Context, station Station, input RuleSeriesInput) (rules []attendance.DailyRule, err error) {
	if s == nil {
		err = fmt.Errorf("RuleService is nil")
		return
	}

	ctx, span := startSpan(ctx, "RuleService.PutRuleSeries",
		attribute.String("rule.from", input.From),
		attribute.String("rule.until", input.Until),
	)
	logger := s.loggerWith(ctx, "PutRuleSeries",
		"station_id", station.ID,
		"from", input.From,
		"until", input.Until,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to store rule series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rule series stored", "days", len(rules))
	}()

	if station.ID == "" {
		err = ErrUnauthorized
		return
	}
	if s.rules == nil {
		err = fmt.Errorf("rule repository not configured")
		return
	}

	days, vErr := parseSeriesPattern(input)
	template := input.Template
	template.Date = strings.TrimSpace(input.From)
	rule, zErr := parseDailyRuleInput(template)
	// The template date mirrors from, which parseSeriesPattern already checked.
	delete(zErr.FieldErrors, "date")
	vErr.merge(zErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	rules = make([]attendance.DailyRule, 0, len(days))
	for _, day := range days {
		r := rule
		r.Date = day
		r.Zones = append([]attendance.ZoneRule(nil), rule.Zones...)
		rules = append(rules, r)
	}

	write := func(ctx context.Context) error {
		for _, r := range rules {
			if err := s.rules.PutDailyRule(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}
	if tx, ok := s.rules.(persistence.Transactor); ok {
		err = tx.WithTx(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		rules = nil
		err = mapRepoError(err)
		return
	}
	for _, r := range rules {
		s.cache.Invalidate(r.Date)
	}
	return
}

func parseSeriesPattern(input RuleSeriesInput) ([]attendance.Date, *ValidationError) {
	vErr := &ValidationError{}
	var pattern recurrence.Pattern

	from, err := attendance.ParseDate(input.From)
	if err != nil {
		vErr.add("from", "from must be formatted as YYYY-MM-DD")
	}
	pattern.From = from
	until, err := attendance.ParseDate(input.Until)
	if err != nil {
		vErr.add("until", "until must be formatted as YYYY-MM-DD")
	}
	pattern.Until = until

	pattern.Frequency, err = recurrence.ParseFrequency(input.Frequency)
	if err != nil {
		vErr.add("frequency", "frequency must be daily or weekly")
	}
	for i, name := range input.Weekdays {
		day, err := recurrence.ParseWeekday(name)
		if err != nil {
			vErr.add(fmt.Sprintf("weekdays[%d]", i), "weekday must be an English day name")
			continue
		}
		pattern.Weekdays = append(pattern.Weekdays, day)
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	days, err := recurrence.Days(pattern)
	switch {
	case errors.Is(err, recurrence.ErrInvalidWindow):
		vErr.add("until", "until must not be before from")
	case errors.Is(err, recurrence.ErrWindowTooLong):
		vErr.add("until", fmt.Sprintf("series must not span more than %d days", recurrence.MaxDays))
	case err != nil:
		vErr.add("frequency", err.Error())
	case len(days) == 0:
		vErr.add("weekdays", "pattern selects no days")
	}
	return days, vErr
}

// GetDailyRule returns the configuration of date or ErrNotFound.
func (s *RuleService) GetDailyRule(ctx context.Context, date attendance.Date) (attendance.DailyRule, error) {
	rule, err := s.Lookup(ctx, date)
	if err != nil {
		return attendance.DailyRule{}, err
	}
	if rule == nil {
		return attendance.DailyRule{}, ErrNotFound
	}
	return *rule, nil
}

// Lookup reads through the cache. Missing dates resolve to nil.
func (s *RuleService) Lookup(ctx context.Context, date attendance.Date) (*attendance.DailyRule, error) {
	if s == nil {
		return nil, fmt.Errorf("RuleService is nil")
	}
	if cached, found, ok := s.cache.Get(date); ok {
		if !found {
			return nil, nil
		}
		return &cached, nil
	}
	if s.rules == nil {
		return nil, nil
	}

	version := s.cache.Version(date)
	rule, err := s.rules.GetDailyRule(ctx, date)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		s.cache.StoreIfCurrent(date, version, nil)
		return nil, nil
	case err != nil:
		s.loggerWith(ctx, "Lookup", "date", date.String()).
			ErrorContext(ctx, "failed to load daily rule", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	s.cache.StoreIfCurrent(date, version, &rule)
	return &rule, nil
}

// ParseDailyRule validates input without storing it.
func ParseDailyRule(input DailyRuleInput) (attendance.DailyRule, error) {
	rule, vErr := parseDailyRuleInput(input)
	if vErr.HasErrors() {
		return attendance.DailyRule{}, vErr
	}
	return rule, nil
}

func parseDailyRuleInput(input DailyRuleInput) (attendance.DailyRule, *ValidationError) {
	vErr := &ValidationError{}
	var rule attendance.DailyRule

	date, err := attendance.ParseDate(strings.TrimSpace(input.Date))
	if err != nil {
		vErr.add("date", "date must be formatted as YYYY-MM-DD")
	}
	rule.Date = date

	if input.GoalMinutes < 0 {
		vErr.add("goal_minutes", "goal_minutes must not be negative")
	}
	rule.GoalMinutes = input.GoalMinutes

	seen := make(map[string]bool, len(input.Zones))
	rule.Zones = make([]attendance.ZoneRule, 0, len(input.Zones))
	for i, zoneInput := range input.Zones {
		prefix := fmt.Sprintf("zones[%d]", i)
		zone, zErr := parseZoneRuleInput(prefix, zoneInput)
		vErr.merge(zErr)
		if zone.ID != "" {
			if seen[zone.ID] {
				vErr.add(prefix+".id", "zone id must be unique")
			}
			seen[zone.ID] = true
		}
		rule.Zones = append(rule.Zones, zone)
	}

	return rule, vErr
}

func parseZoneRuleInput(prefix string, input ZoneRuleInput) (attendance.ZoneRule, *ValidationError) {
	vErr := &ValidationError{}
	zone := attendance.ZoneRule{
		ID:          strings.TrimSpace(input.ID),
		Name:        strings.TrimSpace(input.Name),
		GoalMinutes: input.GoalMinutes,
	}
	if zone.ID == "" {
		vErr.add(prefix+".id", "zone id is required")
	}
	if zone.GoalMinutes < 0 {
		vErr.add(prefix+".goal_minutes", "goal_minutes must not be negative")
	}

	start, startErr := attendance.ParseTimeOfDay(input.SessionStart)
	if startErr != nil {
		vErr.add(prefix+".session_start", "session_start must be formatted as HH:MM")
	}
	end, endErr := attendance.ParseTimeOfDay(input.SessionEnd)
	if endErr != nil {
		vErr.add(prefix+".session_end", "session_end must be formatted as HH:MM")
	}
	if startErr == nil && endErr == nil && !start.Before(end) {
		vErr.add(prefix+".session_end", "session_end must be after session_start")
	}
	zone.SessionStart = start
	zone.SessionEnd = end

	for j, b := range input.Breaks {
		field := fmt.Sprintf("%s.breaks[%d]", prefix, j)
		bStart, bStartErr := attendance.ParseTimeOfDay(b.Start)
		if bStartErr != nil {
			vErr.add(field+".start", "start must be formatted as HH:MM")
		}
		bEnd, bEndErr := attendance.ParseTimeOfDay(b.End)
		if bEndErr != nil {
			vErr.add(field+".end", "end must be formatted as HH:MM")
		}
		if bStartErr == nil && bEndErr == nil && !bStart.Before(bEnd) {
			vErr.add(field+".end", "end must be after start")
		}
		zone.Breaks = append(zone.Breaks, attendance.BreakInterval{Start: bStart, End: bEnd})
	}

	return zone, vErr
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	return err
}
