package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence"
)

// RuleRepository implements persistence.RuleRepository using SQLite
type RuleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewRuleRepository creates a new SQLite daily rule repository
func NewRuleRepository(pool *ConnectionPool) *RuleRepository {
	return &RuleRepository{pool: pool, helper: NewQueryHelper(pool), mapper: NewErrorMapper(), now: time.Now}
}

// PutDailyRule replaces the rule for its date, zones and breaks included.
func (r *RuleRepository) PutDailyRule(ctx context.Context, rule attendance.DailyRule) error {
	date := rule.Date.String()
	return r.pool.WithTx(ctx, func(ctx context.Context) error {
		if _, err := r.helper.Exec(ctx, `DELETE FROM daily_rules WHERE rule_date = ?`, date); err != nil {
			return fmt.Errorf("delete daily rule: %w", r.mapper.MapError(err))
		}
		if _, err := r.helper.Exec(ctx, `
			INSERT INTO daily_rules (rule_date, goal_minutes, updated_at) VALUES (?, ?, ?)
		`, date, rule.GoalMinutes, toMillis(r.now())); err != nil {
			return fmt.Errorf("insert daily rule: %w", r.mapper.MapError(err))
		}

		for zi, zone := range rule.Zones {
			if _, err := r.helper.Exec(ctx, `
				INSERT INTO zone_rules (rule_date, zone_id, position, name, session_start, session_end, goal_minutes)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, date, zone.ID, zi, zone.Name, zone.SessionStart.String(), zone.SessionEnd.String(), zone.GoalMinutes); err != nil {
				return fmt.Errorf("insert zone rule %s: %w", zone.ID, r.mapper.MapError(err))
			}
			for bi, b := range zone.Breaks {
				if _, err := r.helper.Exec(ctx, `
					INSERT INTO zone_breaks (rule_date, zone_id, position, break_start, break_end)
					VALUES (?, ?, ?, ?, ?)
				`, date, zone.ID, bi, b.Start.String(), b.End.String()); err != nil {
					return fmt.Errorf("insert zone break %s/%d: %w", zone.ID, bi, r.mapper.MapError(err))
				}
			}
		}
		return nil
	})
}

// GetDailyRule loads the rule for date with zones and breaks in authored order.
func (r *RuleRepository) GetDailyRule(ctx context.Context, date attendance.Date) (attendance.DailyRule, error) {
	key := date.String()
	rule := attendance.DailyRule{Date: date}

	row := r.helper.QueryRow(ctx, `SELECT goal_minutes FROM daily_rules WHERE rule_date = ?`, key)
	if err := row.Scan(&rule.GoalMinutes); err != nil {
		return attendance.DailyRule{}, r.mapper.MapError(err)
	}

	zones, err := r.helper.Query(ctx, `
		SELECT zone_id, name, session_start, session_end, goal_minutes
		FROM zone_rules
		WHERE rule_date = ?
		ORDER BY position
	`, key)
	if err != nil {
		return attendance.DailyRule{}, fmt.Errorf("query zone rules: %w", r.mapper.MapError(err))
	}
	defer zones.Close()

	index := make(map[string]int)
	for zones.Next() {
		var (
			zone       attendance.ZoneRule
			start, end string
		)
		if err := zones.Scan(&zone.ID, &zone.Name, &start, &end, &zone.GoalMinutes); err != nil {
			return attendance.DailyRule{}, fmt.Errorf("scan zone rule: %w", err)
		}
		if zone.SessionStart, err = attendance.ParseTimeOfDay(start); err != nil {
			return attendance.DailyRule{}, fmt.Errorf("zone %s session start: %w", zone.ID, err)
		}
		if zone.SessionEnd, err = attendance.ParseTimeOfDay(end); err != nil {
			return attendance.DailyRule{}, fmt.Errorf("zone %s session end: %w", zone.ID, err)
		}
		index[zone.ID] = len(rule.Zones)
		rule.Zones = append(rule.Zones, zone)
	}
	if err := zones.Err(); err != nil {
		return attendance.DailyRule{}, fmt.Errorf("iterate zone rules: %w", err)
	}

	breaks, err := r.helper.Query(ctx, `
		SELECT zone_id, break_start, break_end
		FROM zone_breaks
		WHERE rule_date = ?
		ORDER BY zone_id, position
	`, key)
	if err != nil {
		return attendance.DailyRule{}, fmt.Errorf("query zone breaks: %w", r.mapper.MapError(err))
	}
	defer breaks.Close()

	for breaks.Next() {
		var zoneID, start, end string
		if err := breaks.Scan(&zoneID, &start, &end); err != nil {
			return attendance.DailyRule{}, fmt.Errorf("scan zone break: %w", err)
		}
		var b attendance.BreakInterval
		if b.Start, err = attendance.ParseTimeOfDay(start); err != nil {
			return attendance.DailyRule{}, fmt.Errorf("zone %s break start: %w", zoneID, err)
		}
		if b.End, err = attendance.ParseTimeOfDay(end); err != nil {
			return attendance.DailyRule{}, fmt.Errorf("zone %s break end: %w", zoneID, err)
		}
		i, ok := index[zoneID]
		if !ok {
			return attendance.DailyRule{}, fmt.Errorf("break for unknown zone %s: %w", zoneID, persistence.ErrConstraintViolation)
		}
		rule.Zones[i].Breaks = append(rule.Zones[i].Breaks, b)
	}
	if err := breaks.Err(); err != nil {
		return attendance.DailyRule{}, fmt.Errorf("iterate zone breaks: %w", err)
	}
	return rule, nil
}
