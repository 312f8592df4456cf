package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence"
)

// RecordRepository implements persistence.RecordRepository using SQLite
type RecordRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewRecordRepository creates a new SQLite attendance record repository
func NewRecordRepository(pool *ConnectionPool) *RecordRepository {
	return &RecordRepository{helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

const recordColumns = `registrant_id, status, current_zone_id, last_check_in, total_recognized_minutes, goal_met, updated_at`

// CreateRecord inserts a new attendance record
func (r *RecordRepository) CreateRecord(ctx context.Context, record attendance.Record) error {
	if record.RegistrantID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		record.RegistrantID,
		string(record.Status),
		nullString(record.CurrentZoneID),
		nullMillis(record.LastCheckIn),
		record.TotalRecognizedMinutes,
		record.GoalMet,
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert attendance record: %w", r.mapper.MapError(err))
	}
	return nil
}

// GetRecord retrieves an attendance record by registrant id
func (r *RecordRepository) GetRecord(ctx context.Context, registrantID string) (attendance.Record, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE registrant_id = ?
	`, registrantID)
	record, err := scanRecord(row)
	if err != nil {
		return attendance.Record{}, r.mapper.MapError(err)
	}
	return record, nil
}

// UpdateRecord replaces an existing attendance record
func (r *RecordRepository) UpdateRecord(ctx context.Context, record attendance.Record) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE attendance_records
		SET status = ?, current_zone_id = ?, last_check_in = ?, total_recognized_minutes = ?, goal_met = ?, updated_at = ?
		WHERE registrant_id = ?
	`,
		string(record.Status),
		nullString(record.CurrentZoneID),
		nullMillis(record.LastCheckIn),
		record.TotalRecognizedMinutes,
		record.GoalMet,
		toMillis(record.UpdatedAt),
		record.RegistrantID,
	)
	if err != nil {
		return fmt.Errorf("update attendance record: %w", r.mapper.MapError(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListRecords returns matching records ordered by registrant id
func (r *RecordRepository) ListRecords(ctx context.Context, filter persistence.RecordFilter) ([]attendance.Record, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ZoneID != "" {
		conditions = append(conditions, "current_zone_id = ?")
		args = append(args, filter.ZoneID)
	}
	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY registrant_id`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance records: %w", r.mapper.MapError(err))
	}
	defer rows.Close()

	records := make([]attendance.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}

// AppendLog inserts an immutable log entry
func (r *RecordRepository) AppendLog(ctx context.Context, entry attendance.LogEntry) error {
	_, err := r.helper.Exec(ctx, `
		INSERT INTO attendance_log (id, registrant_id, entry_type, occurred_at, zone_id, raw_minutes, deduction_minutes, recognized_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.RegistrantID,
		string(entry.Type),
		toMillis(entry.Timestamp),
		entry.ZoneID,
		entry.RawMinutes,
		entry.DeductionMinutes,
		entry.RecognizedMinutes,
	)
	if err != nil {
		return fmt.Errorf("append attendance log: %w", r.mapper.MapError(err))
	}
	return nil
}

// ListLog returns a registrant's entries ordered by timestamp then insertion
func (r *RecordRepository) ListLog(ctx context.Context, registrantID string) ([]attendance.LogEntry, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, registrant_id, entry_type, occurred_at, zone_id, raw_minutes, deduction_minutes, recognized_minutes
		FROM attendance_log
		WHERE registrant_id = ?
		ORDER BY occurred_at, seq
	`, registrantID)
	if err != nil {
		return nil, fmt.Errorf("list attendance log: %w", r.mapper.MapError(err))
	}
	defer rows.Close()

	entries := make([]attendance.LogEntry, 0)
	for rows.Next() {
		var (
			entry      attendance.LogEntry
			entryType  string
			occurredAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.RegistrantID, &entryType, &occurredAt, &entry.ZoneID,
			&entry.RawMinutes, &entry.DeductionMinutes, &entry.RecognizedMinutes); err != nil {
			return nil, fmt.Errorf("scan attendance log: %w", err)
		}
		entry.Type = attendance.EntryType(entryType)
		entry.Timestamp = fromMillis(occurredAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance log: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (attendance.Record, error) {
	var (
		record      attendance.Record
		status      string
		zoneID      sql.NullString
		lastCheckIn sql.NullInt64
		updatedAt   int64
	)
	if err := row.Scan(&record.RegistrantID, &status, &zoneID, &lastCheckIn,
		&record.TotalRecognizedMinutes, &record.GoalMet, &updatedAt); err != nil {
		return attendance.Record{}, err
	}
	record.Status = attendance.Status(status)
	record.CurrentZoneID = zoneID.String
	record.LastCheckIn = fromNullMillis(lastCheckIn)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
