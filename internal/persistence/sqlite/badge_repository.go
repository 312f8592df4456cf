package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence"
)

// BadgeRepository implements persistence.BadgeRepository using SQLite
type BadgeRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBadgeRepository creates a new SQLite badge token repository
func NewBadgeRepository(pool *ConnectionPool) *BadgeRepository {
	return &BadgeRepository{helper: NewQueryHelper(pool), mapper: NewErrorMapper()}
}

const badgeColumns = `id, registrant_id, state, created_at, expires_at, issued_at, replaced_by`

// CreateBadge inserts a new badge token
func (r *BadgeRepository) CreateBadge(ctx context.Context, token attendance.BadgeToken) error {
	if token.ID == "" || token.RegistrantID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO badge_tokens (`+badgeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		token.ID,
		token.RegistrantID,
		string(token.State),
		toMillis(token.CreatedAt),
		nullMillis(token.ExpiresAt),
		nullMillis(token.IssuedAt),
		nullString(token.ReplacedBy),
	)
	if err != nil {
		return fmt.Errorf("insert badge token: %w", r.mapper.MapError(err))
	}
	return nil
}

// GetBadge retrieves a badge token by id
func (r *BadgeRepository) GetBadge(ctx context.Context, id string) (attendance.BadgeToken, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badge_tokens WHERE id = ?`, id)
	token, err := scanBadge(row)
	if err != nil {
		return attendance.BadgeToken{}, r.mapper.MapError(err)
	}
	return token, nil
}

// UpdateBadge replaces the mutable fields of a badge token
func (r *BadgeRepository) UpdateBadge(ctx context.Context, token attendance.BadgeToken) error {
	result, err := r.helper.Exec(ctx, `
		UPDATE badge_tokens
		SET state = ?, expires_at = ?, issued_at = ?, replaced_by = ?
		WHERE id = ?
	`,
		string(token.State),
		nullMillis(token.ExpiresAt),
		nullMillis(token.IssuedAt),
		nullString(token.ReplacedBy),
		token.ID,
	)
	if err != nil {
		return fmt.Errorf("update badge token: %w", r.mapper.MapError(err))
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

// LatestBadgeForRegistrant returns the most recently created token of a registrant
func (r *BadgeRepository) LatestBadgeForRegistrant(ctx context.Context, registrantID string) (attendance.BadgeToken, error) {
	row := r.helper.QueryRow(ctx, `
		SELECT `+badgeColumns+`
		FROM badge_tokens
		WHERE registrant_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, registrantID)
	token, err := scanBadge(row)
	if err != nil {
		return attendance.BadgeToken{}, r.mapper.MapError(err)
	}
	return token, nil
}

func scanBadge(row rowScanner) (attendance.BadgeToken, error) {
	var (
		token      attendance.BadgeToken
		state      string
		createdAt  int64
		expiresAt  sql.NullInt64
		issuedAt   sql.NullInt64
		replacedBy sql.NullString
	)
	if err := row.Scan(&token.ID, &token.RegistrantID, &state, &createdAt, &expiresAt, &issuedAt, &replacedBy); err != nil {
		return attendance.BadgeToken{}, err
	}
	token.State = attendance.BadgeState(state)
	token.CreatedAt = fromMillis(createdAt)
	token.ExpiresAt = fromNullMillis(expiresAt)
	token.IssuedAt = fromNullMillis(issuedAt)
	token.ReplacedBy = replacedBy.String
	return token, nil
}
