package persistence

import (
	"context"

	"github.com/example/attendance-tracker/internal/attendance"
)

// RecordRepository stores attendance records and their append-only log.
type RecordRepository interface {
	CreateRecord(ctx context.Context, record attendance.Record) error
	GetRecord(ctx context.Context, registrantID string) (attendance.Record, error)
	UpdateRecord(ctx context.Context, record attendance.Record) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]attendance.Record, error)
	AppendLog(ctx context.Context, entry attendance.LogEntry) error
	ListLog(ctx context.Context, registrantID string) ([]attendance.LogEntry, error)
}

// RuleRepository stores the per-day zone configuration.
type RuleRepository interface {
	PutDailyRule(ctx context.Context, rule attendance.DailyRule) error
	GetDailyRule(ctx context.Context, date attendance.Date) (attendance.DailyRule, error)
}

// BadgeRepository stores badge tokens.
type BadgeRepository interface {
	CreateBadge(ctx context.Context, token attendance.BadgeToken) error
	GetBadge(ctx context.Context, id string) (attendance.BadgeToken, error)
	UpdateBadge(ctx context.Context, token attendance.BadgeToken) error
	// LatestBadgeForRegistrant returns the most recently created token.
	LatestBadgeForRegistrant(ctx context.Context, registrantID string) (attendance.BadgeToken, error)
}

// Transactor runs fn atomically. Repository calls made with the context passed
// to fn join the transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles every repository behind one transactional backend.
type Store interface {
	Transactor
	RecordRepository
	RuleRepository
	BadgeRepository
	Ping(ctx context.Context) error
	Close() error
}
