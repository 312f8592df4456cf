package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/attendance-tracker/internal/attendance"
)

// BadgeStore captures the persistence operations needed by the badge service.
type BadgeStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateBadge(ctx context.Context, token attendance.BadgeToken) error
	GetBadge(ctx context.Context, id string) (attendance.BadgeToken, error)
	UpdateBadge(ctx context.Context, token attendance.BadgeToken) error
}

// SnapshotSource provides the attendance view attached to issued badges.
type SnapshotSource interface {
	Status(ctx context.Context, registrantID string, at *time.Time) (AttendanceSnapshot, error)
}

// BadgePolling bounds the backoff of badge watchers.
type BadgePolling struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// BadgeOptions carries the optional collaborators of BadgeService.
type BadgeOptions struct {
	Logger     *slog.Logger
	Metrics    Metrics
	VoucherTTL time.Duration
	Polling    BadgePolling
}

// BadgeService serves the badge issuance gate: polling, issue and reissue.
type BadgeService struct {
	badges      BadgeStore
	attendance  SnapshotSource
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	metrics     Metrics
	voucherTTL  time.Duration
	polling     BadgePolling
}

// NewBadgeService constructs a badge service with the provided dependencies.
func NewBadgeService(badges BadgeStore, snapshots SnapshotSource, idGenerator func() string, now func() time.Time) *BadgeService {
	return NewBadgeServiceWithOptions(badges, snapshots, idGenerator, now, BadgeOptions{})
}

// NewBadgeServiceWithOptions constructs a badge service with logger, metrics and polling settings.
func NewBadgeServiceWithOptions(badges BadgeStore, snapshots SnapshotSource, idGenerator func() string, now func() time.Time, opts BadgeOptions) *BadgeService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	polling := opts.Polling
	if polling.InitialInterval <= 0 {
		polling.InitialInterval = 2 * time.Second
	}
	if polling.MaxInterval < polling.InitialInterval {
		polling.MaxInterval = 30 * time.Second
		if polling.MaxInterval < polling.InitialInterval {
			polling.MaxInterval = polling.InitialInterval
		}
	}
	return &BadgeService{
		badges:      badges,
		attendance:  snapshots,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(opts.Logger),
		metrics:     defaultMetrics(opts.Metrics),
		voucherTTL:  opts.VoucherTTL,
		polling:     polling,
	}
}

func (s *BadgeService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BadgeService", operation, attrs...)
}

// Poll returns the effective state of a token. Issued badges carry the
// attendance view and expired vouchers point at their replacement. Polling
// never writes.
func (s *BadgeService) Poll(ctx context.Context, tokenID string) (view BadgeView, err error) {
	if s == nil {
		err = fmt.Errorf("BadgeService is nil")
		return
	}
	if s.badges == nil {
		err = fmt.Errorf("badge store not configured")
		return
	}

	token, err := s.badges.GetBadge(ctx, tokenID)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	now := s.now()
	view = BadgeView{Token: token, State: token.EffectiveState(now), AsOf: now}
	switch view.State {
	case attendance.BadgeIssued:
		if s.attendance == nil {
			return
		}
		snapshot, statusErr := s.attendance.Status(ctx, token.RegistrantID, &now)
		if statusErr != nil && !errors.Is(statusErr, ErrNotFound) {
			err = statusErr
			return
		}
		if statusErr == nil {
			view.Attendance = &snapshot
		}
	case attendance.BadgeExpired:
		view.RedirectTo = token.ReplacedBy
	}
	return
}

// Issue marks the badge as handed out. Issuing an issued badge succeeds without change.
func (s *BadgeService) Issue(ctx context.Context, station Station, tokenID string) (token attendance.BadgeToken, err error) {
	if s == nil {
		err = fmt.Errorf("BadgeService is nil")
		return
	}

	ctx, span := startSpan(ctx, "BadgeService.Issue", attribute.String("badge.token", tokenID))
	logger := s.loggerWith(ctx, "Issue",
		"station_id", station.ID,
		"badge_token", tokenID,
	)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to issue badge", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "badge issued", "registrant_id", token.RegistrantID)
	}()

	if station.ID == "" {
		err = ErrUnauthorized
		return
	}
	if s.badges == nil {
		err = fmt.Errorf("badge store not configured")
		return
	}

	err = s.badges.WithTx(ctx, func(ctx context.Context) error {
		current, getErr := s.badges.GetBadge(ctx, tokenID)
		if getErr != nil {
			return mapRepoError(getErr)
		}
		now := s.now()
		from := current.EffectiveState(now)
		next, changed, issueErr := current.Issue(now)
		if issueErr != nil {
			return issueErr
		}
		token = next
		if !changed {
			return nil
		}
		if updateErr := s.badges.UpdateBadge(ctx, next); updateErr != nil {
			return mapRepoError(updateErr)
		}
		s.metrics.ObserveBadgeTransition(from, next.State)
		return nil
	})
	return
}

// Reissue replaces an expired voucher with a fresh ACTIVE one. Reissuing a
// token that was already replaced returns the existing replacement.
func (s *BadgeService) Reissue(ctx context.Context, tokenID string) (fresh attendance.BadgeToken, err error) {
	if s == nil {
		err = fmt.Errorf("BadgeService is nil")
		return
	}

	ctx, span := startSpan(ctx, "BadgeService.Reissue", attribute.String("badge.token", tokenID))
	logger := s.loggerWith(ctx, "Reissue", "badge_token", tokenID)
	defer func() {
		endSpan(span, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to reissue badge", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "badge reissued", "replacement_token", fresh.ID)
	}()

	if s.badges == nil {
		err = fmt.Errorf("badge store not configured")
		return
	}

	err = s.badges.WithTx(ctx, func(ctx context.Context) error {
		current, getErr := s.badges.GetBadge(ctx, tokenID)
		if getErr != nil {
			return mapRepoError(getErr)
		}
		if current.ReplacedBy != "" {
			existing, replacedErr := s.badges.GetBadge(ctx, current.ReplacedBy)
			if replacedErr != nil {
				return mapRepoError(replacedErr)
			}
			fresh = existing
			return nil
		}

		now := s.now()
		old, next, reissueErr := current.Reissue(s.idGenerator(), now, s.voucherTTL)
		if reissueErr != nil {
			return reissueErr
		}
		// The replacement must exist before the old token can reference it.
		if createErr := s.badges.CreateBadge(ctx, next); createErr != nil {
			return mapRepoError(createErr)
		}
		if updateErr := s.badges.UpdateBadge(ctx, old); updateErr != nil {
			return mapRepoError(updateErr)
		}
		s.metrics.ObserveBadgeTransition(attendance.BadgeExpired, next.State)
		fresh = next
		return nil
	})
	return
}

// Watch polls a token with bounded exponential backoff and emits a view each
// time its state or redirect changes. It returns once the badge is issued,
// the token is replaced, or ctx is cancelled.
func (s *BadgeService) Watch(ctx context.Context, tokenID string, emit func(BadgeView) error) error {
	if s == nil {
		return fmt.Errorf("BadgeService is nil")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.polling.InitialInterval
	policy.MaxInterval = s.polling.MaxInterval

	var (
		lastState    attendance.BadgeState
		lastRedirect string
		first        = true
	)
	for {
		view, err := s.Poll(ctx, tokenID)
		if err != nil {
			return err
		}
		if first || view.State != lastState || view.RedirectTo != lastRedirect {
			if err := emit(view); err != nil {
				return err
			}
			policy.Reset()
			first = false
			lastState, lastRedirect = view.State, view.RedirectTo
		}
		if view.State == attendance.BadgeIssued || view.RedirectTo != "" {
			return nil
		}

		timer := time.NewTimer(policy.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
