// Package memory provides an in-process implementation of persistence.Store
// for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence"
)

type txKey struct{}

type state struct {
	records map[string]attendance.Record
	log     []attendance.LogEntry
	logIDs  map[string]bool
	rules   map[attendance.Date]attendance.DailyRule
	badges  map[string]attendance.BadgeToken
	// badgeOrder keeps creation order for LatestBadgeForRegistrant.
	badgeOrder []string
}

// txn holds the writes of one transaction. Committed state is untouched
// until commit, so readers outside the transaction never see them.
type txn struct {
	owner      *Store
	records    map[string]attendance.Record
	log        []attendance.LogEntry
	logIDs     map[string]bool
	rules      map[attendance.Date]attendance.DailyRule
	badges     map[string]attendance.BadgeToken
	badgeOrder []string
}

// Store keeps all data in maps guarded by a mutex.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   state
}

var _ persistence.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{st: state{
		records: make(map[string]attendance.Record),
		logIDs:  make(map[string]bool),
		rules:   make(map[attendance.Date]attendance.DailyRule),
		badges:  make(map[string]attendance.BadgeToken),
	}}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close releases resources held by the storage. No-op for the in-memory implementation.
func (s *Store) Close() error {
	return nil
}

// WithTx serialises transactions. Writes are buffered and applied on
// success; a failing fn discards them. Nested calls join the outer
// transaction. Writes made outside a transaction run in their own.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txn{
		owner:   s,
		records: make(map[string]attendance.Record),
		logIDs:  make(map[string]bool),
		rules:   make(map[attendance.Date]attendance.DailyRule),
		badges:  make(map[string]attendance.BadgeToken),
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *Store) txFrom(ctx context.Context) *txn {
	tx, _ := ctx.Value(txKey{}).(*txn)
	if tx == nil || tx.owner != s {
		return nil
	}
	return tx
}

func (s *Store) commit(tx *txn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, record := range tx.records {
		s.st.records[id] = record
	}
	for id := range tx.logIDs {
		s.st.logIDs[id] = true
	}
	s.st.log = append(s.st.log, tx.log...)
	for date, rule := range tx.rules {
		s.st.rules[date] = rule
	}
	for id, token := range tx.badges {
		s.st.badges[id] = token
	}
	s.st.badgeOrder = append(s.st.badgeOrder, tx.badgeOrder...)
}

// record resolves id against the transaction first, then committed state.
func (s *Store) record(tx *txn, id string) (attendance.Record, bool) {
	if tx != nil {
		if record, ok := tx.records[id]; ok {
			return record, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.st.records[id]
	return record, ok
}

func (s *Store) badge(tx *txn, id string) (attendance.BadgeToken, bool) {
	if tx != nil {
		if token, ok := tx.badges[id]; ok {
			return token, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.st.badges[id]
	return token, ok
}

// --- RecordRepository implementation ---

// CreateRecord stores a new attendance record.
func (s *Store) CreateRecord(ctx context.Context, record attendance.Record) error {
	tx := s.txFrom(ctx)
	if tx == nil {
		return s.WithTx(ctx, func(ctx context.Context) error { return s.CreateRecord(ctx, record) })
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	if _, ok := s.record(tx, record.RegistrantID); ok {
		return fmt.Errorf("memory: record %s: %w", record.RegistrantID, persistence.ErrDuplicate)
	}
	tx.records[record.RegistrantID] = cloneRecord(record)
	return nil
}

// GetRecord retrieves a record by registrant id.
func (s *Store) GetRecord(ctx context.Context, registrantID string) (attendance.Record, error) {
	record, ok := s.record(s.txFrom(ctx), registrantID)
	if !ok {
		return attendance.Record{}, persistence.ErrNotFound
	}
	return cloneRecord(record), nil
}

// UpdateRecord replaces an existing record.
func (s *Store) UpdateRecord(ctx context.Context, record attendance.Record) error {
	tx := s.txFrom(ctx)
	if tx == nil {
		return s.WithTx(ctx, func(ctx context.Context) error { return s.UpdateRecord(ctx, record) })
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	if _, ok := s.record(tx, record.RegistrantID); !ok {
		return persistence.ErrNotFound
	}
	tx.records[record.RegistrantID] = cloneRecord(record)
	return nil
}

// ListRecords returns matching records ordered by registrant id.
func (s *Store) ListRecords(ctx context.Context, filter persistence.RecordFilter) ([]attendance.Record, error) {
	tx := s.txFrom(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]attendance.Record, 0)
	for id, record := range s.st.records {
		if tx != nil {
			if pending, ok := tx.records[id]; ok {
				record = pending
			}
		}
		if filter.Matches(record) {
			records = append(records, cloneRecord(record))
		}
	}
	if tx != nil {
		for id, record := range tx.records {
			if _, ok := s.st.records[id]; ok {
				continue
			}
			if filter.Matches(record) {
				records = append(records, cloneRecord(record))
			}
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].RegistrantID < records[j].RegistrantID
	})
	return records, nil
}

// AppendLog appends an immutable log entry.
func (s *Store) AppendLog(ctx context.Context, entry attendance.LogEntry) error {
	tx := s.txFrom(ctx)
	if tx == nil {
		return s.WithTx(ctx, func(ctx context.Context) error { return s.AppendLog(ctx, entry) })
	}
	if _, ok := s.record(tx, entry.RegistrantID); !ok {
		return fmt.Errorf("memory: log for unknown registrant %s: %w", entry.RegistrantID, persistence.ErrConstraintViolation)
	}
	s.mu.RLock()
	seen := s.st.logIDs[entry.ID]
	s.mu.RUnlock()
	if seen || tx.logIDs[entry.ID] {
		return fmt.Errorf("memory: log entry %s: %w", entry.ID, persistence.ErrDuplicate)
	}
	tx.logIDs[entry.ID] = true
	tx.log = append(tx.log, entry)
	return nil
}

// ListLog returns a registrant's entries ordered by timestamp then insertion.
func (s *Store) ListLog(ctx context.Context, registrantID string) ([]attendance.LogEntry, error) {
	tx := s.txFrom(ctx)

	s.mu.RLock()
	entries := make([]attendance.LogEntry, 0)
	for _, entry := range s.st.log {
		if entry.RegistrantID == registrantID {
			entries = append(entries, entry)
		}
	}
	s.mu.RUnlock()

	if tx != nil {
		for _, entry := range tx.log {
			if entry.RegistrantID == registrantID {
				entries = append(entries, entry)
			}
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// --- RuleRepository implementation ---

// PutDailyRule inserts or replaces the rule for its date.
func (s *Store) PutDailyRule(ctx context.Context, rule attendance.DailyRule) error {
	tx := s.txFrom(ctx)
	if tx == nil {
		return s.WithTx(ctx, func(ctx context.Context) error { return s.PutDailyRule(ctx, rule) })
	}
	tx.rules[rule.Date] = rule.Clone()
	return nil
}

// GetDailyRule retrieves the rule for date.
func (s *Store) GetDailyRule(ctx context.Context, date attendance.Date) (attendance.DailyRule, error) {
	if tx := s.txFrom(ctx); tx != nil {
		if rule, ok := tx.rules[date]; ok {
			return rule.Clone(), nil
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.st.rules[date]
	if !ok {
		return attendance.DailyRule{}, persistence.ErrNotFound
	}
	return rule.Clone(), nil
}

// --- BadgeRepository implementation ---

// CreateBadge stores a new token.
func (s *Store) CreateBadge(ctx context.Context, token attendance.BadgeToken) error {
	tx := s.txFrom(ctx)
	if tx == nil {
		return s.WithTx(ctx, func(ctx context.Context) error { return s.CreateBadge(ctx, token) })
	}
	if _, ok := s.badge(tx, token.ID); ok {
		return fmt.Errorf("memory: badge %s: %w", token.ID, persistence.ErrDuplicate)
	}
	tx.badges[token.ID] = cloneBadge(token)
	tx.badgeOrder = append(tx.badgeOrder, token.ID)
	return nil
}

// GetBadge retrieves a token by id.
func (s *Store) GetBadge(ctx context.Context, id string) (attendance.BadgeToken, error) {
	token, ok := s.badge(s.txFrom(ctx), id)
	if !ok {
		return attendance.BadgeToken{}, persistence.ErrNotFound
	}
	return cloneBadge(token), nil
}

// UpdateBadge replaces an existing token.
func (s *Store) UpdateBadge(ctx context.Context, token attendance.BadgeToken) error {
	tx := s.txFrom(ctx)
	if tx == nil {
		return s.WithTx(ctx, func(ctx context.Context) error { return s.UpdateBadge(ctx, token) })
	}
	if _, ok := s.badge(tx, token.ID); !ok {
		return persistence.ErrNotFound
	}
	if token.ReplacedBy != "" {
		if _, ok := s.badge(tx, token.ReplacedBy); !ok {
			return fmt.Errorf("memory: replacement %s: %w", token.ReplacedBy, persistence.ErrConstraintViolation)
		}
	}
	tx.badges[token.ID] = cloneBadge(token)
	return nil
}

// LatestBadgeForRegistrant returns the most recently created token of a registrant.
func (s *Store) LatestBadgeForRegistrant(ctx context.Context, registrantID string) (attendance.BadgeToken, error) {
	tx := s.txFrom(ctx)
	if tx != nil {
		for i := len(tx.badgeOrder) - 1; i >= 0; i-- {
			token := tx.badges[tx.badgeOrder[i]]
			if token.RegistrantID == registrantID {
				return cloneBadge(token), nil
			}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.st.badgeOrder) - 1; i >= 0; i-- {
		id := s.st.badgeOrder[i]
		token := s.st.badges[id]
		if tx != nil {
			if pending, ok := tx.badges[id]; ok {
				token = pending
			}
		}
		if token.RegistrantID == registrantID {
			return cloneBadge(token), nil
		}
	}
	return attendance.BadgeToken{}, persistence.ErrNotFound
}

func cloneRecord(record attendance.Record) attendance.Record {
	if record.LastCheckIn != nil {
		t := *record.LastCheckIn
		record.LastCheckIn = &t
	}
	return record
}

func cloneBadge(token attendance.BadgeToken) attendance.BadgeToken {
	if token.ExpiresAt != nil {
		t := *token.ExpiresAt
		token.ExpiresAt = &t
	}
	if token.IssuedAt != nil {
		t := *token.IssuedAt
		token.IssuedAt = &t
	}
	return token
}
