package attendance

import (
	"errors"
	"time"
)

// BadgeState is the lifecycle state of a badge token.
type BadgeState string

const (
	// BadgeActive is a voucher waiting to be exchanged at the info desk.
	BadgeActive BadgeState = "ACTIVE"
	// BadgeIssued means the physical badge has been handed out.
	BadgeIssued BadgeState = "ISSUED"
	// BadgeExpired is a voucher that can only be replaced.
	BadgeExpired BadgeState = "EXPIRED"
)

var (
	// ErrBadgeExpired indicates the token can no longer be issued.
	ErrBadgeExpired = errors.New("attendance: badge token expired")
	// ErrBadgeNotExpired indicates a reissue of a token that is still usable.
	ErrBadgeNotExpired = errors.New("attendance: badge token not expired")
)

// BadgeToken is the polled voucher bound to one registrant.
type BadgeToken struct {
	ID           string
	RegistrantID string
	State        BadgeState
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	IssuedAt     *time.Time
	ReplacedBy   string
}

// NewVoucher creates an ACTIVE token. A ttl of zero never expires.
func NewVoucher(id, registrantID string, now time.Time, ttl time.Duration) BadgeToken {
	token := BadgeToken{
		ID:           id,
		RegistrantID: registrantID,
		State:        BadgeActive,
		CreatedAt:    now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		token.ExpiresAt = &expires
	}
	return token
}

// EffectiveState derives the state at now without mutating the token.
func (t BadgeToken) EffectiveState(now time.Time) BadgeState {
	if t.State == BadgeActive && t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
		return BadgeExpired
	}
	return t.State
}

// Issue marks the badge as handed out. Issuing an ISSUED token is a no-op and
// reports changed=false.
func (t BadgeToken) Issue(now time.Time) (next BadgeToken, changed bool, err error) {
	switch t.EffectiveState(now) {
	case BadgeIssued:
		return t, false, nil
	case BadgeExpired:
		return t, false, ErrBadgeExpired
	}
	issued := now
	t.State = BadgeIssued
	t.IssuedAt = &issued
	return t, true, nil
}

// Reissue replaces an expired token with a fresh voucher. The returned old
// token is marked EXPIRED and linked to the new one.
func (t BadgeToken) Reissue(newID string, now time.Time, ttl time.Duration) (old, fresh BadgeToken, err error) {
	if t.EffectiveState(now) != BadgeExpired {
		return t, BadgeToken{}, ErrBadgeNotExpired
	}
	fresh = NewVoucher(newID, t.RegistrantID, now, ttl)
	t.State = BadgeExpired
	t.ReplacedBy = fresh.ID
	return t, fresh, nil
}
