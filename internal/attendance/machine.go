package attendance

import (
	"errors"
	"fmt"
	"time"
)

// Status is the presence state of a registrant.
type Status string

const (
	// StatusOutside means the registrant is not in any monitored zone.
	StatusOutside Status = "OUTSIDE"
	// StatusInside means the registrant is in CurrentZoneID since LastCheckIn.
	StatusInside Status = "INSIDE"
)

// EntryType classifies log entries.
type EntryType string

const (
	// EntryEnter records a check-in.
	EntryEnter EntryType = "ENTER"
	// EntryExit records a check-out together with its breakdown.
	EntryExit EntryType = "EXIT"
)

// Record is the per-registrant attendance state.
type Record struct {
	RegistrantID           string
	Status                 Status
	CurrentZoneID          string
	LastCheckIn            *time.Time
	TotalRecognizedMinutes int
	GoalMet                bool
	UpdatedAt              time.Time
}

// NewRecord returns the enrollment state of a registrant.
func NewRecord(registrantID string, now time.Time) Record {
	return Record{RegistrantID: registrantID, Status: StatusOutside, UpdatedAt: now}
}

// Inside reports whether the registrant is currently in a zone.
func (r Record) Inside() bool {
	return r.Status == StatusInside
}

// ErrInconsistentRecord indicates a record violates the status invariants.
var ErrInconsistentRecord = errors.New("attendance: inconsistent record")

// Validate checks that INSIDE holds exactly when a zone and a check-in time are set.
func (r Record) Validate() error {
	if r.TotalRecognizedMinutes < 0 {
		return fmt.Errorf("%w: negative total", ErrInconsistentRecord)
	}
	switch r.Status {
	case StatusInside:
		if r.CurrentZoneID == "" || r.LastCheckIn == nil {
			return fmt.Errorf("%w: inside without zone or check-in", ErrInconsistentRecord)
		}
	case StatusOutside:
		if r.CurrentZoneID != "" || r.LastCheckIn != nil {
			return fmt.Errorf("%w: outside with zone or check-in", ErrInconsistentRecord)
		}
	default:
		return fmt.Errorf("%w: status %q", ErrInconsistentRecord, r.Status)
	}
	return nil
}

// LogEntry is one immutable entry of the attendance log. The breakdown fields
// are only meaningful for EXIT entries.
type LogEntry struct {
	ID                string
	RegistrantID      string
	Type              EntryType
	Timestamp         time.Time
	ZoneID            string
	RawMinutes        int
	DeductionMinutes  int
	RecognizedMinutes int
}

// Transition is the outcome of a state machine step. Entries are in the order
// they must be appended and carry no ids yet.
type Transition struct {
	Record    Record
	Entries   []LogEntry
	Breakdown *Breakdown
	// Goal is the goal the record was evaluated against on check-out.
	Goal int
}

// Machine applies check-in, check-out and zone switches to records.
type Machine struct {
	accountant Accountant
	location   *time.Location
}

// NewMachine constructs a Machine whose reference dates are taken in loc.
// A nil loc selects UTC.
func NewMachine(loc *time.Location, policy MissingRulePolicy) *Machine {
	if loc == nil {
		loc = time.UTC
	}
	if policy == "" {
		policy = CreditRaw
	}
	return &Machine{accountant: Accountant{MissingRule: policy}, location: loc}
}

// Location returns the event time zone.
func (m *Machine) Location() *time.Location {
	return m.location
}

// ReferenceDate is the calendar date a stay is accounted against.
func (m *Machine) ReferenceDate(rec Record) (Date, bool) {
	if rec.LastCheckIn == nil {
		return Date{}, false
	}
	return DateOf(*rec.LastCheckIn, m.location), true
}

// CheckIn moves an OUTSIDE record into zoneID.
func (m *Machine) CheckIn(rec Record, zoneID string, now time.Time, rule *DailyRule) (Transition, error) {
	if rec.Inside() {
		if rec.CurrentZoneID == zoneID {
			return Transition{}, ErrAlreadyCheckedIn
		}
		return Transition{}, ErrInsideAnotherZone
	}
	if _, ok := rule.Zone(zoneID); !ok {
		return Transition{}, fmt.Errorf("zone %q: %w", zoneID, ErrUnknownZone)
	}

	checkIn := now
	next := rec
	next.Status = StatusInside
	next.CurrentZoneID = zoneID
	next.LastCheckIn = &checkIn
	next.UpdatedAt = now

	return Transition{
		Record: next,
		Entries: []LogEntry{{
			RegistrantID: rec.RegistrantID,
			Type:         EntryEnter,
			Timestamp:    now,
			ZoneID:       zoneID,
		}},
	}, nil
}

// CheckOut closes the open stay of an INSIDE record. rule is the DailyRule of
// the record's reference date; when it is nil the goal flag is left untouched.
func (m *Machine) CheckOut(rec Record, now time.Time, rule *DailyRule) (Transition, error) {
	if !rec.Inside() || rec.LastCheckIn == nil {
		return Transition{}, ErrNotCheckedIn
	}

	zone, _ := rule.Zone(rec.CurrentZoneID)
	checkIn := *rec.LastCheckIn
	breakdown := m.accountant.Recognize(checkIn, now, zone, checkIn.In(m.location))

	next := rec
	next.TotalRecognizedMinutes += breakdown.RecognizedMinutes
	goal := ApplicableGoal(rec.CurrentZoneID, rule)
	if rule != nil {
		next.GoalMet = GoalMet(next.TotalRecognizedMinutes, goal)
	}
	next.Status = StatusOutside
	next.CurrentZoneID = ""
	next.LastCheckIn = nil
	next.UpdatedAt = now

	return Transition{
		Record: next,
		Entries: []LogEntry{{
			RegistrantID:      rec.RegistrantID,
			Type:              EntryExit,
			Timestamp:         now,
			ZoneID:            rec.CurrentZoneID,
			RawMinutes:        breakdown.RawMinutes,
			DeductionMinutes:  breakdown.DeductionMinutes,
			RecognizedMinutes: breakdown.RecognizedMinutes,
		}},
		Breakdown: &breakdown,
		Goal:      goal,
	}, nil
}

// SwitchZone checks out of the current zone and into newZoneID at the same
// instant. exitRule applies to the stay being closed and enterRule to the new
// zone; they are the same rule unless the stay crossed midnight.
func (m *Machine) SwitchZone(rec Record, newZoneID string, now time.Time, exitRule, enterRule *DailyRule) (Transition, error) {
	if !rec.Inside() {
		return Transition{}, ErrNotCheckedIn
	}
	if rec.CurrentZoneID == newZoneID {
		return Transition{}, ErrAlreadyInZone
	}
	if _, ok := enterRule.Zone(newZoneID); !ok {
		return Transition{}, fmt.Errorf("zone %q: %w", newZoneID, ErrUnknownZone)
	}

	out, err := m.CheckOut(rec, now, exitRule)
	if err != nil {
		return Transition{}, err
	}
	in, err := m.CheckIn(out.Record, newZoneID, now, enterRule)
	if err != nil {
		return Transition{}, err
	}
	return Transition{
		Record:    in.Record,
		Entries:   append(out.Entries, in.Entries...),
		Breakdown: out.Breakdown,
		Goal:      out.Goal,
	}, nil
}
