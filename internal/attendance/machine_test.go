package attendance

import (
	"errors"
	"testing"
	"time"
)

func conferenceDay(goal int) *DailyRule {
	a := *hallA()
	a.GoalMinutes = goal
	return &DailyRule{
		Date: Date{Year: 2024, Month: time.October, Day: 3},
		Zones: []ZoneRule{
			a,
			{ID: "hall-b", Name: "Hall B", SessionStart: Clock(9, 0), SessionEnd: Clock(18, 0)},
		},
	}
}

func mustCheckIn(t *testing.T, m *Machine, rec Record, zone string, now time.Time, rule *DailyRule) Record {
	t.Helper()
	tr, err := m.CheckIn(rec, zone, now, rule)
	if err != nil {
		t.Fatalf("check-in %s: %v", zone, err)
	}
	return tr.Record
}

func mustCheckOut(t *testing.T, m *Machine, rec Record, now time.Time, rule *DailyRule) Transition {
	t.Helper()
	tr, err := m.CheckOut(rec, now, rule)
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	return tr
}

func TestMachine_CheckInAndOut(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(0)
	rec := NewRecord("reg-1", at(8, 0))

	tr, err := m.CheckIn(rec, "hall-a", at(9, 50), rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Record.Status != StatusInside || tr.Record.CurrentZoneID != "hall-a" {
		t.Fatalf("expected INSIDE hall-a, got %+v", tr.Record)
	}
	if tr.Record.LastCheckIn == nil || !tr.Record.LastCheckIn.Equal(at(9, 50)) {
		t.Fatalf("expected last check-in 09:50, got %v", tr.Record.LastCheckIn)
	}
	if len(tr.Entries) != 1 || tr.Entries[0].Type != EntryEnter {
		t.Fatalf("expected single ENTER entry, got %+v", tr.Entries)
	}
	if err := tr.Record.Validate(); err != nil {
		t.Fatalf("record invariant: %v", err)
	}

	out := mustCheckOut(t, m, tr.Record, at(10, 30), rule)
	if out.Record.Status != StatusOutside || out.Record.CurrentZoneID != "" || out.Record.LastCheckIn != nil {
		t.Fatalf("expected OUTSIDE record, got %+v", out.Record)
	}
	if out.Record.TotalRecognizedMinutes != 25 {
		t.Fatalf("expected 25 minutes, got %d", out.Record.TotalRecognizedMinutes)
	}
	exit := out.Entries[0]
	if exit.Type != EntryExit || exit.ZoneID != "hall-a" || exit.RawMinutes != 40 || exit.DeductionMinutes != 15 || exit.RecognizedMinutes != 25 {
		t.Fatalf("unexpected EXIT entry: %+v", exit)
	}
	if err := out.Record.Validate(); err != nil {
		t.Fatalf("record invariant: %v", err)
	}
}

func TestMachine_Preconditions(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(0)
	outside := NewRecord("reg-1", at(8, 0))
	inside := mustCheckIn(t, m, outside, "hall-a", at(9, 0), rule)

	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{"check-in same zone", func() error { _, err := m.CheckIn(inside, "hall-a", at(9, 5), rule); return err }, ErrAlreadyCheckedIn},
		{"check-in other zone", func() error { _, err := m.CheckIn(inside, "hall-b", at(9, 5), rule); return err }, ErrInsideAnotherZone},
		{"check-in unknown zone", func() error { _, err := m.CheckIn(outside, "hall-z", at(9, 5), rule); return err }, ErrUnknownZone},
		{"check-in without rule", func() error { _, err := m.CheckIn(outside, "hall-a", at(9, 5), nil); return err }, ErrUnknownZone},
		{"check-out outside", func() error { _, err := m.CheckOut(outside, at(9, 5), rule); return err }, ErrNotCheckedIn},
		{"switch outside", func() error { _, err := m.SwitchZone(outside, "hall-b", at(9, 5), rule, rule); return err }, ErrNotCheckedIn},
		{"switch into current zone", func() error { _, err := m.SwitchZone(inside, "hall-a", at(9, 5), rule, rule); return err }, ErrAlreadyInZone},
		{"switch into unknown zone", func() error { _, err := m.SwitchZone(inside, "hall-z", at(9, 5), rule, rule); return err }, ErrUnknownZone},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.run()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if _, ok := AsPrecondition(err); !ok {
				t.Fatalf("expected precondition error, got %T", err)
			}
		})
	}
}

func TestMachine_GoalReachedOnSecondCycle(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(50)
	rec := NewRecord("reg-1", at(8, 0))

	rec = mustCheckIn(t, m, rec, "hall-a", at(9, 50), rule)
	first := mustCheckOut(t, m, rec, at(10, 30), rule)
	if first.Record.TotalRecognizedMinutes != 25 || first.Record.GoalMet {
		t.Fatalf("after cycle 1 expected 25 and not met, got %d %v", first.Record.TotalRecognizedMinutes, first.Record.GoalMet)
	}
	if first.Goal != 50 {
		t.Fatalf("expected zone goal 50, got %d", first.Goal)
	}

	rec = mustCheckIn(t, m, first.Record, "hall-a", at(11, 0), rule)
	second := mustCheckOut(t, m, rec, at(11, 30), rule)
	if second.Record.TotalRecognizedMinutes != 55 || !second.Record.GoalMet {
		t.Fatalf("after cycle 2 expected 55 and met, got %d %v", second.Record.TotalRecognizedMinutes, second.Record.GoalMet)
	}
}

func TestMachine_GoalBoundaryIsInclusive(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(25)
	rec := mustCheckIn(t, m, NewRecord("reg-1", at(8, 0)), "hall-a", at(9, 50), rule)
	out := mustCheckOut(t, m, rec, at(10, 30), rule)
	if !out.Record.GoalMet {
		t.Fatalf("expected goal met at exactly 25 minutes")
	}
}

func TestMachine_NoGoalConfiguredIsMet(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(0)
	rec := mustCheckIn(t, m, NewRecord("reg-1", at(8, 0)), "hall-b", at(9, 0), rule)
	out := mustCheckOut(t, m, rec, at(9, 10), rule)
	if out.Record.TotalRecognizedMinutes != 10 {
		t.Fatalf("expected 10 minutes, got %d", out.Record.TotalRecognizedMinutes)
	}
	if !out.Record.GoalMet {
		t.Fatalf("expected goal met when neither zone nor day sets a goal")
	}
}

func TestMachine_MissingRuleKeepsGoalFlag(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(0)
	rec := mustCheckIn(t, m, NewRecord("reg-1", at(8, 0)), "hall-b", at(9, 0), rule)
	rec.GoalMet = true

	out := mustCheckOut(t, m, rec, at(9, 40), nil)
	if out.Record.TotalRecognizedMinutes != 40 {
		t.Fatalf("expected raw credit 40, got %d", out.Record.TotalRecognizedMinutes)
	}
	if !out.Record.GoalMet {
		t.Fatalf("expected goal flag to be retained without a rule")
	}
	if out.Breakdown == nil || !out.Breakdown.RuleMissing {
		t.Fatalf("expected breakdown to flag missing rule, got %+v", out.Breakdown)
	}
}

func TestMachine_SwitchZoneEqualsCheckOutThenCheckIn(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(0)
	rec := mustCheckIn(t, m, NewRecord("reg-1", at(8, 0)), "hall-a", at(9, 0), rule)
	rec = mustCheckOut(t, m, rec, at(9, 20), rule).Record
	rec = mustCheckIn(t, m, rec, "hall-a", at(10, 20), rule)
	switchAt := at(11, 0)

	switched, err := m.SwitchZone(rec, "hall-b", switchAt, rule, rule)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}

	explicit := mustCheckOut(t, m, rec, switchAt, rule)
	explicitIn := mustCheckIn(t, m, explicit.Record, "hall-b", switchAt, rule)

	if switched.Record.TotalRecognizedMinutes != explicitIn.TotalRecognizedMinutes {
		t.Fatalf("expected total %d, got %d", explicitIn.TotalRecognizedMinutes, switched.Record.TotalRecognizedMinutes)
	}
	if switched.Record.TotalRecognizedMinutes != 60 {
		t.Fatalf("expected 20 + 40 minutes, got %d", switched.Record.TotalRecognizedMinutes)
	}
	if switched.Record.CurrentZoneID != "hall-b" || !switched.Record.LastCheckIn.Equal(switchAt) {
		t.Fatalf("expected inside hall-b since switch, got %+v", switched.Record)
	}
	if len(switched.Entries) != 2 || switched.Entries[0].Type != EntryExit || switched.Entries[1].Type != EntryEnter {
		t.Fatalf("expected EXIT then ENTER, got %+v", switched.Entries)
	}
	if switched.Entries[0].ZoneID != "hall-a" || switched.Entries[1].ZoneID != "hall-b" {
		t.Fatalf("unexpected zones in entries: %+v", switched.Entries)
	}
}

func TestMachine_TotalIsSumOfExitEntries(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(0)
	rec := NewRecord("reg-1", at(8, 0))
	var entries []LogEntry

	steps := []struct {
		zone string
		in   time.Time
		out  time.Time
	}{
		{"hall-a", at(8, 30), at(9, 30)},
		{"hall-b", at(9, 45), at(10, 5)},
		{"hall-a", at(9, 55), at(10, 20)},
		{"hall-a", at(11, 50), at(12, 30)},
	}
	for _, step := range steps {
		in, err := m.CheckIn(rec, step.zone, step.in, rule)
		if err != nil {
			t.Fatalf("check-in: %v", err)
		}
		entries = append(entries, in.Entries...)
		out := mustCheckOut(t, m, in.Record, step.out, rule)
		entries = append(entries, out.Entries...)
		rec = out.Record
	}

	sum := 0
	for _, e := range entries {
		if e.Type == EntryExit {
			sum += e.RecognizedMinutes
		}
	}
	if sum != rec.TotalRecognizedMinutes {
		t.Fatalf("expected total %d to equal sum of exits %d", rec.TotalRecognizedMinutes, sum)
	}
	if rec.TotalRecognizedMinutes != 30+20+10+10 {
		t.Fatalf("unexpected total %d", rec.TotalRecognizedMinutes)
	}
}

func TestMachine_ProjectionMatchesCheckOut(t *testing.T) {
	t.Parallel()

	m := NewMachine(tokyo, CreditRaw)
	rule := conferenceDay(0)
	rec := mustCheckIn(t, m, NewRecord("reg-1", at(8, 0)), "hall-a", at(9, 50), rule)
	now := at(10, 30)

	first := m.Project(rec, rule, now)
	second := m.Project(rec, rule, now)
	if first != second {
		t.Fatalf("expected stable projection, got %d and %d", first, second)
	}
	out := mustCheckOut(t, m, rec, now, rule)
	if first != out.Record.TotalRecognizedMinutes {
		t.Fatalf("expected projection %d to equal persisted %d", first, out.Record.TotalRecognizedMinutes)
	}

	zone, _ := rule.Zone("hall-a")
	if got := ProjectedMinutes(rec, zone, now, at(0, 0)); got != 25 {
		t.Fatalf("expected 25 projected minutes, got %d", got)
	}
	if got := m.Project(out.Record, rule, at(23, 0)); got != 25 {
		t.Fatalf("expected outside projection to equal total, got %d", got)
	}
}

func TestRecord_Validate(t *testing.T) {
	t.Parallel()

	now := at(9, 0)
	bad := []Record{
		{RegistrantID: "r", Status: StatusInside},
		{RegistrantID: "r", Status: StatusOutside, CurrentZoneID: "hall-a"},
		{RegistrantID: "r", Status: StatusOutside, LastCheckIn: &now},
		{RegistrantID: "r", Status: "LOST"},
		{RegistrantID: "r", Status: StatusOutside, TotalRecognizedMinutes: -1},
	}
	for _, rec := range bad {
		if err := rec.Validate(); !errors.Is(err, ErrInconsistentRecord) {
			t.Fatalf("expected inconsistency for %+v, got %v", rec, err)
		}
	}
}
