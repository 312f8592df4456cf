package attendance

import (
	"testing"
	"time"
)

var tokyo = time.FixedZone("JST", 9*60*60)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.October, 3, hour, minute, 0, 0, tokyo)
}

func hallA() *ZoneRule {
	return &ZoneRule{
		ID:           "hall-a",
		Name:         "Hall A",
		SessionStart: Clock(9, 0),
		SessionEnd:   Clock(12, 0),
		Breaks:       []BreakInterval{{Start: Clock(10, 0), End: Clock(10, 15)}},
	}
}

func TestRecognize(t *testing.T) {
	t.Parallel()

	reference := at(0, 0)

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		zone  *ZoneRule
		want  Breakdown
	}{
		{
			name:  "stay across a break",
			start: at(9, 50),
			end:   at(10, 30),
			zone:  hallA(),
			want:  Breakdown{RawMinutes: 40, DeductionMinutes: 15, RecognizedMinutes: 25},
		},
		{
			name:  "early arrival is clipped to session start",
			start: at(8, 30),
			end:   at(9, 30),
			zone:  hallA(),
			want:  Breakdown{RawMinutes: 30, RecognizedMinutes: 30},
		},
		{
			name:  "late departure is clipped to session end",
			start: at(11, 50),
			end:   at(12, 30),
			zone:  hallA(),
			want:  Breakdown{RawMinutes: 10, RecognizedMinutes: 10},
		},
		{
			name:  "stay entirely outside the session",
			start: at(12, 10),
			end:   at(13, 0),
			zone:  hallA(),
			want:  Breakdown{},
		},
		{
			name:  "stay entirely inside a break",
			start: at(10, 2),
			end:   at(10, 12),
			zone:  hallA(),
			want:  Breakdown{RawMinutes: 10, DeductionMinutes: 10},
		},
		{
			name:  "partial minutes are floored",
			start: at(9, 0).Add(30 * time.Second),
			end:   at(9, 5).Add(10 * time.Second),
			zone:  hallA(),
			want:  Breakdown{RawMinutes: 4, RecognizedMinutes: 4},
		},
		{
			name:  "missing rule credits raw stay",
			start: at(7, 0),
			end:   at(7, 45),
			want:  Breakdown{RawMinutes: 45, RecognizedMinutes: 45, RuleMissing: true},
		},
		{
			name:  "inverted stay is clamped",
			start: at(10, 30),
			end:   at(9, 50),
			zone:  hallA(),
			want:  Breakdown{ClockAnomaly: true},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Recognize(tc.start, tc.end, tc.zone, reference)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestRecognize_OverlappingBreaksAreMerged(t *testing.T) {
	t.Parallel()

	zone := &ZoneRule{
		ID:           "hall-b",
		SessionStart: Clock(9, 0),
		SessionEnd:   Clock(12, 0),
		Breaks: []BreakInterval{
			{Start: Clock(10, 30), End: Clock(11, 30)},
			{Start: Clock(10, 0), End: Clock(11, 0)},
			{Start: Clock(11, 0), End: Clock(11, 15)},
			{Start: Clock(9, 30), End: Clock(9, 20)},
		},
	}

	got := Recognize(at(9, 0), at(12, 0), zone, at(0, 0))
	if got.RawMinutes != 180 {
		t.Fatalf("expected raw 180, got %d", got.RawMinutes)
	}
	if got.DeductionMinutes != 90 {
		t.Fatalf("expected merged deduction 90, got %d", got.DeductionMinutes)
	}
	if got.RecognizedMinutes != 90 {
		t.Fatalf("expected recognized 90, got %d", got.RecognizedMinutes)
	}
}

func TestRecognize_DeductionNeverExceedsRaw(t *testing.T) {
	t.Parallel()

	zone := &ZoneRule{
		ID:           "hall-c",
		SessionStart: Clock(9, 0),
		SessionEnd:   Clock(17, 0),
		Breaks: []BreakInterval{
			{Start: Clock(8, 0), End: Clock(12, 0)},
			{Start: Clock(11, 0), End: Clock(18, 0)},
			{Start: Clock(13, 0), End: Clock(14, 0)},
		},
	}

	for startMin := 8 * 60; startMin <= 18*60; startMin += 25 {
		for endMin := startMin - 30; endMin <= 18*60; endMin += 35 {
			start := at(0, 0).Add(time.Duration(startMin) * time.Minute)
			end := at(0, 0).Add(time.Duration(endMin) * time.Minute)
			got := Recognize(start, end, zone, at(0, 0))
			if got.DeductionMinutes > got.RawMinutes {
				t.Fatalf("deduction %d exceeds raw %d for %s-%s", got.DeductionMinutes, got.RawMinutes, start, end)
			}
			if got.RecognizedMinutes < 0 {
				t.Fatalf("negative recognized minutes for %s-%s", start, end)
			}
			if again := Recognize(start, end, zone, at(0, 0)); again != got {
				t.Fatalf("expected identical result, got %+v and %+v", got, again)
			}
		}
	}
}

func TestAccountant_CreditNone(t *testing.T) {
	t.Parallel()

	got := Accountant{MissingRule: CreditNone}.Recognize(at(9, 0), at(10, 0), nil, at(0, 0))
	if got.RecognizedMinutes != 0 || !got.RuleMissing {
		t.Fatalf("expected no credit with rule missing, got %+v", got)
	}
}

func TestRecognize_ReferenceDateAnchorsSession(t *testing.T) {
	t.Parallel()

	// A stay on the next day accounted against the previous date falls outside the window.
	nextDay := at(9, 50).AddDate(0, 0, 1)
	got := Recognize(nextDay, nextDay.Add(40*time.Minute), hallA(), at(0, 0))
	if got.RecognizedMinutes != 0 {
		t.Fatalf("expected 0 recognized minutes, got %d", got.RecognizedMinutes)
	}

	got = Recognize(nextDay, nextDay.Add(40*time.Minute), hallA(), nextDay)
	if got.RecognizedMinutes != 25 {
		t.Fatalf("expected 25 recognized minutes, got %d", got.RecognizedMinutes)
	}
}

func TestParseMissingRulePolicy(t *testing.T) {
	t.Parallel()

	if p, err := ParseMissingRulePolicy(""); err != nil || p != CreditRaw {
		t.Fatalf("expected default credit_raw, got %q, %v", p, err)
	}
	if p, err := ParseMissingRulePolicy("credit_none"); err != nil || p != CreditNone {
		t.Fatalf("expected credit_none, got %q, %v", p, err)
	}
	if _, err := ParseMissingRulePolicy("credit_half"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestGoalMet(t *testing.T) {
	t.Parallel()

	cases := []struct {
		total, goal int
		want        bool
	}{
		{total: 49, goal: 50, want: false},
		{total: 50, goal: 50, want: true},
		{total: 55, goal: 50, want: true},
		{total: 10, goal: 0, want: true},
		{total: 0, goal: 0, want: true},
	}
	for _, tc := range cases {
		if got := GoalMet(tc.total, tc.goal); got != tc.want {
			t.Fatalf("GoalMet(%d, %d) = %v, want %v", tc.total, tc.goal, got, tc.want)
		}
	}
}

func TestApplicableGoal(t *testing.T) {
	t.Parallel()

	rule := &DailyRule{
		GoalMinutes: 120,
		Zones: []ZoneRule{
			{ID: "hall-a", GoalMinutes: 50},
			{ID: "hall-b"},
		},
	}
	if got := ApplicableGoal("hall-a", rule); got != 50 {
		t.Fatalf("expected zone goal 50, got %d", got)
	}
	if got := ApplicableGoal("hall-b", rule); got != 120 {
		t.Fatalf("expected event goal 120, got %d", got)
	}
	if got := ApplicableGoal("hall-z", rule); got != 120 {
		t.Fatalf("expected event goal for unknown zone, got %d", got)
	}
	if got := ApplicableGoal("hall-a", nil); got != 0 {
		t.Fatalf("expected no goal without a rule, got %d", got)
	}
}
