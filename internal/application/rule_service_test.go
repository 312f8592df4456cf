package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence"
	"github.com/example/attendance-tracker/internal/persistence/memory"
)

type ruleRepoStub struct {
	mu    sync.Mutex
	rules map[attendance.Date]attendance.DailyRule
	gets  int
	err   error
}

func newRuleRepoStub() *ruleRepoStub {
	return &ruleRepoStub{rules: make(map[attendance.Date]attendance.DailyRule)}
}

func (r *ruleRepoStub) PutDailyRule(ctx context.Context, rule attendance.DailyRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rules[rule.Date] = rule
	return nil
}

func (r *ruleRepoStub) GetDailyRule(ctx context.Context, date attendance.Date) (attendance.DailyRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.err != nil {
		return attendance.DailyRule{}, r.err
	}
	rule, ok := r.rules[date]
	if !ok {
		return attendance.DailyRule{}, persistence.ErrNotFound
	}
	return rule, nil
}

func validRuleInput() DailyRuleInput {
	return DailyRuleInput{
		Date:        "2024-10-03",
		GoalMinutes: 120,
		Zones: []ZoneRuleInput{
			{
				ID:           "hall-a",
				Name:         " Main Hall ",
				SessionStart: "09:00",
				SessionEnd:   "17:00",
				Breaks:       []BreakInput{{Start: "12:00", End: "13:00"}},
			},
			{ID: "workshop", SessionStart: "10:00", SessionEnd: "16:00", GoalMinutes: 60},
		},
	}
}

func TestRuleService_PutDailyRule(t *testing.T) {
	t.Parallel()

	repo := newRuleRepoStub()
	svc := NewRuleService(repo, RuleCacheConfig{})
	ctx := context.Background()

	rule, err := svc.PutDailyRule(ctx, testStation, validRuleInput())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if rule.Date != conferenceDate || len(rule.Zones) != 2 {
		t.Fatalf("unexpected rule %+v", rule)
	}
	if rule.Zones[0].Name != "Main Hall" || rule.Zones[0].Breaks[0].End != attendance.Clock(13, 0) {
		t.Fatalf("unexpected zone %+v", rule.Zones[0])
	}
	if _, ok := repo.rules[conferenceDate]; !ok {
		t.Fatalf("expected rule to be persisted")
	}

	if _, err := svc.PutDailyRule(ctx, Station{}, validRuleInput()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRuleService_PutDailyRuleValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*DailyRuleInput)
		field  string
	}{
		{name: "bad date", mutate: func(in *DailyRuleInput) { in.Date = "03/10/2024" }, field: "date"},
		{name: "negative goal", mutate: func(in *DailyRuleInput) { in.GoalMinutes = -1 }, field: "goal_minutes"},
		{name: "missing zone id", mutate: func(in *DailyRuleInput) { in.Zones[1].ID = " " }, field: "zones[1].id"},
		{name: "duplicate zone id", mutate: func(in *DailyRuleInput) { in.Zones[1].ID = "hall-a" }, field: "zones[1].id"},
		{name: "bad session start", mutate: func(in *DailyRuleInput) { in.Zones[0].SessionStart = "9am" }, field: "zones[0].session_start"},
		{name: "inverted session", mutate: func(in *DailyRuleInput) { in.Zones[0].SessionEnd = "08:00" }, field: "zones[0].session_end"},
		{name: "negative zone goal", mutate: func(in *DailyRuleInput) { in.Zones[1].GoalMinutes = -5 }, field: "zones[1].goal_minutes"},
		{name: "inverted break", mutate: func(in *DailyRuleInput) { in.Zones[0].Breaks[0].End = "11:00" }, field: "zones[0].breaks[0].end"},
		{name: "bad break start", mutate: func(in *DailyRuleInput) { in.Zones[0].Breaks[0].Start = "25:00" }, field: "zones[0].breaks[0].start"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := newRuleRepoStub()
			svc := NewRuleService(repo, RuleCacheConfig{})
			input := validRuleInput()
			tc.mutate(&input)

			_, err := svc.PutDailyRule(context.Background(), testStation, input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tc.field, vErr.FieldErrors)
			}
			if len(repo.rules) != 0 {
				t.Fatalf("expected nothing to be persisted")
			}
		})
	}
}

func TestParseDailyRule(t *testing.T) {
	t.Parallel()

	rule, err := ParseDailyRule(validRuleInput())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rule.Date != conferenceDate || rule.GoalMinutes != 120 {
		t.Fatalf("unexpected rule %+v", rule)
	}
	zone, ok := rule.Zone("workshop")
	if !ok || zone.GoalMinutes != 60 || zone.SessionEnd != attendance.Clock(16, 0) {
		t.Fatalf("unexpected workshop zone %+v", zone)
	}

	input := validRuleInput()
	input.Zones[0].SessionEnd = "08:00"
	_, err = ParseDailyRule(input)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := vErr.FieldErrors["zones[0].session_end"]; !ok {
		t.Fatalf("expected session_end error, got %v", vErr.FieldErrors)
	}
}

func validSeriesInput() RuleSeriesInput {
	return RuleSeriesInput{
		Template: validRuleInput(),
		From:     "2024-10-03",
		Until:    "2024-10-07",
		Weekdays: []string{"thu", "fri", "mon"},
	}
}

func TestRuleService_PutRuleSeries(t *testing.T) {
	t.Parallel()

	repo := newRuleRepoStub()
	svc := NewRuleService(repo, RuleCacheConfig{})
	ctx := context.Background()

	if _, err := svc.Lookup(ctx, conferenceDate); err != nil {
		t.Fatalf("lookup: %v", err)
	}

	rules, err := svc.PutRuleSeries(ctx, testStation, validSeriesInput())
	if err != nil {
		t.Fatalf("put series: %v", err)
	}
	want := []string{"2024-10-03", "2024-10-04", "2024-10-07"}
	if len(rules) != len(want) {
		t.Fatalf("expected %v, got %+v", want, rules)
	}
	for i, rule := range rules {
		if rule.Date.String() != want[i] || len(rule.Zones) != 2 || rule.GoalMinutes != 120 {
			t.Fatalf("unexpected rule %d: %+v", i, rule)
		}
	}
	if len(repo.rules) != 3 {
		t.Fatalf("expected 3 stored rules, got %d", len(repo.rules))
	}
	cached, err := svc.Lookup(ctx, conferenceDate)
	if err != nil || cached == nil {
		t.Fatalf("expected cache to be invalidated, got %+v, %v", cached, err)
	}

	if _, err := svc.PutRuleSeries(ctx, Station{}, validSeriesInput()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRuleService_PutRuleSeriesValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*RuleSeriesInput)
		field  string
	}{
		{name: "bad from", mutate: func(in *RuleSeriesInput) { in.From = "tomorrow" }, field: "from"},
		{name: "inverted window", mutate: func(in *RuleSeriesInput) { in.Until = "2024-10-01" }, field: "until"},
		{name: "too long", mutate: func(in *RuleSeriesInput) { in.Until = "2024-12-01" }, field: "until"},
		{name: "bad frequency", mutate: func(in *RuleSeriesInput) { in.Frequency = "hourly" }, field: "frequency"},
		{name: "bad weekday", mutate: func(in *RuleSeriesInput) { in.Weekdays = []string{"thu", "someday"} }, field: "weekdays[1]"},
		{name: "selects nothing", mutate: func(in *RuleSeriesInput) { in.Until = "2024-10-03"; in.Weekdays = []string{"sun"} }, field: "weekdays"},
		{name: "bad template", mutate: func(in *RuleSeriesInput) { in.Template.Zones[0].SessionEnd = "08:00" }, field: "zones[0].session_end"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := newRuleRepoStub()
			svc := NewRuleService(repo, RuleCacheConfig{})
			input := validSeriesInput()
			tc.mutate(&input)

			_, err := svc.PutRuleSeries(context.Background(), testStation, input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tc.field, vErr.FieldErrors)
			}
			if _, ok := vErr.FieldErrors["date"]; ok {
				t.Fatalf("template date must not be validated, got %v", vErr.FieldErrors)
			}
			if len(repo.rules) != 0 {
				t.Fatalf("expected nothing to be persisted")
			}
		})
	}
}

// failingRuleStore rejects writes for one date inside a real transaction.
type failingRuleStore struct {
	*memory.Store
	failOn attendance.Date
}

func (f failingRuleStore) PutDailyRule(ctx context.Context, rule attendance.DailyRule) error {
	if rule.Date == f.failOn {
		return errors.New("disk full")
	}
	return f.Store.PutDailyRule(ctx, rule)
}

func TestRuleService_PutRuleSeriesIsAtomic(t *testing.T) {
	t.Parallel()

	store := failingRuleStore{Store: memory.New(), failOn: attendance.Date{Year: 2024, Month: time.October, Day: 4}}
	svc := NewRuleService(store, RuleCacheConfig{})
	ctx := context.Background()

	rules, err := svc.PutRuleSeries(ctx, testStation, validSeriesInput())
	if err == nil || rules != nil {
		t.Fatalf("expected failure without rules, got %+v, %v", rules, err)
	}
	if _, err := store.GetDailyRule(ctx, conferenceDate); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected first day to be rolled back, got %v", err)
	}
}

func TestRuleService_LookupCachesAndInvalidates(t *testing.T) {
	t.Parallel()

	repo := newRuleRepoStub()
	svc := NewRuleService(repo, RuleCacheConfig{TTL: time.Minute, MaxEntries: 4})
	ctx := context.Background()

	missing, err := svc.Lookup(ctx, conferenceDate)
	if err != nil || missing != nil {
		t.Fatalf("expected nil rule for an unconfigured date, got %+v, %v", missing, err)
	}
	if _, err := svc.Lookup(ctx, conferenceDate); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if repo.gets != 1 {
		t.Fatalf("expected cached miss, repository read %d times", repo.gets)
	}

	if _, err := svc.PutDailyRule(ctx, testStation, validRuleInput()); err != nil {
		t.Fatalf("put: %v", err)
	}
	rule, err := svc.GetDailyRule(ctx, conferenceDate)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rule.GoalMinutes != 120 {
		t.Fatalf("expected fresh rule after invalidation, got %+v", rule)
	}
	if _, err := svc.GetDailyRule(ctx, conferenceDate); err != nil {
		t.Fatalf("get: %v", err)
	}
	if repo.gets != 2 {
		t.Fatalf("expected one read after the write, got %d", repo.gets)
	}
}

// writeDuringGet runs afterGet once, between reading a rule and returning it.
type writeDuringGet struct {
	*ruleRepoStub
	afterGet func()
}

func (r *writeDuringGet) GetDailyRule(ctx context.Context, date attendance.Date) (attendance.DailyRule, error) {
	rule, err := r.ruleRepoStub.GetDailyRule(ctx, date)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return rule, err
}

func TestRuleService_LookupDoesNotCacheRuleReplacedMidRead(t *testing.T) {
	t.Parallel()

	repo := &writeDuringGet{ruleRepoStub: newRuleRepoStub()}
	svc := NewRuleService(repo, RuleCacheConfig{TTL: time.Minute, MaxEntries: 4})
	ctx := context.Background()

	if _, err := svc.PutDailyRule(ctx, testStation, validRuleInput()); err != nil {
		t.Fatalf("put: %v", err)
	}
	updated := validRuleInput()
	updated.GoalMinutes = 90
	repo.afterGet = func() {
		if _, err := svc.PutDailyRule(ctx, testStation, updated); err != nil {
			t.Errorf("concurrent put: %v", err)
		}
	}

	stale, err := svc.Lookup(ctx, conferenceDate)
	if err != nil || stale == nil || stale.GoalMinutes != 120 {
		t.Fatalf("expected the rule read before the write, got %+v, %v", stale, err)
	}
	fresh, err := svc.Lookup(ctx, conferenceDate)
	if err != nil || fresh == nil {
		t.Fatalf("lookup: %+v, %v", fresh, err)
	}
	if fresh.GoalMinutes != 90 {
		t.Fatalf("expected the rewritten rule, got goal %d", fresh.GoalMinutes)
	}
	if repo.gets != 2 {
		t.Fatalf("expected the stale read to stay out of the cache, repository read %d times", repo.gets)
	}
}

func TestRuleService_GetDailyRuleErrors(t *testing.T) {
	t.Parallel()

	repo := newRuleRepoStub()
	svc := NewRuleService(repo, RuleCacheConfig{})
	ctx := context.Background()

	if _, err := svc.GetDailyRule(ctx, conferenceDate); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	failing := newRuleRepoStub()
	failing.err = errors.New("database is locked")
	svc = NewRuleService(failing, RuleCacheConfig{})
	if _, err := svc.Lookup(ctx, conferenceDate); err == nil {
		t.Fatalf("expected storage error to surface")
	}
	if _, err := svc.Lookup(ctx, conferenceDate); err == nil {
		t.Fatalf("expected storage errors not to be cached")
	}
}

func TestMapRepoError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil", in: nil, want: nil},
		{name: "not found", in: persistence.ErrNotFound, want: ErrNotFound},
		{name: "duplicate", in: persistence.ErrDuplicate, want: ErrAlreadyExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := mapRepoError(tc.in); !errors.Is(got, tc.want) && got != tc.want {
				t.Fatalf("mapRepoError(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}

	other := errors.New("boom")
	if got := mapRepoError(other); got != other {
		t.Fatalf("expected unknown errors to pass through, got %v", got)
	}
}
