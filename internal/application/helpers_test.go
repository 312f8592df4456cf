package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence/memory"
)

var jst = time.FixedZone("JST", 9*60*60)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.October, 3, hour, minute, 0, 0, jst)
}

var conferenceDate = attendance.Date{Year: 2024, Month: time.October, Day: 3}

var testStation = Station{ID: "door-1", Name: "Main Hall door"}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type recordingMetrics struct {
	mu          sync.Mutex
	transitions map[ScanAction]int
	failures    int
	checkOuts   []attendance.Breakdown
	goalsMet    int
	badges      []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{transitions: make(map[ScanAction]int)}
}

func (m *recordingMetrics) ObserveTransition(action ScanAction, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failures++
		return
	}
	m.transitions[action]++
}

func (m *recordingMetrics) ObserveCheckOut(zoneID string, breakdown attendance.Breakdown) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkOuts = append(m.checkOuts, breakdown)
}

func (m *recordingMetrics) ObserveGoalMet() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goalsMet++
}

func (m *recordingMetrics) ObserveBadgeTransition(from, to attendance.BadgeState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges = append(m.badges, string(from)+"->"+string(to))
}

// conferenceDay is hall-a 09:00-17:00 with lunch 12:00-13:00 and a workshop
// room 10:00-16:00 with its own goal of 60 minutes. The event-wide goal is 120.
func conferenceDay() attendance.DailyRule {
	return attendance.DailyRule{
		Date:        conferenceDate,
		GoalMinutes: 120,
		Zones: []attendance.ZoneRule{
			{
				ID:           "hall-a",
				Name:         "Main Hall",
				SessionStart: attendance.Clock(9, 0),
				SessionEnd:   attendance.Clock(17, 0),
				Breaks:       []attendance.BreakInterval{{Start: attendance.Clock(12, 0), End: attendance.Clock(13, 0)}},
			},
			{
				ID:           "workshop",
				Name:         "Workshop Room",
				SessionStart: attendance.Clock(10, 0),
				SessionEnd:   attendance.Clock(16, 0),
				GoalMinutes:  60,
			},
		},
	}
}

type harness struct {
	store      *memory.Store
	clock      *testClock
	metrics    *recordingMetrics
	rules      *RuleService
	attendance *AttendanceService
	badges     *BadgeService
}

type harnessOptions struct {
	policy     attendance.MissingRulePolicy
	voucherTTL time.Duration
	// wrap decorates the store handed to the attendance service.
	wrap func(*memory.Store) AttendanceStore
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	clock := &testClock{now: at(9, 0)}
	metrics := newRecordingMetrics()
	ids := sequentialIDs("id")

	rules := NewRuleServiceWithLogger(store, RuleCacheConfig{TTL: time.Minute, MaxEntries: 8}, logger)
	if err := store.PutDailyRule(context.Background(), conferenceDay()); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	var attendanceStore AttendanceStore = store
	if opts.wrap != nil {
		attendanceStore = opts.wrap(store)
	}
	svc := NewAttendanceServiceWithOptions(attendanceStore, rules, attendance.NewMachine(jst, opts.policy), ids, clock.Now, AttendanceOptions{
		Logger:     logger,
		Metrics:    metrics,
		VoucherTTL: opts.voucherTTL,
		Ticker:     NewTicker(time.Millisecond),
	})
	badges := NewBadgeServiceWithOptions(store, svc, ids, clock.Now, BadgeOptions{
		Logger:     logger,
		Metrics:    metrics,
		VoucherTTL: opts.voucherTTL,
		Polling:    BadgePolling{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	})

	return &harness{
		store:      store,
		clock:      clock,
		metrics:    metrics,
		rules:      rules,
		attendance: svc,
		badges:     badges,
	}
}

func (h *harness) enroll(t *testing.T, registrantID string) Enrollment {
	t.Helper()
	enrollment, err := h.attendance.Enroll(context.Background(), testStation, registrantID)
	if err != nil {
		t.Fatalf("enroll %s: %v", registrantID, err)
	}
	return enrollment
}

func (h *harness) scanAt(t *testing.T, when time.Time, params ScanParams) ScanResult {
	t.Helper()
	h.clock.Set(when)
	if params.Station.ID == "" {
		params.Station = testStation
	}
	result, err := h.attendance.Scan(context.Background(), params)
	if err != nil {
		t.Fatalf("scan at %s: %v", when.Format("15:04"), err)
	}
	return result
}
