package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/attendance-tracker/internal/application"
	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock      *Clock
	IDs        *IDSequence
	Policy     attendance.MissingRulePolicy
	VoucherTTL time.Duration
	Logger     *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:  NewClock(time.Time{}),
		IDs:    NewIDSequence("id"),
		Policy: attendance.CreditRaw,
		Logger: DiscardLogger(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDs == nil {
		factory.IDs = NewIDSequence("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDSequence overrides the id sequence used by the factory.
func WithIDSequence(seq *IDSequence) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDs = seq
	}
}

// WithMissingRulePolicy overrides the policy applied to stays without a rule.
func WithMissingRulePolicy(policy attendance.MissingRulePolicy) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Policy = policy
	}
}

// WithVoucherTTL sets the lifetime of enrollment vouchers.
func WithVoucherTTL(ttl time.Duration) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.VoucherTTL = ttl
	}
}

// Services bundles the application services wired against one store.
type Services struct {
	Rules      *application.RuleService
	Attendance *application.AttendanceService
	Badges     *application.BadgeService
}

// NewServices wires every application service against store.
func (f *ServiceFactory) NewServices(store persistence.Store) Services {
	rules := application.NewRuleServiceWithLogger(store, application.RuleCacheConfig{TTL: time.Minute, MaxEntries: 16}, f.Logger)
	machine := attendance.NewMachine(EventLocation(), f.Policy)
	attendanceSvc := application.NewAttendanceServiceWithOptions(store, rules, machine, f.IDs.Func(), f.Clock.NowFunc(), application.AttendanceOptions{
		Logger:     f.Logger,
		VoucherTTL: f.VoucherTTL,
		Ticker:     application.NewTicker(10 * time.Millisecond),
	})
	badges := application.NewBadgeServiceWithOptions(store, attendanceSvc, f.IDs.Func(), f.Clock.NowFunc(), application.BadgeOptions{
		Logger:     f.Logger,
		VoucherTTL: f.VoucherTTL,
		Polling:    application.BadgePolling{InitialInterval: 5 * time.Millisecond, MaxInterval: 20 * time.Millisecond},
	})
	return Services{Rules: rules, Attendance: attendanceSvc, Badges: badges}
}
