package testfixtures

import (
	"context"
	"testing"
)

func TestServiceFactoryNewServices(t *testing.T) {
	factory := NewServiceFactory()
	services := factory.NewServices(NewMemoryStore(t))
	ctx := context.Background()

	if _, err := services.Rules.PutDailyRule(ctx, Station(), RuleInput(NewDailyRule())); err != nil {
		t.Fatalf("PutDailyRule returned error: %v", err)
	}

	enrollment, err := services.Attendance.Enroll(ctx, Station(), "reg-1")
	if err != nil {
		t.Fatalf("Enroll returned error: %v", err)
	}
	if enrollment.Badge.ID != "id-1" || factory.IDs.Last() != "id-1" {
		t.Fatalf("expected generated badge id id-1, got %q", enrollment.Badge.ID)
	}
	if !enrollment.Record.UpdatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), enrollment.Record.UpdatedAt)
	}
}

func TestNewDailyRuleRoundTripsThroughInput(t *testing.T) {
	factory := NewServiceFactory()
	services := factory.NewServices(NewMemoryStore(t))
	ctx := context.Background()

	want := NewDailyRule()
	if _, err := services.Rules.PutDailyRule(ctx, Station(), RuleInput(want)); err != nil {
		t.Fatalf("PutDailyRule returned error: %v", err)
	}
	got, err := services.Rules.GetDailyRule(ctx, want.Date)
	if err != nil {
		t.Fatalf("GetDailyRule returned error: %v", err)
	}
	if len(got.Zones) != len(want.Zones) || got.Zones[0].Breaks[0] != want.Zones[0].Breaks[0] {
		t.Fatalf("rule mismatch: got %+v want %+v", got, want)
	}
}
