package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockMoves(t *testing.T) {
	clock := NewClock(time.Time{})
	nowFn := clock.NowFunc()

	if got := clock.Advance(90 * time.Minute); !got.Equal(At(10, 30)) || !nowFn().Equal(got) {
		t.Fatalf("advance returned %v, NowFunc %v", got, nowFn())
	}
	if got := clock.Advance(-2 * time.Minute); !got.Equal(At(10, 28)) {
		t.Fatalf("expected backwards skew to 10:28, got %v", got)
	}

	clock.Set(At(16, 0))
	if got := nowFn(); !got.Equal(At(16, 0)) {
		t.Fatalf("expected 16:00 after Set, got %v", got)
	}
}

func TestClockWallTime(t *testing.T) {
	clock := NewClock(time.Time{})

	if got := clock.SetWall(12, 30); !got.Equal(At(12, 30)) {
		t.Fatalf("expected %v, got %v", At(12, 30), got)
	}
	next := clock.NextDay(8, 0)
	if next.Day() != 4 || next.Hour() != 8 || next.Location() != EventLocation() {
		t.Fatalf("expected 08:00 on the next event day, got %v", next)
	}
}

func TestNilClockFallsBackToWallClock(t *testing.T) {
	var clock *Clock
	before := time.Now()
	if got := clock.NowFunc()(); got.Before(before) {
		t.Fatalf("expected wall clock time, got %v", got)
	}
}
