package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/attendance-tracker/internal/attendance"
	"github.com/example/attendance-tracker/internal/persistence"
)

var testNow = time.Date(2024, time.October, 3, 9, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *Store {
	t.Helper()

	store := New()
	if err := store.CreateRecord(context.Background(), attendance.NewRecord("reg-1", testNow)); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	return store
}

func insideRecord(zoneID string) attendance.Record {
	at := testNow.Add(time.Minute)
	return attendance.Record{
		RegistrantID:  "reg-1",
		Status:        attendance.StatusInside,
		CurrentZoneID: zoneID,
		LastCheckIn:   &at,
		UpdatedAt:     at,
	}
}

func TestStore_WithTxHidesPendingWrites(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	outside := context.Background()
	errAbort := errors.New("abort")

	err := store.WithTx(outside, func(ctx context.Context) error {
		if err := store.UpdateRecord(ctx, insideRecord("hall-a")); err != nil {
			t.Fatalf("UpdateRecord failed: %v", err)
		}
		if err := store.AppendLog(ctx, attendance.LogEntry{ID: "log-1", RegistrantID: "reg-1", Type: attendance.EntryEnter, Timestamp: testNow, ZoneID: "hall-a"}); err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}

		inTx, err := store.GetRecord(ctx, "reg-1")
		if err != nil || inTx.Status != attendance.StatusInside {
			t.Fatalf("transaction should see its own write, got %+v err=%v", inTx, err)
		}
		entries, _ := store.ListLog(ctx, "reg-1")
		if len(entries) != 1 {
			t.Fatalf("transaction should see its own log entry, got %d", len(entries))
		}

		seen, err := store.GetRecord(outside, "reg-1")
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if seen.Status != attendance.StatusOutside {
			t.Fatalf("outside reader saw uncommitted status %s", seen.Status)
		}
		entries, _ = store.ListLog(outside, "reg-1")
		if len(entries) != 0 {
			t.Fatalf("outside reader saw %d uncommitted log entries", len(entries))
		}
		inside, _ := store.ListRecords(outside, persistence.RecordFilter{Status: attendance.StatusInside})
		if len(inside) != 0 {
			t.Fatalf("outside reader listed uncommitted occupants: %+v", inside)
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	after, err := store.GetRecord(outside, "reg-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if after.Status != attendance.StatusOutside {
		t.Fatalf("rolled back write is visible: %+v", after)
	}
	entries, _ := store.ListLog(outside, "reg-1")
	if len(entries) != 0 {
		t.Fatalf("rolled back log entries are visible: %d", len(entries))
	}
	// The log id is free again after rollback.
	if err := store.AppendLog(outside, attendance.LogEntry{ID: "log-1", RegistrantID: "reg-1", Type: attendance.EntryEnter, Timestamp: testNow}); err != nil {
		t.Fatalf("AppendLog after rollback failed: %v", err)
	}
}

func TestStore_WithTxCommitsAtomically(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	outside := context.Background()

	err := store.WithTx(outside, func(ctx context.Context) error {
		if err := store.UpdateRecord(ctx, insideRecord("hall-a")); err != nil {
			return err
		}
		if err := store.CreateBadge(ctx, attendance.NewVoucher("tok-1", "reg-1", testNow, 0)); err != nil {
			return err
		}
		if _, err := store.GetBadge(outside, "tok-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("outside reader saw uncommitted badge, err=%v", err)
		}
		if _, err := store.LatestBadgeForRegistrant(outside, "reg-1"); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("outside reader saw uncommitted latest badge, err=%v", err)
		}
		// Nested calls join the outer transaction.
		return store.WithTx(ctx, func(ctx context.Context) error {
			return store.AppendLog(ctx, attendance.LogEntry{ID: "log-1", RegistrantID: "reg-1", Type: attendance.EntryEnter, Timestamp: testNow, ZoneID: "hall-a"})
		})
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	record, err := store.GetRecord(outside, "reg-1")
	if err != nil || record.Status != attendance.StatusInside {
		t.Fatalf("committed record not visible: %+v err=%v", record, err)
	}
	entries, _ := store.ListLog(outside, "reg-1")
	if len(entries) != 1 {
		t.Fatalf("expected 1 committed log entry, got %d", len(entries))
	}
	token, err := store.LatestBadgeForRegistrant(outside, "reg-1")
	if err != nil || token.ID != "tok-1" {
		t.Fatalf("committed badge not visible: %+v err=%v", token, err)
	}
}

func TestStore_WithTxReadsMergeCommittedState(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	ctx := context.Background()
	if err := store.CreateBadge(ctx, attendance.NewVoucher("tok-1", "reg-1", testNow, 0)); err != nil {
		t.Fatalf("CreateBadge failed: %v", err)
	}

	err := store.WithTx(ctx, func(ctx context.Context) error {
		if err := store.CreateRecord(ctx, attendance.NewRecord("reg-1", testNow)); !errors.Is(err, persistence.ErrDuplicate) {
			t.Fatalf("expected duplicate for committed record, got %v", err)
		}
		if err := store.CreateRecord(ctx, attendance.NewRecord("reg-2", testNow)); err != nil {
			return err
		}
		records, err := store.ListRecords(ctx, persistence.RecordFilter{})
		if err != nil {
			return err
		}
		if len(records) != 2 || records[0].RegistrantID != "reg-1" || records[1].RegistrantID != "reg-2" {
			t.Fatalf("unexpected merged listing: %+v", records)
		}

		replacement := attendance.NewVoucher("tok-2", "reg-1", testNow.Add(time.Minute), 0)
		if err := store.CreateBadge(ctx, replacement); err != nil {
			return err
		}
		old, err := store.GetBadge(ctx, "tok-1")
		if err != nil {
			return err
		}
		old.ReplacedBy = "tok-2"
		if err := store.UpdateBadge(ctx, old); err != nil {
			t.Fatalf("UpdateBadge with pending replacement failed: %v", err)
		}
		latest, err := store.LatestBadgeForRegistrant(ctx, "reg-1")
		if err != nil || latest.ID != "tok-2" {
			t.Fatalf("expected pending badge as latest, got %+v err=%v", latest, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	old, err := store.GetBadge(ctx, "tok-1")
	if err != nil || old.ReplacedBy != "tok-2" {
		t.Fatalf("committed badge update missing: %+v err=%v", old, err)
	}
}

func TestStore_WithTxCanceledContext(t *testing.T) {
	t.Parallel()

	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected canceled without running fn, got err=%v called=%v", err, called)
	}
}
