package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-engine-service/internal/domain"
)

func TestLedgerStoreOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, rec := range []domain.ProgressRecord{
		{ID: "r1", UserID: "u1", Subject: "math", Percentage: 10, RecordedAt: base},
		{ID: "r2", UserID: "u1", Subject: "math", Percentage: 20, RecordedAt: base.Add(time.Minute)},
		{ID: "r3", UserID: "u1", Subject: "math", Percentage: 30, RecordedAt: base.Add(time.Minute)},
		{ID: "r4", UserID: "u1", Subject: "science", Percentage: 40, RecordedAt: base.Add(2 * time.Minute)},
		{ID: "r5", UserID: "u2", Subject: "math", Percentage: 50, RecordedAt: base.Add(3 * time.Minute)},
	} {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := store.ListByUser(ctx, "u1", "math")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"r3", "r2", "r1"}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}

	all, _ := store.ListByUser(ctx, "u1", "")
	if len(all) != 4 || all[0].ID != "r4" {
		t.Fatalf("expected 4 records led by r4, got %+v", all)
	}
}

func TestLedgerStoreDeleteChecksOwnership(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore()
	_ = store.Append(ctx, domain.ProgressRecord{ID: "r1", UserID: "u1", Subject: "math"})

	if err := store.Delete(ctx, "u2", "r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for foreign record, got %v", err)
	}
	if err := store.Delete(ctx, "u1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing record, got %v", err)
	}
	if err := store.Delete(ctx, "u1", "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if recs, _ := store.ListByUser(ctx, "u1", ""); len(recs) != 0 {
		t.Fatalf("expected empty ledger, got %d", len(recs))
	}
}

func TestBatchStoreExpires(t *testing.T) {
	ctx := context.Background()
	store := NewBatchStore(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	if err := store.SaveBatch(ctx, domain.Batch{ID: "b1", TopicID: "algebra"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.GetBatch(ctx, "b1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.GetBatch(ctx, "b1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected expired batch to be gone, got %v", err)
	}
}

func TestLedgerStoreAppendIgnoresRepeatedID(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore()
	rec := domain.ProgressRecord{ID: "r1", UserID: "u1", Subject: "math", Percentage: 70, RecordedAt: time.Now()}

	for i := 0; i < 2; i++ {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, _ := store.ListByUser(ctx, "u1", "")
	if len(got) != 1 {
		t.Fatalf("expected one stored record, got %d", len(got))
	}
}
