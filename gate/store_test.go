package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	id, err := store.Create(ctx, ApprovalRecord{
		OperationType: OpRefund,
		RiskTier:      RiskMedium,
		Reason:        "refund $75",
		Amount:        amt(75),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	rec, found, err := store.Get(ctx, id)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("Status = %s, want pending", rec.Status)
	}
	if rec.DecidedAt != nil {
		t.Fatal("DecidedAt should be nil before any decision")
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be stamped")
	}
}

func TestMemoryStore_ResolveFirstDecisionWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, _ := store.Create(ctx, ApprovalRecord{OperationType: OpRefund, RiskTier: RiskMedium})

	rec, applied, err := store.Resolve(ctx, id, DecisionApprove, "alice")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !applied {
		t.Fatal("first Resolve should apply")
	}
	if rec.Status != StatusApproved || rec.Actor != "alice" || rec.DecidedAt == nil {
		t.Fatalf("unexpected record after first decision: %+v", rec)
	}
	first := *rec.DecidedAt

	// A conflicting second decision must change nothing.
	rec2, applied, err := store.Resolve(ctx, id, DecisionReject, "bob")
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if applied {
		t.Fatal("second Resolve must not apply")
	}
	if rec2.Status != StatusApproved || rec2.Actor != "alice" {
		t.Fatalf("second decision overwrote the first: %+v", rec2)
	}
	if rec2.DecidedAt == nil || !rec2.DecidedAt.Equal(first) {
		t.Fatal("DecidedAt must be stamped exactly once")
	}
}

func TestMemoryStore_ResolveUnknownID(t *testing.T) {
	store := NewMemoryStore()
	_, _, err := store.Resolve(context.Background(), "apr_missing", DecisionApprove, "alice")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ResolveConcurrentOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id, _ := store.Create(ctx, ApprovalRecord{OperationType: OpRefund, RiskTier: RiskHigh})

	const n = 32
	var wg sync.WaitGroup
	applications := make(chan Decision, n)
	for i := 0; i < n; i++ {
		d := DecisionApprove
		if i%2 == 1 {
			d = DecisionReject
		}
		wg.Add(1)
		go func(d Decision) {
			defer wg.Done()
			if _, applied, err := store.Resolve(ctx, id, d, "racer"); err == nil && applied {
				applications <- d
			}
		}(d)
	}
	wg.Wait()
	close(applications)

	var winners []Decision
	for d := range applications {
		winners = append(winners, d)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one applied decision, got %d", len(winners))
	}

	rec, _, _ := store.Get(ctx, id)
	wantStatus, _ := StatusFor(winners[0])
	if rec.Status != wantStatus {
		t.Fatalf("stored status %s does not match winning decision %s", rec.Status, winners[0])
	}
}

func TestMemoryStore_Latest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, found, _ := store.Latest(ctx); found {
		t.Fatal("Latest on empty store should report not found")
	}

	first, _ := store.Create(ctx, ApprovalRecord{OperationType: OpRefund, RiskTier: RiskMedium})
	second, _ := store.Create(ctx, ApprovalRecord{OperationType: OpRefund, RiskTier: RiskMedium})

	// Pending records never show up as the latest decision.
	if _, found, _ := store.Latest(ctx); found {
		t.Fatal("Latest should ignore pending records")
	}

	store.Resolve(ctx, first, DecisionApprove, "alice")
	store.Resolve(ctx, second, DecisionReject, "bob")

	rec, found, err := store.Latest(ctx)
	if err != nil || !found {
		t.Fatalf("Latest: found=%v err=%v", found, err)
	}
	if rec.ID != second {
		t.Fatalf("Latest = %s, want the most recently resolved %s", rec.ID, second)
	}
}

func TestMemoryStore_CreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()
	rec := ApprovalRecord{ID: "apr_fixed", OperationType: OpRefund, RiskTier: RiskLow, CreatedAt: now}
	if _, err := store.Create(ctx, rec); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := store.Create(ctx, rec); err == nil {
		t.Fatal("expected error on duplicate id")
	}
}
