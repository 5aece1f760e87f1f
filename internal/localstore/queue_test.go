package localstore

import (
	"context"
	"errors"
	"testing"
)

func TestEnqueueAssignsMonotonicIdentifiers(t *testing.T) {
	store := openTestStore(t, fixedClock(1700000000))
	ctx := context.Background()

	firstID, err := store.Enqueue(ctx, "start_order", `{"orderId":42}`)
	if err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	secondID, err := store.Enqueue(ctx, "complete_order", `{"orderId":42}`)
	if err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if secondID <= firstID {
		t.Fatalf("expected identifiers to increase, got %d then %d", firstID, secondID)
	}
}

func TestEnqueueRejectsEmptyKind(t *testing.T) {
	store := openTestStore(t, fixedClock(1700000000))

	if _, err := store.Enqueue(context.Background(), "", "{}"); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestPendingReturnsIncompleteInEnqueueOrder(t *testing.T) {
	store := openTestStore(t, fixedClock(1700000000))
	ctx := context.Background()

	kinds := []string{"start_order", "mark_picked", "mark_missing", "complete_order"}
	ids := make([]int64, 0, len(kinds))
	for _, kind := range kinds {
		id, err := store.Enqueue(ctx, kind, "{}")
		if err != nil {
			t.Fatalf("unexpected enqueue error: %v", err)
		}
		ids = append(ids, id)
	}

	if err := store.MarkCompleted(ctx, ids[1]); err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}

	pending, err := store.Pending(ctx)
	if err != nil {
		t.Fatalf("unexpected pending error: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending mutations, got %d", len(pending))
	}
	expected := []string{"start_order", "mark_missing", "complete_order"}
	for index, mutation := range pending {
		if mutation.Kind != expected[index] {
			t.Fatalf("unexpected kind at %d: %s", index, mutation.Kind)
		}
		if mutation.Completed {
			t.Fatalf("pending mutation %d should not be completed", mutation.ID)
		}
	}

	count, err := store.PendingCount(ctx)
	if err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected pending count 3, got %d", count)
	}
}

func TestMarkCompletedRetainsDeliveryLog(t *testing.T) {
	store := openTestStore(t, fixedClock(1700000100))
	ctx := context.Background()

	id, err := store.Enqueue(ctx, "create_qr_mapping", `{"qrCode":"QR-1","sku":"SKU-1"}`)
	if err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if err := store.MarkCompleted(ctx, id); err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}

	completed, err := store.CompletedSince(ctx, 1700000100)
	if err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected completed mutation to be retained, got %d rows", len(completed))
	}
	if completed[0].ID != id {
		t.Fatalf("unexpected retained id %d", completed[0].ID)
	}
	if completed[0].CompletedAtSeconds != 1700000100 {
		t.Fatalf("unexpected completion timestamp %d", completed[0].CompletedAtSeconds)
	}
}

func TestMarkCompletedUnknownIdentifier(t *testing.T) {
	store := openTestStore(t, fixedClock(1700000000))

	err := store.MarkCompleted(context.Background(), 9999)
	if !errors.Is(err, ErrMutationNotFound) {
		t.Fatalf("expected ErrMutationNotFound, got %v", err)
	}
}
