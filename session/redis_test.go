package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/notifyflow/notifyflow/engine"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(client, "notify", time.Hour), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	state := engine.NewFlowState(3)
	state.Params["region"] = "anglian"
	state.LicenceNumbers = []string{"01/123"}

	if err := store.Put(ctx, "sess-1", 3, state); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "sess-1", 3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected stored state, got nil")
	}
	if got.TaskID != 3 || got.Params["region"] != "anglian" {
		t.Errorf("Unexpected state %+v", got)
	}
	if len(got.LicenceNumbers) != 1 || got.LicenceNumbers[0] != "01/123" {
		t.Errorf("Unexpected licence numbers %v", got.LicenceNumbers)
	}
}

func TestRedisStoreAbsentSlot(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Get(context.Background(), "sess-1", 3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for absent slot, got %+v", got)
	}
}

func TestRedisStoreClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "sess-1", 3, engine.NewFlowState(3)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Clear(ctx, "sess-1", 3); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	got, err := store.Get(ctx, "sess-1", 3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected cleared slot, got %+v", got)
	}
}

func TestRedisStoreSlotsAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a := engine.NewFlowState(3)
	a.Params["region"] = "anglian"
	b := engine.NewFlowState(4)
	b.Params["region"] = "midlands"

	// Starting task 4 mid-flow must not corrupt task 3's slot, and the same
	// task in another session stays separate too.
	if err := store.Put(ctx, "sess-1", 3, a); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "sess-1", 4, b); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "sess-2", 3, engine.NewFlowState(3)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "sess-1", 3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Params["region"] != "anglian" {
		t.Errorf("Task 3 slot corrupted: %+v", got.Params)
	}
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	store, mr := newTestStore(t)

	if err := store.Put(context.Background(), "sess-1", 3, engine.NewFlowState(3)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ttl := mr.TTL("notify:flow:sess-1:3"); ttl != time.Hour {
		t.Errorf("Expected 1h TTL on slot, got %v", ttl)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state := engine.NewFlowState(3)
	state.Params["region"] = "anglian"
	if err := store.Put(ctx, "sess-1", 3, state); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "sess-1", 3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got.TaskID = 99

	again, _ := store.Get(ctx, "sess-1", 3)
	if again.TaskID != 3 {
		t.Errorf("Stored state mutated through a returned copy")
	}
}
