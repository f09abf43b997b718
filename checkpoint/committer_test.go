package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/katkad/mongo-observer/oplog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func cpAt(t uint32, i uint32) oplog.Checkpoint {
	return oplog.Checkpoint{Timestamp: primitive.Timestamp{T: t, I: i}}
}

type countingStore struct {
	Memory
	saves int
}

func (s *countingStore) Save(ctx context.Context, cp oplog.Checkpoint) error {
	s.saves++
	return s.Memory.Save(ctx, cp)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, found, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("empty store reported a checkpoint")
	}

	want := cpAt(100, 3)
	if err = store.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, found, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found || got != want {
		t.Errorf("Load = %v/%v, want %v/true", got, found, want)
	}
}

func TestCommitterCountPolicy(t *testing.T) {
	store := &countingStore{}
	committer := NewCommitter(store, CommitterConfig{CommitCount: 3})
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		if err := committer.Advance(ctx, cpAt(100, uint32(i)), false); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	// commits after entries 3 and 6
	if store.saves != 2 {
		t.Errorf("saves = %d, want 2", store.saves)
	}
	got, _, _ := store.Load(ctx)
	if got != cpAt(100, 6) {
		t.Errorf("stored checkpoint = %v, want %v", got, cpAt(100, 6))
	}
}

func TestCommitterForce(t *testing.T) {
	store := &countingStore{}
	committer := NewCommitter(store, CommitterConfig{CommitCount: 1000})
	ctx := context.Background()

	if err := committer.Advance(ctx, cpAt(100, 1), true); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestCommitterIntervalPolicy(t *testing.T) {
	store := &countingStore{}
	committer := NewCommitter(store, CommitterConfig{CommitInterval: 10})
	ctx := context.Background()

	if err := committer.Advance(ctx, cpAt(100, 1), false); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("committed before the interval elapsed")
	}

	time.Sleep(20 * time.Millisecond)
	if err := committer.Advance(ctx, cpAt(100, 2), false); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}
}

func TestCommitterFlush(t *testing.T) {
	store := &countingStore{}
	committer := NewCommitter(store, CommitterConfig{CommitCount: 1000})
	ctx := context.Background()

	cp := cpAt(100, 5)
	if err := committer.Advance(ctx, cp, false); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if err := committer.Flush(ctx, cp); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1", store.saves)
	}
	// a second flush with the same checkpoint is a no-op
	if err := committer.Flush(ctx, cp); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("saves after duplicate flush = %d, want 1", store.saves)
	}
}
