package history

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"mastery-quiz/internal/infra/memory"
)

func TestMarkAsSeenNormalizesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(memory.NewKVStore())

	if err := tracker.MarkAsSeen(ctx, []string{"  What is RAG? ", "what is rag?"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := tracker.MarkAsSeen(ctx, []string{"WHAT IS RAG?"}); err != nil {
		t.Fatalf("mark again: %v", err)
	}

	seen, err := tracker.SeenTexts(ctx)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected one normalized entry, got %v", seen)
	}
	if _, ok := seen["what is rag?"]; !ok {
		t.Fatalf("expected normalized key, got %v", seen)
	}
}

func TestIsAllSeen(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker(memory.NewKVStore())
	_ = tracker.MarkAsSeen(ctx, []string{"A", "B"})

	all, err := tracker.IsAllSeen(ctx, []string{" a", "b "})
	if err != nil || !all {
		t.Fatalf("expected all seen, got %v err=%v", all, err)
	}
	all, _ = tracker.IsAllSeen(ctx, []string{"a", "c"})
	if all {
		t.Fatalf("expected c to be unseen")
	}
	all, _ = tracker.IsAllSeen(ctx, nil)
	if !all {
		t.Fatalf("expected empty candidate list to be trivially seen")
	}
}

func TestResetClearsHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	tracker := newTestTracker(store)
	_ = tracker.MarkAsSeen(ctx, []string{"A"})

	if err := tracker.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	seen, _ := tracker.SeenTexts(ctx)
	if len(seen) != 0 {
		t.Fatalf("expected empty history, got %v", seen)
	}
	if _, err := store.Get(ctx, "history:seen"); err == nil {
		t.Fatalf("expected history key removed")
	}
}

func TestCorruptHistoryReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	_ = store.Put(ctx, "history:seen", []byte(`{"oops":true}`))
	tracker := newTestTracker(store)

	seen, err := tracker.SeenTexts(ctx)
	if err != nil || len(seen) != 0 {
		t.Fatalf("expected corrupt history swallowed, got %v err=%v", seen, err)
	}
	if err := tracker.MarkAsSeen(ctx, []string{"Fresh"}); err != nil {
		t.Fatalf("mark over corrupt state: %v", err)
	}
	raw, _ := store.Get(ctx, "history:seen")
	if string(raw) != `["fresh"]` {
		t.Fatalf("expected repaired payload, got %s", raw)
	}
}

func newTestTracker(store *memory.KVStore) *Tracker {
	return NewTracker(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}
