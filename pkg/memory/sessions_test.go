package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSessions_GetCreatesFreshContext(t *testing.T) {
	sessions := NewSessions(NewMemStore(), 8, zerolog.Nop())
	defer sessions.Close(context.Background())

	cc := sessions.Get(context.Background(), "brand-new")
	if cc.SessionID != "brand-new" {
		t.Fatalf("unexpected session id %q", cc.SessionID)
	}
	if len(cc.ShortTerm) != 0 || len(cc.MediumTerm) != 0 || len(cc.LongTerm) != 0 || len(cc.Facts) != 0 {
		t.Fatalf("fresh context must be empty: %+v", cc)
	}
	if !cc.LastSummarized.IsZero() {
		t.Fatalf("fresh context must have zero lastSummarized")
	}
	if sessions.Active() != 1 {
		t.Fatalf("expected 1 active session, got %d", sessions.Active())
	}
}

func TestSessions_GetReturnsSnapshot(t *testing.T) {
	sessions := NewSessions(NewMemStore(), 8, zerolog.Nop())
	defer sessions.Close(context.Background())

	ctx := context.Background()
	s := sessions.acquire(ctx, "s1")
	s.mu.Lock()
	s.cc.ShortTerm = append(s.cc.ShortTerm, MemoryEntry{ID: "e1", Role: "user", Content: "hi", Timestamp: time.Now()})
	s.mu.Unlock()

	snap := sessions.Get(ctx, "s1")
	snap.ShortTerm[0].Content = "mutated"
	snap.Facts = append(snap.Facts, Fact{ID: "fx"})

	again := sessions.Get(ctx, "s1")
	if again.ShortTerm[0].Content != "hi" || len(again.Facts) != 0 {
		t.Fatalf("snapshot mutation leaked into the live context: %+v", again)
	}
}

func TestSessions_HydratesFromStore(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	persisted := NewConversationContext("s1")
	persisted.ShortTerm = append(persisted.ShortTerm, MemoryEntry{ID: "e1", Role: "user", Content: "remembered", Timestamp: time.Now()})
	persisted.Facts = append(persisted.Facts, Fact{ID: "f1", Content: "user is back", Confidence: 0.9, Timestamp: time.Now()})
	persisted.MediumTerm = append(persisted.MediumTerm, MemoryChunk{ID: "c1", Summary: "earlier talk", Importance: 5})
	if err := store.Save(ctx, persisted); err != nil {
		t.Fatalf("save: %v", err)
	}

	sessions := NewSessions(store, 8, zerolog.Nop())
	defer sessions.Close(ctx)

	cc := sessions.Get(ctx, "s1")
	if len(cc.ShortTerm) != 1 || cc.ShortTerm[0].Content != "remembered" {
		t.Fatalf("short-term not rehydrated: %+v", cc.ShortTerm)
	}
	if len(cc.Facts) != 1 || cc.Facts[0].Content != "user is back" {
		t.Fatalf("facts not rehydrated: %+v", cc.Facts)
	}
	if len(cc.MediumTerm) != 1 || cc.MediumTerm[0].ID != "c1" {
		t.Fatalf("chunks not rehydrated: %+v", cc.MediumTerm)
	}
}

func TestSessions_CleanupPersistsAndEvicts(t *testing.T) {
	store := NewMemStore()
	sessions := NewSessions(store, 8, zerolog.Nop())
	ctx := context.Background()

	s := sessions.acquire(ctx, "idle")
	old := time.Now().Add(-48 * time.Hour)
	s.mu.Lock()
	s.cc.ShortTerm = append(s.cc.ShortTerm, MemoryEntry{ID: "e1", Role: "user", Content: "long ago", Timestamp: old})
	s.cc.Facts = append(s.cc.Facts, Fact{ID: "f1", Content: "stale but true", Confidence: 1, Timestamp: old})
	s.mu.Unlock()

	evicted := sessions.CleanupInactive(ctx, 24*time.Hour)
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if sessions.Active() != 0 {
		t.Fatalf("evicted session still active")
	}

	// Eviction flushed state; rehydration restores it identically.
	cc := sessions.Get(ctx, "idle")
	if len(cc.ShortTerm) != 1 || cc.ShortTerm[0].Content != "long ago" {
		t.Fatalf("evicted state lost: %+v", cc.ShortTerm)
	}
	if len(cc.Facts) != 1 || cc.Facts[0].Content != "stale but true" {
		t.Fatalf("facts lost across eviction: %+v", cc.Facts)
	}
}

func TestSessions_CleanupSparesActive(t *testing.T) {
	sessions := NewSessions(NewMemStore(), 8, zerolog.Nop())
	ctx := context.Background()
	defer sessions.Close(ctx)

	s := sessions.acquire(ctx, "busy")
	s.mu.Lock()
	s.cc.ShortTerm = append(s.cc.ShortTerm, MemoryEntry{ID: "e1", Role: "user", Content: "now", Timestamp: time.Now()})
	s.mu.Unlock()

	if evicted := sessions.CleanupInactive(ctx, 24*time.Hour); evicted != 0 {
		t.Fatalf("active session evicted: %d", evicted)
	}
	if sessions.Active() != 1 {
		t.Fatalf("active session dropped from the table")
	}
}

func TestSessions_CloseFlushesEverySession(t *testing.T) {
	store := NewMemStore()
	sessions := NewSessions(store, 8, zerolog.Nop())
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		s := sessions.acquire(ctx, id)
		s.mu.Lock()
		s.cc.ShortTerm = append(s.cc.ShortTerm, MemoryEntry{ID: id + "-1", Role: "user", Content: "bye", Timestamp: time.Now()})
		s.mu.Unlock()
	}

	sessions.Close(ctx)
	if sessions.Active() != 0 {
		t.Fatalf("close left sessions active")
	}

	for _, id := range []string{"a", "b"} {
		cc, found, err := store.Load(ctx, id)
		if err != nil || !found {
			t.Fatalf("session %s not persisted on close: found=%v err=%v", id, found, err)
		}
		if len(cc.ShortTerm) != 1 {
			t.Fatalf("session %s persisted incomplete", id)
		}
	}
}

func TestLastActivity(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cc := NewConversationContext("s1")
	if !cc.LastActivity().IsZero() {
		t.Fatalf("empty context must report zero activity")
	}

	cc.LastSummarized = base
	if !cc.LastActivity().Equal(base) {
		t.Fatalf("empty buffer must fall back to lastSummarized")
	}

	cc.ShortTerm = []MemoryEntry{
		{ID: "e1", Timestamp: base.Add(time.Minute)},
		{ID: "e2", Timestamp: base.Add(3 * time.Minute)},
		{ID: "e3", Timestamp: base.Add(2 * time.Minute)},
	}
	if !cc.LastActivity().Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("lastActivity must be the newest entry timestamp, got %v", cc.LastActivity())
	}
}
