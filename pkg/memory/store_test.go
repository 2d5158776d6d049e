package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "contexts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	cc := NewConversationContext("s1")
	cc.ShortTerm = append(cc.ShortTerm,
		MemoryEntry{ID: "e1", Role: "user", Content: "hello", Timestamp: now, Importance: 5, Embedding: []float32{0.1, 0.2}},
		MemoryEntry{ID: "e2", Role: "assistant", Content: "hi", Timestamp: now.Add(time.Second), Importance: 3},
	)
	cc.MediumTerm = append(cc.MediumTerm, MemoryChunk{
		ID: "c1", Summary: "greeting", Importance: 4,
		TimeRange:      TimeRange{Start: now, End: now.Add(time.Second)},
		SourceEntryIDs: []string{"e1", "e2"},
		Embedding:      []float32{0.3},
	})
	cc.LongTerm = append(cc.LongTerm, MemoryChunk{ID: "c2", Summary: "important", Importance: 9})
	cc.Facts = append(cc.Facts, Fact{ID: "f1", Content: "user says hello", Confidence: 0.8, Timestamp: now})
	cc.Metadata["origin"] = "test"
	cc.LastSummarized = now

	if err := store.Save(ctx, cc); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, found, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatalf("saved context not found")
	}
	if got.SessionID != "s1" {
		t.Fatalf("session id: %q", got.SessionID)
	}
	if len(got.ShortTerm) != 2 || got.ShortTerm[0].ID != "e1" || got.ShortTerm[1].Content != "hi" {
		t.Fatalf("short-term mismatch: %+v", got.ShortTerm)
	}
	if len(got.ShortTerm[0].Embedding) != 2 {
		t.Fatalf("entry embedding lost: %+v", got.ShortTerm[0])
	}
	if len(got.MediumTerm) != 1 || len(got.MediumTerm[0].SourceEntryIDs) != 2 {
		t.Fatalf("chunk mismatch: %+v", got.MediumTerm)
	}
	if !got.MediumTerm[0].TimeRange.Start.Equal(now) {
		t.Fatalf("time range start mismatch: %v != %v", got.MediumTerm[0].TimeRange.Start, now)
	}
	if len(got.LongTerm) != 1 || got.LongTerm[0].Importance != 9 {
		t.Fatalf("long-term mismatch: %+v", got.LongTerm)
	}
	if len(got.Facts) != 1 || got.Facts[0].Confidence != 0.8 {
		t.Fatalf("facts mismatch: %+v", got.Facts)
	}
	if got.Metadata["origin"] != "test" {
		t.Fatalf("metadata mismatch: %+v", got.Metadata)
	}
	if !got.LastSummarized.Equal(now) {
		t.Fatalf("lastSummarized mismatch: %v != %v", got.LastSummarized, now)
	}
}

func TestSQLiteStore_MissingRecordIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	cc, found, err := store.Load(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("load of missing record errored: %v", err)
	}
	if found || cc != nil {
		t.Fatalf("missing record must report found=false, got %v %v", found, cc)
	}
}

func TestSQLiteStore_SaveUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cc := NewConversationContext("s1")
	cc.Facts = append(cc.Facts, Fact{ID: "f1", Content: "v1"})
	if err := store.Save(ctx, cc); err != nil {
		t.Fatalf("first save: %v", err)
	}
	cc.Facts = append(cc.Facts, Fact{ID: "f2", Content: "v2"})
	if err := store.Save(ctx, cc); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, _, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Facts) != 2 {
		t.Fatalf("upsert did not replace document: %+v", got.Facts)
	}
}

func TestSQLiteStore_DeleteAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, NewConversationContext(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	ids, err := store.ListSessionIDs(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions after delete, got %v", ids)
	}
	for _, id := range ids {
		if id == "b" {
			t.Fatalf("deleted session still listed: %v", ids)
		}
	}

	limited, err := store.ListSessionIDs(ctx, 1)
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit not applied: %v", limited)
	}
}

func TestSQLiteStore_SaveRejectsMissingSessionID(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(context.Background(), &ConversationContext{}); err == nil {
		t.Fatalf("expected error for missing session id")
	}
	if err := store.Save(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil context")
	}
}

func TestSQLiteStore_LoadNormalizesNilSlices(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A document written by an older build may omit every collection.
	if _, err := store.db.ExecContext(ctx, `
		INSERT INTO contexts (session_id, document, updated_at_ms)
		VALUES ('bare', '{"session_id":"bare"}', 0)
	`); err != nil {
		t.Fatalf("insert bare document: %v", err)
	}

	cc, found, err := store.Load(ctx, "bare")
	if err != nil || !found {
		t.Fatalf("load bare: found=%v err=%v", found, err)
	}
	if cc.ShortTerm == nil || cc.MediumTerm == nil || cc.LongTerm == nil || cc.Facts == nil || cc.Metadata == nil {
		t.Fatalf("collections not normalized: %+v", cc)
	}
}

func TestMemStore_IsolatesSavedState(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	cc := NewConversationContext("s1")
	cc.Facts = append(cc.Facts, Fact{ID: "f1", Content: "original"})
	if err := store.Save(ctx, cc); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's copy after save must not affect the stored one.
	cc.Facts[0].Content = "mutated"

	got, found, err := store.Load(ctx, "s1")
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if got.Facts[0].Content != "original" {
		t.Fatalf("store shares memory with caller: %+v", got.Facts)
	}
}
