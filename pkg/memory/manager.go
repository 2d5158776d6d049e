package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures the memory subsystem.
type Config struct {
	// ShortTermMaxSize is the short-term buffer size at which summarization
	// prunes the buffer to its most recent half (rounded up).
	ShortTermMaxSize int
	// SummarizeEveryMessages triggers summarization once the short-term
	// buffer reaches this many entries.
	SummarizeEveryMessages int
	// SummarizeEvery triggers summarization once this much time has passed
	// since the last one.
	SummarizeEvery time.Duration
	// MinChunkImportance is the medium-tier retention floor; chunks rated
	// below it are dropped on the next summarization pass.
	MinChunkImportance int
	// LongTermImportance promotes a chunk into long-term memory.
	LongTermImportance int
	// SimilarityThreshold gates semantic chunk recall.
	SimilarityThreshold float64
	// MaxRankedChunks bounds how many chunk summaries retrieval appends.
	MaxRankedChunks int
	// MaxRecentFacts bounds how many facts retrieval appends.
	MaxRecentFacts int
	// QueueBuffer sizes each per-session background task queue.
	QueueBuffer int
	// EnrichTimeout bounds every remote enrichment call.
	EnrichTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ShortTermMaxSize <= 0 {
		c.ShortTermMaxSize = 10
	}
	if c.SummarizeEveryMessages <= 0 {
		c.SummarizeEveryMessages = 10
	}
	if c.SummarizeEvery <= 0 {
		c.SummarizeEvery = 30 * time.Minute
	}
	if c.MinChunkImportance <= 0 {
		c.MinChunkImportance = 3
	}
	if c.LongTermImportance <= 0 {
		c.LongTermImportance = 8
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.7
	}
	if c.MaxRankedChunks <= 0 {
		c.MaxRankedChunks = 3
	}
	if c.MaxRecentFacts <= 0 {
		c.MaxRecentFacts = 10
	}
	if c.QueueBuffer <= 0 {
		c.QueueBuffer = 64
	}
	if c.EnrichTimeout <= 0 {
		c.EnrichTimeout = 8 * time.Second
	}
}

// Manager owns the memory tiers of every active session. AddMessage and
// GetContext are the only operations the rest of the system needs; tier
// movement, enrichment, and eviction are internal.
type Manager struct {
	cfg       Config
	sessions  *Sessions
	store     Store
	embedder  Embedder
	generator Generator
	retriever *Retriever
	log       zerolog.Logger
}

func NewManager(cfg Config, store Store, embedder Embedder, generator Generator, log zerolog.Logger) *Manager {
	cfg.applyDefaults()
	sessions := NewSessions(store, cfg.QueueBuffer, log)
	m := &Manager{
		cfg:       cfg,
		sessions:  sessions,
		store:     store,
		embedder:  embedder,
		generator: generator,
		log:       log,
	}
	m.retriever = NewRetriever(sessions, embedder, cfg, log)
	return m
}

// Sessions exposes the lifecycle manager for cleanup scheduling and
// inspection.
func (m *Manager) Sessions() *Sessions { return m.sessions }

// GetContext assembles bounded retrieval context for query. It never fails;
// missing enrichment only degrades ranking quality.
func (m *Manager) GetContext(ctx context.Context, sessionID, query string, maxTokens int) string {
	return m.retriever.GetContext(ctx, sessionID, query, maxTokens)
}

// AddMessage appends one turn to the session's short-term memory, schedules
// asynchronous enrichment, and evaluates the summarization trigger. Provider
// failures never surface to the caller.
func (m *Manager) AddMessage(ctx context.Context, sessionID, role, content string) {
	s := m.sessions.acquire(ctx, sessionID)

	entry := MemoryEntry{
		ID:         uuid.NewString(),
		Role:       role,
		Content:    content,
		Timestamp:  time.Now(),
		Importance: DefaultImportance,
		Tags:       []string{},
	}

	s.mu.Lock()
	s.cc.ShortTerm = append(s.cc.ShortTerm, entry)
	shortLen := len(s.cc.ShortTerm)
	lastSummarized := s.cc.LastSummarized
	s.mu.Unlock()

	// Assistant turns mark a natural conversation boundary; capture state
	// durably before anything else happens.
	if role == "assistant" {
		m.sessions.persist(ctx, s)
	}

	m.scheduleEnrichment(s, entry)

	due := shortLen >= m.cfg.SummarizeEveryMessages ||
		(!lastSummarized.IsZero() && time.Since(lastSummarized) >= m.cfg.SummarizeEvery)
	if due && shortLen >= minSummarizeEntries {
		m.scheduleSummarize(s)
	}
}

// Summarize compresses the current short-term buffer into a medium-term
// chunk. Buffers smaller than three entries are a no-op.
func (m *Manager) Summarize(ctx context.Context, sessionID string) {
	m.summarize(ctx, m.sessions.acquire(ctx, sessionID))
}

const minSummarizeEntries = 3

// scheduleEnrichment queues the three independent back-fill tasks. Each
// tolerates provider failure; the entry simply keeps its defaults.
func (m *Manager) scheduleEnrichment(s *session, entry MemoryEntry) {
	if !s.queue.Enqueue(func() { m.embedEntry(s, entry.ID, entry.Content) }) {
		m.log.Warn().Str("entry", entry.ID).Msg("enrichment queue full, embedding skipped")
	}
	if !s.queue.Enqueue(func() { m.rateEntry(s, entry.ID, entry.Content) }) {
		m.log.Warn().Str("entry", entry.ID).Msg("enrichment queue full, importance skipped")
	}
	if !s.queue.Enqueue(func() { m.extractFacts(s, entry.Content) }) {
		m.log.Warn().Str("entry", entry.ID).Msg("enrichment queue full, facts skipped")
	}
}

func (m *Manager) scheduleSummarize(s *session) {
	s.mu.Lock()
	if s.summarizing {
		s.mu.Unlock()
		return
	}
	s.summarizing = true
	s.mu.Unlock()

	accepted := s.queue.Enqueue(func() {
		defer func() {
			s.mu.Lock()
			s.summarizing = false
			s.mu.Unlock()
		}()
		m.summarizeOnce(context.Background(), s)
	})
	if !accepted {
		s.mu.Lock()
		s.summarizing = false
		s.mu.Unlock()
	}
}

func (m *Manager) summarize(ctx context.Context, s *session) {
	s.mu.Lock()
	if s.summarizing {
		s.mu.Unlock()
		return
	}
	s.summarizing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.summarizing = false
		s.mu.Unlock()
	}()
	m.summarizeOnce(ctx, s)
}

// summarizeOnce performs one full summarization cycle: snapshot, remote
// summary, chunk construction, prune, promote, filter, persist. Callers
// guarantee the per-session summarizing guard is held.
func (m *Manager) summarizeOnce(ctx context.Context, s *session) {
	s.mu.RLock()
	if len(s.cc.ShortTerm) < minSummarizeEntries {
		s.mu.RUnlock()
		return
	}
	snapshot := make([]MemoryEntry, len(s.cc.ShortTerm))
	copy(snapshot, s.cc.ShortTerm)
	sessionID := s.cc.SessionID
	s.mu.RUnlock()

	if m.generator == nil || !m.generator.Available() {
		m.log.Debug().Str("session", sessionID).Msg("generator unavailable, summarization skipped")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.EnrichTimeout)
	summary, err := m.generator.Summarize(callCtx, buildTranscript(snapshot))
	cancel()
	if err != nil || strings.TrimSpace(summary) == "" {
		m.log.Warn().Err(err).Str("session", sessionID).Msg("summarization failed")
		return
	}

	chunk := MemoryChunk{
		ID:             uuid.NewString(),
		Summary:        strings.TrimSpace(summary),
		TimeRange:      TimeRange{Start: snapshot[0].Timestamp, End: snapshot[len(snapshot)-1].Timestamp},
		SourceEntryIDs: entryIDs(snapshot),
		Importance:     maxImportance(snapshot),
	}
	if m.embedder != nil && m.embedder.Available() {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.EnrichTimeout)
		vec, embErr := m.embedder.Embed(callCtx, chunk.Summary)
		cancel()
		if embErr != nil {
			m.log.Warn().Err(embErr).Str("session", sessionID).Msg("chunk embedding failed")
		} else {
			chunk.Embedding = vec
		}
	}

	s.mu.Lock()
	s.cc.MediumTerm = append(s.cc.MediumTerm, chunk)
	if len(s.cc.ShortTerm) >= m.cfg.ShortTermMaxSize {
		keep := (len(s.cc.ShortTerm) + 1) / 2
		s.cc.ShortTerm = append([]MemoryEntry{}, s.cc.ShortTerm[len(s.cc.ShortTerm)-keep:]...)
	}
	if chunk.Importance >= m.cfg.LongTermImportance {
		s.cc.LongTerm = append(s.cc.LongTerm, chunk)
	}
	s.cc.MediumTerm = filterChunks(s.cc.MediumTerm, m.cfg.MinChunkImportance)
	s.cc.LastSummarized = time.Now()
	s.mu.Unlock()

	m.sessions.persist(ctx, s)
	m.log.Info().Str("session", sessionID).Int("entries", len(snapshot)).Msg("short-term buffer summarized")
}

func (m *Manager) embedEntry(s *session, entryID, content string) {
	if m.embedder == nil || !m.embedder.Available() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.EnrichTimeout)
	defer cancel()
	vec, err := m.embedder.Embed(ctx, content)
	if err != nil {
		m.log.Warn().Err(err).Str("entry", entryID).Msg("entry embedding failed")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Keyed on entry ID: a late result against a summarized-away or
	// rehydrated buffer is simply discarded.
	for i := range s.cc.ShortTerm {
		if s.cc.ShortTerm[i].ID == entryID {
			s.cc.ShortTerm[i].Embedding = vec
			return
		}
	}
}

func (m *Manager) rateEntry(s *session, entryID, content string) {
	if m.generator == nil || !m.generator.Available() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.EnrichTimeout)
	defer cancel()
	score, err := m.generator.RateImportance(ctx, content)
	if err != nil {
		m.log.Warn().Err(err).Str("entry", entryID).Msg("importance rating failed")
		return
	}
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cc.ShortTerm {
		if s.cc.ShortTerm[i].ID == entryID {
			s.cc.ShortTerm[i].Importance = score
			return
		}
	}
}

func (m *Manager) extractFacts(s *session, content string) {
	if m.generator == nil || !m.generator.Available() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.EnrichTimeout)
	defer cancel()
	extracted, err := m.generator.ExtractFacts(ctx, content)
	if err != nil {
		m.log.Warn().Err(err).Msg("fact extraction failed")
		return
	}
	if len(extracted) == 0 {
		return
	}
	now := time.Now()
	facts := make([]Fact, 0, len(extracted))
	for _, f := range extracted {
		text := strings.TrimSpace(f.Content)
		if text == "" {
			continue
		}
		facts = append(facts, Fact{
			ID:         uuid.NewString(),
			Content:    text,
			Confidence: clampConfidence(f.Confidence),
			Timestamp:  now,
		})
	}
	if len(facts) == 0 {
		return
	}
	s.mu.Lock()
	s.cc.Facts = append(s.cc.Facts, facts...)
	s.mu.Unlock()
}

// Close flushes and releases every active session.
func (m *Manager) Close(ctx context.Context) {
	m.sessions.Close(ctx)
}

func buildTranscript(entries []MemoryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Role)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(e.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func entryIDs(entries []MemoryEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func maxImportance(entries []MemoryEntry) int {
	max := 1
	for _, e := range entries {
		if e.Importance > max {
			max = e.Importance
		}
	}
	return max
}

func filterChunks(chunks []MemoryChunk, minImportance int) []MemoryChunk {
	kept := chunks[:0]
	for _, c := range chunks {
		if c.Importance >= minImportance {
			kept = append(kept, c)
		}
	}
	return kept
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
