package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Retriever assembles a bounded context string from a session's tiers and
// facts. It is read-only and always operates on an immutable snapshot, so it
// never observes a context mid-mutation.
type Retriever struct {
	sessions *Sessions
	embedder Embedder
	cfg      Config
	log      zerolog.Logger
}

func NewRetriever(sessions *Sessions, embedder Embedder, cfg Config, log zerolog.Logger) *Retriever {
	cfg.applyDefaults()
	return &Retriever{sessions: sessions, embedder: embedder, cfg: cfg, log: log}
}

// GetContext renders the short-term transcript, the most recent facts, and
// the semantically closest chunk summaries for query. maxTokens is an upper
// bound the caller intends to respect; this engine does not truncate.
// GetContext always succeeds: a failed query embedding only drops the
// semantic-ranking section.
func (r *Retriever) GetContext(ctx context.Context, sessionID, query string, maxTokens int) string {
	snap := r.sessions.Get(ctx, sessionID)

	var b strings.Builder
	b.WriteString("Current conversation:\n")
	for _, e := range snap.ShortTerm {
		b.WriteString(e.Role)
		b.WriteString(": ")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}

	if len(snap.Facts) > 0 {
		b.WriteString("\nRecent facts:\n")
		start := len(snap.Facts) - r.cfg.MaxRecentFacts
		if start < 0 {
			start = 0
		}
		// Newest first.
		for i := len(snap.Facts) - 1; i >= start; i-- {
			b.WriteString("- ")
			b.WriteString(snap.Facts[i].Content)
			b.WriteString("\n")
		}
	}

	if summaries := r.rankChunks(ctx, sessionID, query, snap); len(summaries) > 0 {
		b.WriteString("\nRelevant past conversation:\n")
		for _, s := range summaries {
			b.WriteString("> ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// rankChunks scores every embedded medium/long-term chunk against the query
// embedding and returns the top summaries above the similarity threshold.
// Chunks that never received an embedding are silently excluded.
func (r *Retriever) rankChunks(ctx context.Context, sessionID, query string, snap *ConversationContext) []string {
	if r.embedder == nil || !r.embedder.Available() {
		return nil
	}
	candidates := mergeChunks(snap.MediumTerm, snap.LongTerm)
	if len(candidates) == 0 {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.EnrichTimeout)
	queryVec, err := r.embedder.Embed(callCtx, query)
	cancel()
	if err != nil {
		r.log.Warn().Err(err).Str("session", sessionID).Msg("query embedding failed, skipping semantic recall")
		return nil
	}

	type scored struct {
		chunk MemoryChunk
		sim   float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(queryVec, c.Embedding)
		if sim > r.cfg.SimilarityThreshold {
			ranked = append(ranked, scored{chunk: c, sim: sim})
		}
	}
	if len(ranked) == 0 {
		return nil
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })

	limit := r.cfg.MaxRankedChunks
	if len(ranked) < limit {
		limit = len(ranked)
	}
	out := make([]string, 0, limit)
	for _, s := range ranked[:limit] {
		out = append(out, s.chunk.Summary)
	}
	return out
}

// mergeChunks unions the two summary tiers by chunk ID; promotion appends
// the same chunk to both, so the union avoids double-ranking it.
func mergeChunks(medium, long []MemoryChunk) []MemoryChunk {
	seen := make(map[string]struct{}, len(medium)+len(long))
	out := make([]MemoryChunk, 0, len(medium)+len(long))
	for _, c := range medium {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range long {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// EstimateTokens gives callers a cheap length signal for enforcing their
// own maxTokens budget over the returned context.
func EstimateTokens(s string) int {
	runes := len([]rune(s))
	if runes == 0 {
		return 0
	}
	tokens := runes * 2 / 5
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
