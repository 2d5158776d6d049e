package memory

import "time"

// MemoryEntry is one raw conversational turn held in short-term memory.
// Importance and Embedding are back-filled asynchronously and may be absent
// at read time.
type MemoryEntry struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Importance int       `json:"importance"`
	Tags       []string  `json:"tags,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// TimeRange spans the source entries of a chunk.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MemoryChunk is a compressed stand-in for a contiguous span of entries.
// Chunks are append-only: after creation they are only promoted to the
// long-term tier or dropped, never mutated.
type MemoryChunk struct {
	ID             string    `json:"id"`
	Summary        string    `json:"summary"`
	TimeRange      TimeRange `json:"time_range"`
	SourceEntryIDs []string  `json:"source_entry_ids"`
	Importance     int       `json:"importance"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

// Fact is an atomic piece of extracted information. Facts are append-only;
// there is no de-duplication or contradiction resolution.
type Fact struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConversationContext is the aggregate root for one session's memory.
// At most one in-memory copy exists per session; the Store owns the
// durable copy.
type ConversationContext struct {
	SessionID      string            `json:"session_id"`
	ShortTerm      []MemoryEntry     `json:"short_term_memory"`
	MediumTerm     []MemoryChunk     `json:"medium_term_memory"`
	LongTerm       []MemoryChunk     `json:"long_term_memory"`
	Facts          []Fact            `json:"facts"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	LastSummarized time.Time         `json:"last_summarized"`
}

// NewConversationContext returns a fresh, empty context for sessionID.
func NewConversationContext(sessionID string) *ConversationContext {
	return &ConversationContext{
		SessionID:  sessionID,
		ShortTerm:  []MemoryEntry{},
		MediumTerm: []MemoryChunk{},
		LongTerm:   []MemoryChunk{},
		Facts:      []Fact{},
		Metadata:   map[string]string{},
	}
}

// Clone produces a deep copy suitable for lock-free reads. Embeddings are
// shared (they are never mutated after assignment).
func (c *ConversationContext) Clone() *ConversationContext {
	out := &ConversationContext{
		SessionID:      c.SessionID,
		ShortTerm:      make([]MemoryEntry, len(c.ShortTerm)),
		MediumTerm:     make([]MemoryChunk, len(c.MediumTerm)),
		LongTerm:       make([]MemoryChunk, len(c.LongTerm)),
		Facts:          make([]Fact, len(c.Facts)),
		Metadata:       make(map[string]string, len(c.Metadata)),
		LastSummarized: c.LastSummarized,
	}
	copy(out.ShortTerm, c.ShortTerm)
	copy(out.MediumTerm, c.MediumTerm)
	copy(out.LongTerm, c.LongTerm)
	copy(out.Facts, c.Facts)
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// LastActivity is the newest short-term entry timestamp, falling back to
// LastSummarized when the buffer is empty. Drives idle-session eviction.
func (c *ConversationContext) LastActivity() time.Time {
	last := c.LastSummarized
	for _, e := range c.ShortTerm {
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	return last
}

// ExtractedFact is one fact as returned by the generation provider before
// it is assigned an ID and appended to the context.
type ExtractedFact struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// DefaultImportance is assigned to every entry until the provider rates it.
const DefaultImportance = 5
