package memory

import "context"

// Store provides durable persistence for conversation contexts, one record
// per session. Record absence is a valid state (fresh session).
type Store interface {
	Load(ctx context.Context, sessionID string) (*ConversationContext, bool, error)
	Save(ctx context.Context, cc *ConversationContext) error
	Delete(ctx context.Context, sessionID string) error
	ListSessionIDs(ctx context.Context, limit int) ([]string, error)
	Close() error
}

// Embedder turns text into a fixed-length vector. Implementations must be
// safely callable with no credentials configured, reporting unavailability
// through Available rather than attempting network I/O.
type Embedder interface {
	Available() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator wraps the remote text-generation service. The three operations
// fail independently; a failure of one never implies a failure of another.
type Generator interface {
	Available() bool
	RateImportance(ctx context.Context, content string) (int, error)
	ExtractFacts(ctx context.Context, content string) ([]ExtractedFact, error)
	Summarize(ctx context.Context, transcript string) (string, error)
}
