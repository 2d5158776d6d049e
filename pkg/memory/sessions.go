package memory

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// session pairs one in-memory ConversationContext with its lock and its
// serial background queue. All mutation goes through cc under mu; enrichment
// and summarization are routed through queue.
type session struct {
	mu          sync.RWMutex
	cc          *ConversationContext
	queue       *taskQueue
	summarizing bool
}

func (s *session) snapshot() *ConversationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cc.Clone()
}

// Sessions owns the sessionID -> context table and the idle-eviction
// lifecycle. It is the sole path through which a context is obtained.
type Sessions struct {
	store       Store
	log         zerolog.Logger
	queueBuffer int

	mu    sync.Mutex
	table map[string]*session
}

func NewSessions(store Store, queueBuffer int, log zerolog.Logger) *Sessions {
	if queueBuffer <= 0 {
		queueBuffer = 64
	}
	return &Sessions{
		store:       store,
		log:         log,
		queueBuffer: queueBuffer,
		table:       map[string]*session{},
	}
}

// acquire returns the live session for sessionID, hydrating from the store
// or creating a fresh context as needed. A failed hydration degrades to a
// fresh context; the durable copy stays untouched.
func (m *Sessions) acquire(ctx context.Context, sessionID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.table[sessionID]; ok {
		return s
	}

	cc, found, err := m.store.Load(ctx, sessionID)
	if err != nil {
		m.log.Error().Err(err).Str("session", sessionID).Msg("hydrate failed, starting fresh")
	}
	if cc == nil || !found {
		cc = NewConversationContext(sessionID)
	}
	s := &session{cc: cc, queue: newTaskQueue(m.queueBuffer)}
	m.table[sessionID] = s
	return s
}

// Get returns an immutable snapshot of the session's context, hydrating or
// creating it first. External callers never see the live copy.
func (m *Sessions) Get(ctx context.Context, sessionID string) *ConversationContext {
	return m.acquire(ctx, sessionID).snapshot()
}

// Active reports how many sessions are currently held in memory.
func (m *Sessions) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}

// persist flushes the session's current state to the store. Persistence
// failures are logged and absorbed; in-memory state stays authoritative.
func (m *Sessions) persist(ctx context.Context, s *session) {
	snap := s.snapshot()
	if err := m.store.Save(ctx, snap); err != nil {
		m.log.Error().Err(err).Str("session", snap.SessionID).Msg("persist failed")
	}
}

// CleanupInactive persists and drops every in-memory session whose last
// activity is older than maxAge. Durable records are never deleted here.
func (m *Sessions) CleanupInactive(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	expired := map[string]*session{}
	for id, s := range m.table {
		if s.snapshot().LastActivity().Before(cutoff) {
			expired[id] = s
			delete(m.table, id)
		}
	}
	m.mu.Unlock()

	for id, s := range expired {
		s.queue.Close()
		m.persist(ctx, s)
		m.log.Info().Str("session", id).Msg("evicted idle session")
	}
	return len(expired)
}

// RunCleanupLoop evicts idle sessions on a cron cadence until ctx is done.
// An invalid expression falls back to an hourly schedule.
func (m *Sessions) RunCleanupLoop(ctx context.Context, cronExpr string, maxAge time.Duration) {
	gron := gronx.New()
	if !gron.IsValid(cronExpr) {
		m.log.Warn().Str("cron", cronExpr).Msg("invalid cleanup schedule, using hourly")
		cronExpr = "0 * * * *"
	}
	for {
		next, err := gronx.NextTick(cronExpr, false)
		if err != nil {
			next = time.Now().Add(time.Hour)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			count := m.CleanupInactive(ctx, maxAge)
			if count > 0 {
				m.log.Info().Int("evicted", count).Msg("cleanup pass complete")
			}
		}
	}
}

// Close persists every live session and stops its queue.
func (m *Sessions) Close(ctx context.Context) {
	m.mu.Lock()
	remaining := m.table
	m.table = map[string]*session{}
	m.mu.Unlock()

	for _, s := range remaining {
		s.queue.Close()
		m.persist(ctx, s)
	}
}
