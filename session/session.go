package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/donhauser/atlas-agent/llm"
	"github.com/donhauser/atlas-agent/model"
	"github.com/donhauser/atlas-agent/orchestrator"
)

// historyLimit caps the number of messages kept per session. Older
// messages are dropped oldest-first once the cap is exceeded.
const historyLimit = 20

// Session is one conversation: its history plus the active plan run,
// if a plan is currently executing or suspended on a confirmation.
// Pending holds confirmation-gated calls proposed outside a plan run
// (single-turn reasoning), keyed off their requestIds.
type Session struct {
	ID        string
	History   []llm.ChatMessage
	Run       *orchestrator.Run
	Pending   []*model.PendingToolCall
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Manager tracks sessions by id. Histories are persisted through the
// optional Store; plan runs live in memory only.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    *Store
	logger   *slog.Logger
}

// NewManager creates a session manager. store may be nil for purely
// in-memory sessions.
func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		logger:   logger,
	}
}

// GetOrCreate returns the session for id, loading persisted history on
// first access. An empty id creates a fresh session with a new id.
func (m *Manager) GetOrCreate(ctx context.Context, id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := m.sessions[id]; ok {
		return s
	}

	s := &Session{
		ID:        id,
		History:   []llm.ChatMessage{},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if m.store != nil {
		history, err := m.store.Load(ctx, id)
		if err != nil {
			m.logger.Warn("failed to load session history", "sessionId", id, "error", err)
		} else if len(history) > 0 {
			s.History = history
		}
	}
	m.sessions[id] = s
	return s
}

// Get returns the session for id without creating one.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Append adds a message to the session history, trims to the history
// cap and persists the result.
func (m *Manager) Append(ctx context.Context, s *Session, msg llm.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	s.History = append(s.History, msg)
	if len(s.History) > historyLimit {
		s.History = s.History[len(s.History)-historyLimit:]
	}
	s.UpdatedAt = time.Now()

	if m.store != nil {
		if err := m.store.Save(ctx, s.ID, s.History); err != nil {
			m.logger.Warn("failed to persist session history", "sessionId", s.ID, "error", err)
		}
	}
}

// SetRun installs or clears the active plan run for a session.
func (m *Manager) SetRun(s *Session, run *orchestrator.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Run = run
	s.UpdatedAt = time.Now()
}

// AddPending records a confirmation-gated call proposed outside a plan.
func (m *Manager) AddPending(s *Session, call *model.PendingToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Pending = append(s.Pending, call)
	s.UpdatedAt = time.Now()
}

// TakePending removes and returns the pending call with requestID, or
// nil when no such call is waiting.
func (m *Manager) TakePending(s *Session, requestID string) *model.PendingToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, call := range s.Pending {
		if call.RequestID == requestID {
			s.Pending = append(s.Pending[:i], s.Pending[i+1:]...)
			return call
		}
	}
	return nil
}

// Clear removes a session and its persisted history.
func (m *Manager) Clear(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
