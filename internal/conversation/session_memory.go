package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/internal/quotation"
)

// MemorySessionStore keeps sessions in process. It backs the CLI and
// deployments without redis; sessions do not survive a restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session)}
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{ID: id, Document: quotation.Initialize(), History: []llm.Message{}}, nil
	}
	return copySession(s), nil
}

func (m *MemorySessionStore) Save(_ context.Context, session Session) error {
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.sessions[session.ID] = copySession(session)
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func copySession(s Session) Session {
	s.Document = s.Document.Clone()
	s.History = append([]llm.Message{}, s.History...)
	return s
}
