package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/internal/quotation"
)

// DefaultSessionTTL is how long an idle chat session is kept.
const DefaultSessionTTL = 24 * time.Hour

// Session is the state a host keeps between turns of one chat.
type Session struct {
	ID        string             `json:"id"`
	Document  quotation.Document `json:"quotation"`
	History   []llm.Message      `json:"history"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SessionStore persists sessions in redis. Writes are last-write-wins.
type SessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewSessionStore creates a store. A ttl <= 0 uses DefaultSessionTTL.
func NewSessionStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *SessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("synquot.internal.conversation.sessions")
	}
	return &SessionStore{redis: client, ttl: ttl, tracer: tracer}
}

// Get loads a session. An unknown id yields a fresh session with an empty
// quotation.
func (s *SessionStore) Get(ctx context.Context, id string) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{ID: id, Document: quotation.Initialize(), History: []llm.Message{}}, nil
	}
	if err != nil {
		span.RecordError(err)
		return Session{}, fmt.Errorf("conversation: failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return Session{}, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	session.ID = id
	if session.History == nil {
		session.History = []llm.Message{}
	}
	return session, nil
}

// Save writes the session and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, session Session) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_session")
	defer span.End()

	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

// Clear deletes a session so the next Get starts over.
func (s *SessionStore) Clear(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.clear_session")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to clear session: %w", err)
	}
	return nil
}

// Client exposes the redis connection so other stores can share it. It is
// nil for a nil store.
func (s *SessionStore) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.redis
}

func sessionKey(id string) string {
	return fmt.Sprintf("quotation_session:%s", id)
}
