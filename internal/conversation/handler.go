package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/synquot/internal/intent"
	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/internal/quotation"
	"github.com/wolfman30/synquot/pkg/logging"
)

const maxMessageBytes = 1 << 20

// SessionRepository is the session persistence the handler needs.
type SessionRepository interface {
	Get(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, session Session) error
	Clear(ctx context.Context, id string) error
}

// MessageRequest is the body of POST /v1/quotations/{sessionID}/messages.
// Quotation, when present, replaces the stored document for this turn.
type MessageRequest struct {
	Message   string              `json:"message"`
	Quotation *quotation.Document `json:"quotation,omitempty"`
}

// MessageResponse is returned for every processed message.
type MessageResponse struct {
	SessionID string             `json:"session_id"`
	Reply     string             `json:"reply"`
	Quotation quotation.Document `json:"quotation"`
	Intent    intent.Intent      `json:"intent"`
	Entities  intent.Entities    `json:"entities"`
	Source    Source             `json:"source"`
	Model     string             `json:"model,omitempty"`
}

// SessionResponse is returned by GET /v1/quotations/{sessionID}.
type SessionResponse struct {
	SessionID string             `json:"session_id"`
	Quotation quotation.Document `json:"quotation"`
	Summary   string             `json:"summary"`
	History   []llm.Message      `json:"history"`
}

// Handler wires HTTP requests to the engine and the session store.
type Handler struct {
	engine   *Engine
	sessions SessionRepository
	logger   *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(engine *Engine, sessions SessionRepository, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("conversation: engine cannot be nil")
	}
	if sessions == nil {
		panic("conversation: session repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, sessions: sessions, logger: logger}
}

// Message handles POST /v1/quotations/{sessionID}/messages.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load session", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	doc := session.Document
	if req.Quotation != nil {
		doc = *req.Quotation
	}

	res := h.engine.Process(r.Context(), Request{Message: req.Message, Document: &doc, History: session.History})

	session.Document = res.Document
	session.History = append(session.History,
		llm.Message{Role: llm.RoleUser, Content: req.Message},
		llm.Message{Role: llm.RoleAssistant, Content: res.Reply},
	)
	session.UpdatedAt = time.Now().UTC()
	if err := h.sessions.Save(r.Context(), session); err != nil {
		h.logger.Error("failed to save session", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, MessageResponse{
		SessionID: sessionID,
		Reply:     res.Reply,
		Quotation: res.Document,
		Intent:    res.Intent,
		Entities:  res.Entities,
		Source:    res.Source,
		Model:     res.Model,
	})
}

// Get handles GET /v1/quotations/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load session", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to load session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, SessionResponse{
		SessionID: sessionID,
		Quotation: session.Document,
		Summary:   quotation.Narrate(session.Document),
		History:   session.History,
	})
}

// Clear handles DELETE /v1/quotations/{sessionID}.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if err := h.sessions.Clear(r.Context(), sessionID); err != nil {
		h.logger.Error("failed to clear session", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to clear session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
