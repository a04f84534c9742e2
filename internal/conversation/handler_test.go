package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/synquot/pkg/logging"
)

type memorySessions struct {
	sessions map[string]Session
	failGet  bool
}

func (m *memorySessions) Get(_ context.Context, id string) (Session, error) {
	if m.failGet {
		return Session{}, errors.New("redis down")
	}
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return Session{ID: id}, nil
}

func (m *memorySessions) Save(_ context.Context, s Session) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *memorySessions) Clear(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func newTestRouter(t *testing.T, sessions SessionRepository) http.Handler {
	t.Helper()
	h := NewHandler(newTestEngine(), sessions, logging.Discard())
	r := chi.NewRouter()
	r.Route("/v1/quotations/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Clear)
		r.Post("/messages", h.Message)
	})
	return r
}

func postMessage(t *testing.T, router http.Handler, session, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/quotations/"+session+"/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerMessageFlow(t *testing.T) {
	sessions := &memorySessions{sessions: map[string]Session{}}
	router := newTestRouter(t, sessions)

	rec := postMessage(t, router, "s1", `{"message": "create a Quotation For Website quantity 1 price 45000"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "s1" || resp.Source != SourceFallback || resp.Quotation.GrandTotal != 45000 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !strings.Contains(rec.Body.String(), `"service_name":"Website"`) {
		t.Fatalf("body missing service: %s", rec.Body.String())
	}

	stored := sessions.sessions["s1"]
	if len(stored.History) != 2 || stored.Document.GrandTotal != 45000 {
		t.Fatalf("session not persisted: %+v", stored)
	}

	rec = postMessage(t, router, "s1", `{"message": "add service Tiles Work quantity 5 price 5450"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := sessions.sessions["s1"].Document.GrandTotal; got != 72250 {
		t.Fatalf("grand total = %v, want 72250", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/quotations/s1/", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var session SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(session.Quotation.Services) != 2 || len(session.History) != 4 {
		t.Fatalf("unexpected session %+v", session)
	}
	if !strings.Contains(session.Summary, "Grand Total: ₹72,250.00") {
		t.Fatalf("summary = %q", session.Summary)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/quotations/s1/", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, ok := sessions.sessions["s1"]; ok {
		t.Fatal("session should be cleared")
	}
}

func TestHandlerMessageUsesClientQuotation(t *testing.T) {
	sessions := &memorySessions{sessions: map[string]Session{}}
	router := newTestRouter(t, sessions)

	body := `{"message": "show quotation", "quotation": {"services": [{"service_name": "Logo", "quantity": 2, "rate": 1, "unit_rate": "500"}]}}`
	rec := postMessage(t, router, "s2", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp MessageResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Quotation.GrandTotal != 1000 {
		t.Fatalf("grand total = %v, want 1000", resp.Quotation.GrandTotal)
	}
	if !strings.Contains(resp.Reply, "1 service(s)") {
		t.Fatalf("reply = %q", resp.Reply)
	}
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	router := newTestRouter(t, &memorySessions{sessions: map[string]Session{}})

	if rec := postMessage(t, router, "s1", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}
	if rec := postMessage(t, router, "s1", `{"message": "   "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank message status = %d", rec.Code)
	}
}

func TestHandlerSessionLoadFailure(t *testing.T) {
	router := newTestRouter(t, &memorySessions{sessions: map[string]Session{}, failGet: true})
	if rec := postMessage(t, router, "s1", `{"message": "show quotation"}`); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
