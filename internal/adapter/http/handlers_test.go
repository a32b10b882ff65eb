package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/resolveq/helpdesk/internal/adapter/ws"
	"github.com/resolveq/helpdesk/internal/config"
	"github.com/resolveq/helpdesk/internal/domain"
	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/domain/kb"
	"github.com/resolveq/helpdesk/internal/domain/resolution"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/messagequeue"
	"github.com/resolveq/helpdesk/internal/port/scheduler"
	"github.com/resolveq/helpdesk/internal/port/scoring"
	"github.com/resolveq/helpdesk/internal/service"
)

// memStore is a minimal in-memory database.Store for handler tests.
type memStore struct {
	tickets      map[string]*ticket.Ticket
	interactions map[string][]ticket.Interaction
	history      map[string]*action.HistoryEntry
	resolutions  map[string]*resolution.Tracking
	articles     map[string]*kb.Article
}

func newMemStore() *memStore {
	return &memStore{
		tickets:      make(map[string]*ticket.Ticket),
		interactions: make(map[string][]ticket.Interaction),
		history:      make(map[string]*action.HistoryEntry),
		resolutions:  make(map[string]*resolution.Tracking),
		articles:     make(map[string]*kb.Article),
	}
}

func (s *memStore) CreateTicket(_ context.Context, req ticket.CreateRequest) (*ticket.Ticket, error) {
	t := &ticket.Ticket{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		IssueType:   req.IssueType,
		Status:      ticket.StatusNew,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
	s.tickets[t.ID] = t
	return t, nil
}

func (s *memStore) GetTicket(_ context.Context, id string) (*ticket.Ticket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) ListTickets(_ context.Context, status ticket.Status, _ int) ([]ticket.Ticket, error) {
	var out []ticket.Ticket
	for _, t := range s.tickets {
		if status == "" || t.Status == status {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memStore) SaveTicketFields(_ context.Context, t *ticket.Ticket, fields ...string) error {
	stored, ok := s.tickets[t.ID]
	if !ok {
		return fmt.Errorf("ticket %s: %w", t.ID, domain.ErrNotFound)
	}
	for _, f := range fields {
		switch f {
		case ticket.FieldStatus:
			stored.Status = t.Status
		case ticket.FieldAssignedTo:
			stored.AssignedTo = t.AssignedTo
		case ticket.FieldAgentResponse:
			stored.AgentResponse = t.AgentResponse
		case ticket.FieldAgentProcessed:
			stored.AgentProcessed = t.AgentProcessed
		}
	}
	stored.Version++
	t.Version = stored.Version
	return nil
}

func (s *memStore) AppendInteraction(_ context.Context, ticketID, actorID string, typ ticket.InteractionType, content string) error {
	s.interactions[ticketID] = append(s.interactions[ticketID], ticket.Interaction{
		TicketID: ticketID, ActorID: actorID, Type: typ, Content: content,
	})
	return nil
}

func (s *memStore) ListInteractions(_ context.Context, ticketID string, _ int) ([]ticket.Interaction, error) {
	return s.interactions[ticketID], nil
}

func (s *memStore) AppendActionHistory(_ context.Context, entry *action.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	cp := *entry
	s.history[entry.ID] = &cp
	return nil
}

func (s *memStore) GetActionHistory(_ context.Context, id string) (*action.HistoryEntry, error) {
	e, ok := s.history[id]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", id, domain.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) ListActionHistory(_ context.Context, ticketID string) ([]action.HistoryEntry, error) {
	var out []action.HistoryEntry
	for _, e := range s.history {
		if e.TicketID == ticketID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memStore) ListActionHistoryAfter(_ context.Context, ticketID string, after time.Time) ([]action.HistoryEntry, error) {
	var out []action.HistoryEntry
	for _, e := range s.history {
		if e.TicketID == ticketID && e.ExecutedAt.After(after) && !e.RolledBack {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memStore) MarkRolledBack(_ context.Context, entryID, actor, reason string, at time.Time) error {
	e, ok := s.history[entryID]
	if !ok {
		return fmt.Errorf("entry %s: %w", entryID, domain.ErrNotFound)
	}
	if e.RolledBack {
		return fmt.Errorf("entry %s: %w", entryID, action.ErrRollbackConflict)
	}
	e.RolledBack = true
	e.RolledBackAt = &at
	e.RolledBackBy = &actor
	e.RollbackReason = reason
	return nil
}

func (s *memStore) GetOrCreateResolution(_ context.Context, ticketID, autonomousAction string) (*resolution.Tracking, error) {
	if tr, ok := s.resolutions[ticketID]; ok {
		cp := *tr
		return &cp, nil
	}
	tr := &resolution.Tracking{TicketID: ticketID, AutonomousAction: autonomousAction}
	s.resolutions[ticketID] = tr
	cp := *tr
	return &cp, nil
}

func (s *memStore) SaveResolution(_ context.Context, tr *resolution.Tracking) error {
	cp := *tr
	s.resolutions[tr.TicketID] = &cp
	return nil
}

func (s *memStore) ResolutionAnalytics(_ context.Context) (*resolution.Analytics, error) {
	a := &resolution.Analytics{}
	for _, tr := range s.resolutions {
		a.TotalResolutions++
		if tr.Reopened {
			a.ReopenedTickets++
		}
	}
	return a, nil
}

func (s *memStore) UpsertArticleByTitle(_ context.Context, req kb.UpsertRequest) (*kb.Article, error) {
	a := &kb.Article{ID: uuid.NewString(), Title: req.Title, Content: req.Content}
	s.articles[req.Title] = a
	cp := *a
	return &cp, nil
}

func (s *memStore) GetArticleByTitle(_ context.Context, title string) (*kb.Article, error) {
	a, ok := s.articles[title]
	if !ok {
		return nil, fmt.Errorf("article %q: %w", title, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) WithTicketLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// nopQueue drops published messages.
type nopQueue struct{}

func (nopQueue) Publish(context.Context, string, []byte) error { return nil }
func (nopQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (nopQueue) Drain() error      { return nil }
func (nopQueue) Close() error      { return nil }
func (nopQueue) IsConnected() bool { return true }

// nopScorer is never called by handler tests.
type nopScorer struct{}

func (nopScorer) Analyze(context.Context, scoring.Request) (*ticket.Signal, error) {
	return nil, scoring.ErrUnavailable
}

// nopScheduler drops scheduled jobs.
type nopScheduler struct{}

func (nopScheduler) Schedule(context.Context, scheduler.JobKind, string, any, time.Time) (string, error) {
	return uuid.NewString(), nil
}
func (nopScheduler) Cancel(context.Context, scheduler.JobKind, string) error { return nil }
func (nopScheduler) Due(context.Context, time.Time, int) ([]scheduler.Job, error) {
	return nil, nil
}
func (nopScheduler) MarkDone(context.Context, string) error { return nil }

type testEnv struct {
	store  *memStore
	router chi.Router
}

func newTestEnv(checks ...HealthCheck) *testEnv {
	store := newMemStore()
	notify := service.NewNotificationService(nil, nil)
	kbSvc := service.NewKnowledgeBaseService(store)
	exec := service.NewActionExecutor(store, nopScheduler{}, notify, kbSvc, time.Hour)
	policy := service.NewDecisionPolicy(config.Engine{HighConfidence: 0.8, LowConfidence: 0.5, DefaultTeam: "support"})
	tickets := service.NewTicketService(store, nopQueue{}, nopScorer{}, policy, exec, config.Agent{})
	rollback := service.NewRollbackManager(store, nopScheduler{})
	feedback := service.NewFeedbackTracker(store, notify, exec)
	hub := ws.NewHub(slog.Default())

	h := NewHandlers(tickets, rollback, feedback, hub, checks...)
	r := chi.NewRouter()
	MountRoutes(r, h)
	return &testEnv{store: store, router: r}
}

func (e *testEnv) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateTicketEndpoint(t *testing.T) {
	env := newTestEnv()

	rec := env.request(t, http.MethodPost, "/api/v1/tickets",
		`{"user_id":"u-1","issue_type":"wifi down","description":"no wifi on floor 2","category":"wifi"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created ticket.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Status != ticket.StatusNew {
		t.Fatalf("created = %+v", created)
	}
}

func TestCreateTicketEndpointRejectsBadInput(t *testing.T) {
	env := newTestEnv()

	if rec := env.request(t, http.MethodPost, "/api/v1/tickets", `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", rec.Code)
	}
	if rec := env.request(t, http.MethodPost, "/api/v1/tickets", `{"issue_type":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id status = %d", rec.Code)
	}
}

func TestGetTicketEndpointNotFound(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodGet, "/api/v1/tickets/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListTicketsEndpoint(t *testing.T) {
	env := newTestEnv()
	_, _ = env.store.CreateTicket(context.Background(), ticket.CreateRequest{UserID: "u", IssueType: "i", Category: ticket.CategoryWiFi})

	rec := env.request(t, http.MethodGet, "/api/v1/tickets?status=new", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Count != 1 {
		t.Fatalf("count = %d, want 1", body.Count)
	}

	if rec := env.request(t, http.MethodGet, "/api/v1/tickets?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d, want 400", rec.Code)
	}
}

func TestRollbackEndpoint(t *testing.T) {
	env := newTestEnv()
	tk, _ := env.store.CreateTicket(context.Background(), ticket.CreateRequest{UserID: "u", IssueType: "i", Category: ticket.CategoryWiFi})
	env.store.tickets[tk.ID].Status = ticket.StatusResolved

	entry := &action.HistoryEntry{
		TicketID:         tk.ID,
		Type:             action.TypeAutoResolve,
		ExecutedAt:       time.Now().UTC(),
		ExecutedBy:       action.ExecutedByAgent,
		RollbackPossible: true,
		BeforeState:      &action.Snapshot{Status: string(ticket.StatusInProgress)},
	}
	_ = env.store.AppendActionHistory(context.Background(), entry)

	rec := env.request(t, http.MethodPost, "/api/v1/actions/"+entry.ID+"/rollback",
		`{"actor":"admin","reason":"did not work"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result service.RollbackResult
	_ = json.Unmarshal(rec.Body.Bytes(), &result)
	if result.TicketID != tk.ID || result.ActionType != action.TypeAutoResolve {
		t.Fatalf("result = %+v", result)
	}

	// Second rollback of the same entry conflicts.
	rec = env.request(t, http.MethodPost, "/api/v1/actions/"+entry.ID+"/rollback", `{"actor":"admin"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second rollback status = %d, want 409", rec.Code)
	}
}

func TestRollbackEndpointErrorMapping(t *testing.T) {
	env := newTestEnv()
	tk, _ := env.store.CreateTicket(context.Background(), ticket.CreateRequest{UserID: "u", IssueType: "i", Category: ticket.CategoryWiFi})

	if rec := env.request(t, http.MethodPost, "/api/v1/actions/"+uuid.NewString()+"/rollback", `{}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown entry status = %d, want 404", rec.Code)
	}

	entry := &action.HistoryEntry{
		TicketID:   tk.ID,
		Type:       action.TypeRequestClarification,
		ExecutedAt: time.Now().UTC(),
	}
	_ = env.store.AppendActionHistory(context.Background(), entry)
	if rec := env.request(t, http.MethodPost, "/api/v1/actions/"+entry.ID+"/rollback", `{}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("non-rollbackable status = %d, want 422", rec.Code)
	}
}

func TestFeedbackEndpointReopens(t *testing.T) {
	env := newTestEnv()
	tk, _ := env.store.CreateTicket(context.Background(), ticket.CreateRequest{UserID: "u", IssueType: "i", Category: ticket.CategoryWiFi})
	env.store.tickets[tk.ID].Status = ticket.StatusResolved

	rec := env.request(t, http.MethodPost, "/api/v1/tickets/"+tk.ID+"/feedback",
		`{"resolution_confirmed":false,"feedback_text":"still broken"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Reopened bool `json:"ticket_reopened"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if !body.Reopened {
		t.Fatal("ticket_reopened = false, want true")
	}

	got, _ := env.store.GetTicket(context.Background(), tk.ID)
	if got.Status != ticket.StatusEscalated {
		t.Fatalf("status = %s, want escalated", got.Status)
	}
}

func TestFeedbackEndpointValidation(t *testing.T) {
	env := newTestEnv()
	tk, _ := env.store.CreateTicket(context.Background(), ticket.CreateRequest{UserID: "u", IssueType: "i", Category: ticket.CategoryWiFi})

	rec := env.request(t, http.MethodPost, "/api/v1/tickets/"+tk.ID+"/feedback", `{"satisfaction_score":9}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	env := newTestEnv()
	rec := env.request(t, http.MethodGet, "/api/v1/analytics/resolutions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var a resolution.Analytics
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ok := HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	env := newTestEnv(ok)
	if rec := env.request(t, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	bad := HealthCheck{Name: "nats", Check: func(context.Context) error { return errors.New("disconnected") }}
	env = newTestEnv(ok, bad)
	if rec := env.request(t, http.MethodGet, "/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
