package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resolveq/helpdesk/internal/domain"
	"github.com/resolveq/helpdesk/internal/domain/action"
	"github.com/resolveq/helpdesk/internal/domain/kb"
	"github.com/resolveq/helpdesk/internal/domain/resolution"
	"github.com/resolveq/helpdesk/internal/domain/ticket"
	"github.com/resolveq/helpdesk/internal/port/messagequeue"
	"github.com/resolveq/helpdesk/internal/port/notifier"
	"github.com/resolveq/helpdesk/internal/port/scheduler"
	"github.com/resolveq/helpdesk/internal/port/scoring"
)

// fakeStore is an in-memory database.Store for service tests. WithTicketLock
// serializes through a single mutex; there is no transaction rollback, so
// tests that need failure atomicity inject errors before any write.
type fakeStore struct {
	mu           sync.Mutex
	tickets      map[string]*ticket.Ticket
	interactions map[string][]ticket.Interaction
	history      map[string]*action.HistoryEntry
	resolutions  map[string]*resolution.Tracking
	articles     map[string]*kb.Article

	failSave   bool   // next SaveTicketFields returns ErrConflict once
	beforeLock func() // runs at the start of WithTicketLock, then clears
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tickets:      make(map[string]*ticket.Ticket),
		interactions: make(map[string][]ticket.Interaction),
		history:      make(map[string]*action.HistoryEntry),
		resolutions:  make(map[string]*resolution.Tracking),
		articles:     make(map[string]*kb.Article),
	}
}

func (s *fakeStore) addTicket(t *ticket.Ticket) *ticket.Ticket {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if t.Status == "" {
		t.Status = ticket.StatusNew
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return t
}

func (s *fakeStore) CreateTicket(_ context.Context, req ticket.CreateRequest) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &ticket.Ticket{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		UserName:    req.UserName,
		Department:  req.Department,
		IssueType:   req.IssueType,
		Status:      ticket.StatusNew,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		Version:     1,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	s.tickets[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *fakeStore) GetTicket(_ context.Context, id string) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) ListTickets(_ context.Context, status ticket.Status, _ int) ([]ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ticket.Ticket
	for _, t := range s.tickets {
		if status == "" || t.Status == status {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SaveTicketFields(_ context.Context, t *ticket.Ticket, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		s.failSave = false
		return fmt.Errorf("save ticket %s: %w", t.ID, domain.ErrConflict)
	}
	stored, ok := s.tickets[t.ID]
	if !ok {
		return fmt.Errorf("ticket %s: %w", t.ID, domain.ErrNotFound)
	}
	if stored.Version != t.Version {
		return fmt.Errorf("ticket %s: %w", t.ID, domain.ErrConflict)
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
		default:
			return fmt.Errorf("field %q: %w", f, domain.ErrValidation)
		}
	}
	stored.Version++
	t.Version = stored.Version
	return nil
}

func (s *fakeStore) AppendInteraction(_ context.Context, ticketID, actorID string, typ ticket.InteractionType, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[ticketID] = append(s.interactions[ticketID], ticket.Interaction{
		ID:        int64(len(s.interactions[ticketID]) + 1),
		TicketID:  ticketID,
		ActorID:   actorID,
		Type:      typ,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *fakeStore) ListInteractions(_ context.Context, ticketID string, _ int) ([]ticket.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ticket.Interaction(nil), s.interactions[ticketID]...), nil
}

func (s *fakeStore) AppendActionHistory(_ context.Context, entry *action.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}
	cp := *entry
	s.history[entry.ID] = &cp
	return nil
}

func (s *fakeStore) GetActionHistory(_ context.Context, id string) (*action.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.history[id]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", id, domain.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (s *fakeStore) ListActionHistory(_ context.Context, ticketID string) ([]action.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []action.HistoryEntry
	for _, e := range s.history {
		if e.TicketID == ticketID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	return out, nil
}

func (s *fakeStore) ListActionHistoryAfter(_ context.Context, ticketID string, after time.Time) ([]action.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []action.HistoryEntry
	for _, e := range s.history {
		if e.TicketID == ticketID && e.ExecutedAt.After(after) && !e.RolledBack {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out, nil
}

func (s *fakeStore) MarkRolledBack(_ context.Context, entryID, actor, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *fakeStore) GetOrCreateResolution(_ context.Context, ticketID, autonomousAction string) (*resolution.Tracking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.resolutions[ticketID]; ok {
		cp := *tr
		return &cp, nil
	}
	tr := &resolution.Tracking{
		TicketID:         ticketID,
		AutonomousAction: autonomousAction,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	s.resolutions[ticketID] = tr
	cp := *tr
	return &cp, nil
}

func (s *fakeStore) SaveResolution(_ context.Context, tr *resolution.Tracking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resolutions[tr.TicketID]; !ok {
		return fmt.Errorf("resolution %s: %w", tr.TicketID, domain.ErrNotFound)
	}
	cp := *tr
	cp.UpdatedAt = time.Now().UTC()
	s.resolutions[tr.TicketID] = &cp
	return nil
}

func (s *fakeStore) ResolutionAnalytics(_ context.Context) (*resolution.Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &resolution.Analytics{}
	for _, tr := range s.resolutions {
		a.TotalResolutions++
		if tr.Reopened {
			a.ReopenedTickets++
		}
		if ok := tr.WasSuccessful(); ok != nil {
			if *ok {
				a.ConfirmedSuccessful++
			} else {
				a.ConfirmedFailed++
			}
		}
	}
	if known := a.ConfirmedSuccessful + a.ConfirmedFailed; known > 0 {
		a.SuccessRate = float64(a.ConfirmedSuccessful) / float64(known)
	}
	return a, nil
}

func (s *fakeStore) UpsertArticleByTitle(_ context.Context, req kb.UpsertRequest) (*kb.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.articles[req.Title]; ok {
		a.Content = req.Content
		a.Tags = req.Tags
		a.SourceTicketID = req.SourceTicketID
		a.UpdatedAt = time.Now().UTC()
		cp := *a
		return &cp, nil
	}
	a := &kb.Article{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Content:        req.Content,
		Tags:           req.Tags,
		SourceTicketID: req.SourceTicketID,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	s.articles[req.Title] = a
	cp := *a
	return &cp, nil
}

func (s *fakeStore) GetArticleByTitle(_ context.Context, title string) (*kb.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[title]
	if !ok {
		return nil, fmt.Errorf("article %q: %w", title, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) WithTicketLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if s.beforeLock != nil {
		hook := s.beforeLock
		s.beforeLock = nil
		hook()
	}
	return fn(ctx)
}

// fakeScheduler records scheduled jobs in memory.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduler.Job
}

func (f *fakeScheduler) Schedule(_ context.Context, kind scheduler.JobKind, ticketID string, _ any, runAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := scheduler.Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		TicketID: ticketID,
		RunAt:    runAt,
	}
	f.jobs = append(f.jobs, job)
	return job.ID, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, kind scheduler.JobKind, ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for i := range f.jobs {
		j := &f.jobs[i]
		if j.Kind == kind && j.TicketID == ticketID && j.CompletedAt == nil && j.CanceledAt == nil {
			j.CanceledAt = &now
		}
	}
	return nil
}

func (f *fakeScheduler) Due(_ context.Context, now time.Time, limit int) ([]scheduler.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []scheduler.Job
	for _, j := range f.jobs {
		if len(due) >= limit {
			break
		}
		if j.CompletedAt == nil && j.CanceledAt == nil && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	return due, nil
}

func (f *fakeScheduler) MarkDone(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for i := range f.jobs {
		if f.jobs[i].ID == jobID {
			f.jobs[i].CompletedAt = &now
			return nil
		}
	}
	return fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
}

func (f *fakeScheduler) pending(kind scheduler.JobKind, ticketID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, j := range f.jobs {
		if j.Kind == kind && j.TicketID == ticketID && j.CompletedAt == nil && j.CanceledAt == nil {
			n++
		}
	}
	return n
}

// fakeQueue records published messages and delivers to subscribers inline.
type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		published: make(map[string][][]byte),
		handlers:  make(map[string]messagequeue.Handler),
	}
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = handler
	return func() {}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published[subject])
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (n *recordingNotifier) Name() string                        { return "recording" }
func (n *recordingNotifier) Capabilities() notifier.Capabilities { return notifier.Capabilities{} }
func (n *recordingNotifier) Send(_ context.Context, msg notifier.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// memCache is a map-backed cache.Cache. TTLs are ignored.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// fakeScorer returns a canned signal or error.
type fakeScorer struct {
	mu     sync.Mutex
	signal *ticket.Signal
	errs   []error // consumed one per call, nil means success
	calls  int
}

func (f *fakeScorer) Analyze(_ context.Context, _ scoring.Request) (*ticket.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	cp := *f.signal
	return &cp, nil
}
