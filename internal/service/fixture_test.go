package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/civic-desk/issue-sla-service/internal/config"
	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/events"
	"github.com/civic-desk/issue-sla-service/internal/observability"
	"github.com/civic-desk/issue-sla-service/internal/repository"
	"github.com/civic-desk/issue-sla-service/internal/repository/memory"
	"github.com/civic-desk/issue-sla-service/internal/sla"
)

var baseTime = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	t           *testing.T
	store       *memory.Store
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	escalations *EscalationService
	assignments *AssignmentService
	issues      *IssueService

	mu        sync.Mutex
	published []events.Event
}

type fixtureOption func(*memory.Store, *fixtureDeps)

type fixtureDeps struct {
	issueRepo repository.IssueRepository
	logRepo   repository.EscalationLogRepository
	locker    Locker
}

// withFailingIssueReads makes every issue lookup by id fail with err.
func withFailingIssueReads(err error) fixtureOption {
	return func(s *memory.Store, d *fixtureDeps) { d.issueRepo = failingIssueRepo{IssueRepository: s.Issues, err: err} }
}

// withReadBarrier holds the first n issue lookups until all n have read, so
// n concurrent commands all observe the same starting state.
func withReadBarrier(n int) fixtureOption {
	return func(s *memory.Store, d *fixtureDeps) {
		b := &barrierIssueRepo{IssueRepository: s.Issues, pending: n}
		b.wg.Add(n)
		d.issueRepo = b
	}
}

// withFailingAuditLog makes every escalation log write fail with err.
func withFailingAuditLog(err error) fixtureOption {
	return func(s *memory.Store, d *fixtureDeps) { d.logRepo = failingLogRepo{EscalationLogRepository: s.EscalationLog, err: err} }
}

func withLocker(l Locker) fixtureOption {
	return func(_ *memory.Store, d *fixtureDeps) { d.locker = l }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.SetClock(func() time.Time { return baseTime })

	deps := fixtureDeps{issueRepo: store.Issues, logRepo: store.EscalationLog}
	for _, opt := range opts {
		opt(store, &deps)
	}

	logger := zaptest.NewLogger(t)
	f := &fixture{
		t:          t,
		store:      store,
		dispatcher: events.NewInMemoryDispatcher(logger),
		metrics:    observability.NewMetrics(),
	}
	for _, et := range []events.EventType{
		events.EventIssueEscalated,
		events.EventEscalationResolved,
		events.EventIssueAssigned,
		events.EventIssueStatusChanged,
		events.EventIssueUpdateAdded,
		events.EventAutoEscalateFinished,
	} {
		f.dispatcher.Subscribe(et, f.record)
	}

	clock := func() time.Time { return baseTime }
	classifier := sla.NewClassifier(nil)
	f.escalations = NewEscalationService(config.EscalationConfig{DefaultTarget: "supervisor", LockTTL: time.Minute}, EscalationDependencies{
		IssueRepo:  deps.issueRepo,
		UpdateRepo: store.Updates,
		LogRepo:    deps.logRepo,
		Classifier: classifier,
		Dispatcher: f.dispatcher,
		Locker:     deps.locker,
		Metrics:    f.metrics,
		Logger:     logger,
		Clock:      clock,
	})
	f.assignments = NewAssignmentService(AssignmentDependencies{
		IssueRepo:      deps.issueRepo,
		AssignmentRepo: store.Assignments,
		StaffRepo:      store.Staff,
		Dispatcher:     f.dispatcher,
		Metrics:        f.metrics,
		Logger:         logger,
		Clock:          clock,
	})
	f.issues = NewIssueService(IssueDependencies{
		IssueRepo:      deps.issueRepo,
		AssignmentRepo: store.Assignments,
		UpdateRepo:     store.Updates,
		StaffRepo:      store.Staff,
		Classifier:     classifier,
		Dispatcher:     f.dispatcher,
		Metrics:        f.metrics,
		Logger:         logger,
		Clock:          clock,
	})
	return f
}

func (f *fixture) record(_ context.Context, e events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, e)
	return nil
}

func (f *fixture) eventsOf(et events.EventType) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.published {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

// issue seeds a waste/medium issue (24h SLA) that is overdueDays past its deadline.
// Negative values give an issue still inside its SLA.
func (f *fixture) issue(status domain.IssueStatus, overdueDays int, dept string) domain.Issue {
	created := baseTime.Add(-24*time.Hour - time.Duration(overdueDays)*24*time.Hour)
	issue := domain.Issue{
		Title:     "overflowing bins",
		Category:  domain.CategoryWaste,
		Priority:  domain.PriorityMedium,
		Status:    status,
		CitizenID: "citizen-1",
		CreatedAt: created,
	}
	if dept != "" {
		issue.Department = ptr(dept)
	}
	return f.store.PutIssue(issue)
}

// escalatedIssue seeds an issue that is already escalated to the director,
// without an audit entry.
func (f *fixture) escalatedIssue(status domain.IssueStatus) domain.Issue {
	issue := f.issue(status, 3, "waste")
	issue.Escalated = true
	issue.EscalatedTo = ptr("director")
	return f.store.PutIssue(issue)
}

func (f *fixture) staff(id, dept string, role domain.Role, active bool) domain.StaffMember {
	member := domain.StaffMember{
		ID:     id,
		Name:   id,
		Email:  id + "@city.example",
		Role:   role,
		Active: active,
	}
	if dept != "" {
		member.Department = ptr(dept)
	}
	return f.store.PutStaff(member)
}

func (f *fixture) reload(id string) domain.Issue {
	f.t.Helper()
	issue, err := f.store.Issues.GetByID(context.Background(), id)
	if err != nil {
		f.t.Fatalf("reload issue %s: %v", id, err)
	}
	return *issue
}

func (f *fixture) logFor(id string) []domain.EscalationLogEntry {
	f.t.Helper()
	entries, err := f.store.EscalationLog.ListByIssue(context.Background(), id)
	if err != nil {
		f.t.Fatalf("list log: %v", err)
	}
	return entries
}

var (
	admin      = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	roadsBoss  = domain.Actor{ID: "sup-roads", Role: domain.RoleSupervisor, Department: ptr("roads")}
	wasteBoss  = domain.Actor{ID: "sup-waste", Role: domain.RoleSupervisor, Department: ptr("waste")}
	fieldStaff = func(id string) domain.Actor { return domain.Actor{ID: id, Role: domain.RoleStaff, Department: ptr("waste")} }
)

// failingIssueRepo fails every GetByID with err.
type failingIssueRepo struct {
	repository.IssueRepository
	err error
}

func (r failingIssueRepo) GetByID(context.Context, string) (*domain.Issue, error) {
	return nil, r.err
}

type barrierIssueRepo struct {
	repository.IssueRepository
	mu      sync.Mutex
	pending int
	wg      sync.WaitGroup
}

func (r *barrierIssueRepo) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	issue, err := r.IssueRepository.GetByID(ctx, id)
	r.mu.Lock()
	held := r.pending > 0
	if held {
		r.pending--
	}
	r.mu.Unlock()
	if held {
		r.wg.Done()
		r.wg.Wait()
	}
	return issue, err
}

// failingLogRepo fails every write with err. A failed Transition leaves the
// store untouched, as a rolled back transaction would.
type failingLogRepo struct {
	repository.EscalationLogRepository
	err error
}

func (r failingLogRepo) Append(context.Context, *domain.EscalationLogEntry) error {
	return r.err
}

func (r failingLogRepo) Transition(context.Context, repository.EscalationTransition) error {
	return r.err
}

type fakeLocker struct {
	ok       bool
	err      error
	released int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error {
		l.released++
		return nil
	}, l.ok, l.err
}
