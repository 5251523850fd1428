// Package memory provides in-process implementations of the repository
// interfaces. The API uses it when no POSTGRES_DSN is configured, and the
// service tests use it as the data feed double.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/repository"
)

// Store holds every collection behind one lock.
type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	issues      map[string]domain.Issue
	assignments map[string]domain.Assignment
	staff       map[string]domain.StaffMember
	updates     []domain.IssueUpdate
	escalations []domain.EscalationLogEntry
	seq         int64

	Issues        *IssueRepository
	Assignments   *AssignmentRepository
	Staff         *StaffRepository
	Updates       *IssueUpdateRepository
	EscalationLog *EscalationLogRepository
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{
		now:         time.Now,
		issues:      make(map[string]domain.Issue),
		assignments: make(map[string]domain.Assignment),
		staff:       make(map[string]domain.StaffMember),
	}
	s.Issues = &IssueRepository{s: s}
	s.Assignments = &AssignmentRepository{s: s}
	s.Staff = &StaffRepository{s: s}
	s.Updates = &IssueUpdateRepository{s: s}
	s.EscalationLog = &EscalationLogRepository{s: s}
	return s
}

// SetClock overrides the timestamp source for created records.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutIssue inserts or replaces an issue, assigning an id when empty.
func (s *Store) PutIssue(issue domain.Issue) domain.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = s.now()
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = issue.CreatedAt
	}
	if issue.Status == "" {
		issue.Status = domain.IssueStatusPending
	}
	s.issues[issue.ID] = issue
	return issue
}

// PutStaff inserts or replaces a staff member.
func (s *Store) PutStaff(staff domain.StaffMember) domain.StaffMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = s.now()
	}
	s.staff[staff.ID] = staff
	return staff
}

// nextStamp returns a strictly increasing timestamp so ordering by time is stable.
func (s *Store) nextStamp() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Nanosecond)
}

func copyPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IssueRepository implements repository.IssueRepository.
type IssueRepository struct{ s *Store }

var _ repository.IssueRepository = (*IssueRepository)(nil)

func (r *IssueRepository) GetByID(_ context.Context, id string) (*domain.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	issue, ok := r.s.issues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	issue.EscalatedTo = copyPtr(issue.EscalatedTo)
	issue.Department = copyPtr(issue.Department)
	return &issue, nil
}

func (r *IssueRepository) List(_ context.Context, filter repository.IssueFilter) ([]domain.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	statuses := make(map[domain.IssueStatus]struct{}, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = struct{}{}
	}

	var result []domain.Issue
	for _, issue := range r.s.issues {
		if filter.Department != nil && (issue.Department == nil || *issue.Department != *filter.Department) {
			continue
		}
		if len(statuses) > 0 {
			if _, ok := statuses[issue.Status]; !ok {
				continue
			}
		}
		if filter.ExcludeResolved && issue.Status == domain.IssueStatusResolved {
			continue
		}
		if filter.Escalated != nil && issue.Escalated != *filter.Escalated {
			continue
		}
		issue.EscalatedTo = copyPtr(issue.EscalatedTo)
		issue.Department = copyPtr(issue.Department)
		result = append(result, issue)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (r *IssueRepository) Update(_ context.Context, id string, patch domain.IssuePatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	issue, ok := r.s.issues[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if patch.Empty() {
		return nil
	}
	patch.Apply(&issue)
	issue.EscalatedTo = copyPtr(issue.EscalatedTo)
	issue.UpdatedAt = r.s.nextStamp()
	r.s.issues[id] = issue
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// AssignmentRepository implements repository.AssignmentRepository.
type AssignmentRepository struct{ s *Store }

var _ repository.AssignmentRepository = (*AssignmentRepository)(nil)

func (r *AssignmentRepository) Create(_ context.Context, a *domain.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = uuid.NewString()
	if a.Status == "" {
		a.Status = domain.AssignmentAssigned
	}
	a.AssignedAt = r.s.nextStamp()
	a.UpdatedAt = a.AssignedAt
	r.s.assignments[a.ID] = *a
	return nil
}

func (r *AssignmentRepository) GetByID(_ context.Context, id string) (*domain.Assignment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (r *AssignmentRepository) UpdateStatus(_ context.Context, id string, status domain.AssignmentStatus, notes *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assignments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.Status = status
	if notes != nil {
		a.Notes = *notes
	}
	a.UpdatedAt = r.s.nextStamp()
	r.s.assignments[id] = a
	return nil
}

func (r *AssignmentRepository) ListByIssue(_ context.Context, issueID string) ([]domain.Assignment, error) {
	return r.filter(func(a domain.Assignment) bool { return a.IssueID == issueID }), nil
}

func (r *AssignmentRepository) ListActiveByIssue(_ context.Context, issueID string) ([]domain.Assignment, error) {
	return r.filter(func(a domain.Assignment) bool { return a.IssueID == issueID && a.Status.Active() }), nil
}

func (r *AssignmentRepository) List(_ context.Context, filter repository.AssignmentFilter) ([]domain.Assignment, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.Assignment
	for _, a := range r.s.assignments {
		if filter.StaffID != nil && a.StaffID != *filter.StaffID {
			continue
		}
		if filter.IssueID != nil && a.IssueID != *filter.IssueID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.Department != nil {
			staff, ok := r.s.staff[a.StaffID]
			if !ok || staff.Department == nil || *staff.Department != *filter.Department {
				continue
			}
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AssignedAt.After(result[j].AssignedAt) })
	return paginate(result, filter.Limit, filter.Offset), len(result), nil
}

func (r *AssignmentRepository) filter(keep func(domain.Assignment) bool) []domain.Assignment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.Assignment
	for _, a := range r.s.assignments {
		if keep(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AssignedAt.Before(result[j].AssignedAt) })
	return result
}

// StaffRepository implements repository.StaffRepository.
type StaffRepository struct{ s *Store }

var _ repository.StaffRepository = (*StaffRepository)(nil)

func (r *StaffRepository) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	staff, ok := r.s.staff[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	staff.Department = copyPtr(staff.Department)
	return &staff, nil
}

func (r *StaffRepository) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, staff := range r.s.staff {
		if strings.EqualFold(staff.Email, email) {
			staff.Department = copyPtr(staff.Department)
			return &staff, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *StaffRepository) ListWorkloads(_ context.Context, filter repository.WorkloadFilter) ([]domain.StaffWorkload, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	byStaff := make(map[string]*domain.StaffWorkload)
	for _, staff := range r.s.staff {
		if staff.Role != domain.RoleStaff {
			continue
		}
		if filter.Department != nil && (staff.Department == nil || *staff.Department != *filter.Department) {
			continue
		}
		if filter.ActiveOnly && !staff.Active {
			continue
		}
		byStaff[staff.ID] = &domain.StaffWorkload{
			StaffID:    staff.ID,
			Name:       staff.Name,
			Department: copyPtr(staff.Department),
		}
	}
	for _, a := range r.s.assignments {
		w, ok := byStaff[a.StaffID]
		if !ok {
			continue
		}
		w.TotalAssignments++
		switch {
		case a.Status.Active():
			w.ActiveAssignments++
			if a.Status == domain.AssignmentInProgress {
				w.InProgressAssignments++
			}
		case a.Status == domain.AssignmentCompleted:
			w.CompletedAssignments++
		}
	}

	result := make([]domain.StaffWorkload, 0, len(byStaff))
	for _, w := range byStaff {
		w.CompletionRate = repository.CompletionRate(w.CompletedAssignments, w.TotalAssignments)
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StaffID < result[j].StaffID })
	return result, nil
}

// IssueUpdateRepository implements repository.IssueUpdateRepository.
type IssueUpdateRepository struct{ s *Store }

var _ repository.IssueUpdateRepository = (*IssueUpdateRepository)(nil)

func (r *IssueUpdateRepository) Create(_ context.Context, u *domain.IssueUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.ID = uuid.NewString()
	u.CreatedAt = r.s.nextStamp()
	r.s.updates = append(r.s.updates, *u)
	return nil
}

func (r *IssueUpdateRepository) ListByIssue(_ context.Context, issueID string) ([]domain.IssueUpdate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.IssueUpdate
	for _, u := range r.s.updates {
		if u.IssueID == issueID {
			result = append(result, u)
		}
	}
	return result, nil
}

// EscalationLogRepository implements repository.EscalationLogRepository.
type EscalationLogRepository struct{ s *Store }

var _ repository.EscalationLogRepository = (*EscalationLogRepository)(nil)

func (r *EscalationLogRepository) Append(_ context.Context, entry *domain.EscalationLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.appendLocked(entry)
	return nil
}

func (r *EscalationLogRepository) appendLocked(entry *domain.EscalationLogEntry) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = r.s.nextStamp()
	stored := *entry
	stored.Target = copyPtr(entry.Target)
	stored.Department = copyPtr(entry.Department)
	r.s.escalations = append(r.s.escalations, stored)
}

// Transition checks the guard, patches the issue and appends the entry under
// one write lock.
func (r *EscalationLogRepository) Transition(_ context.Context, t repository.EscalationTransition) error {
	if t.Patch.Empty() || t.Entry == nil {
		return fmt.Errorf("escalation transition for issue %s needs a patch and a log entry", t.IssueID)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	issue, ok := r.s.issues[t.IssueID]
	if !ok {
		return pgx.ErrNoRows
	}
	if issue.Escalated != t.From || (t.RequireOpen && issue.Status == domain.IssueStatusResolved) {
		return repository.ErrStaleTransition
	}
	t.Patch.Apply(&issue)
	issue.EscalatedTo = copyPtr(issue.EscalatedTo)
	issue.UpdatedAt = r.s.nextStamp()
	r.s.issues[t.IssueID] = issue
	r.appendLocked(t.Entry)
	return nil
}

func (r *EscalationLogRepository) ListByIssue(_ context.Context, issueID string) ([]domain.EscalationLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var result []domain.EscalationLogEntry
	for _, e := range r.s.escalations {
		if e.IssueID == issueID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *EscalationLogRepository) ListRecent(_ context.Context, limit int) ([]domain.EscalationLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	result := make([]domain.EscalationLogEntry, 0, limit)
	for i := len(r.s.escalations) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, r.s.escalations[i])
	}
	return result, nil
}
