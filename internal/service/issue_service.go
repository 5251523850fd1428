package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/events"
	"github.com/civic-desk/issue-sla-service/internal/observability"
	"github.com/civic-desk/issue-sla-service/internal/repository"
	"github.com/civic-desk/issue-sla-service/internal/sla"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

// IssueService serves SLA views over the feed and the plain issue commands.
type IssueService struct {
	issues      repository.IssueRepository
	assignments repository.AssignmentRepository
	updates     repository.IssueUpdateRepository
	staff       repository.StaffRepository
	classifier  *sla.Classifier
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         Clock
}

// IssueDependencies bundles repositories.
type IssueDependencies struct {
	IssueRepo      repository.IssueRepository
	AssignmentRepo repository.AssignmentRepository
	UpdateRepo     repository.IssueUpdateRepository
	StaffRepo      repository.StaffRepository
	Classifier     *sla.Classifier
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Clock          Clock
}

// NewIssueService creates the service.
func NewIssueService(deps IssueDependencies) *IssueService {
	svc := &IssueService{
		issues:      deps.IssueRepo,
		assignments: deps.AssignmentRepo,
		updates:     deps.UpdateRepo,
		staff:       deps.StaffRepo,
		classifier:  deps.Classifier,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Clock,
	}
	if svc.classifier == nil {
		svc.classifier = sla.NewClassifier(nil)
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// Policy returns the SLA table in use.
func (s *IssueService) Policy() *sla.Policy {
	return s.classifier.Policy()
}

// OverdueQuery filters the overdue listing. A zero Now means the service clock.
type OverdueQuery struct {
	Department *string
	Severity   sla.Severity
	Now        time.Time
}

// Overdue classifies every unresolved issue and returns the overdue ones,
// most overdue first, with their active assignees attached.
func (s *IssueService) Overdue(ctx context.Context, q OverdueQuery) ([]sla.OverdueRecord, error) {
	if q.Severity != "" && !q.Severity.Valid() {
		return nil, apperrors.NewValidationError("unknown severity", map[string]any{"severity": q.Severity})
	}
	now := q.Now
	if now.IsZero() {
		now = s.now()
	}

	issues, err := s.issues.List(ctx, repository.IssueFilter{Department: q.Department, ExcludeResolved: true})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	records := s.classifier.ClassifyAll(issues, now)

	if q.Department == nil {
		counts := map[string]int{
			string(sla.SeverityMedium):   0,
			string(sla.SeverityHigh):     0,
			string(sla.SeverityCritical): 0,
		}
		for _, r := range records {
			counts[string(r.Severity)]++
		}
		s.metrics.SetOverdue(counts)
	}

	result := make([]sla.OverdueRecord, 0, len(records))
	for _, r := range records {
		if q.Severity != "" && r.Severity != q.Severity {
			continue
		}
		active, err := s.assignments.ListActiveByIssue(ctx, r.Issue.ID)
		if err != nil {
			return nil, fmt.Errorf("list assignments for issue %s: %w", r.Issue.ID, err)
		}
		r.AssignedStaff = make([]string, 0, len(active))
		for _, a := range active {
			r.AssignedStaff = append(r.AssignedStaff, a.StaffID)
		}
		result = append(result, r)
	}
	return result, nil
}

// DeadlineView is the recomputed SLA position of one issue.
type DeadlineView struct {
	Issue     domain.Issue
	SLAHours  int
	Deadline  time.Time
	Remaining time.Duration
	Overdue   *sla.OverdueRecord
}

// Deadline recomputes the deadline of an issue from its current category and priority.
func (s *IssueService) Deadline(ctx context.Context, issueID string, now time.Time) (*DeadlineView, error) {
	issue, err := loadIssue(ctx, s.issues, issueID)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = s.now()
	}
	policy := s.classifier.Policy()
	deadline := policy.Deadline(*issue)
	view := &DeadlineView{
		Issue:    *issue,
		SLAHours: policy.DurationHours(issue.Category, issue.Priority),
		Deadline: deadline,
		Overdue:  s.classifier.Classify(*issue, now),
	}
	if issue.Status != domain.IssueStatusResolved && deadline.After(now) {
		view.Remaining = deadline.Sub(now)
	}
	return view, nil
}

// UpdateStatus sets the status of an issue. The escalation flag is independent
// and is never touched here. Field staff may only move issues assigned to them.
func (s *IssueService) UpdateStatus(ctx context.Context, actor domain.Actor, issueID string, status domain.IssueStatus) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid issue status", map[string]any{"status": status})
	}
	issue, err := loadIssue(ctx, s.issues, issueID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleStaff {
		if err := s.requireAssigned(ctx, actor, issue.ID); err != nil {
			return nil, err
		}
	}
	if issue.Status == status {
		return issue, nil
	}

	old := issue.Status
	if err := s.issues.Update(ctx, issue.ID, domain.IssuePatch{Status: ptr(status)}); err != nil {
		return nil, fmt.Errorf("update issue %s: %w", issue.ID, err)
	}
	issue.Status = status

	publish(ctx, s.dispatcher, events.EventIssueStatusChanged, issue.ID, actor, s.now(), events.IssueStatusChangedPayload{
		OldStatus: old,
		NewStatus: status,
	})
	s.logger.Info("issue status changed",
		zap.String("issue_id", issue.ID),
		zap.String("from", string(old)),
		zap.String("to", string(status)),
		zap.String("actor_id", actor.ID))
	return issue, nil
}

// AddUpdate posts a progress note. Field staff must hold an assignment on
// the issue. Supervisors outside the issue's department need an assignee
// from their own department.
func (s *IssueService) AddUpdate(ctx context.Context, actor domain.Actor, issueID, text string) (*domain.IssueUpdate, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("update text is required", map[string]any{"field": "update_text"})
	}
	issue, err := loadIssue(ctx, s.issues, issueID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleStaff:
		if err := s.requireAssigned(ctx, actor, issue.ID); err != nil {
			return nil, err
		}
	case domain.RoleSupervisor:
		if err := s.requireDepartmentAssignee(ctx, actor, issue); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.NewForbidden("operator role required")
	}

	update := &domain.IssueUpdate{IssueID: issue.ID, StaffID: actor.ID, UpdateText: text}
	if err := s.updates.Create(ctx, update); err != nil {
		return nil, fmt.Errorf("create update for issue %s: %w", issue.ID, err)
	}
	publish(ctx, s.dispatcher, events.EventIssueUpdateAdded, issue.ID, actor, s.now(), events.IssueUpdateAddedPayload{
		UpdateID:    update.ID,
		StaffID:     actor.ID,
		TextPreview: preview(text, 120),
	})
	return update, nil
}

// Updates lists the progress notes of an issue, oldest first.
func (s *IssueService) Updates(ctx context.Context, issueID string) ([]domain.IssueUpdate, error) {
	if _, err := loadIssue(ctx, s.issues, issueID); err != nil {
		return nil, err
	}
	updates, err := s.updates.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("list updates for issue %s: %w", issueID, err)
	}
	return updates, nil
}

func (s *IssueService) requireAssigned(ctx context.Context, actor domain.Actor, issueID string) error {
	all, err := s.assignments.ListByIssue(ctx, issueID)
	if err != nil {
		return fmt.Errorf("list assignments for issue %s: %w", issueID, err)
	}
	for _, a := range all {
		if a.StaffID == actor.ID {
			return nil
		}
	}
	return apperrors.NewForbidden("you are not assigned to this issue")
}

func (s *IssueService) requireDepartmentAssignee(ctx context.Context, actor domain.Actor, issue *domain.Issue) error {
	if domain.SameDepartment(actor.Department, issue.Department) {
		return nil
	}
	all, err := s.assignments.ListByIssue(ctx, issue.ID)
	if err != nil {
		return fmt.Errorf("list assignments for issue %s: %w", issue.ID, err)
	}
	if len(all) == 0 {
		return nil
	}
	for _, a := range all {
		assignee, err := loadStaff(ctx, s.staff, a.StaffID)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeNotFound) {
				continue
			}
			return err
		}
		if domain.SameDepartment(actor.Department, assignee.Department) {
			return nil
		}
	}
	return apperrors.NewForbidden("issue is not assigned to staff in your department")
}
