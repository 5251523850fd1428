package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/events"
	"github.com/civic-desk/issue-sla-service/internal/observability"
	"github.com/civic-desk/issue-sla-service/internal/repository"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

// AssignmentService creates assignments and reports staff workload.
type AssignmentService struct {
	issues      repository.IssueRepository
	assignments repository.AssignmentRepository
	staff       repository.StaffRepository
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         Clock
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	IssueRepo      repository.IssueRepository
	AssignmentRepo repository.AssignmentRepository
	StaffRepo      repository.StaffRepository
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Clock          Clock
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	svc := &AssignmentService{
		issues:      deps.IssueRepo,
		assignments: deps.AssignmentRepo,
		staff:       deps.StaffRepo,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Clock,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// AssignInput is a single assignment request.
type AssignInput struct {
	IssueID string
	StaffID string
	Notes   string
}

// BulkAssignInput assigns one staff member to many issues.
type BulkAssignInput struct {
	IssueIDs []string
	StaffID  string
	Notes    string
}

// BulkResult reports a best-effort batch. Processed counts successes.
type BulkResult struct {
	Processed   int                 `json:"processed"`
	Failed      int                 `json:"failed"`
	Errors      []ItemError         `json:"errors"`
	Assignments []domain.Assignment `json:"assignments"`
}

// Suggestion is the ranked staff pool for one issue.
type Suggestion struct {
	IssueID    string      `json:"issue_id"`
	StaffID    string      `json:"staff_id,omitempty"`
	Found      bool        `json:"found"`
	Candidates []Candidate `json:"candidates"`
}

// WorkloadReport is the workload distribution across staff.
type WorkloadReport struct {
	Department             *string                `json:"department,omitempty"`
	TotalStaff             int                    `json:"total_staff"`
	TotalActiveAssignments int                    `json:"total_active_assignments"`
	AverageWorkload        float64                `json:"avg_workload"`
	Staff                  []domain.StaffWorkload `json:"workload_distribution"`
}

// Assign creates a new assignment record. Issue status is not changed.
func (s *AssignmentService) Assign(ctx context.Context, actor domain.Actor, in AssignInput) (*domain.Assignment, error) {
	assignment, err := s.assign(ctx, actor, in)
	s.metrics.RecordAssignment("single", err)
	return assignment, err
}

func (s *AssignmentService) assign(ctx context.Context, actor domain.Actor, in AssignInput) (*domain.Assignment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	staffID := strings.TrimSpace(in.StaffID)
	if staffID == "" {
		return nil, apperrors.NewValidationError("staff member is required", map[string]any{"field": "staff_id"})
	}
	issueID := strings.TrimSpace(in.IssueID)
	if issueID == "" {
		return nil, apperrors.NewValidationError("issue id is required", map[string]any{"field": "issue_id"})
	}
	assignee, err := s.resolveAssignee(ctx, actor, staffID)
	if err != nil {
		return nil, err
	}
	return s.assignOne(ctx, actor, issueID, assignee, in.Notes)
}

// BulkAssign assigns every listed issue to one staff member. Shared inputs
// are validated up front; each issue then succeeds or fails on its own.
func (s *AssignmentService) BulkAssign(ctx context.Context, actor domain.Actor, in BulkAssignInput) (*BulkResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	staffID := strings.TrimSpace(in.StaffID)
	if staffID == "" {
		return nil, apperrors.NewValidationError("staff member is required", map[string]any{"field": "staff_id"})
	}
	if len(in.IssueIDs) == 0 {
		return nil, apperrors.NewValidationError("at least one issue is required", map[string]any{"field": "issue_ids"})
	}
	assignee, err := s.resolveAssignee(ctx, actor, staffID)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{Errors: []ItemError{}, Assignments: []domain.Assignment{}}
	for _, raw := range in.IssueIDs {
		issueID := strings.TrimSpace(raw)
		var assignment *domain.Assignment
		if issueID == "" {
			err = apperrors.NewValidationError("issue id is required", nil)
		} else {
			assignment, err = s.assignOne(ctx, actor, issueID, assignee, in.Notes)
		}
		s.metrics.RecordAssignment("bulk", err)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, newItemError(issueID, err))
			continue
		}
		result.Processed++
		result.Assignments = append(result.Assignments, *assignment)
	}

	s.logger.Info("bulk assignment finished",
		zap.String("staff_id", staffID),
		zap.String("actor_id", actor.ID),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *AssignmentService) resolveAssignee(ctx context.Context, actor domain.Actor, staffID string) (*domain.StaffMember, error) {
	assignee, err := loadStaff(ctx, s.staff, staffID)
	if err != nil {
		return nil, err
	}
	if assignee.Role != domain.RoleStaff {
		return nil, apperrors.NewPolicyError("assignee is not a staff member", map[string]any{"staff_id": staffID})
	}
	if !assignee.Active {
		return nil, apperrors.NewPolicyError("assignee is inactive", map[string]any{"staff_id": staffID})
	}
	if actor.Role == domain.RoleSupervisor && !domain.SameDepartment(actor.Department, assignee.Department) {
		return nil, apperrors.NewForbidden("cannot assign to staff outside your department")
	}
	return assignee, nil
}

func (s *AssignmentService) assignOne(ctx context.Context, actor domain.Actor, issueID string, assignee *domain.StaffMember, notes string) (*domain.Assignment, error) {
	issue, err := loadIssue(ctx, s.issues, issueID)
	if err != nil {
		return nil, err
	}
	if issue.Status == domain.IssueStatusResolved {
		return nil, apperrors.NewPolicyError("cannot assign a resolved issue", map[string]any{"issue_id": issueID})
	}
	active, err := s.assignments.ListActiveByIssue(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("list assignments for issue %s: %w", issueID, err)
	}
	for _, a := range active {
		if a.StaffID == assignee.ID {
			return nil, apperrors.NewPolicyError("issue is already assigned to this staff member", map[string]any{
				"issue_id":      issueID,
				"staff_id":      assignee.ID,
				"assignment_id": a.ID,
			})
		}
	}

	assignment := &domain.Assignment{
		IssueID:    issueID,
		StaffID:    assignee.ID,
		Status:     domain.AssignmentAssigned,
		Notes:      strings.TrimSpace(notes),
		AssignedBy: actor.ID,
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, fmt.Errorf("create assignment for issue %s: %w", issueID, err)
	}

	publish(ctx, s.dispatcher, events.EventIssueAssigned, issueID, actor, s.now(), events.IssueAssignedPayload{
		AssignmentID: assignment.ID,
		StaffID:      assignee.ID,
		Notes:        assignment.Notes,
	})
	s.logger.Info("issue assigned",
		zap.String("issue_id", issueID),
		zap.String("staff_id", assignee.ID),
		zap.String("actor_id", actor.ID))
	return assignment, nil
}

// Suggest ranks the active staff pool for an issue. It never assigns.
func (s *AssignmentService) Suggest(ctx context.Context, issueID string) (*Suggestion, error) {
	issue, err := loadIssue(ctx, s.issues, issueID)
	if err != nil {
		return nil, err
	}
	pool, err := s.staff.ListWorkloads(ctx, repository.WorkloadFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list workloads: %w", err)
	}
	ranked := RankCandidates(*issue, pool)
	suggestion := &Suggestion{IssueID: issue.ID, Candidates: ranked}
	if len(ranked) > 0 {
		suggestion.StaffID = ranked[0].StaffID
		suggestion.Found = true
	}
	return suggestion, nil
}

// Workload reports the distribution of active assignments. Supervisors only
// see their own department.
func (s *AssignmentService) Workload(ctx context.Context, actor domain.Actor, department *string) (*WorkloadReport, error) {
	if actor.Role == domain.RoleSupervisor {
		department = actor.Department
		if department == nil {
			return nil, apperrors.NewForbidden("supervisor has no department")
		}
	}
	staff, err := s.staff.ListWorkloads(ctx, repository.WorkloadFilter{Department: department})
	if err != nil {
		return nil, fmt.Errorf("list workloads: %w", err)
	}

	report := &WorkloadReport{Department: department, TotalStaff: len(staff), Staff: staff}
	for _, w := range staff {
		report.TotalActiveAssignments += w.ActiveAssignments
	}
	if report.TotalStaff > 0 {
		report.AverageWorkload = math.Round(float64(report.TotalActiveAssignments)/float64(report.TotalStaff)*10) / 10
	}
	sort.SliceStable(report.Staff, func(i, j int) bool {
		return report.Staff[i].ActiveAssignments > report.Staff[j].ActiveAssignments
	})
	if report.Staff == nil {
		report.Staff = []domain.StaffWorkload{}
	}
	return report, nil
}

var assignmentStatusRank = map[domain.AssignmentStatus]int{
	domain.AssignmentAssigned:   0,
	domain.AssignmentInProgress: 1,
	domain.AssignmentCompleted:  2,
}

// UpdateAssignmentStatus moves an assignment forward and keeps the issue in
// step: in_progress starts work on the issue, and the issue is resolved once
// every one of its assignments is completed.
func (s *AssignmentService) UpdateAssignmentStatus(ctx context.Context, actor domain.Actor, assignmentID string, status domain.AssignmentStatus, notes *string) (*domain.Assignment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid assignment status", map[string]any{"status": status})
	}
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAssignment(ctx, actor, assignment); err != nil {
		return nil, err
	}
	if assignment.Status == domain.AssignmentCompleted {
		return nil, apperrors.NewPolicyError("assignment is already completed", map[string]any{"assignment_id": assignmentID})
	}
	if assignmentStatusRank[status] < assignmentStatusRank[assignment.Status] {
		return nil, apperrors.NewPolicyError("assignment status cannot move backwards", map[string]any{
			"from": assignment.Status,
			"to":   status,
		})
	}

	if err := s.assignments.UpdateStatus(ctx, assignment.ID, status, notes); err != nil {
		return nil, fmt.Errorf("update assignment %s: %w", assignment.ID, err)
	}
	assignment.Status = status
	if notes != nil {
		assignment.Notes = *notes
	}

	if err := s.syncIssueStatus(ctx, actor, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// authorizeAssignment lets admins touch any assignment, field staff their
// own, and supervisors those held by staff of their department.
func (s *AssignmentService) authorizeAssignment(ctx context.Context, actor domain.Actor, assignment *domain.Assignment) error {
	switch actor.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleStaff:
		if assignment.StaffID != actor.ID {
			return apperrors.NewForbidden("not authorized for this assignment")
		}
		return nil
	case domain.RoleSupervisor:
		assignee, err := loadStaff(ctx, s.staff, assignment.StaffID)
		if err != nil {
			return err
		}
		if !domain.SameDepartment(actor.Department, assignee.Department) {
			return apperrors.NewForbidden("not authorized for assignments outside your department")
		}
		return nil
	default:
		return apperrors.NewForbidden("operator role required")
	}
}

func (s *AssignmentService) syncIssueStatus(ctx context.Context, actor domain.Actor, assignment *domain.Assignment) error {
	issue, err := loadIssue(ctx, s.issues, assignment.IssueID)
	if err != nil {
		return err
	}

	var next domain.IssueStatus
	switch assignment.Status {
	case domain.AssignmentInProgress:
		if issue.Status == domain.IssueStatusResolved {
			return nil
		}
		next = domain.IssueStatusInProgress
	case domain.AssignmentCompleted:
		all, err := s.assignments.ListByIssue(ctx, issue.ID)
		if err != nil {
			return fmt.Errorf("list assignments for issue %s: %w", issue.ID, err)
		}
		for _, a := range all {
			if a.Status != domain.AssignmentCompleted {
				return nil
			}
		}
		next = domain.IssueStatusResolved
	default:
		return nil
	}
	if issue.Status == next {
		return nil
	}

	if err := s.issues.Update(ctx, issue.ID, domain.IssuePatch{Status: ptr(next)}); err != nil {
		return fmt.Errorf("update issue %s: %w", issue.ID, err)
	}
	publish(ctx, s.dispatcher, events.EventIssueStatusChanged, issue.ID, actor, s.now(), events.IssueStatusChangedPayload{
		OldStatus: issue.Status,
		NewStatus: next,
	})
	return nil
}
