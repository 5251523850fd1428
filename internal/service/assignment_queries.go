package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/repository"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// AssignmentQuery filters an assignment listing. Empty strings are unset and
// Page is 1-based.
type AssignmentQuery struct {
	StaffID    string
	Department string
	IssueID    string
	Status     string
	Page       int
	PerPage    int
}

// AssignmentPage is one page of a listing, newest assignment first.
type AssignmentPage struct {
	Assignments []domain.Assignment
	Total       int
	Page        int
	PerPage     int
	TotalPages  int
	HasNext     bool
	HasPrev     bool
}

// DepartmentStats summarizes assignments held by one department's staff, or
// by all staff when Department is nil.
type DepartmentStats struct {
	Department       *string
	TotalStaff       int
	TotalAssignments int
	Assigned         int
	InProgress       int
	Completed        int
	Staff            []domain.StaffWorkload
}

// List returns the assignments visible to actor. Field staff only see their
// own, supervisors only their department's; the staff and department filters
// are honoured for admins alone.
func (s *AssignmentService) List(ctx context.Context, actor domain.Actor, q AssignmentQuery) (*AssignmentPage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	filter, err := assignmentFilter(q)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case domain.RoleAdmin:
		if v := strings.TrimSpace(q.StaffID); v != "" {
			filter.StaffID = &v
		}
		if v := strings.TrimSpace(q.Department); v != "" {
			filter.Department = &v
		}
	case domain.RoleSupervisor:
		if actor.Department == nil {
			return nil, apperrors.NewForbidden("supervisor has no department")
		}
		filter.Department = actor.Department
	case domain.RoleStaff:
		filter.StaffID = ptr(actor.ID)
	default:
		return nil, apperrors.NewForbidden("operator role required")
	}
	return s.page(ctx, filter)
}

// Mine lists the caller's own assignments.
func (s *AssignmentService) Mine(ctx context.Context, actor domain.Actor, q AssignmentQuery) (*AssignmentPage, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleStaff {
		return nil, apperrors.NewForbidden("only field staff hold assignments")
	}
	filter, err := assignmentFilter(AssignmentQuery{Status: q.Status, Page: q.Page, PerPage: q.PerPage})
	if err != nil {
		return nil, err
	}
	filter.StaffID = ptr(actor.ID)
	return s.page(ctx, filter)
}

// Get returns one assignment if actor may see it.
func (s *AssignmentService) Get(ctx context.Context, actor domain.Actor, assignmentID string) (*domain.Assignment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeAssignment(ctx, actor, assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

// DepartmentStats counts assignments by status across a department's staff.
// Supervisors are pinned to their own department.
func (s *AssignmentService) DepartmentStats(ctx context.Context, actor domain.Actor, department *string) (*DepartmentStats, error) {
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

	stats := &DepartmentStats{Department: department, TotalStaff: len(staff), Staff: staff}
	for _, w := range staff {
		stats.TotalAssignments += w.TotalAssignments
		stats.Assigned += w.ActiveAssignments - w.InProgressAssignments
		stats.InProgress += w.InProgressAssignments
		stats.Completed += w.CompletedAssignments
	}
	sort.SliceStable(stats.Staff, func(i, j int) bool {
		return stats.Staff[i].ActiveAssignments > stats.Staff[j].ActiveAssignments
	})
	if stats.Staff == nil {
		stats.Staff = []domain.StaffWorkload{}
	}
	return stats, nil
}

func assignmentFilter(q AssignmentQuery) (repository.AssignmentFilter, error) {
	var filter repository.AssignmentFilter
	page := q.Page
	if page <= 0 {
		page = 1
	}
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		return filter, apperrors.NewValidationError("per_page is too large", map[string]any{"max": maxPerPage})
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	if v := strings.TrimSpace(q.IssueID); v != "" {
		filter.IssueID = &v
	}
	if v := strings.TrimSpace(q.Status); v != "" {
		status := domain.AssignmentStatus(v)
		if !status.Valid() {
			return filter, apperrors.NewValidationError("invalid assignment status", map[string]any{"status": v})
		}
		filter.Status = &status
	}
	return filter, nil
}

func (s *AssignmentService) page(ctx context.Context, filter repository.AssignmentFilter) (*AssignmentPage, error) {
	items, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if items == nil {
		items = []domain.Assignment{}
	}
	p := &AssignmentPage{
		Assignments: items,
		Total:       total,
		Page:        filter.Offset/filter.Limit + 1,
		PerPage:     filter.Limit,
		TotalPages:  (total + filter.Limit - 1) / filter.Limit,
	}
	p.HasNext = p.Page < p.TotalPages
	p.HasPrev = p.Page > 1
	return p, nil
}

func (s *AssignmentService) loadAssignment(ctx context.Context, assignmentID string) (*domain.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("assignment", map[string]any{"assignment_id": assignmentID})
		}
		return nil, fmt.Errorf("load assignment %s: %w", assignmentID, err)
	}
	return assignment, nil
}
