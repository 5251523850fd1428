package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sla-service/internal/api/dto"
	"github.com/civic-desk/issue-sla-service/internal/auth"
	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/service"
	"github.com/civic-desk/issue-sla-service/internal/sla"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func staffResponse(staff *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:         staff.ID,
		Name:       staff.Name,
		Email:      staff.Email,
		Role:       staff.Role,
		Department: staff.Department,
		Active:     staff.Active,
	}
}

func issueResponse(issue domain.Issue) dto.IssueResponse {
	return dto.IssueResponse{
		ID:          issue.ID,
		Title:       issue.Title,
		Category:    issue.Category,
		Priority:    issue.Priority,
		Status:      issue.Status,
		Escalated:   issue.Escalated,
		EscalatedTo: issue.EscalatedTo,
		Department:  issue.Department,
		Upvotes:     issue.Upvotes,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
	}
}

func overdueResponse(r sla.OverdueRecord) dto.OverdueIssueResponse {
	assigned := r.AssignedStaff
	if assigned == nil {
		assigned = []string{}
	}
	return dto.OverdueIssueResponse{
		Issue:         issueResponse(r.Issue),
		Deadline:      r.Deadline,
		DaysOverdue:   r.DaysOverdue,
		Severity:      r.Severity,
		AssignedStaff: assigned,
	}
}

func issueUpdateResponse(u *domain.IssueUpdate) dto.IssueUpdateResponse {
	return dto.IssueUpdateResponse{
		ID:         u.ID,
		IssueID:    u.IssueID,
		StaffID:    u.StaffID,
		UpdateText: u.UpdateText,
		CreatedAt:  u.CreatedAt,
	}
}

func escalationLogResponse(e domain.EscalationLogEntry) dto.EscalationLogResponse {
	return dto.EscalationLogResponse{
		ID:         e.ID,
		IssueID:    e.IssueID,
		Action:     e.Action,
		Message:    e.Message,
		Reason:     e.Reason,
		Target:     e.Target,
		ActorID:    e.ActorID,
		ActorRole:  e.ActorRole,
		Department: e.Department,
		CreatedAt:  e.CreatedAt,
	}
}

func escalationLogResponses(entries []domain.EscalationLogEntry) []dto.EscalationLogResponse {
	items := make([]dto.EscalationLogResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, escalationLogResponse(e))
	}
	return items
}

func itemErrorResponses(errs []service.ItemError) []dto.ItemErrorResponse {
	items := make([]dto.ItemErrorResponse, 0, len(errs))
	for _, e := range errs {
		items = append(items, dto.ItemErrorResponse{IssueID: e.IssueID, Code: e.Code, Message: e.Message})
	}
	return items
}

func assignmentResponse(a *domain.Assignment) dto.AssignmentResponse {
	return dto.AssignmentResponse{
		ID:         a.ID,
		IssueID:    a.IssueID,
		StaffID:    a.StaffID,
		Status:     a.Status,
		Notes:      a.Notes,
		AssignedBy: a.AssignedBy,
		AssignedAt: a.AssignedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func candidateResponse(c service.Candidate) dto.CandidateResponse {
	return dto.CandidateResponse{
		StaffID:           c.StaffID,
		Name:              c.Name,
		Department:        c.Department,
		ActiveAssignments: c.ActiveAssignments,
		CompletionRate:    c.CompletionRate,
		DepartmentMatch:   c.DepartmentMatch,
		DepartmentAverage: c.DepartmentAverage,
		RelativeLoad:      c.RelativeLoad,
	}
}

func workloadResponse(w domain.StaffWorkload) dto.WorkloadResponse {
	return dto.WorkloadResponse{
		StaffID:               w.StaffID,
		Name:                  w.Name,
		Department:            w.Department,
		ActiveAssignments:     w.ActiveAssignments,
		InProgressAssignments: w.InProgressAssignments,
		TotalAssignments:      w.TotalAssignments,
		CompletedAssignments:  w.CompletedAssignments,
		CompletionRate:        w.CompletionRate,
	}
}

func assignmentPageResponse(p *service.AssignmentPage) dto.AssignmentListResponse {
	resp := dto.AssignmentListResponse{
		Assignments: make([]dto.AssignmentResponse, 0, len(p.Assignments)),
		Pagination: dto.PaginationResponse{
			Total:      p.Total,
			Page:       p.Page,
			PerPage:    p.PerPage,
			TotalPages: p.TotalPages,
			HasNext:    p.HasNext,
			HasPrev:    p.HasPrev,
		},
	}
	for i := range p.Assignments {
		resp.Assignments = append(resp.Assignments, assignmentResponse(&p.Assignments[i]))
	}
	return resp
}
