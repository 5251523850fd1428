package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sla-service/internal/api/dto"
	"github.com/civic-desk/issue-sla-service/internal/service"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

// AssignmentsHandler exposes the assignment balancer.
type AssignmentsHandler struct {
	service *service.AssignmentService
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(assignmentService *service.AssignmentService) *AssignmentsHandler {
	return &AssignmentsHandler{service: assignmentService}
}

// Assign POST /api/assignments.
func (h *AssignmentsHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	assignment, err := h.service.Assign(c.UserContext(), actor, service.AssignInput{
		IssueID: req.IssueID,
		StaffID: req.StaffID,
		Notes:   req.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": assignmentResponse(assignment)})
}

// BulkAssign POST /api/assignments/bulk.
func (h *AssignmentsHandler) BulkAssign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.BulkAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.BulkAssign(c.UserContext(), actor, service.BulkAssignInput{
		IssueIDs: req.IssueIDs,
		StaffID:  req.StaffID,
		Notes:    req.Notes,
	})
	if err != nil {
		return err
	}
	resp := dto.BulkAssignResponse{
		Processed:   result.Processed,
		Failed:      result.Failed,
		Errors:      itemErrorResponses(result.Errors),
		Assignments: make([]dto.AssignmentResponse, 0, len(result.Assignments)),
	}
	for i := range result.Assignments {
		resp.Assignments = append(resp.Assignments, assignmentResponse(&result.Assignments[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Suggest GET /api/issues/:id/suggest-assignee.
func (h *AssignmentsHandler) Suggest(c *fiber.Ctx) error {
	suggestion, err := h.service.Suggest(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	resp := dto.SuggestionResponse{
		IssueID:    suggestion.IssueID,
		Candidates: make([]dto.CandidateResponse, 0, len(suggestion.Candidates)),
	}
	if suggestion.Found {
		id := suggestion.StaffID
		resp.StaffID = &id
	}
	for _, cand := range suggestion.Candidates {
		resp.Candidates = append(resp.Candidates, candidateResponse(cand))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Workload GET /api/assignments/workload.
func (h *AssignmentsHandler) Workload(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	report, err := h.service.Workload(c.UserContext(), actor, optionalQuery(c, "department"))
	if err != nil {
		return err
	}
	resp := dto.WorkloadReportResponse{
		Department:             report.Department,
		TotalStaff:             report.TotalStaff,
		TotalActiveAssignments: report.TotalActiveAssignments,
		AverageWorkload:        report.AverageWorkload,
		Distribution:           make([]dto.WorkloadResponse, 0, len(report.Staff)),
	}
	for _, w := range report.Staff {
		resp.Distribution = append(resp.Distribution, workloadResponse(w))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// List GET /api/assignments.
func (h *AssignmentsHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	page, err := h.service.List(c.UserContext(), actor, assignmentQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentPageResponse(page)})
}

// Mine GET /api/assignments/my.
func (h *AssignmentsHandler) Mine(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	page, err := h.service.Mine(c.UserContext(), actor, assignmentQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentPageResponse(page)})
}

// Get GET /api/assignments/:id.
func (h *AssignmentsHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	assignment, err := h.service.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(assignment)})
}

// DepartmentStats GET /api/assignments/stats/department.
func (h *AssignmentsHandler) DepartmentStats(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	stats, err := h.service.DepartmentStats(c.UserContext(), actor, optionalQuery(c, "department"))
	if err != nil {
		return err
	}
	resp := dto.DepartmentStatsResponse{
		Department: stats.Department,
		TotalStaff: stats.TotalStaff,
		AssignmentStats: dto.AssignmentStatsResponse{
			TotalAssignments: stats.TotalAssignments,
			Assigned:         stats.Assigned,
			InProgress:       stats.InProgress,
			Completed:        stats.Completed,
		},
		StaffWorkload: make([]dto.WorkloadResponse, 0, len(stats.Staff)),
	}
	for _, w := range stats.Staff {
		resp.StaffWorkload = append(resp.StaffWorkload, workloadResponse(w))
	}
	return c.JSON(fiber.Map{"data": resp})
}

func assignmentQuery(c *fiber.Ctx) service.AssignmentQuery {
	return service.AssignmentQuery{
		StaffID:    c.Query("staff_id"),
		Department: c.Query("department"),
		IssueID:    c.Query("issue_id"),
		Status:     c.Query("status"),
		Page:       parseInt(c.Query("page"), 1),
		PerPage:    parseInt(c.Query("per_page"), 0),
	}
}

// UpdateStatus PATCH /api/assignments/:id/status.
func (h *AssignmentsHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateAssignmentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	assignment, err := h.service.UpdateAssignmentStatus(c.UserContext(), actor, c.Params("id"), req.Status, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(assignment)})
}
