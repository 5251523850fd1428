package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sla-service/internal/api/dto"
	"github.com/civic-desk/issue-sla-service/internal/service"
	"github.com/civic-desk/issue-sla-service/internal/sla"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

// IssuesHandler serves the SLA views and the issue commands.
type IssuesHandler struct {
	service *service.IssueService
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(issueService *service.IssueService) *IssuesHandler {
	return &IssuesHandler{service: issueService}
}

// Policy GET /api/sla/policy.
func (h *IssuesHandler) Policy(c *fiber.Ctx) error {
	entries := h.service.Policy().Entries()
	items := make([]dto.PolicyEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.PolicyEntryResponse{Category: e.Category, Priority: e.Priority, Hours: e.Hours})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Overdue GET /api/issues/overdue.
func (h *IssuesHandler) Overdue(c *fiber.Ctx) error {
	query := service.OverdueQuery{
		Department: optionalQuery(c, "department"),
		Severity:   sla.Severity(c.Query("severity")),
	}
	if at := c.Query("at"); at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return apperrors.NewValidationError("at must be RFC3339", map[string]any{"at": at})
		}
		query.Now = parsed
	}

	records, err := h.service.Overdue(c.UserContext(), query)
	if err != nil {
		return err
	}
	resp := dto.OverdueListResponse{
		Total: len(records),
		Counts: map[sla.Severity]int{
			sla.SeverityMedium:   0,
			sla.SeverityHigh:     0,
			sla.SeverityCritical: 0,
		},
		Issues: make([]dto.OverdueIssueResponse, 0, len(records)),
	}
	for _, r := range records {
		resp.Counts[r.Severity]++
		resp.Issues = append(resp.Issues, overdueResponse(r))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Deadline GET /api/issues/:id/deadline.
func (h *IssuesHandler) Deadline(c *fiber.Ctx) error {
	view, err := h.service.Deadline(c.UserContext(), c.Params("id"), time.Time{})
	if err != nil {
		return err
	}
	resp := dto.DeadlineResponse{
		IssueID:          view.Issue.ID,
		Category:         view.Issue.Category,
		Priority:         view.Issue.Priority,
		SLAHours:         view.SLAHours,
		CreatedAt:        view.Issue.CreatedAt,
		Deadline:         view.Deadline,
		RemainingSeconds: int64(view.Remaining / time.Second),
	}
	if view.Overdue != nil {
		overdue := overdueResponse(*view.Overdue)
		resp.Overdue = &overdue
	}
	return c.JSON(fiber.Map{"data": resp})
}

// UpdateStatus PATCH /api/issues/:id/status.
func (h *IssuesHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateIssueStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.service.UpdateStatus(c.UserContext(), actor, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(*issue)})
}

// AddUpdate POST /api/issues/:id/updates.
func (h *IssuesHandler) AddUpdate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateIssueUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	update, err := h.service.AddUpdate(c.UserContext(), actor, c.Params("id"), req.UpdateText)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": issueUpdateResponse(update)})
}

// ListUpdates GET /api/issues/:id/updates.
func (h *IssuesHandler) ListUpdates(c *fiber.Ctx) error {
	updates, err := h.service.Updates(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.IssueUpdateResponse, 0, len(updates))
	for i := range updates {
		items = append(items, issueUpdateResponse(&updates[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
