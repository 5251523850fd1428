package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sla-service/internal/api/dto"
	"github.com/civic-desk/issue-sla-service/internal/service"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

// EscalationsHandler drives the escalation state machine.
type EscalationsHandler struct {
	service *service.EscalationService
}

// NewEscalationsHandler constructs handler.
func NewEscalationsHandler(escalationService *service.EscalationService) *EscalationsHandler {
	return &EscalationsHandler{service: escalationService}
}

// Escalate POST /api/issues/:id/escalate.
func (h *EscalationsHandler) Escalate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.service.Escalate(c.UserContext(), actor, c.Params("id"), service.EscalateInput{
		Target: req.EscalateTo,
		Reason: req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(*issue)})
}

// Resolve POST /api/issues/:id/escalation/resolve. The body is optional.
func (h *EscalationsHandler) Resolve(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ResolveEscalationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	issue, err := h.service.ResolveEscalation(c.UserContext(), actor, c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueResponse(*issue)})
}

// History GET /api/issues/:id/escalations.
func (h *EscalationsHandler) History(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationLogResponses(entries)})
}

// Recent GET /api/escalations.
func (h *EscalationsHandler) Recent(c *fiber.Ctx) error {
	entries, err := h.service.Recent(c.UserContext(), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationLogResponses(entries)})
}

// AutoEscalate POST /api/escalations/auto.
func (h *EscalationsHandler) AutoEscalate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.service.AutoEscalate(c.UserContext(), actor)
	if err != nil {
		return err
	}
	ids := result.IssueIDs
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(fiber.Map{"data": dto.AutoEscalateResponse{
		Scanned:   result.Scanned,
		Escalated: result.Escalated,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
		IssueIDs:  ids,
		Errors:    itemErrorResponses(result.Errors),
	}})
}
