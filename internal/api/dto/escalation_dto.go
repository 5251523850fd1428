package dto

import (
	"time"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// EscalateRequest payload.
type EscalateRequest struct {
	EscalateTo string `json:"escalate_to"`
	Reason     string `json:"reason"`
}

// ResolveEscalationRequest payload.
type ResolveEscalationRequest struct {
	Note string `json:"note"`
}

// EscalationLogResponse is one audit record.
type EscalationLogResponse struct {
	ID         string                  `json:"id"`
	IssueID    string                  `json:"issue_id"`
	Action     domain.EscalationAction `json:"action"`
	Message    string                  `json:"message"`
	Reason     string                  `json:"reason,omitempty"`
	Target     *string                 `json:"target,omitempty"`
	ActorID    string                  `json:"actor_id"`
	ActorRole  domain.Role             `json:"actor_role"`
	Department *string                 `json:"department,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// ItemErrorResponse reports a failed item of a batch.
type ItemErrorResponse struct {
	IssueID string `json:"issue_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AutoEscalateResponse summarizes a sweep.
type AutoEscalateResponse struct {
	Scanned   int                 `json:"scanned"`
	Escalated int                 `json:"escalated"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	IssueIDs  []string            `json:"issue_ids"`
	Errors    []ItemErrorResponse `json:"errors"`
}
