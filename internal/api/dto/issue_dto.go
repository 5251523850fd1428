package dto

import (
	"time"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/sla"
)

// IssueResponse is the operator view of an issue.
type IssueResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Category    domain.IssueCategory `json:"category"`
	Priority    domain.IssuePriority `json:"priority"`
	Status      domain.IssueStatus   `json:"status"`
	Escalated   bool                 `json:"escalated"`
	EscalatedTo *string              `json:"escalated_to"`
	Department  *string              `json:"department"`
	Upvotes     int                  `json:"upvotes"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// OverdueIssueResponse is one row of the overdue listing.
type OverdueIssueResponse struct {
	Issue         IssueResponse `json:"issue"`
	Deadline      time.Time     `json:"deadline"`
	DaysOverdue   int           `json:"days_overdue"`
	Severity      sla.Severity  `json:"severity"`
	AssignedStaff []string      `json:"assigned_staff"`
}

// OverdueListResponse groups the overdue listing with per-severity counts.
type OverdueListResponse struct {
	Total  int                    `json:"total"`
	Counts map[sla.Severity]int   `json:"counts"`
	Issues []OverdueIssueResponse `json:"issues"`
}

// DeadlineResponse is the recomputed SLA position of an issue.
type DeadlineResponse struct {
	IssueID          string                `json:"issue_id"`
	Category         domain.IssueCategory  `json:"category"`
	Priority         domain.IssuePriority  `json:"priority"`
	SLAHours         int                   `json:"sla_hours"`
	CreatedAt        time.Time             `json:"created_at"`
	Deadline         time.Time             `json:"deadline"`
	RemainingSeconds int64                 `json:"remaining_seconds"`
	Overdue          *OverdueIssueResponse `json:"overdue,omitempty"`
}

// PolicyEntryResponse is one cell of the SLA table.
type PolicyEntryResponse struct {
	Category domain.IssueCategory `json:"category"`
	Priority domain.IssuePriority `json:"priority"`
	Hours    int                  `json:"hours"`
}

// UpdateIssueStatusRequest payload.
type UpdateIssueStatusRequest struct {
	Status domain.IssueStatus `json:"status"`
}

// CreateIssueUpdateRequest payload.
type CreateIssueUpdateRequest struct {
	UpdateText string `json:"update_text"`
}

// IssueUpdateResponse is a progress note.
type IssueUpdateResponse struct {
	ID         string    `json:"id"`
	IssueID    string    `json:"issue_id"`
	StaffID    string    `json:"staff_id"`
	UpdateText string    `json:"update_text"`
	CreatedAt  time.Time `json:"created_at"`
}
