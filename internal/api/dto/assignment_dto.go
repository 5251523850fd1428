package dto

import (
	"time"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// AssignRequest payload.
type AssignRequest struct {
	IssueID string `json:"issue_id"`
	StaffID string `json:"staff_id"`
	Notes   string `json:"notes"`
}

// BulkAssignRequest payload.
type BulkAssignRequest struct {
	IssueIDs []string `json:"issue_ids"`
	StaffID  string   `json:"staff_id"`
	Notes    string   `json:"notes"`
}

// UpdateAssignmentStatusRequest payload.
type UpdateAssignmentStatusRequest struct {
	Status domain.AssignmentStatus `json:"status"`
	Notes  *string                 `json:"notes"`
}

// AssignmentResponse is the public view of an assignment.
type AssignmentResponse struct {
	ID         string                  `json:"id"`
	IssueID    string                  `json:"issue_id"`
	StaffID    string                  `json:"staff_id"`
	Status     domain.AssignmentStatus `json:"status"`
	Notes      string                  `json:"notes,omitempty"`
	AssignedBy string                  `json:"assigned_by"`
	AssignedAt time.Time               `json:"assigned_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// PaginationResponse describes the page a listing returned.
type PaginationResponse struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// AssignmentListResponse is one page of assignments.
type AssignmentListResponse struct {
	Assignments []AssignmentResponse `json:"assignments"`
	Pagination  PaginationResponse   `json:"pagination"`
}

// BulkAssignResponse reports a best-effort batch.
type BulkAssignResponse struct {
	Processed   int                  `json:"processed"`
	Failed      int                  `json:"failed"`
	Errors      []ItemErrorResponse  `json:"errors"`
	Assignments []AssignmentResponse `json:"assignments"`
}

// CandidateResponse is one ranked staff member.
type CandidateResponse struct {
	StaffID           string  `json:"staff_id"`
	Name              string  `json:"name"`
	Department        *string `json:"department"`
	ActiveAssignments int     `json:"active_assignments"`
	CompletionRate    float64 `json:"completion_rate"`
	DepartmentMatch   bool    `json:"department_match"`
	DepartmentAverage float64 `json:"department_average"`
	RelativeLoad      float64 `json:"relative_load"`
}

// SuggestionResponse is the balancer output for one issue.
type SuggestionResponse struct {
	IssueID    string              `json:"issue_id"`
	StaffID    *string             `json:"suggested_staff_id"`
	Candidates []CandidateResponse `json:"candidates"`
}
