package domain

import "time"

// AssignmentStatus enumerates work states of an assignment.
type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
)

// Valid reports whether s is a known assignment status.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentAssigned, AssignmentInProgress, AssignmentCompleted:
		return true
	}
	return false
}

// Active reports whether the assignment still counts toward staff workload.
func (s AssignmentStatus) Active() bool {
	return s == AssignmentAssigned || s == AssignmentInProgress
}

// Assignment links an issue to a staff member. Reassignment creates a new
// record; existing records are only ever moved forward in status.
type Assignment struct {
	ID         string
	IssueID    string
	StaffID    string
	Status     AssignmentStatus
	Notes      string
	AssignedBy string
	AssignedAt time.Time
	UpdatedAt  time.Time
}

// IssueUpdate is a progress note posted on an issue by staff.
type IssueUpdate struct {
	ID         string
	IssueID    string
	StaffID    string
	UpdateText string
	CreatedAt  time.Time
}
