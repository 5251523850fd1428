package events

import (
	"time"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueEscalated       EventType = "issue_escalated"
	EventEscalationResolved   EventType = "escalation_resolved"
	EventIssueAssigned        EventType = "issue_assigned"
	EventIssueStatusChanged   EventType = "issue_status_changed"
	EventIssueUpdateAdded     EventType = "issue_update_added"
	EventAutoEscalateFinished EventType = "auto_escalate_finished"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
}

// ActorFrom copies the session fields relevant to events.
func ActorFrom(a domain.Actor) Actor {
	return Actor{ID: a.ID, Role: a.Role}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	IssueID   string    `json:"issue_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// IssueEscalatedPayload payload.
type IssueEscalatedPayload struct {
	Target     string  `json:"target"`
	Reason     string  `json:"reason"`
	Department *string `json:"department,omitempty"`
	Automatic  bool    `json:"automatic"`
}

// EscalationResolvedPayload payload.
type EscalationResolvedPayload struct {
	PreviousTarget *string            `json:"previous_target,omitempty"`
	NewStatus      domain.IssueStatus `json:"new_status"`
	Note           string             `json:"note,omitempty"`
}

// IssueAssignedPayload payload.
type IssueAssignedPayload struct {
	AssignmentID string `json:"assignment_id"`
	StaffID      string `json:"staff_id"`
	Notes        string `json:"notes,omitempty"`
}

// IssueStatusChangedPayload payload.
type IssueStatusChangedPayload struct {
	OldStatus domain.IssueStatus `json:"old_status"`
	NewStatus domain.IssueStatus `json:"new_status"`
}

// IssueUpdateAddedPayload payload.
type IssueUpdateAddedPayload struct {
	UpdateID    string `json:"update_id"`
	StaffID     string `json:"staff_id"`
	TextPreview string `json:"text_preview"`
}

// AutoEscalateFinishedPayload summarizes a sweep.
type AutoEscalateFinishedPayload struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
