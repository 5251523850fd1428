package domain

import "time"

// EscalationAction names the transition recorded in the audit log.
type EscalationAction string

const (
	EscalationActionEscalated   EscalationAction = "escalated"
	EscalationActionDeEscalated EscalationAction = "de_escalated"
)

// EscalationLogEntry is an immutable audit record of an escalation transition.
type EscalationLogEntry struct {
	ID         string
	IssueID    string
	Action     EscalationAction
	Message    string
	Reason     string
	Target     *string
	ActorID    string
	ActorRole  Role
	Department *string
	CreatedAt  time.Time
}
