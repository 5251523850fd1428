package sla

import (
	"time"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// ComputeDeadline returns createdAt plus the policy window for the pair.
// Deadlines are never stored; recompute whenever category or priority changes.
func ComputeDeadline(policy *Policy, createdAt time.Time, category domain.IssueCategory, priority domain.IssuePriority) time.Time {
	return createdAt.Add(policy.Duration(category, priority))
}

// Deadline is ComputeDeadline for an issue's current fields.
func (p *Policy) Deadline(issue domain.Issue) time.Time {
	return ComputeDeadline(p, issue.CreatedAt, issue.Category, issue.Priority)
}
