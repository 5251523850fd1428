package sla

import (
	"sort"
	"time"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// Severity tiers how far past its deadline an issue is.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known tier.
func (s Severity) Valid() bool {
	return s == SeverityMedium || s == SeverityHigh || s == SeverityCritical
}

const day = 24 * time.Hour

// OverdueRecord is a derived view of an overdue issue. It is never persisted.
type OverdueRecord struct {
	Issue         domain.Issue
	Deadline      time.Time
	DaysOverdue   int
	Severity      Severity
	AssignedStaff []string
}

// SeverityFor maps whole days overdue onto a tier: 1-3 medium, 4-7 high,
// above 7 critical. Upper bounds are inclusive.
func SeverityFor(daysOverdue int) Severity {
	switch {
	case daysOverdue > 7:
		return SeverityCritical
	case daysOverdue > 3:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// DaysOverdue is ceil((now - deadline) / 24h); zero or less means not overdue.
func DaysOverdue(deadline, now time.Time) int {
	elapsed := now.Sub(deadline)
	if elapsed <= 0 {
		return 0
	}
	days := int(elapsed / day)
	if elapsed%day != 0 {
		days++
	}
	return days
}

// Classifier labels issues against a policy.
type Classifier struct {
	policy *Policy
}

// NewClassifier builds a classifier. A nil policy means DefaultPolicy.
func NewClassifier(policy *Policy) *Classifier {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Classifier{policy: policy}
}

// Policy returns the table the classifier uses.
func (c *Classifier) Policy() *Policy {
	return c.policy
}

// Classify returns nil when the issue is resolved or now is not strictly after
// the deadline. The clock stops at resolution.
func (c *Classifier) Classify(issue domain.Issue, now time.Time) *OverdueRecord {
	if issue.Status == domain.IssueStatusResolved {
		return nil
	}
	deadline := c.policy.Deadline(issue)
	if !now.After(deadline) {
		return nil
	}
	days := DaysOverdue(deadline, now)
	return &OverdueRecord{
		Issue:       issue,
		Deadline:    deadline,
		DaysOverdue: days,
		Severity:    SeverityFor(days),
	}
}

// ClassifyAll returns the overdue subset, most overdue first.
func (c *Classifier) ClassifyAll(issues []domain.Issue, now time.Time) []OverdueRecord {
	records := make([]OverdueRecord, 0)
	for _, issue := range issues {
		if rec := c.Classify(issue, now); rec != nil {
			records = append(records, *rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].DaysOverdue != records[j].DaysOverdue {
			return records[i].DaysOverdue > records[j].DaysOverdue
		}
		return records[i].Issue.CreatedAt.Before(records[j].Issue.CreatedAt)
	})
	return records
}
