package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

var t0 = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func wasteMedium(status domain.IssueStatus) domain.Issue {
	return domain.Issue{
		ID:        "issue-1",
		Category:  domain.CategoryWaste,
		Priority:  domain.PriorityMedium,
		Status:    status,
		CreatedAt: t0,
	}
}

func TestSeverityTiers(t *testing.T) {
	cases := []struct {
		days int
		want Severity
	}{
		{1, SeverityMedium},
		{3, SeverityMedium},
		{4, SeverityHigh},
		{7, SeverityHigh},
		{8, SeverityCritical},
		{30, SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SeverityFor(tc.days), "days=%d", tc.days)
	}
}

func TestClassifyByDaysOverdue(t *testing.T) {
	c := NewClassifier(nil)
	deadline := t0.Add(24 * time.Hour)

	for days, want := range map[int]Severity{1: SeverityMedium, 3: SeverityMedium, 4: SeverityHigh, 7: SeverityHigh, 8: SeverityCritical} {
		now := deadline.Add(time.Duration(days) * day)
		rec := c.Classify(wasteMedium(domain.IssueStatusPending), now)
		require.NotNil(t, rec)
		assert.Equal(t, days, rec.DaysOverdue)
		assert.Equal(t, want, rec.Severity, "days=%d", days)
	}
}

func TestClassifyBoundary(t *testing.T) {
	c := NewClassifier(nil)
	deadline := t0.Add(24 * time.Hour)

	assert.Nil(t, c.Classify(wasteMedium(domain.IssueStatusPending), deadline), "exactly at the deadline is not overdue")
	assert.Nil(t, c.Classify(wasteMedium(domain.IssueStatusPending), deadline.Add(-time.Second)))

	rec := c.Classify(wasteMedium(domain.IssueStatusPending), deadline.Add(time.Nanosecond))
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.DaysOverdue)
	assert.Equal(t, deadline, rec.Deadline)
}

func TestClassifyResolvedNeverOverdue(t *testing.T) {
	c := NewClassifier(nil)
	for _, now := range []time.Time{t0.Add(25 * time.Hour), t0.Add(400 * day)} {
		assert.Nil(t, c.Classify(wasteMedium(domain.IssueStatusResolved), now))
	}
}

func TestClassifyEscalatedStatusStillClassified(t *testing.T) {
	c := NewClassifier(nil)
	rec := c.Classify(wasteMedium(domain.IssueStatusEscalated), t0.Add(10*day))
	require.NotNil(t, rec)
	assert.Equal(t, SeverityCritical, rec.Severity)
}

func TestScenarioWasteMediumThirtyHours(t *testing.T) {
	c := NewClassifier(DefaultPolicy())
	rec := c.Classify(wasteMedium(domain.IssueStatusPending), t0.Add(30*time.Hour))
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.DaysOverdue)
	assert.Equal(t, SeverityMedium, rec.Severity)
}

func TestScenarioCriticalPriorityNineDays(t *testing.T) {
	c := NewClassifier(DefaultPolicy())
	issue := domain.Issue{
		ID:        "issue-2",
		Category:  domain.CategoryWater,
		Priority:  domain.NormalizePriority("critical"),
		Status:    domain.IssueStatusInProgress,
		CreatedAt: t0,
	}
	require.Equal(t, 4, c.Policy().DurationHours(issue.Category, issue.Priority))

	rec := c.Classify(issue, t0.Add(9*day))
	require.NotNil(t, rec)
	assert.Equal(t, 9, rec.DaysOverdue, "8 days 20 hours rounds up")
	assert.Equal(t, SeverityCritical, rec.Severity)
}

func TestClassifyAllOrdersMostOverdueFirst(t *testing.T) {
	c := NewClassifier(nil)
	now := t0.Add(10 * day)
	issues := []domain.Issue{
		{ID: "fresh", Category: domain.CategoryRoads, Priority: domain.PriorityLow, Status: domain.IssueStatusPending, CreatedAt: now.Add(-time.Hour)},
		{ID: "old", Category: domain.CategoryWaste, Priority: domain.PriorityUrgent, Status: domain.IssueStatusPending, CreatedAt: t0},
		{ID: "middle", Category: domain.CategoryWaste, Priority: domain.PriorityMedium, Status: domain.IssueStatusPending, CreatedAt: t0.Add(5 * day)},
		{ID: "done", Category: domain.CategoryWaste, Priority: domain.PriorityUrgent, Status: domain.IssueStatusResolved, CreatedAt: t0},
	}

	records := c.ClassifyAll(issues, now)
	require.Len(t, records, 2)
	assert.Equal(t, "old", records[0].Issue.ID)
	assert.Equal(t, "middle", records[1].Issue.ID)
	assert.Equal(t, SeverityHigh, records[1].Severity)
}
