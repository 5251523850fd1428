package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/events"
	"github.com/civic-desk/issue-sla-service/internal/sla"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

func TestOverdueListsMostOverdueFirstWithAssignees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.staff("s-1", "waste", domain.RoleStaff, true)
	medium := f.issue(domain.IssueStatusPending, 2, "waste")
	critical := f.issue(domain.IssueStatusInProgress, 9, "waste")
	f.issue(domain.IssueStatusPending, -2, "waste")
	f.issue(domain.IssueStatusResolved, 30, "waste")
	_, err := f.assignments.Assign(ctx, admin, AssignInput{IssueID: critical.ID, StaffID: "s-1"})
	require.NoError(t, err)

	records, err := f.issues.Overdue(ctx, OverdueQuery{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, critical.ID, records[0].Issue.ID)
	assert.Equal(t, 9, records[0].DaysOverdue)
	assert.Equal(t, sla.SeverityCritical, records[0].Severity)
	assert.Equal(t, []string{"s-1"}, records[0].AssignedStaff)
	assert.Equal(t, medium.ID, records[1].Issue.ID)
	assert.Equal(t, sla.SeverityMedium, records[1].Severity)
	assert.Empty(t, records[1].AssignedStaff)
}

func TestOverdueFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.issue(domain.IssueStatusPending, 2, "waste")
	roads := f.issue(domain.IssueStatusPending, 5, "roads")
	f.issue(domain.IssueStatusPending, 9, "waste")

	high, err := f.issues.Overdue(ctx, OverdueQuery{Severity: sla.SeverityHigh})
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, roads.ID, high[0].Issue.ID)

	wasteOnly, err := f.issues.Overdue(ctx, OverdueQuery{Department: ptr("waste")})
	require.NoError(t, err)
	assert.Len(t, wasteOnly, 2)

	_, err = f.issues.Overdue(ctx, OverdueQuery{Severity: "apocalyptic"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestOverdueHonoursExplicitNow(t *testing.T) {
	f := newFixture(t)
	f.issue(domain.IssueStatusPending, -1, "")

	later, err := f.issues.Overdue(context.Background(), OverdueQuery{Now: baseTime.Add(48 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, 1, later[0].DaysOverdue)
}

func TestDeadlineView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fresh := f.issue(domain.IssueStatusPending, -1, "")
	late := f.issue(domain.IssueStatusPending, 4, "")

	view, err := f.issues.Deadline(ctx, fresh.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 24, view.SLAHours)
	assert.Equal(t, fresh.CreatedAt.Add(24*time.Hour), view.Deadline)
	assert.Equal(t, 24*time.Hour, view.Remaining)
	assert.Nil(t, view.Overdue)

	view, err = f.issues.Deadline(ctx, late.ID, baseTime)
	require.NoError(t, err)
	assert.Zero(t, view.Remaining)
	require.NotNil(t, view.Overdue)
	assert.Equal(t, sla.SeverityHigh, view.Overdue.Severity)

	_, err = f.issues.Deadline(ctx, "ghost", baseTime)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestUpdateStatusLeavesEscalationFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(domain.IssueStatusPending, 9, "")
	_, err := f.escalations.Escalate(ctx, admin, issue.ID, EscalateInput{Reason: "late"})
	require.NoError(t, err)

	got, err := f.issues.UpdateStatus(ctx, admin, issue.ID, domain.IssueStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusInProgress, got.Status)
	stored := f.reload(issue.ID)
	assert.True(t, stored.Escalated)
	assert.Equal(t, domain.IssueStatusInProgress, stored.Status)

	published := f.eventsOf(events.EventIssueStatusChanged)
	require.Len(t, published, 1)
	payload := published[0].Payload.(events.IssueStatusChangedPayload)
	assert.Equal(t, domain.IssueStatusPending, payload.OldStatus)
}

func TestUpdateStatusGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.staff("s-1", "waste", domain.RoleStaff, true)
	issue := f.issue(domain.IssueStatusPending, -1, "waste")

	_, err := f.issues.UpdateStatus(ctx, admin, issue.ID, domain.IssueStatus("archived"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.issues.UpdateStatus(ctx, fieldStaff("s-1"), issue.ID, domain.IssueStatusInProgress)
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))

	_, err = f.assignments.Assign(ctx, admin, AssignInput{IssueID: issue.ID, StaffID: "s-1"})
	require.NoError(t, err)
	_, err = f.issues.UpdateStatus(ctx, fieldStaff("s-1"), issue.ID, domain.IssueStatusInProgress)
	require.NoError(t, err)
}

func TestAddUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.staff("s-1", "waste", domain.RoleStaff, true)
	f.staff("s-roads", "roads", domain.RoleStaff, true)
	issue := f.issue(domain.IssueStatusPending, -1, "waste")

	_, err := f.issues.AddUpdate(ctx, fieldStaff("s-1"), issue.ID, "on site")
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"), "unassigned staff")

	_, err = f.issues.AddUpdate(ctx, admin, issue.ID, "  ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.assignments.Assign(ctx, admin, AssignInput{IssueID: issue.ID, StaffID: "s-1"})
	require.NoError(t, err)
	u, err := f.issues.AddUpdate(ctx, fieldStaff("s-1"), issue.ID, "on site")
	require.NoError(t, err)
	assert.Equal(t, "s-1", u.StaffID)

	// Supervisor from another department may post only while no one of theirs is assigned.
	_, err = f.issues.AddUpdate(ctx, roadsBoss, issue.ID, "checking")
	assert.True(t, apperrors.HasCode(err, "FORBIDDEN"))
	_, err = f.assignments.Assign(ctx, admin, AssignInput{IssueID: issue.ID, StaffID: "s-roads"})
	require.NoError(t, err)
	_, err = f.issues.AddUpdate(ctx, roadsBoss, issue.ID, "checking")
	require.NoError(t, err)

	updates, err := f.issues.Updates(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, updates, 2)
	assert.Len(t, f.eventsOf(events.EventIssueUpdateAdded), 2)
}

func TestBuildOverdueDigest(t *testing.T) {
	records := []sla.OverdueRecord{
		{Issue: domain.Issue{ID: "i-1", Department: ptr("waste")}, AssignedStaff: []string{"s-1", "s-2"}},
		{Issue: domain.Issue{ID: "i-2", Department: ptr("waste")}, AssignedStaff: []string{"s-1"}},
		{Issue: domain.Issue{ID: "i-3"}},
	}

	digest := BuildOverdueDigest(records)
	assert.Equal(t, 3, digest.Total)
	assert.Equal(t, []string{"i-1", "i-2"}, digest.ByStaff["s-1"])
	assert.Equal(t, []string{"i-1"}, digest.ByStaff["s-2"])
	assert.Equal(t, map[string]int{"waste": 2}, digest.ByDepartment)
}
