package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/events"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

func TestEscalateAppendsExactlyOneLogEntry(t *testing.T) {
	f := newFixture(t)
	issue := f.issue(domain.IssueStatusInProgress, 2, "waste")

	got, err := f.escalations.Escalate(context.Background(), wasteBoss, issue.ID, EscalateInput{
		Target: "public works director",
		Reason: "blocking school route",
	})
	require.NoError(t, err)
	assert.True(t, got.Escalated)

	stored := f.reload(issue.ID)
	assert.True(t, stored.Escalated)
	require.NotNil(t, stored.EscalatedTo)
	assert.Equal(t, "public works director", *stored.EscalatedTo)
	assert.Equal(t, domain.IssueStatusInProgress, stored.Status, "status is independent of the escalation flag")

	entries := f.logFor(issue.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EscalationActionEscalated, entries[0].Action)
	assert.Equal(t, "blocking school route", entries[0].Reason)
	assert.Equal(t, wasteBoss.ID, entries[0].ActorID)
	assert.Equal(t, domain.RoleSupervisor, entries[0].ActorRole)
	require.NotNil(t, entries[0].Department)
	assert.Equal(t, "waste", *entries[0].Department)
	assert.False(t, entries[0].CreatedAt.IsZero())

	notes, err := f.store.Updates.ListByIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].UpdateText, "public works director")

	published := f.eventsOf(events.EventIssueEscalated)
	require.Len(t, published, 1)
	assert.Equal(t, issue.ID, published[0].IssueID)
}

func TestEscalateRejectsAlreadyEscalated(t *testing.T) {
	f := newFixture(t)
	issue := f.issue(domain.IssueStatusPending, 1, "waste")
	ctx := context.Background()

	_, err := f.escalations.Escalate(ctx, admin, issue.ID, EscalateInput{Reason: "first"})
	require.NoError(t, err)

	_, err = f.escalations.Escalate(ctx, admin, issue.ID, EscalateInput{Reason: "second"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePolicy))
	assert.Len(t, f.logFor(issue.ID), 1)
}

func TestEscalateRequiresReason(t *testing.T) {
	f := newFixture(t)
	issue := f.issue(domain.IssueStatusPending, 1, "")

	_, err := f.escalations.Escalate(context.Background(), admin, issue.ID, EscalateInput{Target: "mayor", Reason: "   "})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.False(t, f.reload(issue.ID).Escalated)
	assert.Empty(t, f.logFor(issue.ID))
}

func TestEscalateDefaultsTarget(t *testing.T) {
	f := newFixture(t)
	issue := f.issue(domain.IssueStatusPending, 1, "")

	_, err := f.escalations.Escalate(context.Background(), admin, issue.ID, EscalateInput{Reason: "no response"})
	require.NoError(t, err)
	stored := f.reload(issue.ID)
	require.NotNil(t, stored.EscalatedTo)
	assert.Equal(t, "supervisor", *stored.EscalatedTo)
}

func TestEscalateRejectsResolvedAndMissingIssues(t *testing.T) {
	f := newFixture(t)
	resolved := f.issue(domain.IssueStatusResolved, 10, "")
	ctx := context.Background()

	_, err := f.escalations.Escalate(ctx, admin, resolved.ID, EscalateInput{Reason: "late"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodePolicy))

	_, err = f.escalations.Escalate(ctx, admin, "missing", EscalateInput{Reason: "late"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestEscalateSurfacesCollaboratorErrors(t *testing.T) {
	feedDown := errors.New("feed unavailable")
	f := newFixture(t, withFailingIssueReads(feedDown))
	issue := f.issue(domain.IssueStatusPending, 1, "")

	_, err := f.escalations.Escalate(context.Background(), admin, issue.ID, EscalateInput{Reason: "late"})
	require.Error(t, err)
	assert.ErrorIs(t, err, feedDown)
	assert.False(t, f.reload(issue.ID).Escalated)
	assert.Empty(t, f.logFor(issue.ID))
	assert.Empty(t, f.eventsOf(events.EventIssueEscalated))
}

func TestEscalateReportsAuditLogFailure(t *testing.T) {
	logDown := errors.New("audit log unavailable")
	f := newFixture(t, withFailingAuditLog(logDown))
	issue := f.issue(domain.IssueStatusPending, 1, "")

	_, err := f.escalations.Escalate(context.Background(), admin, issue.ID, EscalateInput{Reason: "late"})
	require.Error(t, err)
	assert.ErrorIs(t, err, logDown)
	assert.False(t, f.reload(issue.ID).Escalated, "flag must not be committed without its log entry")
	assert.Nil(t, f.reload(issue.ID).EscalatedTo)
	assert.Empty(t, f.logFor(issue.ID))
	assert.Empty(t, f.eventsOf(events.EventIssueEscalated))
}

func TestResolveEscalationReportsAuditLogFailure(t *testing.T) {
	logDown := errors.New("audit log unavailable")
	f := newFixture(t, withFailingAuditLog(logDown))
	issue := f.escalatedIssue(domain.IssueStatusEscalated)

	_, err := f.escalations.ResolveEscalation(context.Background(), admin, issue.ID, "done")
	require.ErrorIs(t, err, logDown)
	stored := f.reload(issue.ID)
	assert.True(t, stored.Escalated)
	assert.Equal(t, domain.IssueStatusEscalated, stored.Status)
	assert.Empty(t, f.logFor(issue.ID))
	assert.Empty(t, f.eventsOf(events.EventEscalationResolved))
}

func TestEscalateConcurrentCallsLogOnce(t *testing.T) {
	f := newFixture(t, withReadBarrier(2))
	issue := f.issue(domain.IssueStatusPending, 2, "waste")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.escalations.Escalate(context.Background(), admin, issue.ID, EscalateInput{
				Target: fmt.Sprintf("desk-%d", i),
				Reason: "double click",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.HasCode(err, apperrors.CodePolicy), "loser should see a policy violation, got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, f.reload(issue.ID).Escalated)
	assert.Len(t, f.logFor(issue.ID), 1)
	assert.Len(t, f.eventsOf(events.EventIssueEscalated), 1)
}

func TestResolveEscalationConcurrentCallsLogOnce(t *testing.T) {
	f := newFixture(t, withReadBarrier(2))
	issue := f.escalatedIssue(domain.IssueStatusEscalated)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.escalations.ResolveEscalation(context.Background(), admin, issue.ID, "")
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			assert.True(t, apperrors.HasCode(err, apperrors.CodePolicy))
		}
	}
	assert.Equal(t, 1, failed)
	assert.False(t, f.reload(issue.ID).Escalated)
	assert.Len(t, f.logFor(issue.ID), 1)
}

func TestResolveEscalationRevertsStatus(t *testing.T) {
	f := newFixture(t)
	issue := f.issue(domain.IssueStatusEscalated, 3, "waste")
	ctx := context.Background()

	_, err := f.escalations.Escalate(ctx, admin, issue.ID, EscalateInput{Target: "director", Reason: "stalled"})
	require.NoError(t, err)

	got, err := f.escalations.ResolveEscalation(ctx, wasteBoss, issue.ID, "crew dispatched")
	require.NoError(t, err)
	assert.False(t, got.Escalated)
	assert.Nil(t, got.EscalatedTo)
	assert.Equal(t, domain.IssueStatusInProgress, got.Status)

	stored := f.reload(issue.ID)
	assert.False(t, stored.Escalated)
	assert.Nil(t, stored.EscalatedTo)
	assert.Equal(t, domain.IssueStatusInProgress, stored.Status)

	entries := f.logFor(issue.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EscalationActionDeEscalated, entries[1].Action)
	assert.Equal(t, "crew dispatched", entries[1].Reason)
	require.NotNil(t, entries[1].Target)
	assert.Equal(t, "director", *entries[1].Target)
	assert.Len(t, f.eventsOf(events.EventEscalationResolved), 1)
}

func TestResolveEscalationKeepsOtherStatuses(t *testing.T) {
	f := newFixture(t)
	issue := f.issue(domain.IssueStatusPending, 3, "")
	ctx := context.Background()

	_, err := f.escalations.Escalate(ctx, admin, issue.ID, EscalateInput{Reason: "stalled"})
	require.NoError(t, err)
	got, err := f.escalations.ResolveEscalation(ctx, admin, issue.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.IssueStatusPending, got.Status)
}

func TestResolveEscalationRequiresEscalatedIssue(t *testing.T) {
	f := newFixture(t)
	issue := f.issue(domain.IssueStatusInProgress, 1, "")

	_, err := f.escalations.ResolveEscalation(context.Background(), admin, issue.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodePolicy))
	assert.Empty(t, f.logFor(issue.ID))
}

func TestAutoEscalateOnlyTouchesCriticalUnescalated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	critical := f.issue(domain.IssueStatusPending, 9, "waste")
	criticalInProgress := f.issue(domain.IssueStatusInProgress, 8, "waste")
	high := f.issue(domain.IssueStatusPending, 5, "waste")
	fresh := f.issue(domain.IssueStatusPending, -1, "waste")
	resolved := f.issue(domain.IssueStatusResolved, 20, "waste")
	already := f.issue(domain.IssueStatusPending, 12, "waste")
	_, err := f.escalations.Escalate(ctx, admin, already.ID, EscalateInput{Reason: "manual"})
	require.NoError(t, err)

	first, err := f.escalations.AutoEscalate(ctx, domain.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Scanned)
	assert.Equal(t, 2, first.Escalated)
	assert.Equal(t, 2, first.Skipped)
	assert.Zero(t, first.Failed)
	assert.ElementsMatch(t, []string{critical.ID, criticalInProgress.ID}, first.IssueIDs)

	assert.True(t, f.reload(critical.ID).Escalated)
	assert.Equal(t, domain.IssueStatusInProgress, f.reload(criticalInProgress.ID).Status)
	assert.False(t, f.reload(high.ID).Escalated)
	assert.False(t, f.reload(fresh.ID).Escalated)
	assert.False(t, f.reload(resolved.ID).Escalated)
	assert.Len(t, f.logFor(already.ID), 1)
	assert.Len(t, f.logFor(critical.ID), 1)
	assert.Equal(t, domain.SystemActor.ID, f.logFor(critical.ID)[0].ActorID)

	second, err := f.escalations.AutoEscalate(ctx, domain.SystemActor)
	require.NoError(t, err)
	assert.Zero(t, second.Escalated)
	assert.Zero(t, second.Failed)
	assert.Equal(t, 2, second.Scanned)
	assert.Len(t, f.logFor(critical.ID), 1)
	assert.Len(t, f.eventsOf(events.EventAutoEscalateFinished), 2)
}

func TestAutoEscalateHonoursSweepLock(t *testing.T) {
	busy := &fakeLocker{ok: false}
	f := newFixture(t, withLocker(busy))
	issue := f.issue(domain.IssueStatusPending, 9, "")

	_, err := f.escalations.AutoEscalate(context.Background(), domain.SystemActor)
	assert.True(t, apperrors.HasCode(err, apperrors.CodePolicy))
	assert.False(t, f.reload(issue.ID).Escalated)
	assert.Zero(t, busy.released)

	free := &fakeLocker{ok: true}
	f = newFixture(t, withLocker(free))
	f.issue(domain.IssueStatusPending, 9, "")
	result, err := f.escalations.AutoEscalate(context.Background(), domain.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)
	assert.Equal(t, 1, free.released)

	broken := &fakeLocker{err: errors.New("redis down")}
	f = newFixture(t, withLocker(broken))
	_, err = f.escalations.AutoEscalate(context.Background(), domain.SystemActor)
	assert.Error(t, err)
}

func TestHistoryAndRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.issue(domain.IssueStatusPending, 1, "")
	b := f.issue(domain.IssueStatusPending, 1, "")

	_, err := f.escalations.Escalate(ctx, admin, a.ID, EscalateInput{Reason: "a"})
	require.NoError(t, err)
	_, err = f.escalations.Escalate(ctx, admin, b.ID, EscalateInput{Reason: "b"})
	require.NoError(t, err)
	_, err = f.escalations.ResolveEscalation(ctx, admin, a.ID, "done")
	require.NoError(t, err)

	history, err := f.escalations.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.EscalationActionEscalated, history[0].Action)

	recent, err := f.escalations.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, a.ID, recent[0].IssueID)
	assert.Equal(t, domain.EscalationActionDeEscalated, recent[0].Action)
	assert.Equal(t, b.ID, recent[1].IssueID)

	_, err = f.escalations.History(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
