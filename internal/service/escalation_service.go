package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sla-service/internal/config"
	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/events"
	"github.com/civic-desk/issue-sla-service/internal/observability"
	"github.com/civic-desk/issue-sla-service/internal/repository"
	"github.com/civic-desk/issue-sla-service/internal/sla"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

const autoEscalateLockKey = "auto-escalate"

// Locker provides cross-replica mutual exclusion for the auto-escalation sweep.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// EscalationService drives the Normal <-> Escalated state machine.
type EscalationService struct {
	issues     repository.IssueRepository
	updates    repository.IssueUpdateRepository
	log        repository.EscalationLogRepository
	classifier *sla.Classifier
	dispatcher events.Dispatcher
	locker     Locker
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.EscalationConfig
	now        Clock
}

// EscalationDependencies bundles repositories and collaborators.
type EscalationDependencies struct {
	IssueRepo  repository.IssueRepository
	UpdateRepo repository.IssueUpdateRepository
	LogRepo    repository.EscalationLogRepository
	Classifier *sla.Classifier
	Dispatcher events.Dispatcher
	// Locker is optional; without it concurrent sweeps are not coordinated.
	Locker  Locker
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Clock   Clock
}

// NewEscalationService creates the service.
func NewEscalationService(cfg config.EscalationConfig, deps EscalationDependencies) *EscalationService {
	svc := &EscalationService{
		issues:     deps.IssueRepo,
		updates:    deps.UpdateRepo,
		log:        deps.LogRepo,
		classifier: deps.Classifier,
		dispatcher: deps.Dispatcher,
		locker:     deps.Locker,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
		now:        deps.Clock,
	}
	if svc.classifier == nil {
		svc.classifier = sla.NewClassifier(nil)
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// EscalateInput carries a manual escalation request.
type EscalateInput struct {
	Target string
	Reason string
}

// AutoEscalateResult summarizes one bulk auto-escalation run.
type AutoEscalateResult struct {
	Scanned   int         `json:"scanned"`
	Escalated int         `json:"escalated"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	IssueIDs  []string    `json:"issue_ids"`
	Errors    []ItemError `json:"errors"`
}

// Escalate moves an issue from Normal to Escalated. Status is left untouched.
func (s *EscalationService) Escalate(ctx context.Context, actor domain.Actor, issueID string, in EscalateInput) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("escalation reason is required", map[string]any{"field": "reason"})
	}
	target := strings.TrimSpace(in.Target)
	if target == "" {
		target = s.cfg.DefaultTarget
	}
	if target == "" {
		return nil, apperrors.NewValidationError("escalation target is required", map[string]any{"field": "target"})
	}

	issue, err := loadIssue(ctx, s.issues, issueID)
	if err != nil {
		return nil, err
	}
	if err := s.escalate(ctx, actor, issue, target, reason, false); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *EscalationService) escalate(ctx context.Context, actor domain.Actor, issue *domain.Issue, target, reason string, automatic bool) error {
	if issue.Status == domain.IssueStatusResolved {
		return apperrors.NewPolicyError("cannot escalate a resolved issue", map[string]any{"issue_id": issue.ID})
	}
	if issue.Escalated {
		return apperrors.NewPolicyError("issue is already escalated", map[string]any{
			"issue_id":     issue.ID,
			"escalated_to": issue.EscalatedTo,
		})
	}

	targetPtr := ptr(target)
	patch := domain.IssuePatch{Escalated: ptr(true), EscalatedTo: &targetPtr}
	entry := &domain.EscalationLogEntry{
		IssueID:    issue.ID,
		Action:     domain.EscalationActionEscalated,
		Message:    fmt.Sprintf("Issue escalated to %s", target),
		Reason:     reason,
		Target:     ptr(target),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Department: issue.Department,
	}
	err := s.transition(ctx, repository.EscalationTransition{
		IssueID:     issue.ID,
		From:        false,
		RequireOpen: true,
		Patch:       patch,
		Entry:       entry,
	}, "issue is already escalated or resolved")
	if err != nil {
		return err
	}
	patch.Apply(issue)

	s.addNote(ctx, actor, issue.ID, fmt.Sprintf("Escalated to %s. Reason: %s", target, reason))
	s.metrics.RecordEscalation(string(domain.EscalationActionEscalated), automatic)
	publish(ctx, s.dispatcher, events.EventIssueEscalated, issue.ID, actor, s.now(), events.IssueEscalatedPayload{
		Target:     target,
		Reason:     reason,
		Department: issue.Department,
		Automatic:  automatic,
	})
	s.logger.Info("issue escalated",
		zap.String("issue_id", issue.ID),
		zap.String("target", target),
		zap.String("actor_id", actor.ID),
		zap.Bool("automatic", automatic))
	return nil
}

// ResolveEscalation moves an issue from Escalated back to Normal. An issue
// whose status is escalated is returned to in_progress.
func (s *EscalationService) ResolveEscalation(ctx context.Context, actor domain.Actor, issueID, note string) (*domain.Issue, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	issue, err := loadIssue(ctx, s.issues, issueID)
	if err != nil {
		return nil, err
	}
	if !issue.Escalated {
		return nil, apperrors.NewPolicyError("issue is not escalated", map[string]any{"issue_id": issue.ID})
	}

	previousTarget := issue.EscalatedTo
	var cleared *string
	patch := domain.IssuePatch{Escalated: ptr(false), EscalatedTo: &cleared}
	if issue.Status == domain.IssueStatusEscalated {
		patch.Status = ptr(domain.IssueStatusInProgress)
	}

	note = strings.TrimSpace(note)
	entry := &domain.EscalationLogEntry{
		IssueID:    issue.ID,
		Action:     domain.EscalationActionDeEscalated,
		Message:    "Escalation resolved",
		Reason:     note,
		Target:     previousTarget,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Department: issue.Department,
	}
	err = s.transition(ctx, repository.EscalationTransition{
		IssueID: issue.ID,
		From:    true,
		Patch:   patch,
		Entry:   entry,
	}, "issue is not escalated")
	if err != nil {
		return nil, err
	}
	patch.Apply(issue)

	text := "Escalation resolved"
	if note != "" {
		text += ": " + note
	}
	s.addNote(ctx, actor, issue.ID, text)
	s.metrics.RecordEscalation(string(domain.EscalationActionDeEscalated), false)
	publish(ctx, s.dispatcher, events.EventEscalationResolved, issue.ID, actor, s.now(), events.EscalationResolvedPayload{
		PreviousTarget: previousTarget,
		NewStatus:      issue.Status,
		Note:           note,
	})
	s.logger.Info("escalation resolved", zap.String("issue_id", issue.ID), zap.String("actor_id", actor.ID))
	return issue, nil
}

// AutoEscalate escalates every unresolved, not yet escalated issue whose
// overdue severity is critical. Items fail independently.
func (s *EscalationService) AutoEscalate(ctx context.Context, actor domain.Actor) (*AutoEscalateResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, autoEscalateLockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire auto-escalation lock: %w", err)
		}
		if !ok {
			return nil, apperrors.NewPolicyError("auto-escalation is already running", nil)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release auto-escalation lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	candidates, err := s.issues.List(ctx, repository.IssueFilter{
		ExcludeResolved: true,
		Escalated:       ptr(false),
	})
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}

	now := s.now()
	result := &AutoEscalateResult{Scanned: len(candidates), IssueIDs: []string{}, Errors: []ItemError{}}
	for _, record := range s.classifier.ClassifyAll(candidates, now) {
		if record.Severity != sla.SeverityCritical {
			continue
		}
		issue := record.Issue
		reason := fmt.Sprintf("Automatically escalated: %d days overdue (critical)", record.DaysOverdue)
		if err := s.escalate(ctx, actor, &issue, s.cfg.DefaultTarget, reason, true); err != nil {
			if apperrors.HasCode(err, apperrors.CodePolicy) {
				// Escalated or resolved since the listing.
				continue
			}
			result.Failed++
			result.Errors = append(result.Errors, newItemError(issue.ID, err))
			s.logger.Warn("auto-escalation failed", zap.String("issue_id", issue.ID), zap.Error(err))
			continue
		}
		result.Escalated++
		result.IssueIDs = append(result.IssueIDs, issue.ID)
	}
	result.Skipped = result.Scanned - result.Escalated - result.Failed

	publish(ctx, s.dispatcher, events.EventAutoEscalateFinished, "", actor, now, events.AutoEscalateFinishedPayload{
		Scanned:   result.Scanned,
		Escalated: result.Escalated,
		Skipped:   result.Skipped,
		Failed:    result.Failed,
	})
	s.logger.Info("auto-escalation finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed))
	return result, nil
}

// History returns the audit trail of one issue, oldest first.
func (s *EscalationService) History(ctx context.Context, issueID string) ([]domain.EscalationLogEntry, error) {
	if _, err := loadIssue(ctx, s.issues, issueID); err != nil {
		return nil, err
	}
	entries, err := s.log.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, fmt.Errorf("list escalation log: %w", err)
	}
	return entries, nil
}

// Recent returns the newest audit entries across all issues.
func (s *EscalationService) Recent(ctx context.Context, limit int) ([]domain.EscalationLogEntry, error) {
	entries, err := s.log.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list escalation log: %w", err)
	}
	return entries, nil
}

// transition commits the flag change and its audit entry together. A lost
// race surfaces as a policy violation carrying conflict.
func (s *EscalationService) transition(ctx context.Context, t repository.EscalationTransition, conflict string) error {
	err := s.log.Transition(ctx, t)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrStaleTransition):
		return apperrors.NewPolicyError(conflict, map[string]any{"issue_id": t.IssueID})
	case apperrors.IsNoRows(err):
		return apperrors.NewNotFound("issue", map[string]any{"issue_id": t.IssueID})
	default:
		return fmt.Errorf("record escalation transition for issue %s: %w", t.IssueID, err)
	}
}

// addNote records the transition on the issue timeline. The audit log is
// the system of record, so a failure here is only logged.
func (s *EscalationService) addNote(ctx context.Context, actor domain.Actor, issueID, text string) {
	if s.updates == nil {
		return
	}
	if err := s.updates.Create(ctx, &domain.IssueUpdate{IssueID: issueID, StaffID: actor.ID, UpdateText: text}); err != nil {
		s.logger.Warn("record escalation note", zap.String("issue_id", issueID), zap.Error(err))
	}
}
