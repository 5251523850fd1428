package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civic-desk/issue-sla-service/internal/domain"
	"github.com/civic-desk/issue-sla-service/internal/events"
	"github.com/civic-desk/issue-sla-service/internal/repository"
	apperrors "github.com/civic-desk/issue-sla-service/pkg/util/errorutil"
)

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

// ItemError describes the failure of one item of a best-effort batch.
type ItemError struct {
	IssueID string `json:"issue_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newItemError(issueID string, err error) ItemError {
	code := apperrors.CodeInternal
	if de := apperrors.ToDomainError(err); de != nil {
		code = de.Code
	}
	return ItemError{IssueID: issueID, Code: code, Message: err.Error()}
}

func loadIssue(ctx context.Context, issues repository.IssueRepository, issueID string) (*domain.Issue, error) {
	if strings.TrimSpace(issueID) == "" {
		return nil, apperrors.NewValidationError("issue id is required", nil)
	}
	issue, err := issues.GetByID(ctx, issueID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("issue", map[string]any{"issue_id": issueID})
		}
		return nil, fmt.Errorf("load issue %s: %w", issueID, err)
	}
	return issue, nil
}

func loadStaff(ctx context.Context, staff repository.StaffRepository, staffID string) (*domain.StaffMember, error) {
	member, err := staff.GetByID(ctx, staffID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("staff", map[string]any{"staff_id": staffID})
		}
		return nil, fmt.Errorf("load staff %s: %w", staffID, err)
	}
	return member, nil
}

func publish(ctx context.Context, dispatcher events.Dispatcher, eventType events.EventType, issueID string, actor domain.Actor, at time.Time, payload any) {
	if dispatcher == nil {
		return
	}
	_ = dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		IssueID:   issueID,
		Actor:     events.ActorFrom(actor),
		Timestamp: at,
		Payload:   payload,
	})
}

func requireActor(actor domain.Actor) error {
	if actor.ID == "" {
		return apperrors.NewUnauthorized("actor required")
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
