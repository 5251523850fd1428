package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sla-service/internal/config"
	"github.com/civic-desk/issue-sla-service/internal/events"
	"github.com/civic-desk/issue-sla-service/internal/sla"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIssueEscalated, n.handleIssueEscalated)
	n.dispatcher.Subscribe(events.EventEscalationResolved, n.handleEscalationResolved)
	n.dispatcher.Subscribe(events.EventIssueAssigned, n.handleIssueAssigned)
	n.dispatcher.Subscribe(events.EventIssueStatusChanged, n.handleIssueStatusChanged)
	n.dispatcher.Subscribe(events.EventIssueUpdateAdded, n.handleIssueUpdateAdded)
}

func (n *NotificationService) handleIssueEscalated(ctx context.Context, event events.Event) error {
	n.logger.Info("IssueEscalated", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, string(event.Type), event.IssueID)
	n.sendWebhookNotificationStub(ctx, string(event.Type), event.IssueID)
	return nil
}

func (n *NotificationService) handleEscalationResolved(ctx context.Context, event events.Event) error {
	n.logger.Info("EscalationResolved", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, string(event.Type), event.IssueID)
	return nil
}

func (n *NotificationService) handleIssueAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("IssueAssigned", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, string(event.Type), event.IssueID)
	return nil
}

func (n *NotificationService) handleIssueStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("IssueStatusChanged", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, string(event.Type), event.IssueID)
	return nil
}

func (n *NotificationService) handleIssueUpdateAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("IssueUpdateAdded", zap.String("issue_id", event.IssueID), zap.Any("payload", event.Payload))
	return nil
}

// OverdueDigest groups overdue issues for the people who should hear about them.
type OverdueDigest struct {
	// ByStaff maps an assignee to the ids of their overdue issues.
	ByStaff map[string][]string
	// ByDepartment counts overdue issues per department.
	ByDepartment map[string]int
	Total        int
}

// BuildOverdueDigest groups records per assignee and per department.
// Issues without a department are not counted per department.
func BuildOverdueDigest(records []sla.OverdueRecord) OverdueDigest {
	digest := OverdueDigest{
		ByStaff:      make(map[string][]string),
		ByDepartment: make(map[string]int),
		Total:        len(records),
	}
	for _, r := range records {
		for _, staffID := range r.AssignedStaff {
			digest.ByStaff[staffID] = append(digest.ByStaff[staffID], r.Issue.ID)
		}
		if r.Issue.Department != nil && *r.Issue.Department != "" {
			digest.ByDepartment[*r.Issue.Department]++
		}
	}
	return digest
}

// NotifyOverdue sends one message per assignee and one per department.
func (n *NotificationService) NotifyOverdue(ctx context.Context, records []sla.OverdueRecord) OverdueDigest {
	digest := BuildOverdueDigest(records)
	if digest.Total == 0 {
		return digest
	}
	n.logger.Info("overdue issues", zap.Int("count", digest.Total))

	staffIDs := make([]string, 0, len(digest.ByStaff))
	for id := range digest.ByStaff {
		staffIDs = append(staffIDs, id)
	}
	sort.Strings(staffIDs)
	for _, id := range staffIDs {
		issues := digest.ByStaff[id]
		n.logger.Info("overdue digest for staff",
			zap.String("staff_id", id),
			zap.Int("overdue_count", len(issues)),
			zap.String("issues", strings.Join(issues, ",")))
		n.sendEmailNotificationStub(ctx, "overdue_issues", id)
	}
	for dept, count := range digest.ByDepartment {
		n.logger.Info("overdue digest for department", zap.String("department", dept), zap.Int("overdue_count", count))
		n.sendWebhookNotificationStub(ctx, "department_overdue", dept)
	}
	return digest
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, kind, subject string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("subject", subject),
		zap.String("kind", kind))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, kind, subject string) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("subject", subject),
		zap.String("kind", kind))
}
