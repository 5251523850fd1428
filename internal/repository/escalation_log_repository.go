package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// ErrStaleTransition reports that the issue is no longer in the escalation
// state a transition expected, usually because another caller got there first.
var ErrStaleTransition = errors.New("issue escalation state changed")

// EscalationTransition flips the escalation state of one issue and records
// the matching audit entry. Both happen or neither does, and only while the
// issue's escalated flag still equals From.
type EscalationTransition struct {
	IssueID string
	From    bool
	// RequireOpen additionally refuses resolved issues.
	RequireOpen bool
	Patch       domain.IssuePatch
	Entry       *domain.EscalationLogEntry
}

// EscalationLogRepository is the append-only escalation audit log.
// There is no update or delete.
type EscalationLogRepository interface {
	Append(ctx context.Context, entry *domain.EscalationLogEntry) error
	// Transition returns pgx.ErrNoRows for an unknown issue and
	// ErrStaleTransition when the guard no longer holds.
	Transition(ctx context.Context, t EscalationTransition) error
	ListByIssue(ctx context.Context, issueID string) ([]domain.EscalationLogEntry, error)
	ListRecent(ctx context.Context, limit int) ([]domain.EscalationLogEntry, error)
}

type escalationLogRepository struct {
	pool *pgxpool.Pool
}

// NewEscalationLogRepository builds repository.
func NewEscalationLogRepository(pool *pgxpool.Pool) EscalationLogRepository {
	return &escalationLogRepository{pool: pool}
}

const escalationLogColumns = `id, issue_id, action, message, reason, target, actor_id, actor_role, department, created_at`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *escalationLogRepository) Append(ctx context.Context, entry *domain.EscalationLogEntry) error {
	return insertEscalationLog(ctx, r.pool, entry)
}

func insertEscalationLog(ctx context.Context, q rowQuerier, entry *domain.EscalationLogEntry) error {
	const query = `
        INSERT INTO escalation_log (issue_id, action, message, reason, target, actor_id, actor_role, department)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return q.QueryRow(ctx, query,
		entry.IssueID,
		entry.Action,
		entry.Message,
		entry.Reason,
		entry.Target,
		entry.ActorID,
		entry.ActorRole,
		entry.Department,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *escalationLogRepository) Transition(ctx context.Context, t EscalationTransition) error {
	sets, args := issuePatchSets(t.Patch)
	if len(sets) == 0 || t.Entry == nil {
		return fmt.Errorf("escalation transition for issue %s needs a patch and a log entry", t.IssueID)
	}
	args = append(args, t.IssueID)
	where := fmt.Sprintf("id=$%d", len(args))
	args = append(args, t.From)
	where += fmt.Sprintf(" AND escalated=$%d", len(args))
	if t.RequireOpen {
		args = append(args, domain.IssueStatusResolved)
		where += fmt.Sprintf(" AND status <> $%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE issues SET %s WHERE %s`, strings.Join(sets, ", "), where)

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM issues WHERE id=$1)`, t.IssueID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return pgx.ErrNoRows
			}
			return ErrStaleTransition
		}
		return insertEscalationLog(ctx, tx, t.Entry)
	})
}

func (r *escalationLogRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.EscalationLogEntry, error) {
	query := `SELECT ` + escalationLogColumns + ` FROM escalation_log WHERE issue_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalationLog(rows)
}

func (r *escalationLogRepository) ListRecent(ctx context.Context, limit int) ([]domain.EscalationLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + escalationLogColumns + ` FROM escalation_log ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalationLog(rows)
}

func scanEscalationLog(rows pgx.Rows) ([]domain.EscalationLogEntry, error) {
	var result []domain.EscalationLogEntry
	for rows.Next() {
		var entry domain.EscalationLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.IssueID,
			&entry.Action,
			&entry.Message,
			&entry.Reason,
			&entry.Target,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.Department,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
