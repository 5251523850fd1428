package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// IssueUpdateRepository stores progress notes posted on issues.
type IssueUpdateRepository interface {
	Create(ctx context.Context, update *domain.IssueUpdate) error
	ListByIssue(ctx context.Context, issueID string) ([]domain.IssueUpdate, error)
}

type issueUpdateRepository struct {
	pool *pgxpool.Pool
}

// NewIssueUpdateRepository builds repository.
func NewIssueUpdateRepository(pool *pgxpool.Pool) IssueUpdateRepository {
	return &issueUpdateRepository{pool: pool}
}

func (r *issueUpdateRepository) Create(ctx context.Context, update *domain.IssueUpdate) error {
	const query = `
        INSERT INTO issue_updates (issue_id, staff_id, update_text)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		update.IssueID,
		update.StaffID,
		update.UpdateText,
	).Scan(&update.ID, &update.CreatedAt)
}

func (r *issueUpdateRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.IssueUpdate, error) {
	const query = `
        SELECT id, issue_id, staff_id, update_text, created_at
        FROM issue_updates WHERE issue_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IssueUpdate
	for rows.Next() {
		var u domain.IssueUpdate
		if err := rows.Scan(
			&u.ID,
			&u.IssueID,
			&u.StaffID,
			&u.UpdateText,
			&u.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
