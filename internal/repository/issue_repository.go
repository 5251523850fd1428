package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// IssueFilter narrows issue listings.
type IssueFilter struct {
	Department      *string
	Statuses        []domain.IssueStatus
	ExcludeResolved bool
	Escalated       *bool
	Limit           int
	Offset          int
}

// IssueRepository is the issue side of the data feed.
type IssueRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error)
	Update(ctx context.Context, id string, patch domain.IssuePatch) error
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

const issueColumns = `id, title, category, priority, status, escalated, escalated_to, department, upvotes, citizen_id, created_at, updated_at`

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1`
	issue, err := scanIssue(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return issue, nil
}

func (r *issueRepository) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ExcludeResolved {
		args = append(args, domain.IssueStatusResolved)
		clauses = append(clauses, fmt.Sprintf("status <> $%d", len(args)))
	}
	if filter.Escalated != nil {
		args = append(args, *filter.Escalated)
		clauses = append(clauses, fmt.Sprintf("escalated=$%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM issues WHERE %s ORDER BY created_at ASC`, issueColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *issue)
	}
	return result, rows.Err()
}

func (r *issueRepository) Update(ctx context.Context, id string, patch domain.IssuePatch) error {
	sets, args := issuePatchSets(patch)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE issues SET %s WHERE id=$%d`, strings.Join(sets, ", "), len(args))

	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// issuePatchSets renders the SET list for a patch. An empty patch yields no
// assignments; otherwise updated_at is always bumped.
func issuePatchSets(patch domain.IssuePatch) ([]string, []any) {
	sets := []string{}
	args := []any{}
	if patch.Status != nil {
		args = append(args, *patch.Status)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if patch.Escalated != nil {
		args = append(args, *patch.Escalated)
		sets = append(sets, fmt.Sprintf("escalated=$%d", len(args)))
	}
	if patch.EscalatedTo != nil {
		args = append(args, *patch.EscalatedTo)
		sets = append(sets, fmt.Sprintf("escalated_to=$%d", len(args)))
	}
	if len(sets) == 0 {
		return nil, nil
	}
	return append(sets, "updated_at=NOW()"), args
}

func scanIssue(row pgx.Row) (*domain.Issue, error) {
	var issue domain.Issue
	var category, priority string
	if err := row.Scan(
		&issue.ID,
		&issue.Title,
		&category,
		&priority,
		&issue.Status,
		&issue.Escalated,
		&issue.EscalatedTo,
		&issue.Department,
		&issue.Upvotes,
		&issue.CitizenID,
		&issue.CreatedAt,
		&issue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	issue.Category = domain.NormalizeCategory(category)
	issue.Priority = domain.NormalizePriority(priority)
	return &issue, nil
}
