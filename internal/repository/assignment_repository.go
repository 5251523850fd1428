package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// AssignmentRepository persists assignment records. Records are appended,
// and only their status and notes ever change.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *domain.Assignment) error
	GetByID(ctx context.Context, id string) (*domain.Assignment, error)
	UpdateStatus(ctx context.Context, id string, status domain.AssignmentStatus, notes *string) error
	ListByIssue(ctx context.Context, issueID string) ([]domain.Assignment, error)
	ListActiveByIssue(ctx context.Context, issueID string) ([]domain.Assignment, error)
	// List returns one page, newest first, and the total number of matches.
	List(ctx context.Context, filter AssignmentFilter) ([]domain.Assignment, int, error)
}

// AssignmentFilter narrows assignment listings. Department matches the
// assignee's department. All set fields must match.
type AssignmentFilter struct {
	StaffID    *string
	Department *string
	IssueID    *string
	Status     *domain.AssignmentStatus
	Limit      int
	Offset     int
}

type assignmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssignmentRepository builds repository.
func NewAssignmentRepository(pool *pgxpool.Pool) AssignmentRepository {
	return &assignmentRepository{pool: pool}
}

const assignmentColumns = `id, issue_id, staff_id, status, notes, assigned_by, assigned_at, updated_at`

func (r *assignmentRepository) Create(ctx context.Context, a *domain.Assignment) error {
	const query = `
        INSERT INTO issue_assignments (issue_id, staff_id, status, notes, assigned_by)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, assigned_at, updated_at`
	if a.Status == "" {
		a.Status = domain.AssignmentAssigned
	}
	return r.pool.QueryRow(ctx, query,
		a.IssueID,
		a.StaffID,
		a.Status,
		a.Notes,
		a.AssignedBy,
	).Scan(&a.ID, &a.AssignedAt, &a.UpdatedAt)
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM issue_assignments WHERE id=$1`
	var a domain.Assignment
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.IssueID, &a.StaffID, &a.Status, &a.Notes, &a.AssignedBy, &a.AssignedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepository) UpdateStatus(ctx context.Context, id string, status domain.AssignmentStatus, notes *string) error {
	const query = `
        UPDATE issue_assignments SET status=$1, notes=COALESCE($2, notes), updated_at=NOW()
        WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, status, notes, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *assignmentRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM issue_assignments WHERE issue_id=$1 ORDER BY assigned_at ASC`
	return r.list(ctx, query, issueID)
}

func (r *assignmentRepository) ListActiveByIssue(ctx context.Context, issueID string) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM issue_assignments
        WHERE issue_id=$1 AND status IN ('assigned','in_progress') ORDER BY assigned_at ASC`
	return r.list(ctx, query, issueID)
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]domain.Assignment, int, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.StaffID != nil {
		args = append(args, *filter.StaffID)
		clauses = append(clauses, fmt.Sprintf("staff_id=$%d", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("staff_id IN (SELECT id FROM staff_members WHERE department=$%d)", len(args)))
	}
	if filter.IssueID != nil {
		args = append(args, *filter.IssueID)
		clauses = append(clauses, fmt.Sprintf("issue_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issue_assignments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM issue_assignments WHERE %s ORDER BY assigned_at DESC`, assignmentColumns, where)
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, offset)
	}
	result, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *assignmentRepository) list(ctx context.Context, query string, args ...any) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Assignment
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(
			&a.ID, &a.IssueID, &a.StaffID, &a.Status, &a.Notes, &a.AssignedBy, &a.AssignedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
