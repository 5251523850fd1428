package repository

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// StaffRepository reads staff profiles and their aggregated workload.
type StaffRepository interface {
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error)
	ListWorkloads(ctx context.Context, filter WorkloadFilter) ([]domain.StaffWorkload, error)
}

// WorkloadFilter narrows the staff pool.
type WorkloadFilter struct {
	Department *string
	ActiveOnly bool
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

const staffColumns = `id, name, email, password_hash, role, department, active_flag, created_at, updated_at`

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	return r.fetchSingle(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE id=$1`, id)
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	return r.fetchSingle(ctx, `SELECT `+staffColumns+` FROM staff_members WHERE LOWER(email)=LOWER($1)`, email)
}

func (r *staffRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	var role string
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.PasswordHash,
		&role,
		&staff.Department,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("staff %s: %w", staff.ID, err)
	}
	staff.Role = parsed
	return &staff, nil
}

// ListWorkloads aggregates assignment counts per staff member with role staff.
func (r *staffRepository) ListWorkloads(ctx context.Context, filter WorkloadFilter) ([]domain.StaffWorkload, error) {
	clauses := []string{"s.role = 'staff'"}
	args := []any{}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("s.department=$%d", len(args)))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "s.active_flag = TRUE")
	}

	query := fmt.Sprintf(`
        SELECT s.id, s.name, s.department,
               COUNT(a.id) FILTER (WHERE a.status IN ('assigned','in_progress')) AS active,
               COUNT(a.id) FILTER (WHERE a.status = 'in_progress') AS in_progress,
               COUNT(a.id) AS total,
               COUNT(a.id) FILTER (WHERE a.status = 'completed') AS completed
        FROM staff_members s
        LEFT JOIN issue_assignments a ON a.staff_id = s.id
        WHERE %s
        GROUP BY s.id, s.name, s.department
        ORDER BY s.id`, strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffWorkload
	for rows.Next() {
		var w domain.StaffWorkload
		if err := rows.Scan(&w.StaffID, &w.Name, &w.Department, &w.ActiveAssignments, &w.InProgressAssignments, &w.TotalAssignments, &w.CompletedAssignments); err != nil {
			return nil, err
		}
		w.CompletionRate = CompletionRate(w.CompletedAssignments, w.TotalAssignments)
		result = append(result, w)
	}
	return result, rows.Err()
}

// CompletionRate returns completed/total as a percentage with one decimal.
func CompletionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*1000) / 10
}
