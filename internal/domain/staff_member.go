package domain

import "time"

// StaffMember models a municipal operator: field staff, supervisor or administrator.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Department   *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StaffWorkload aggregates a staff member's assignments.
type StaffWorkload struct {
	StaffID               string
	Name                  string
	Department            *string
	ActiveAssignments     int
	InProgressAssignments int
	TotalAssignments      int
	CompletedAssignments  int
	// CompletionRate is a percentage rounded to one decimal.
	CompletionRate float64
}

// SameDepartment reports whether both pointers name the same department.
func SameDepartment(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
