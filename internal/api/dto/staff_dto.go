package dto

import (
	"time"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffResponse is the public view of an operator.
type StaffResponse struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	Department *string     `json:"department"`
	Active     bool        `json:"active"`
}

// WorkloadResponse is one row of the workload distribution.
type WorkloadResponse struct {
	StaffID               string  `json:"staff_id"`
	Name                  string  `json:"name"`
	Department            *string `json:"department"`
	ActiveAssignments     int     `json:"active_assignments"`
	InProgressAssignments int     `json:"in_progress_assignments"`
	TotalAssignments      int     `json:"total_assignments"`
	CompletedAssignments  int     `json:"completed_assignments"`
	CompletionRate        float64 `json:"completion_rate"`
}

// WorkloadReportResponse summarizes staff load.
type WorkloadReportResponse struct {
	Department             *string            `json:"department,omitempty"`
	TotalStaff             int                `json:"total_staff"`
	TotalActiveAssignments int                `json:"total_active_assignments"`
	AverageWorkload        float64            `json:"avg_workload"`
	Distribution           []WorkloadResponse `json:"workload_distribution"`
}

// AssignmentStatsResponse counts assignments by status.
type AssignmentStatsResponse struct {
	TotalAssignments int `json:"total_assignments"`
	Assigned         int `json:"assigned"`
	InProgress       int `json:"in_progress"`
	Completed        int `json:"completed"`
}

// DepartmentStatsResponse is the per-department assignment summary.
type DepartmentStatsResponse struct {
	Department      *string                 `json:"department,omitempty"`
	TotalStaff      int                     `json:"total_staff"`
	AssignmentStats AssignmentStatsResponse `json:"assignment_stats"`
	StaffWorkload   []WorkloadResponse      `json:"staff_workload"`
}
