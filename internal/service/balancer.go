package service

import (
	"math"
	"sort"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// Candidate is one ranked entry of a staff pool for a pending issue.
type Candidate struct {
	StaffID           string  `json:"staff_id"`
	Name              string  `json:"name"`
	Department        *string `json:"department,omitempty"`
	ActiveAssignments int     `json:"active_assignments"`
	CompletionRate    float64 `json:"completion_rate"`
	DepartmentMatch   bool    `json:"department_match"`
	// DepartmentAverage is the mean active load of the candidate's department within the pool.
	DepartmentAverage float64 `json:"department_average"`
	// RelativeLoad is ActiveAssignments minus DepartmentAverage; negative means below average.
	RelativeLoad float64 `json:"relative_load"`
}

// RankCandidates orders the pool for an issue: fewest active assignments
// first, then staff in the issue's department, then higher completion rate,
// then staff id for a stable order. The input slice is not modified.
func RankCandidates(issue domain.Issue, pool []domain.StaffWorkload) []Candidate {
	type bucket struct {
		sum   int
		count int
	}
	byDept := make(map[string]*bucket)
	deptKey := func(d *string) string {
		if d == nil {
			return ""
		}
		return *d
	}
	for _, w := range pool {
		b, ok := byDept[deptKey(w.Department)]
		if !ok {
			b = &bucket{}
			byDept[deptKey(w.Department)] = b
		}
		b.sum += w.ActiveAssignments
		b.count++
	}

	candidates := make([]Candidate, 0, len(pool))
	for _, w := range pool {
		b := byDept[deptKey(w.Department)]
		avg := math.Round(float64(b.sum)/float64(b.count)*10) / 10
		candidates = append(candidates, Candidate{
			StaffID:           w.StaffID,
			Name:              w.Name,
			Department:        w.Department,
			ActiveAssignments: w.ActiveAssignments,
			CompletionRate:    w.CompletionRate,
			DepartmentMatch:   domain.SameDepartment(issue.Department, w.Department),
			DepartmentAverage: avg,
			RelativeLoad:      math.Round((float64(w.ActiveAssignments)-avg)*10) / 10,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ActiveAssignments != b.ActiveAssignments {
			return a.ActiveAssignments < b.ActiveAssignments
		}
		if a.DepartmentMatch != b.DepartmentMatch {
			return a.DepartmentMatch
		}
		if a.CompletionRate != b.CompletionRate {
			return a.CompletionRate > b.CompletionRate
		}
		return a.StaffID < b.StaffID
	})
	return candidates
}

// SuggestAssignee returns the best ranked staff id, or false for an empty pool.
func SuggestAssignee(issue domain.Issue, pool []domain.StaffWorkload) (string, bool) {
	ranked := RankCandidates(issue, pool)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].StaffID, true
}
