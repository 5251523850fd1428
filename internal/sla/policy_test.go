package sla

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

func TestDurationHoursIsTotal(t *testing.T) {
	policy := DefaultPolicy()
	categories := append([]domain.IssueCategory{}, domain.Categories...)
	categories = append(categories, "garbage", "street_light", "bridges", "")
	priorities := append([]domain.IssuePriority{}, domain.Priorities...)
	priorities = append(priorities, "critical", "", "whenever")

	for _, cat := range categories {
		for _, pr := range priorities {
			assert.Positive(t, policy.DurationHours(cat, pr), "category=%q priority=%q", cat, pr)
		}
	}
}

func TestDurationHoursFallbacks(t *testing.T) {
	policy := DefaultPolicy()

	t.Run("unknown category uses other", func(t *testing.T) {
		assert.Equal(t, 48, policy.DurationHours("bridges", domain.PriorityHigh))
	})

	t.Run("unknown priority uses medium of the category", func(t *testing.T) {
		assert.Equal(t, 24, policy.DurationHours(domain.CategoryWaste, "whenever"))
	})

	t.Run("unknown category and priority use other medium", func(t *testing.T) {
		assert.Equal(t, 72, policy.DurationHours("bridges", "whenever"))
	})

	t.Run("legacy aliases", func(t *testing.T) {
		assert.Equal(t, 24, policy.DurationHours("garbage", domain.PriorityMedium))
		assert.Equal(t, 4, policy.DurationHours(domain.CategoryWater, "critical"))
		assert.Equal(t, 8, policy.DurationHours("Street Light", domain.PriorityUrgent))
	})

	t.Run("nil policy still answers", func(t *testing.T) {
		var p *Policy
		assert.Equal(t, fallbackHours, p.DurationHours(domain.CategoryRoads, domain.PriorityLow))
	})
}

func TestNewPolicyValidation(t *testing.T) {
	_, err := NewPolicy(map[domain.IssueCategory]map[domain.IssuePriority]int{
		domain.CategoryRoads: {domain.PriorityLow: 10},
	})
	require.Error(t, err, "other/medium is mandatory")

	_, err = NewPolicy(map[domain.IssueCategory]map[domain.IssuePriority]int{
		domain.CategoryOther: {domain.PriorityMedium: 0},
	})
	require.Error(t, err, "durations must be positive")
}

func TestPartialTableFallsBackWithinCategory(t *testing.T) {
	policy, err := NewPolicy(map[domain.IssueCategory]map[domain.IssuePriority]int{
		domain.CategoryOther: {domain.PriorityMedium: 50},
		domain.CategoryRoads: {domain.PriorityMedium: 30},
		domain.CategoryWater: {domain.PriorityHigh: 6},
	})
	require.NoError(t, err)

	assert.Equal(t, 30, policy.DurationHours(domain.CategoryRoads, domain.PriorityUrgent))
	assert.Equal(t, 50, policy.DurationHours(domain.CategoryWater, domain.PriorityLow), "category without medium falls to other/medium")
	assert.Equal(t, 6, policy.DurationHours(domain.CategoryWater, domain.PriorityHigh))
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sla.toml")
	doc := `
[policy.other]
medium = 96

[policy.garbage]
medium = 12
critical = 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	policy, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, 12, policy.DurationHours(domain.CategoryWaste, domain.PriorityMedium))
	assert.Equal(t, 2, policy.DurationHours(domain.CategoryWaste, domain.PriorityUrgent))
	assert.Equal(t, 96, policy.DurationHours(domain.CategoryRoads, domain.PriorityLow))

	_, err = LoadPolicyFile(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	def, err := LoadPolicyFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy().Entries(), def.Entries())
}

func TestParsePolicyRejectsMissingFallback(t *testing.T) {
	_, err := ParsePolicy("[policy.roads]\nlow = 10\n")
	assert.Error(t, err)
}

func TestPolicyRejectsKeysCollidingAfterNormalization(t *testing.T) {
	_, err := ParsePolicy(`
[policy.other]
medium = 48

[policy.roads]
urgent = 4
critical = 2
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roads/urgent")

	_, err = ParsePolicy(`
[policy.other]
medium = 48

[policy.waste]
high = 12

[policy.garbage]
high = 6
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waste/high")

	// Aliases that fill different cells merge.
	policy, err := ParsePolicy(`
[policy.other]
medium = 48

[policy.waste]
high = 12

[policy.garbage]
low = 96
`)
	require.NoError(t, err)
	assert.Equal(t, 12, policy.DurationHours(domain.CategoryWaste, domain.PriorityHigh))
	assert.Equal(t, 96, policy.DurationHours(domain.CategoryWaste, domain.PriorityLow))
}

func TestEntriesSorted(t *testing.T) {
	entries := DefaultPolicy().Entries()
	require.Len(t, entries, 20)
	assert.Equal(t, Entry{Category: domain.CategoryOther, Priority: domain.PriorityLow, Hours: 168}, entries[0])
	assert.Equal(t, domain.PriorityUrgent, entries[3].Priority)
}

func TestComputeDeadlineMonotonic(t *testing.T) {
	policy := DefaultPolicy()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	prev := ComputeDeadline(policy, t0, domain.CategoryRoads, domain.PriorityHigh)
	assert.Equal(t, t0.Add(24*time.Hour), prev)
	for i := 1; i <= 50; i++ {
		next := ComputeDeadline(policy, t0.Add(time.Duration(i)*time.Minute), domain.CategoryRoads, domain.PriorityHigh)
		assert.True(t, next.After(prev))
		prev = next
	}
}

func TestDeadlineFollowsPriorityChange(t *testing.T) {
	policy := DefaultPolicy()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	issue := domain.Issue{Category: domain.CategoryWater, Priority: domain.PriorityLow, CreatedAt: t0}

	assert.Equal(t, t0.Add(72*time.Hour), policy.Deadline(issue))
	issue.Priority = domain.PriorityUrgent
	assert.Equal(t, t0.Add(4*time.Hour), policy.Deadline(issue))
}
