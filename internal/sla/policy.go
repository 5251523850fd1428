// Package sla holds the SLA policy table, the deadline calculator and the
// overdue classifier. Everything here is pure: no I/O beyond loading a
// policy file, no clocks read implicitly.
package sla

import (
	"fmt"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/civic-desk/issue-sla-service/internal/domain"
)

// fallbackHours backs DurationHours if a table somehow lacks other/medium.
// NewPolicy refuses such tables, so this only guards the zero value.
const fallbackHours = 72

var defaultTable = map[domain.IssueCategory]map[domain.IssuePriority]int{
	domain.CategoryRoads:       {domain.PriorityLow: 168, domain.PriorityMedium: 72, domain.PriorityHigh: 24, domain.PriorityUrgent: 8},
	domain.CategoryWaste:       {domain.PriorityLow: 72, domain.PriorityMedium: 24, domain.PriorityHigh: 12, domain.PriorityUrgent: 4},
	domain.CategoryWater:       {domain.PriorityLow: 72, domain.PriorityMedium: 48, domain.PriorityHigh: 12, domain.PriorityUrgent: 4},
	domain.CategoryStreetlight: {domain.PriorityLow: 120, domain.PriorityMedium: 72, domain.PriorityHigh: 24, domain.PriorityUrgent: 8},
	domain.CategoryOther:       {domain.PriorityLow: 168, domain.PriorityMedium: 72, domain.PriorityHigh: 48, domain.PriorityUrgent: 24},
}

// Policy maps (category, priority) to a resolution window in hours.
// A Policy is immutable once built.
type Policy struct {
	hours map[domain.IssueCategory]map[domain.IssuePriority]int
}

// Entry is one row of the policy table.
type Entry struct {
	Category domain.IssueCategory
	Priority domain.IssuePriority
	Hours    int
}

// DefaultPolicy returns the built-in table.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(defaultTable)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPolicy copies and validates a table. The table must define other/medium
// and every duration must be positive. Keys are normalized, so legacy
// aliases in a file land on their canonical category. Two keys that
// normalize onto the same cell are rejected.
func NewPolicy(table map[domain.IssueCategory]map[domain.IssuePriority]int) (*Policy, error) {
	hours := make(map[domain.IssueCategory]map[domain.IssuePriority]int, len(table))
	sources := make(map[string]string)
	for category, row := range table {
		cat := domain.NormalizeCategory(string(category))
		if cat == "" {
			return nil, fmt.Errorf("sla policy: empty category")
		}
		if _, ok := hours[cat]; !ok {
			hours[cat] = make(map[domain.IssuePriority]int, len(row))
		}
		for priority, h := range row {
			pr := domain.NormalizePriority(string(priority))
			if h <= 0 {
				return nil, fmt.Errorf("sla policy: %s/%s must be positive, got %d", cat, pr, h)
			}
			cell := string(cat) + "/" + string(pr)
			source := string(category) + "/" + string(priority)
			if prev, dup := sources[cell]; dup {
				return nil, fmt.Errorf("sla policy: %s and %s both define %s", prev, source, cell)
			}
			sources[cell] = source
			hours[cat][pr] = h
		}
	}
	if _, ok := hours[domain.CategoryOther][domain.PriorityMedium]; !ok {
		return nil, fmt.Errorf("sla policy: %s/%s is required as fallback", domain.CategoryOther, domain.PriorityMedium)
	}
	return &Policy{hours: hours}, nil
}

type policyFile struct {
	Policy map[string]map[string]int `toml:"policy"`
}

// LoadPolicyFile reads a TOML table of the form
//
//	[policy.waste]
//	low = 72
//	medium = 24
//
// An empty path yields the default policy.
func LoadPolicyFile(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	var file policyFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decode sla policy %s: %w", path, err)
	}
	return fromRaw(file.Policy)
}

// ParsePolicy decodes the same TOML document from a string.
func ParsePolicy(doc string) (*Policy, error) {
	var file policyFile
	if _, err := toml.Decode(doc, &file); err != nil {
		return nil, fmt.Errorf("decode sla policy: %w", err)
	}
	return fromRaw(file.Policy)
}

func fromRaw(raw map[string]map[string]int) (*Policy, error) {
	table := make(map[domain.IssueCategory]map[domain.IssuePriority]int, len(raw))
	for category, row := range raw {
		converted := make(map[domain.IssuePriority]int, len(row))
		for priority, h := range row {
			converted[domain.IssuePriority(priority)] = h
		}
		table[domain.IssueCategory(category)] = converted
	}
	return NewPolicy(table)
}

// DurationHours is total over all inputs. Unknown categories use "other";
// a priority missing from the resolved category uses that category's medium,
// and if that is missing too, other/medium.
func (p *Policy) DurationHours(category domain.IssueCategory, priority domain.IssuePriority) int {
	if p == nil || p.hours == nil {
		return fallbackHours
	}
	cat := domain.NormalizeCategory(string(category))
	pr := domain.NormalizePriority(string(priority))

	row, ok := p.hours[cat]
	if !ok {
		row = p.hours[domain.CategoryOther]
	}
	if h, ok := row[pr]; ok {
		return h
	}
	if h, ok := row[domain.PriorityMedium]; ok {
		return h
	}
	if h, ok := p.hours[domain.CategoryOther][domain.PriorityMedium]; ok {
		return h
	}
	return fallbackHours
}

// Duration is DurationHours as a time.Duration.
func (p *Policy) Duration(category domain.IssueCategory, priority domain.IssuePriority) time.Duration {
	return time.Duration(p.DurationHours(category, priority)) * time.Hour
}

// Entries returns the explicit table rows sorted by category then priority rank.
func (p *Policy) Entries() []Entry {
	if p == nil {
		return nil
	}
	entries := make([]Entry, 0, len(p.hours)*len(domain.Priorities))
	for cat, row := range p.hours {
		for pr, h := range row {
			entries = append(entries, Entry{Category: cat, Priority: pr, Hours: h})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return priorityRank(entries[i].Priority) < priorityRank(entries[j].Priority)
	})
	return entries
}

func priorityRank(p domain.IssuePriority) int {
	for i, known := range domain.Priorities {
		if known == p {
			return i
		}
	}
	return len(domain.Priorities)
}
