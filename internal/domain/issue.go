package domain

import (
	"strings"
	"time"
)

// IssueCategory enumerates the kinds of civic problems citizens report.
type IssueCategory string

const (
	CategoryRoads       IssueCategory = "roads"
	CategoryWaste       IssueCategory = "waste"
	CategoryWater       IssueCategory = "water"
	CategoryStreetlight IssueCategory = "streetlight"
	CategoryOther       IssueCategory = "other"
)

// Categories lists the canonical categories in display order.
var Categories = []IssueCategory{CategoryRoads, CategoryWaste, CategoryWater, CategoryStreetlight, CategoryOther}

var categoryAliases = map[string]IssueCategory{
	"road":         CategoryRoads,
	"potholes":     CategoryRoads,
	"pothole":      CategoryRoads,
	"garbage":      CategoryWaste,
	"trash":        CategoryWaste,
	"sanitation":   CategoryWaste,
	"drainage":     CategoryWater,
	"sewage":       CategoryWater,
	"water_supply": CategoryWater,
	"street_light": CategoryStreetlight,
	"streetlights": CategoryStreetlight,
	"lighting":     CategoryStreetlight,
	"electricity":  CategoryStreetlight,
}

// NormalizeCategory maps legacy aliases onto canonical categories.
// Unknown values are returned lower-cased so callers can still fall back.
func NormalizeCategory(raw string) IssueCategory {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if alias, ok := categoryAliases[key]; ok {
		return alias
	}
	return IssueCategory(key)
}

// IssuePriority enumerates SLA urgency.
type IssuePriority string

const (
	PriorityLow    IssuePriority = "low"
	PriorityMedium IssuePriority = "medium"
	PriorityHigh   IssuePriority = "high"
	PriorityUrgent IssuePriority = "urgent"
)

// Priorities lists the canonical priorities from least to most urgent.
var Priorities = []IssuePriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// NormalizePriority maps "critical" onto urgent and empty onto medium.
func NormalizePriority(raw string) IssuePriority {
	switch key := strings.ToLower(strings.TrimSpace(raw)); key {
	case "":
		return PriorityMedium
	case "critical":
		return PriorityUrgent
	default:
		return IssuePriority(key)
	}
}

// IssueStatus enumerates lifecycle states for issues.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "pending"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
	IssueStatusEscalated  IssueStatus = "escalated"
)

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusPending, IssueStatusInProgress, IssueStatusResolved, IssueStatusEscalated:
		return true
	}
	return false
}

// Issue is a citizen-reported problem. Status and Escalated are independent:
// an issue may be in_progress and escalated at the same time.
type Issue struct {
	ID          string
	Title       string
	Category    IssueCategory
	Priority    IssuePriority
	Status      IssueStatus
	Escalated   bool
	EscalatedTo *string
	Department  *string
	Upvotes     int
	CitizenID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IssuePatch carries the fields of an updateIssue command. Nil fields are untouched.
// EscalatedTo is a double pointer so that clearing the target can be expressed.
type IssuePatch struct {
	Status      *IssueStatus
	Escalated   *bool
	EscalatedTo **string
}

// Empty reports whether the patch changes nothing.
func (p IssuePatch) Empty() bool {
	return p.Status == nil && p.Escalated == nil && p.EscalatedTo == nil
}

// Apply mutates issue in place with the patch fields.
func (p IssuePatch) Apply(issue *Issue) {
	if p.Status != nil {
		issue.Status = *p.Status
	}
	if p.Escalated != nil {
		issue.Escalated = *p.Escalated
	}
	if p.EscalatedTo != nil {
		issue.EscalatedTo = *p.EscalatedTo
	}
}
