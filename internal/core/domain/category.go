package domain

import "time"

// Role places a classification in the label hierarchy: the single
// authoritative system label, an additional weaker tag, or a
// user-collection rule association.
type Role string

const (
	RolePrimarySystem Role = "primary_system"
	RoleSecondaryTag  Role = "secondary_tag"
	RoleUserRule      Role = "user_rule"
)

// Source records which stage produced a classification.
type Source string

const (
	SourceML        Source = "ml"
	SourceHeuristic Source = "heuristic"
	SourceRule      Source = "rule"
	SourceManual    Source = "manual"
)

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContentCategory associates a Content with a Category. At most one
// primary_system row is authoritative at rest; a heuristic row and an
// ml row may transiently coexist until arbitration deletes the loser.
type ContentCategory struct {
	ContentID  string    `json:"content_id"`
	CategoryID string    `json:"category_id"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Role       Role      `json:"role"`
	Source     Source    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredCategory is a confidence-weighted label. Confidence is clipped
// into [0,1] at construction.
type ScoredCategory struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func NewScoredCategory(category string, confidence float64) ScoredCategory {
	return ScoredCategory{Category: category, Confidence: ClampConfidence(confidence)}
}

func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ModelLabel is the model classifier's full answer: one primary label
// plus zero or more secondary tags.
type ModelLabel struct {
	Primary   ScoredCategory   `json:"primary"`
	Secondary []ScoredCategory `json:"secondary"`
	Reasoning string           `json:"reasoning"`
}

type ClassificationResult struct {
	ContentID    string  `json:"content_id"`
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	Source       Source  `json:"source"`
}
