package domain

import "time"

// QueryRules drives automatic collection matching. Generated once from
// the collection name and persisted alongside it.
type QueryRules struct {
	Keywords        []string `json:"keywords"`
	TitlePatterns   []string `json:"title_patterns"`
	ContentPatterns []string `json:"content_patterns"`
	AutoMatch       bool     `json:"auto_match"`
	MatchThreshold  float64  `json:"match_threshold"`
}

func (r QueryRules) Empty() bool {
	return len(r.Keywords) == 0 && len(r.TitlePatterns) == 0 && len(r.ContentPatterns) == 0
}

// Collection is a user-visible grouping backed by exactly one Category.
type Collection struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	CategoryID    string     `json:"category_id"`
	AutoGenerated bool       `json:"auto_generated"`
	Rules         QueryRules `json:"query_rules"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
