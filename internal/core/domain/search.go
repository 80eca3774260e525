package domain

import "time"

type SearchMode string

const (
	SearchKeyword  SearchMode = "keyword"
	SearchSemantic SearchMode = "semantic"
	SearchHybrid   SearchMode = "hybrid"
)

func ParseSearchMode(s string) SearchMode {
	switch SearchMode(s) {
	case SearchKeyword:
		return SearchKeyword
	case SearchSemantic:
		return SearchSemantic
	default:
		return SearchHybrid
	}
}

type MatchType string

const (
	MatchKeyword  MatchType = "keyword"
	MatchSemantic MatchType = "semantic"
	MatchHybrid   MatchType = "hybrid"
)

// SearchFilter is applied as query-time predicates before scoring.
type SearchFilter struct {
	Modality      Modality
	CategoryID    string
	CategoryName  string
	CollectionID  string
	MinConfidence float64
	MaxConfidence float64
	Role          Role
	Source        Source
	CreatedBy     string
	DateFrom      time.Time
	DateTo        time.Time
}

// SearchRow is one raw candidate from the read path: a chunk joined
// with its content and best classification. Distance is set only by
// the vector path.
type SearchRow struct {
	ChunkID            string
	ContentID          string
	Text               string
	Title              string
	SourceURI          string
	Modality           Modality
	CategoryName       string
	CategoryConfidence float64
	CreatedAt          time.Time
	Distance           float64
}

// RankedHit is one deduplicated search result: the best-scoring chunk
// of a Content.
type RankedHit struct {
	Score              float64   `json:"score"`
	ContentID          string    `json:"content_id"`
	ChunkID            string    `json:"chunk_id"`
	Title              string    `json:"title"`
	Text               string    `json:"text"`
	SourceURI          string    `json:"source_uri"`
	Modality           Modality  `json:"modality"`
	CategoryName       string    `json:"category_name,omitempty"`
	CategoryConfidence float64   `json:"category_confidence,omitempty"`
	MatchType          MatchType `json:"match_type"`
	CreatedAt          time.Time `json:"created_at"`
}

// SearchResult degrades rather than fails: on an internal error the
// hits are empty and Error carries the cause.
type SearchResult struct {
	Query        string      `json:"query"`
	Hits         []RankedHit `json:"results"`
	Total        int         `json:"total"`
	Mode         SearchMode  `json:"search_type"`
	ResponseTime float64     `json:"response_time"`
	Error        string      `json:"error,omitempty"`
}
