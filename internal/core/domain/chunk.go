package domain

import "time"

// Chunk is a bounded slice of a Content's text, the unit of embedding
// and lexical matching. Immutable after creation except for embedding
// backfill.
type Chunk struct {
	ID        string    `json:"id"`
	ContentID string    `json:"content_id"`
	Seq       int       `json:"seq"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	CharCount int       `json:"char_count"`
	CreatedAt time.Time `json:"created_at"`
}
