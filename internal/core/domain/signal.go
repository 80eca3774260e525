package domain

import "time"

type SignalType string

const (
	SignalClassification  SignalType = "classification"
	SignalCollectionMatch SignalType = "collection_match"
)

// Signal is an append-only audit record of an automatic decision.
// Never mutated or deleted.
type Signal struct {
	ID           string         `json:"id"`
	ContentID    string         `json:"content_id"`
	Type         SignalType     `json:"signal_type"`
	Payload      map[string]any `json:"payload"`
	Confidence   float64        `json:"confidence"`
	ModelVersion string         `json:"model_version"`
	CreatedAt    time.Time      `json:"created_at"`
}
