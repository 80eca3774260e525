package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

// SignalRepository appends audit rows. Nothing in the pipeline reads
// them back; they exist for offline inspection and model evaluation.
type SignalRepository struct {
	db *sql.DB
}

func NewSignalRepository(db *sql.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

func (r *SignalRepository) Append(ctx context.Context, signal *domain.Signal) error {
	payloadJSON, err := json.Marshal(signal.Payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO signals (id, content_id, signal_type, payload, confidence, model_version, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, signal.ID, signal.ContentID, string(signal.Type), payloadJSON,
		signal.Confidence, signal.ModelVersion, signal.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}
