package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

type ContentRepository struct {
	db *sql.DB
}

func NewContentRepository(db *sql.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ContentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS contents (
	id TEXT PRIMARY KEY,
	source_uri TEXT NOT NULL,
	modality TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	parsing_status TEXT NOT NULL,
	classification_status TEXT NOT NULL,
	show_classification BOOLEAN NOT NULL DEFAULT FALSE,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	content_id TEXT NOT NULL REFERENCES contents(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	body TEXT NOT NULL,
	char_count INTEGER NOT NULL,
	embedding vector(1536),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	color TEXT NOT NULL DEFAULT '',
	is_system BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS content_categories (
	content_id TEXT NOT NULL REFERENCES contents(id) ON DELETE CASCADE,
	category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasoning TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS collections (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL REFERENCES categories(id),
	auto_generated BOOLEAN NOT NULL DEFAULT FALSE,
	query_rules JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
	id TEXT PRIMARY KEY,
	content_id TEXT NOT NULL,
	signal_type TEXT NOT NULL,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	model_version TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contents_parsing_status ON contents(parsing_status);
CREATE INDEX IF NOT EXISTS idx_contents_created_at ON contents(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_chunks_content_id ON chunks(content_id);
CREATE INDEX IF NOT EXISTS idx_content_categories_content ON content_categories(content_id);
CREATE INDEX IF NOT EXISTS idx_content_categories_category ON content_categories(category_id);
CREATE INDEX IF NOT EXISTS idx_signals_content ON signals(content_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ContentRepository) Create(ctx context.Context, content *domain.Content) error {
	now := time.Now().UTC()
	if content.CreatedAt.IsZero() {
		content.CreatedAt = now
	}
	content.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO contents (
	id, source_uri, modality, title, body, parsing_status, classification_status, show_classification, created_by, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		content.ID, content.SourceURI, string(content.Modality), content.Title, content.Text,
		string(content.State.Parsing), string(content.State.Classification), content.State.ShowClassification,
		content.CreatedBy, content.CreatedAt, content.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert content: %w", err)
	}
	return nil
}

func (r *ContentRepository) GetByID(ctx context.Context, id string) (*domain.Content, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, source_uri, modality, title, body, parsing_status, classification_status, show_classification, created_by, created_at, updated_at
FROM contents
WHERE id = $1
`, id)

	var content domain.Content
	var modality, parsing, classification string
	var createdBy sql.NullString

	err := row.Scan(
		&content.ID, &content.SourceURI, &modality, &content.Title, &content.Text,
		&parsing, &classification, &content.State.ShowClassification,
		&createdBy, &content.CreatedAt, &content.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrContentNotFound, "get content", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan content: %w", err)
	}

	content.Modality = domain.Modality(modality)
	content.State.Parsing = domain.ParsingStatus(parsing)
	content.State.Classification = domain.ClassificationStatus(classification)
	content.CreatedBy = createdBy.String
	return &content, nil
}

func (r *ContentRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM contents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list content ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan content id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ContentRepository) SetText(ctx context.Context, id, text string, modality domain.Modality) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE contents
SET body = $2, modality = $3, updated_at = $4
WHERE id = $1
`, id, text, string(modality), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set content text: %w", err)
	}
	return nil
}

// UpdateParsingStatus applies the transition only when the current
// status allows it, keeping terminal states terminal under races.
func (r *ContentRepository) UpdateParsingStatus(ctx context.Context, id string, status domain.ParsingStatus) error {
	allowed := previousParsingStatuses(status)
	_, err := r.db.ExecContext(ctx, `
UPDATE contents
SET parsing_status = $2, updated_at = $3
WHERE id = $1 AND parsing_status = ANY($4)
`, id, string(status), time.Now().UTC(), allowed)
	if err != nil {
		return fmt.Errorf("update parsing status: %w", err)
	}
	return nil
}

func (r *ContentRepository) UpdateClassificationStatus(ctx context.Context, id string, status domain.ClassificationStatus) error {
	allowed := previousClassificationStatuses(status)
	_, err := r.db.ExecContext(ctx, `
UPDATE contents
SET classification_status = $2, updated_at = $3
WHERE id = $1 AND classification_status = ANY($4)
`, id, string(status), time.Now().UTC(), allowed)
	if err != nil {
		return fmt.Errorf("update classification status: %w", err)
	}
	return nil
}

func (r *ContentRepository) SetShowClassification(ctx context.Context, id string, show bool) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE contents
SET show_classification = $2, updated_at = $3
WHERE id = $1
`, id, show, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set show_classification: %w", err)
	}
	return nil
}

func previousParsingStatuses(to domain.ParsingStatus) []string {
	all := []domain.ParsingStatus{
		domain.ParsingPending,
		domain.ParsingRunning,
		domain.ParsingCompleted,
		domain.ParsingError,
	}
	var out []string
	for _, from := range all {
		if from.CanTransition(to) {
			out = append(out, string(from))
		}
	}
	return out
}

func previousClassificationStatuses(to domain.ClassificationStatus) []string {
	all := []domain.ClassificationStatus{
		domain.ClassificationPending,
		domain.ClassificationQuickProcessing,
		domain.ClassificationQuickDone,
		domain.ClassificationAIProcessing,
		domain.ClassificationCompleted,
		domain.ClassificationError,
	}
	var out []string
	for _, from := range all {
		if from.CanTransition(to) {
			out = append(out, string(from))
		}
	}
	return out
}
