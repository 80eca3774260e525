package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

type CollectionRepository struct {
	db *sql.DB
}

func NewCollectionRepository(db *sql.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

func (r *CollectionRepository) Create(ctx context.Context, collection *domain.Collection) error {
	rulesJSON, err := json.Marshal(collection.Rules)
	if err != nil {
		return fmt.Errorf("marshal query rules: %w", err)
	}

	now := time.Now().UTC()
	if collection.CreatedAt.IsZero() {
		collection.CreatedAt = now
	}
	collection.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
INSERT INTO collections (id, name, description, category_id, auto_generated, query_rules, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, collection.ID, collection.Name, collection.Description, collection.CategoryID,
		collection.AutoGenerated, rulesJSON, collection.CreatedAt, collection.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

func (r *CollectionRepository) GetByID(ctx context.Context, id string) (*domain.Collection, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, description, category_id, auto_generated, query_rules, created_at, updated_at
FROM collections
WHERE id = $1
`, id)

	collection, err := scanCollection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCollectionNotFound, "get collection", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return collection, nil
}

func (r *CollectionRepository) ListUserCollections(ctx context.Context) ([]domain.Collection, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, description, category_id, auto_generated, query_rules, created_at, updated_at
FROM collections
ORDER BY created_at
`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []domain.Collection
	for rows.Next() {
		collection, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, *collection)
	}
	return collections, rows.Err()
}

func (r *CollectionRepository) SaveRules(ctx context.Context, collectionID string, rules domain.QueryRules) error {
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal query rules: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE collections
SET query_rules = $2, updated_at = $3
WHERE id = $1
`, collectionID, rulesJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save query rules: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (*domain.Collection, error) {
	var collection domain.Collection
	var rulesRaw []byte
	err := row.Scan(
		&collection.ID, &collection.Name, &collection.Description, &collection.CategoryID,
		&collection.AutoGenerated, &rulesRaw, &collection.CreatedAt, &collection.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rulesRaw, &collection.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal query rules: %w", err)
	}
	return &collection, nil
}
