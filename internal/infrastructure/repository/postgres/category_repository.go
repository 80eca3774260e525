package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// EnsureSystemCategories upserts the fixed taxonomy. Names are the
// stable identity; descriptions and colors follow the current build.
func (r *CategoryRepository) EnsureSystemCategories(ctx context.Context) error {
	now := time.Now().UTC()
	for _, category := range domain.SystemTaxonomy {
		_, err := r.db.ExecContext(ctx, `
INSERT INTO categories (id, name, description, color, is_system, created_at, updated_at)
VALUES ($1,$2,$3,$4,TRUE,$5,$5)
ON CONFLICT (name) DO UPDATE
SET description = EXCLUDED.description, color = EXCLUDED.color, updated_at = EXCLUDED.updated_at
`, uuid.NewString(), category.Name, category.Description, category.Color, now)
		if err != nil {
			return fmt.Errorf("ensure system category %q: %w", category.Name, err)
		}
	}
	return nil
}

func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	return r.getOne(ctx, `
SELECT id, name, description, color, is_system, created_at, updated_at
FROM categories
WHERE name = $1
`, name)
}

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	return r.getOne(ctx, `
SELECT id, name, description, color, is_system, created_at, updated_at
FROM categories
WHERE id = $1
`, id)
}

func (r *CategoryRepository) getOne(ctx context.Context, query, arg string) (*domain.Category, error) {
	row := r.db.QueryRowContext(ctx, query, arg)

	var category domain.Category
	err := row.Scan(
		&category.ID, &category.Name, &category.Description, &category.Color,
		&category.IsSystem, &category.CreatedAt, &category.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCategoryNotFound, "get category", fmt.Errorf("key=%s", arg))
		}
		return nil, fmt.Errorf("scan category: %w", err)
	}
	return &category, nil
}

func (r *CategoryRepository) CreateUserCategory(ctx context.Context, category *domain.Category) error {
	now := time.Now().UTC()
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO categories (id, name, description, color, is_system, created_at, updated_at)
VALUES ($1,$2,$3,$4,FALSE,$5,$6)
`, category.ID, category.Name, category.Description, category.Color, category.CreatedAt, category.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user category: %w", err)
	}
	return nil
}

// GetPrimary returns the authoritative primary_system association,
// preferring an ml row when a heuristic one transiently coexists.
func (r *CategoryRepository) GetPrimary(ctx context.Context, contentID string) (*domain.ContentCategory, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT content_id, category_id, confidence, reasoning, role, source, created_at
FROM content_categories
WHERE content_id = $1 AND role = 'primary_system'
ORDER BY CASE source WHEN 'ml' THEN 0 ELSE 1 END, created_at DESC
LIMIT 1
`, contentID)

	var assoc domain.ContentCategory
	var role, source string
	err := row.Scan(
		&assoc.ContentID, &assoc.CategoryID, &assoc.Confidence, &assoc.Reasoning,
		&role, &source, &assoc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan primary association: %w", err)
	}
	assoc.Role = domain.Role(role)
	assoc.Source = domain.Source(source)
	return &assoc, nil
}

func (r *CategoryRepository) HasSystemClassification(ctx context.Context, contentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM content_categories
	WHERE content_id = $1 AND role = 'primary_system'
)
`, contentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check system classification: %w", err)
	}
	return exists, nil
}

func (r *CategoryRepository) HasAssociation(ctx context.Context, contentID, categoryID, reasoning string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM content_categories
	WHERE content_id = $1 AND category_id = $2 AND reasoning = $3
)
`, contentID, categoryID, reasoning).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check association: %w", err)
	}
	return exists, nil
}

func (r *CategoryRepository) CreateAssociation(ctx context.Context, assoc *domain.ContentCategory) error {
	if assoc.CreatedAt.IsZero() {
		assoc.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO content_categories (content_id, category_id, confidence, reasoning, role, source, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, assoc.ContentID, assoc.CategoryID, assoc.Confidence, assoc.Reasoning,
		string(assoc.Role), string(assoc.Source), assoc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert association: %w", err)
	}
	return nil
}

// DeleteSystemAssociations removes primary_system and secondary_tag
// rows ahead of an authoritative rewrite. user_rule rows survive.
func (r *CategoryRepository) DeleteSystemAssociations(ctx context.Context, contentID string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM content_categories
WHERE content_id = $1 AND role IN ('primary_system', 'secondary_tag')
`, contentID)
	if err != nil {
		return fmt.Errorf("delete system associations: %w", err)
	}
	return nil
}
