package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

// SearchRepository runs the read-side candidate queries. Every query
// joins each chunk with its content row and the best primary
// classification, and applies the caller's filters as SQL predicates.
type SearchRepository struct {
	db *sql.DB
}

func NewSearchRepository(db *sql.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

const searchSelect = `
SELECT c.id, c.content_id, c.body, ct.title, ct.source_uri, ct.modality,
	COALESCE(cat.name, ''), COALESCE(cc.confidence, 0), ct.created_at%s
FROM chunks c
JOIN contents ct ON ct.id = c.content_id
LEFT JOIN LATERAL (
	SELECT icc.category_id, icc.confidence, icc.role, icc.source
	FROM content_categories icc
	WHERE icc.content_id = ct.id AND icc.role = 'primary_system'
	ORDER BY CASE icc.source WHEN 'ml' THEN 0 ELSE 1 END, icc.created_at DESC
	LIMIT 1
) cc ON TRUE
LEFT JOIN categories cat ON cat.id = cc.category_id
WHERE ct.parsing_status = 'completed'`

func (r *SearchRepository) SearchExact(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchRow, error) {
	builder := newSearchQuery(filter)
	pattern := "%" + escapeLike(query) + "%"
	builder.where(fmt.Sprintf("(c.body ILIKE %s OR ct.title ILIKE %s)", builder.arg(pattern), builder.arg(pattern)))
	return r.run(ctx, builder, "ORDER BY ct.created_at DESC", limit, false)
}

func (r *SearchRepository) SearchAllWords(ctx context.Context, words []string, filter domain.SearchFilter, limit int) ([]domain.SearchRow, error) {
	builder := newSearchQuery(filter)
	for _, word := range words {
		pattern := "%" + escapeLike(word) + "%"
		builder.where(fmt.Sprintf("(c.body ILIKE %s OR ct.title ILIKE %s)", builder.arg(pattern), builder.arg(pattern)))
	}
	return r.run(ctx, builder, "ORDER BY ct.created_at DESC", limit, false)
}

func (r *SearchRepository) SearchAnyWords(ctx context.Context, words []string, filter domain.SearchFilter, limit int) ([]domain.SearchRow, error) {
	builder := newSearchQuery(filter)
	clauses := make([]string, 0, len(words))
	for _, word := range words {
		pattern := "%" + escapeLike(word) + "%"
		clauses = append(clauses, fmt.Sprintf("c.body ILIKE %s OR ct.title ILIKE %s", builder.arg(pattern), builder.arg(pattern)))
	}
	if len(clauses) > 0 {
		builder.where("(" + strings.Join(clauses, " OR ") + ")")
	}
	return r.run(ctx, builder, "ORDER BY ct.created_at DESC", limit, false)
}

func (r *SearchRepository) SearchSimilar(ctx context.Context, vector []float32, filter domain.SearchFilter, maxDistance float64, limit int) ([]domain.SearchRow, error) {
	builder := newSearchQuery(filter)
	vec := builder.arg(pgvector.NewVector(vector))
	builder.selectExtra = fmt.Sprintf(", c.embedding <=> %s AS distance", vec)
	builder.where("c.embedding IS NOT NULL")
	builder.where(fmt.Sprintf("c.embedding <=> %s < %s", vec, builder.arg(maxDistance)))
	return r.run(ctx, builder, "ORDER BY distance", limit, true)
}

func (r *SearchRepository) run(ctx context.Context, builder *searchQuery, orderBy string, limit int, withDistance bool) ([]domain.SearchRow, error) {
	query := fmt.Sprintf(searchSelect, builder.selectExtra)
	if len(builder.predicates) > 0 {
		query += "\n\tAND " + strings.Join(builder.predicates, "\n\tAND ")
	}
	query += "\n" + orderBy
	query += fmt.Sprintf("\nLIMIT %s", builder.arg(limit))

	rows, err := r.db.QueryContext(ctx, query, builder.args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var out []domain.SearchRow
	for rows.Next() {
		var row domain.SearchRow
		var modality string
		dest := []any{
			&row.ChunkID, &row.ContentID, &row.Text, &row.Title, &row.SourceURI,
			&modality, &row.CategoryName, &row.CategoryConfidence, &row.CreatedAt,
		}
		if withDistance {
			dest = append(dest, &row.Distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		row.Modality = domain.Modality(modality)
		out = append(out, row)
	}
	return out, rows.Err()
}

// searchQuery accumulates predicates and positional args.
type searchQuery struct {
	selectExtra string
	predicates  []string
	args        []any
}

func newSearchQuery(filter domain.SearchFilter) *searchQuery {
	b := &searchQuery{}

	if filter.Modality != "" {
		b.where("ct.modality = " + b.arg(string(filter.Modality)))
	}
	if filter.CategoryID != "" {
		b.where("cc.category_id = " + b.arg(filter.CategoryID))
	}
	if filter.CategoryName != "" {
		b.where("cat.name = " + b.arg(filter.CategoryName))
	}
	if filter.CollectionID != "" {
		b.where(`EXISTS (
	SELECT 1 FROM content_categories ucc
	JOIN collections col ON col.category_id = ucc.category_id
	WHERE ucc.content_id = ct.id AND col.id = ` + b.arg(filter.CollectionID) + `
)`)
	}
	if filter.MinConfidence > 0 {
		b.where("cc.confidence >= " + b.arg(filter.MinConfidence))
	}
	if filter.MaxConfidence > 0 {
		b.where("cc.confidence <= " + b.arg(filter.MaxConfidence))
	}
	if filter.Role != "" {
		b.where(`EXISTS (
	SELECT 1 FROM content_categories rcc
	WHERE rcc.content_id = ct.id AND rcc.role = ` + b.arg(string(filter.Role)) + `
)`)
	}
	if filter.Source != "" {
		b.where("cc.source = " + b.arg(string(filter.Source)))
	}
	if filter.CreatedBy != "" {
		b.where("ct.created_by = " + b.arg(filter.CreatedBy))
	}
	if !filter.DateFrom.IsZero() {
		b.where("ct.created_at >= " + b.arg(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		b.where("ct.created_at <= " + b.arg(filter.DateTo))
	}
	return b
}

func (b *searchQuery) arg(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *searchQuery) where(predicate string) {
	b.predicates = append(b.predicates, predicate)
}

func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
