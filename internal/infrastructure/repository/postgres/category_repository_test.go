package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

func TestEnsureSystemCategoriesUpsertsTaxonomy(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	for range domain.SystemTaxonomy {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO categories")).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	if err := repo.EnsureSystemCategories(context.Background()); err != nil {
		t.Fatalf("ensure system categories: %v", err)
	}
}

func TestCategoryRepositoryGetByName(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM categories")).
		WithArgs("科技前沿").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "color", "is_system", "created_at", "updated_at",
		}).AddRow("cat-1", "科技前沿", "技术文档", "#9C27B0", true, now, now))

	category, err := repo.GetByName(context.Background(), "科技前沿")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if category.ID != "cat-1" || !category.IsSystem {
		t.Fatalf("unexpected category %+v", category)
	}
}

func TestCategoryRepositoryGetByNameNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM categories")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "color", "is_system", "created_at", "updated_at",
		}))

	_, err := repo.GetByName(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrCategoryNotFound) {
		t.Fatalf("expected category-not-found, got %v", err)
	}
}

func TestGetPrimaryPrefersModelRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY CASE source WHEN 'ml' THEN 0 ELSE 1 END")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{
			"content_id", "category_id", "confidence", "reasoning", "role", "source", "created_at",
		}).AddRow("c1", "cat-1", 0.92, "内容围绕机器学习", "primary_system", "ml", now))

	assoc, err := repo.GetPrimary(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get primary: %v", err)
	}
	if assoc == nil || assoc.Source != domain.SourceML || assoc.Role != domain.RolePrimarySystem {
		t.Fatalf("unexpected association %+v", assoc)
	}
}

func TestGetPrimaryNoneIsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM content_categories")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{
			"content_id", "category_id", "confidence", "reasoning", "role", "source", "created_at",
		}))

	assoc, err := repo.GetPrimary(context.Background(), "c1")
	if err != nil {
		t.Fatalf("get primary: %v", err)
	}
	if assoc != nil {
		t.Fatalf("expected nil for unclassified content, got %+v", assoc)
	}
}

func TestHasAssociationMatchesTriple(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("c1", "cat-1", "自动匹配到合集: 旅游").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasAssociation(context.Background(), "c1", "cat-1", "自动匹配到合集: 旅游")
	if err != nil {
		t.Fatalf("has association: %v", err)
	}
	if !exists {
		t.Fatal("expected existing association")
	}
}

func TestDeleteSystemAssociationsSparesUserRules(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("role IN ('primary_system', 'secondary_tag')")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.DeleteSystemAssociations(context.Background(), "c1"); err != nil {
		t.Fatalf("delete system associations: %v", err)
	}
}

func TestCreateAssociationFillsCreatedAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCategoryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content_categories")).
		WithArgs("c1", "cat-1", 0.8, "自动匹配到合集: 旅游", "user_rule", "rule", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assoc := &domain.ContentCategory{
		ContentID:  "c1",
		CategoryID: "cat-1",
		Confidence: 0.8,
		Reasoning:  "自动匹配到合集: 旅游",
		Role:       domain.RoleUserRule,
		Source:     domain.SourceRule,
	}
	if err := repo.CreateAssociation(context.Background(), assoc); err != nil {
		t.Fatalf("create association: %v", err)
	}
	if assoc.CreatedAt.IsZero() {
		t.Fatal("created_at must be filled in")
	}
}
