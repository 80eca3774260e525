package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

// maxVectorDistance bounds the SQL-side cosine distance cut; finer
// similarity floors apply per query intent afterwards.
const maxVectorDistance = 0.8

type SearchConfig struct {
	DefaultTopK    int
	CandidateLimit int
}

// SearchUseCase serves lexical, semantic and hybrid retrieval. It never
// returns an error to the caller: failures degrade to an empty result
// carrying the cause.
type SearchUseCase struct {
	repo     ports.SearchRepository
	embedder ports.Embedder
	cfg      SearchConfig
	logger   *slog.Logger
}

func NewSearchUseCase(repo ports.SearchRepository, embedder ports.Embedder, cfg SearchConfig, logger *slog.Logger) *SearchUseCase {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 50
	}
	return &SearchUseCase{repo: repo, embedder: embedder, cfg: cfg, logger: logger}
}

func (uc *SearchUseCase) Search(ctx context.Context, query string, topK int, mode domain.SearchMode, filter domain.SearchFilter) domain.SearchResult {
	started := time.Now()
	result := domain.SearchResult{Query: query, Mode: mode, Hits: []domain.RankedHit{}}

	query = strings.TrimSpace(query)
	if query == "" {
		result.Error = "empty query"
		result.ResponseTime = time.Since(started).Seconds()
		return result
	}
	if topK <= 0 {
		topK = uc.cfg.DefaultTopK
	}

	var (
		keywordRows   []domain.SearchRow
		keywordScores []float64
		semanticRows  []domain.SearchRow
		err           error
	)

	if mode == domain.SearchKeyword || mode == domain.SearchHybrid {
		keywordRows, keywordScores, err = uc.keywordLeg(ctx, query, filter)
		if err != nil {
			uc.logger.Error("keyword search failed", "query", query, "error", err)
			result.Error = err.Error()
			result.ResponseTime = time.Since(started).Seconds()
			return result
		}
	}
	if mode == domain.SearchSemantic || mode == domain.SearchHybrid {
		semanticRows, err = uc.semanticLeg(ctx, query, filter)
		if err != nil {
			if mode == domain.SearchSemantic {
				uc.logger.Error("semantic search failed", "query", query, "error", err)
				result.Error = err.Error()
				result.ResponseTime = time.Since(started).Seconds()
				return result
			}
			// Hybrid degrades to its lexical leg.
			uc.logger.Warn("semantic leg failed, lexical only", "query", query, "error", err)
			semanticRows = nil
		}
	}

	switch mode {
	case domain.SearchKeyword:
		result.Hits = RankKeyword(keywordRows, keywordScores, topK)
	case domain.SearchSemantic:
		result.Hits = RankSemantic(semanticRows, topK)
	default:
		result.Hits = FuseAndRank(keywordRows, keywordScores, semanticRows, topK)
	}
	result.Total = len(result.Hits)
	result.ResponseTime = time.Since(started).Seconds()
	return result
}

// keywordLeg runs the staged lexical path: exact phrase, then all
// words, then any word. The first stage with candidates wins.
func (uc *SearchUseCase) keywordLeg(ctx context.Context, query string, filter domain.SearchFilter) ([]domain.SearchRow, []float64, error) {
	rows, err := uc.repo.SearchExact(ctx, query, filter, uc.cfg.CandidateLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("exact search: %w", err)
	}

	words := splitQueryWords(query)
	if len(rows) == 0 && len(words) > 1 {
		rows, err = uc.repo.SearchAllWords(ctx, words, filter, uc.cfg.CandidateLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("all-words search: %w", err)
		}
	}
	if len(rows) == 0 && len(words) > 1 {
		rows, err = uc.repo.SearchAnyWords(ctx, words, filter, uc.cfg.CandidateLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("any-words search: %w", err)
		}
		rows = filterRelevant(rows, words)
	}

	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = ScoreKeywordRow(row, query)
	}
	return rows, scores, nil
}

func (uc *SearchUseCase) semanticLeg(ctx context.Context, query string, filter domain.SearchFilter) ([]domain.SearchRow, error) {
	if !uc.embedder.Enabled() {
		return nil, nil
	}
	vector, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExternalService, "embed query", err)
	}

	rows, err := uc.repo.SearchSimilar(ctx, vector, filter, maxVectorDistance, uc.cfg.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	intent := DetectIntent(query)
	floor := intent.MinSimilarity()
	kept := rows[:0]
	for _, row := range rows {
		similarity := 1 - row.Distance
		if similarity < floor {
			continue
		}
		if !intent.KeepCrossModality(row.Modality, similarity) {
			continue
		}
		kept = append(kept, row)
	}
	return kept, nil
}

// filterRelevant keeps any-word candidates containing at least one
// query word, dropping rows matched on noise alone.
func filterRelevant(rows []domain.SearchRow, words []string) []domain.SearchRow {
	kept := rows[:0]
	for _, row := range rows {
		haystack := strings.ToLower(row.Title + " " + row.Text)
		for _, word := range words {
			if strings.Contains(haystack, strings.ToLower(word)) {
				kept = append(kept, row)
				break
			}
		}
	}
	return kept
}

// splitQueryWords breaks a query on spaces and punctuation, keeping
// CJK runs intact.
func splitQueryWords(query string) []string {
	return strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
