package usecase

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

// Fusion weights. Lexical evidence dominates because it is exact;
// semantic evidence broadens recall. Applied only when both legs are
// merged; single-leg modes keep their native scores.
const (
	keywordWeight  = 0.6
	semanticWeight = 0.4
)

// Keyword match grades, best to worst.
const (
	scoreWholeWordBody  = 0.95
	scoreWholeWordTitle = 0.90
	scoreSubstringBody  = 0.70
	scoreSubstringTitle = 0.65
	scoreWeakMatch      = 0.50
)

// ScoreKeywordRow grades one lexical candidate against the query.
func ScoreKeywordRow(row domain.SearchRow, query string) float64 {
	lowered := strings.ToLower(query)
	body := strings.ToLower(row.Text)
	title := strings.ToLower(row.Title)

	switch {
	case containsWholeWord(body, lowered):
		return scoreWholeWordBody
	case containsWholeWord(title, lowered):
		return scoreWholeWordTitle
	case strings.Contains(body, lowered):
		return scoreSubstringBody
	case strings.Contains(title, lowered):
		return scoreSubstringTitle
	default:
		return scoreWeakMatch
	}
}

// containsWholeWord reports a match whose neighbors are not letters or
// digits. CJK text rarely clears this; it falls through to substring
// grades instead.
func containsWholeWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		before := rune(0)
		if i > 0 {
			before = lastRune(haystack[:i])
		}
		after := rune(0)
		if end := i + len(needle); end < len(haystack) {
			after = firstRune(haystack[end:])
		}
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		start = i + len(needle)
		if start >= len(haystack) {
			return false
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}

// scoredRow is the strongest chunk of one Content within a single leg.
type scoredRow struct {
	row   domain.SearchRow
	score float64
}

// bestPerContent deduplicates a leg to its best chunk per Content.
func bestPerContent(rows []domain.SearchRow, scores []float64) map[string]scoredRow {
	best := make(map[string]scoredRow)
	for i, row := range rows {
		current, ok := best[row.ContentID]
		if !ok || scores[i] > current.score {
			best[row.ContentID] = scoredRow{row: row, score: scores[i]}
		}
	}
	return best
}

// RankKeyword deduplicates lexical candidates per Content and returns
// the topK by grade. Grades are returned as-is: keyword mode carries no
// fusion weighting.
func RankKeyword(rows []domain.SearchRow, scores []float64, topK int) []domain.RankedHit {
	best := bestPerContent(rows, scores)
	hits := make([]domain.RankedHit, 0, len(best))
	for _, b := range best {
		hits = append(hits, hitFromRow(b.row, b.score, domain.MatchKeyword))
	}
	return sortAndCut(hits, topK)
}

// RankSemantic scores candidates by similarity (1 - distance), keeping
// the best chunk per Content.
func RankSemantic(rows []domain.SearchRow, topK int) []domain.RankedHit {
	best := bestPerContent(rows, similarities(rows))
	hits := make([]domain.RankedHit, 0, len(best))
	for _, b := range best {
		hits = append(hits, hitFromRow(b.row, b.score, domain.MatchSemantic))
	}
	return sortAndCut(hits, topK)
}

// FuseAndRank merges the two legs at the document level: each leg
// contributes its best chunk per Content, and a Content seen by both
// legs scores the weighted sum of both contributions, even when the
// evidence sits on different chunks. The displayed chunk comes from
// the leg with the larger weighted contribution.
func FuseAndRank(keywordRows []domain.SearchRow, keywordScores []float64, semanticRows []domain.SearchRow, topK int) []domain.RankedHit {
	keywordBest := bestPerContent(keywordRows, keywordScores)
	semanticBest := bestPerContent(semanticRows, similarities(semanticRows))

	hits := make([]domain.RankedHit, 0, len(keywordBest)+len(semanticBest))
	for contentID, kw := range keywordBest {
		kwPart := keywordWeight * kw.score
		sem, ok := semanticBest[contentID]
		if !ok {
			hits = append(hits, hitFromRow(kw.row, kwPart, domain.MatchKeyword))
			continue
		}
		semPart := semanticWeight * sem.score
		display := kw.row
		if semPart > kwPart {
			display = sem.row
		}
		hits = append(hits, hitFromRow(display, kwPart+semPart, domain.MatchHybrid))
	}
	for contentID, sem := range semanticBest {
		if _, ok := keywordBest[contentID]; ok {
			continue
		}
		hits = append(hits, hitFromRow(sem.row, semanticWeight*sem.score, domain.MatchSemantic))
	}
	return sortAndCut(hits, topK)
}

func similarities(rows []domain.SearchRow) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[i] = 1 - row.Distance
	}
	return out
}

func hitFromRow(row domain.SearchRow, score float64, matchType domain.MatchType) domain.RankedHit {
	return domain.RankedHit{
		Score:              score,
		ContentID:          row.ContentID,
		ChunkID:            row.ChunkID,
		Title:              row.Title,
		Text:               row.Text,
		SourceURI:          row.SourceURI,
		Modality:           row.Modality,
		CategoryName:       row.CategoryName,
		CategoryConfidence: row.CategoryConfidence,
		MatchType:          matchType,
		CreatedAt:          row.CreatedAt,
	}
}

func sortAndCut(hits []domain.RankedHit, topK int) []domain.RankedHit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ContentID < hits[j].ContentID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
