package httpadapter

import (
	"net/http"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrContentNotFound),
		domain.IsKind(err, domain.ErrCategoryNotFound),
		domain.IsKind(err, domain.ErrCollectionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrStageNotReady):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrExternalService):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
