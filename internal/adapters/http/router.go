package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/knowledge-pipeline/internal/core/ports"
)

type Router struct {
	ingestor    ports.ContentIngestor
	classifier  ports.ContentClassifier
	collections ports.CollectionService
	searcher    ports.SearchService
	contents    ports.ContentRepository
	metrics     MetricsRecorder
	service     string
}

// MetricsRecorder is the slice of HTTP metrics the router reports to.
type MetricsRecorder interface {
	RecordSearch(service, mode string, hits int, duration time.Duration)
	RecordIngest(service, kind string, err error)
}

func NewRouter(
	ingestor ports.ContentIngestor,
	classifier ports.ContentClassifier,
	collections ports.CollectionService,
	searcher ports.SearchService,
	contents ports.ContentRepository,
	metrics MetricsRecorder,
	service string,
) *Router {
	return &Router{
		ingestor:    ingestor,
		classifier:  classifier,
		collections: collections,
		searcher:    searcher,
		contents:    contents,
		metrics:     metrics,
		service:     service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/ingest", rt.ingestText)
	mux.HandleFunc("/v1/contents/", rt.contentByID)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/collections", rt.createCollection)
	mux.HandleFunc("/v1/collections/", rt.collectionAction)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	content, err := rt.ingestor.UploadFile(r.Context(), fileHeader.Filename, file)
	rt.metrics.RecordIngest(rt.service, "upload", err)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, content)
}

func (rt *Router) ingestText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Title     string `json:"title"`
		Text      string `json:"text"`
		SourceURI string `json:"source_uri"`
		Modality  string `json:"modality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	content, err := rt.ingestor.IngestText(r.Context(), req.Title, req.Text, req.SourceURI, domain.ParseModality(req.Modality))
	rt.metrics.RecordIngest(rt.service, "text", err)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, content)
}

// contentByID serves GET /v1/contents/{id} and
// POST /v1/contents/{id}/classify.
func (rt *Router) contentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/contents/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content id is required"})
		return
	}

	if id, ok := strings.CutSuffix(rest, "/classify"); ok {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		result, err := rt.classifier.Classify(r.Context(), id)
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	content, err := rt.contents.GetByID(r.Context(), rest)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	params := r.URL.Query()
	query := strings.TrimSpace(params.Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}

	topK, _ := strconv.Atoi(params.Get("top_k"))
	mode := domain.ParseSearchMode(params.Get("mode"))
	filter := filterFromQuery(params.Get)

	started := time.Now()
	result := rt.searcher.Search(r.Context(), query, topK, mode, filter)
	rt.metrics.RecordSearch(rt.service, string(mode), len(result.Hits), time.Since(started))

	writeJSON(w, http.StatusOK, result)
}

func filterFromQuery(get func(string) string) domain.SearchFilter {
	filter := domain.SearchFilter{
		Modality:     domain.Modality(get("modality")),
		CategoryID:   get("category_id"),
		CategoryName: get("category"),
		CollectionID: get("collection_id"),
		Role:         domain.Role(get("role")),
		Source:       domain.Source(get("source")),
		CreatedBy:    get("created_by"),
	}
	if v := get("min_confidence"); v != "" {
		filter.MinConfidence, _ = strconv.ParseFloat(v, 64)
	}
	if v := get("max_confidence"); v != "" {
		filter.MaxConfidence, _ = strconv.ParseFloat(v, 64)
	}
	if v := get("date_from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.DateFrom = t
		}
	}
	if v := get("date_to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.DateTo = t
		}
	}
	return filter
}

func (rt *Router) createCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	collection, err := rt.collections.CreateCollection(r.Context(), strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, collection)
}

// collectionAction serves POST /v1/collections/{id}/backfill.
func (rt *Router) collectionAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/collections/")
	id, ok := strings.CutSuffix(rest, "/backfill")
	if !ok || id == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown collection action"})
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	matched, failed, err := rt.collections.BackfillCollection(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"matched": matched, "failed": failed})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
