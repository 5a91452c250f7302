package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/custodia-labs/ragkb/internal/core/domain"
)

const defaultListLimit = 10

// askResponse adds the response time in seconds to an answer.
type askResponse struct {
	*domain.Answer
	ResponseTime float64 `json:"response_time"`
}

// neighbourResponse is returned by /search when a context window is requested.
type neighbourResponse struct {
	Query      string                   `json:"query"`
	Results    []domain.NeighbourChunks `json:"results"`
	TotalFound int                      `json:"total_found"`
}

type chunksResponse struct {
	DocumentID string         `json:"document_id"`
	Chunks     []domain.Chunk `json:"chunks"`
	Total      int            `json:"total"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type listParams struct {
	Skip  int `json:"skip" validate:"min=0"`
	Limit int `json:"limit" validate:"min=1,max=100"`
}

type searchParams struct {
	Window int `json:"context_window" validate:"min=0,max=5"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Bienvenue dans la base de connaissances ragkb",
		"version": s.version,
		"endpoints": map[string]string{
			"ask":       "POST /ask - Ask a question",
			"documents": "/documents - Manage documents",
			"search":    "POST /search - Search chunks",
			"stats":     "GET /stats - System statistics",
			"health":    "GET /health - Health check",
			"metrics":   "GET /metrics - Prometheus metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "ragkb",
		"version": s.version,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.check(req); err != nil {
		writeError(w, r, err)
		return
	}

	ans, err := s.ports.Answer.Answer(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, askResponse{Answer: ans, ResponseTime: ans.ResponseSeconds()})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "context_window", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.check(searchParams{Window: window}); err != nil {
		writeError(w, r, err)
		return
	}

	var req domain.SearchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.check(req); err != nil {
		writeError(w, r, err)
		return
	}

	if window > 0 {
		results, err := s.ports.Search.SearchWithNeighbours(r.Context(), req, window)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if results == nil {
			results = []domain.NeighbourChunks{}
		}
		writeJSON(w, http.StatusOK, neighbourResponse{Query: req.Query, Results: results, TotalFound: len(results)})
		return
	}

	resp, err := s.ports.Search.Search(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp.Results == nil {
		resp.Results = []domain.ScoredChunk{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ports.Stats.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.check(req); err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := s.ports.Ingestion.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	params := listParams{Skip: skip, Limit: limit}
	if err := s.check(params); err != nil {
		writeError(w, r, err)
		return
	}

	docs, err := s.ports.Ingestion.List(r.Context(), domain.ListOptions{Offset: params.Skip, Limit: params.Limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]domain.Document, len(docs))
	for i := range docs {
		out[i] = summary(&docs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ports.Ingestion.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.check(req); err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := s.ports.Ingestion.Update(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.ports.Ingestion.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Document %s deleted successfully", id)})
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	chunks, err := s.ports.Ingestion.Chunks(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	writeJSON(w, http.StatusOK, chunksResponse{DocumentID: id, Chunks: chunks, Total: len(chunks)})
}

func (s *Server) handleReindexDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ports.Ingestion.Reindex(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary(doc))
}

// summary drops the content, which can be large, from a document response.
func summary(doc *domain.Document) domain.Document {
	out := *doc
	out.Content = ""
	return out
}

// check runs struct validation and reports the first failing field.
func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return domain.NewValidationError(verrs[0].Field(), describe(verrs[0]))
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
}

func describe(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + unit
	case "max":
		return "must be at most " + fe.Param() + unit
	default:
		return "failed the " + fe.Tag() + " check"
	}
}

func invalidBody(err error) error {
	return domain.NewValidationError("body", err.Error())
}

// queryInt parses an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer")
	}
	return n, nil
}
