// Package api exposes the knowledge base over HTTP and MCP.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/finsight/finsight/internal/answer"
	"github.com/finsight/finsight/internal/faults"
	"github.com/finsight/finsight/internal/metrics"
	"github.com/finsight/finsight/internal/service"
	"github.com/finsight/finsight/internal/task"
)

const maxRequestBodySize = 10 << 20 // 10MB

// Deps holds the dependencies of the HTTP layer.
type Deps struct {
	Knowledge *service.Knowledge
	Tasks     *task.Manager
	Metrics   *metrics.Metrics // optional
	Token     string           // empty disables auth
	IndexPath string           // where save/load persists the knowledge base
	Logger    *slog.Logger
}

// NewHandler builds the chi router with all knowledge base routes.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Post("/documents", handleAddDocument(deps))
		r.Post("/documents/async", handleAddDocumentAsync(deps))
		r.Post("/questions", handleAskQuestion(deps))
		r.Get("/stats", handleStats(deps))
		r.Delete("/knowledge-base", handleClear(deps))
		r.Post("/knowledge-base/save", handleSave(deps))
		r.Post("/knowledge-base/load", handleLoad(deps))
		r.Get("/tasks/{id}", handleTaskStatus(deps))
		r.Delete("/tasks/{id}", handleTaskCancel(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DocumentRequest is the body of POST /documents and /documents/async.
type DocumentRequest struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

func handleAddDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeDocument(w, r)
		if !ok {
			return
		}

		added, err := deps.Knowledge.AddDocument(r.Context(), req.Content, req.Metadata)
		if err != nil {
			faultError(w, err)
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.IngestedChunksTotal.Add(float64(added))
		}

		writeJSON(w, http.StatusOK, map[string]any{"chunks_added": added})
	}
}

func handleAddDocumentAsync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeDocument(w, r)
		if !ok {
			return
		}

		t, err := deps.Knowledge.AddDocumentAsync(req.Content, req.Metadata)
		if err != nil {
			faultError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"task_id": t.ID(),
			"status":  string(task.StatusPending),
		})
	}
}

// QuestionRequest is the body of POST /questions. Omitted top_k and
// min_similarity fall back to the configured defaults; min_similarity uses a
// pointer so an explicit zero is distinguishable from absence.
type QuestionRequest struct {
	Question      string   `json:"question"`
	TopK          int      `json:"top_k"`
	MinSimilarity *float64 `json:"min_similarity"`
}

// QuestionResponse carries the composed answer.
type QuestionResponse struct {
	Answer     string          `json:"answer"`
	Confidence float64         `json:"confidence"`
	Sources    []answer.Source `json:"sources"`
}

func handleAskQuestion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req QuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		minSim := -1.0
		if req.MinSimilarity != nil {
			minSim = *req.MinSimilarity
		}

		start := time.Now()
		result, err := deps.Knowledge.Answer(r.Context(), req.Question, req.TopK, minSim)
		if deps.Metrics != nil {
			deps.Metrics.SearchDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			faultError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, QuestionResponse{
			Answer:     result.Answer,
			Confidence: result.Confidence,
			Sources:    result.Sources,
		})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Knowledge.Stats())
	}
}

func handleClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Knowledge.Clear()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func handleSave(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Knowledge.Save(deps.IndexPath); err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": deps.IndexPath})
	}
}

func handleLoad(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Knowledge.Load(deps.IndexPath); err != nil {
			faultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "path": deps.IndexPath})
	}
}

func handleTaskStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		snap, ok := deps.Tasks.Status(id)
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "task %s not found", id)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleTaskCancel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := deps.Tasks.Status(id); !ok {
			httpError(w, http.StatusNotFound, "not_found", "task %s not found", id)
			return
		}
		if !deps.Tasks.Cancel(id) {
			httpError(w, http.StatusConflict, "invalid_request_error", "task %s already finished", id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	}
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (DocumentRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return DocumentRequest{}, false
	}
	return req, true
}

// faultError maps a classified failure to an HTTP status and serves the full
// report so clients see the suggestion and retry hint.
func faultError(w http.ResponseWriter, err error) {
	report := faults.Classify(err)
	writeJSON(w, statusFor(report.Category), map[string]any{"error": report})
}

func statusFor(c faults.Category) int {
	switch c {
	case faults.CategoryEmptyInput, faults.CategoryDimensionMismatch:
		return http.StatusBadRequest
	case faults.CategoryEmbeddingFailure:
		return http.StatusBadGateway
	case faults.CategoryResourceExhausted:
		return http.StatusServiceUnavailable
	case faults.CategoryCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
