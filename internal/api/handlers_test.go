package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/finsight/finsight/internal/metrics"
	"github.com/finsight/finsight/internal/service"
	"github.com/finsight/finsight/internal/task"
)

type fakeEmbedder struct{}

func (fakeEmbedder) embed(text string) []float32 {
	var sum float32
	for _, r := range text {
		sum += float32(r % 17)
	}
	return []float32{sum, float32(len(text)), 1}
}

func (f fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return f.embed(text), nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.embed(t)
	}
	return out, nil
}

func newTestHandler(t *testing.T, mutate func(*Deps)) http.Handler {
	t.Helper()

	mgr := task.NewManager(task.Options{MaxWorkers: 2})
	t.Cleanup(mgr.Close)

	deps := Deps{
		Knowledge: service.New(fakeEmbedder{}, service.Options{Tasks: mgr}),
		Tasks:     mgr,
		Metrics:   metrics.New(),
		IndexPath: filepath.Join(t.TempDir(), "knowledge"),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewHandler(deps)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAddDocumentAndStats(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/documents", DocumentRequest{
		Content:  "Net income reached $2.4M in Q3. Margins improved across segments.",
		Metadata: map[string]string{"file_name": "q3.txt"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if added := decodeBody(t, rec)["chunks_added"].(float64); added < 1 {
		t.Errorf("chunks_added = %v", added)
	}

	rec = doJSON(t, h, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	if total := decodeBody(t, rec)["total_chunks"].(float64); total < 1 {
		t.Errorf("total_chunks = %v", total)
	}
}

func TestAddDocumentEmptyContent(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/documents", DocumentRequest{Content: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	if errObj["category"] != "empty_input" {
		t.Errorf("category = %v", errObj["category"])
	}
	if errObj["suggestion"] == "" {
		t.Error("suggestion missing from fault report")
	}
}

func TestAddDocumentMalformedJSON(t *testing.T) {
	h := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAskQuestionRoundTrip(t *testing.T) {
	h := newTestHandler(t, nil)

	doJSON(t, h, http.MethodPost, "/documents", DocumentRequest{
		Content:  "Revenue was $5M for the year.",
		Metadata: map[string]string{"file_name": "annual.txt"},
	})

	zero := 0.0
	rec := doJSON(t, h, http.MethodPost, "/questions", QuestionRequest{
		Question:      "what was the revenue?",
		MinSimilarity: &zero,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp QuestionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) == 0 {
		t.Error("no sources in response")
	}
}

func TestAskQuestionEmpty(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doJSON(t, h, http.MethodPost, "/questions", QuestionRequest{Question: " "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestClearKnowledgeBase(t *testing.T) {
	h := newTestHandler(t, nil)
	doJSON(t, h, http.MethodPost, "/documents", DocumentRequest{Content: "Some indexed content."})

	rec := doJSON(t, h, http.MethodDelete, "/knowledge-base", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/stats", nil)
	if total := decodeBody(t, rec)["total_chunks"].(float64); total != 0 {
		t.Errorf("total_chunks after clear = %v", total)
	}
}

func TestSaveAndLoad(t *testing.T) {
	h := newTestHandler(t, nil)
	doJSON(t, h, http.MethodPost, "/documents", DocumentRequest{Content: "Persist me please."})

	if rec := doJSON(t, h, http.MethodPost, "/knowledge-base/save", nil); rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body %s", rec.Code, rec.Body)
	}
	doJSON(t, h, http.MethodDelete, "/knowledge-base", nil)
	if rec := doJSON(t, h, http.MethodPost, "/knowledge-base/load", nil); rec.Code != http.StatusOK {
		t.Fatalf("load status = %d, body %s", rec.Code, rec.Body)
	}

	rec := doJSON(t, h, http.MethodGet, "/stats", nil)
	if total := decodeBody(t, rec)["total_chunks"].(float64); total < 1 {
		t.Errorf("total_chunks after load = %v", total)
	}
}

func TestAsyncIngestAndTaskPolling(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/documents/async", DocumentRequest{
		Content: strings.Repeat("Background ingestion sentence. ", 50),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	taskID := decodeBody(t, rec)["task_id"].(string)
	if taskID == "" {
		t.Fatal("no task_id in response")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doJSON(t, h, http.MethodGet, "/tasks/"+taskID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("task status = %d", rec.Code)
		}
		status := decodeBody(t, rec)["status"].(string)
		if status == string(task.StatusCompleted) {
			break
		}
		if status == string(task.StatusFailed) {
			t.Fatalf("task failed: %s", rec.Body)
		}
		if time.Now().After(deadline) {
			t.Fatalf("task did not complete, last status %q", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTaskNotFound(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := doJSON(t, h, http.MethodGet, "/tasks/no-such-task", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) { d.Token = "secret-token" })

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret-token", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong", http.StatusUnauthorized},
		{"correct token", "Bearer secret-token", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	h := newTestHandler(t, func(d *Deps) { d.Token = "secret-token" })
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200 without auth", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, nil)
	doJSON(t, h, http.MethodPost, "/documents", DocumentRequest{Content: "Count these chunks."})

	rec := doJSON(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "finsight_ingested_chunks_total") {
		t.Error("ingested chunks counter missing from exposition")
	}
}

func TestQuestionDefaultsWhenFieldsOmitted(t *testing.T) {
	h := newTestHandler(t, nil)
	// Raw body without top_k/min_similarity must not error.
	req := httptest.NewRequest(http.MethodPost, "/questions",
		strings.NewReader(fmt.Sprintf(`{"question": %q}`, "anything at all?")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}
