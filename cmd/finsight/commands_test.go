package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/finsight/finsight/internal/api"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func withTestClient(t *testing.T, ts *testServer) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = orig })
}

// runCommand invokes a command the way Execute would, with a context set.
func runCommand(t *testing.T, cmd *cobra.Command, args []string) error {
	t.Helper()
	cmd.SetContext(context.Background())
	return cmd.RunE(cmd, args)
}

func TestIngestCommandText(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /documents": `{"chunks_added": 3}`,
	})
	withTestClient(t, ts)

	ingestCmd.Flags().Set("text", "Revenue grew this quarter.")
	t.Cleanup(func() { ingestCmd.Flags().Set("text", "") })

	if err := runCommand(t, ingestCmd, nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(ts.requests))
	}
	req := ts.requests[0]
	if req.Method != "POST" || req.Path != "/documents" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	if req.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", req.Auth)
	}

	var sent api.DocumentRequest
	if err := json.Unmarshal([]byte(req.Body), &sent); err != nil {
		t.Fatal(err)
	}
	if sent.Content != "Revenue grew this quarter." {
		t.Errorf("content = %q", sent.Content)
	}
}

func TestIngestCommandRequiresInput(t *testing.T) {
	ts := newTestServer(t, nil)
	withTestClient(t, ts)

	err := runCommand(t, ingestCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "--text or --file") {
		t.Fatalf("err = %v, want flag requirement error", err)
	}
	if len(ts.requests) != 0 {
		t.Error("request sent despite missing input")
	}
}

func TestIngestCommandAsync(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /documents/async": `{"task_id": "t-1", "status": "pending"}`,
	})
	withTestClient(t, ts)

	ingestCmd.Flags().Set("text", "some text")
	ingestCmd.Flags().Set("async", "true")
	t.Cleanup(func() {
		ingestCmd.Flags().Set("text", "")
		ingestCmd.Flags().Set("async", "false")
	})

	if err := runCommand(t, ingestCmd, nil); err != nil {
		t.Fatalf("ingest --async: %v", err)
	}
	if got := ts.requests[0].Path; got != "/documents/async" {
		t.Errorf("path = %q", got)
	}
}

func TestAskCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /questions": `{"answer": "Revenue was $5M.", "confidence": 0.9, "sources": []}`,
	})
	withTestClient(t, ts)

	if err := runCommand(t, askCmd, []string{"what was the revenue?"}); err != nil {
		t.Fatalf("ask: %v", err)
	}

	var sent api.QuestionRequest
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatal(err)
	}
	if sent.Question != "what was the revenue?" {
		t.Errorf("question = %q", sent.Question)
	}
	if sent.MinSimilarity != nil {
		t.Error("CLI must not pin min_similarity, server default applies")
	}
}

func TestStatsCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /stats": `{"total_chunks": 42, "dimensionality": 768}`,
	})
	withTestClient(t, ts)

	if err := runCommand(t, statsCmd, nil); err != nil {
		t.Fatalf("stats: %v", err)
	}
}

func TestClearCommandRequiresConfirm(t *testing.T) {
	ts := newTestServer(t, nil)
	withTestClient(t, ts)

	if err := runCommand(t, clearCmd, nil); err != nil {
		t.Fatalf("clear without --confirm: %v", err)
	}
	if len(ts.requests) != 0 {
		t.Error("clear sent a request without --confirm")
	}
}

func TestClearCommandConfirmed(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /knowledge-base": `{"status": "cleared"}`,
	})
	withTestClient(t, ts)

	clearCmd.Flags().Set("confirm", "true")
	t.Cleanup(func() { clearCmd.Flags().Set("confirm", "false") })

	if err := runCommand(t, clearCmd, nil); err != nil {
		t.Fatalf("clear --confirm: %v", err)
	}
	if got := ts.requests[0].Method; got != "DELETE" {
		t.Errorf("method = %q", got)
	}
}

func TestSaveAndLoadCommands(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /knowledge-base/save": `{"status": "saved", "path": "/data/knowledge"}`,
		"POST /knowledge-base/load": `{"status": "loaded", "path": "/data/knowledge"}`,
	})
	withTestClient(t, ts)

	if err := runCommand(t, saveCmd, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := runCommand(t, loadCmd, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestTaskCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /tasks/t-1": `{"id": "t-1", "status": "running", "progress": 3, "total": 10}`,
	})
	withTestClient(t, ts)

	if err := runCommand(t, taskCmd, []string{"t-1"}); err != nil {
		t.Fatalf("task: %v", err)
	}
}

func TestTaskCommandServerError(t *testing.T) {
	ts := newTestServer(t, nil)
	withTestClient(t, ts)

	err := runCommand(t, taskCmd, []string{"missing"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err = %v, want 404 surfaced", err)
	}
}

func TestClientHonorsCancelledContext(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /stats": `{"total_chunks": 0, "dimensionality": 0}`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ts.client().get(ctx, "/stats")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(ts.requests) != 0 {
		t.Error("request reached the server despite cancelled context")
	}
}
