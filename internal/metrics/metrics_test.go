package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := New()
	b := New()
	a.CacheTotal.WithLabelValues("memory", "hit").Inc()
	b.CacheTotal.WithLabelValues("memory", "hit").Inc()
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.EmbeddingsTotal.WithLabelValues("ok").Add(3)
	m.IngestedChunksTotal.Add(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`finsight_embeddings_total{result="ok"} 3`,
		"finsight_ingested_chunks_total 7",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/abc123", nil))

	expo := httptest.NewRecorder()
	m.Handler().ServeHTTP(expo, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := expo.Body.String()
	if !strings.Contains(body, `path="/tasks/{id}"`) {
		t.Errorf("expected route pattern label, got:\n%s", body)
	}
	if strings.Contains(body, "abc123") {
		t.Error("raw path leaked into metric labels")
	}
	if !strings.Contains(body, `status="404"`) {
		t.Error("status code label missing")
	}
}
