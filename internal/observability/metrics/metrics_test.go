package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"todoreminder/internal/eventbus"
)

func TestMiddlewareLabelsByPattern(t *testing.T) {
	t.Parallel()
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /todos/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.Middleware(mux)

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPatch, "/todos/"+id+"/complete", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodPatch, "PATCH /todos/{id}/complete", "404")); got != 3 {
		t.Fatalf("pattern count = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in flight = %v", got)
	}
}

func TestObserveAndHandler(t *testing.T) {
	t.Parallel()
	m := New()
	m.Observe(eventbus.Event{Type: "todo.created"})
	m.Observe(eventbus.Event{Type: "todo.created"})
	m.Observe(eventbus.Event{Type: "todo.reminder_due"})

	if got := testutil.ToFloat64(m.events.WithLabelValues("todo.created")); got != 2 {
		t.Fatalf("created = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `todo_events_total{type="todo.reminder_due"} 1`) {
		t.Fatalf("metrics output missing event counter:\n%s", body)
	}
}
