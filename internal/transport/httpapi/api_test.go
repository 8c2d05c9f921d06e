package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"todoreminder/internal/storage"
	"todoreminder/internal/todo"
	"todoreminder/internal/user"
	logx "todoreminder/pkg/logx"
)

type testClock struct{ t time.Time }

func (c testClock) Now() time.Time { return c.t }

func newTestAPI(t *testing.T) (*API, *storage.Memory) {
	t.Helper()
	st := storage.NewMemory(testClock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)})
	svc := todo.NewService(st, st)
	health := func(context.Context) map[string]any { return map[string]any{"storage": "memory"} }
	return NewAPI(svc, st, health, logx.Nop()), st
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.RemoteAddr = "192.0.2.10:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestTodoFlow(t *testing.T) {
	t.Parallel()
	api, _ := newTestAPI(t)
	h := api.Routes()

	rec := do(t, h, http.MethodPost, "/users", map[string]string{"email": "a@example.com", "name": "Ann"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user status = %d body=%s", rec.Code, rec.Body)
	}
	u := decodeBody[user.User](t, rec)

	rec = do(t, h, http.MethodPost, "/todos", map[string]string{
		"userId":   u.ID,
		"title":    "  water plants ",
		"remindAt": "2024-06-01T09:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create todo status = %d body=%s", rec.Code, rec.Body)
	}
	created := decodeBody[todo.Todo](t, rec)
	if created.Title != "water plants" || created.Status != todo.StatusPending || created.RemindAt == nil {
		t.Fatalf("created = %+v", created)
	}

	rec = do(t, h, http.MethodGet, "/todos?userId="+u.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if list := decodeBody[[]todo.Todo](t, rec); len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	rec = do(t, h, http.MethodPatch, "/todos/"+created.ID+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d body=%s", rec.Code, rec.Body)
	}
	if done := decodeBody[todo.Todo](t, rec); done.Status != todo.StatusDone {
		t.Fatalf("status after complete = %s", done.Status)
	}

	// Completing again is idempotent.
	rec = do(t, h, http.MethodPatch, "/todos/"+created.ID+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second complete status = %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	api, st := newTestAPI(t)
	h := api.Routes()
	owner, err := st.CreateUser(context.Background(), user.NewUser{Email: "o@example.com", Name: "O"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{name: "missing body", method: http.MethodPost, target: "/todos", want: http.StatusBadRequest},
		{name: "bad json", method: http.MethodPost, target: "/todos", body: "{", want: http.StatusBadRequest},
		{name: "blank title", method: http.MethodPost, target: "/todos", body: map[string]string{"userId": owner.ID, "title": "  "}, want: http.StatusBadRequest},
		{name: "bad remindAt", method: http.MethodPost, target: "/todos", body: map[string]string{"userId": owner.ID, "title": "x", "remindAt": "tomorrow"}, want: http.StatusBadRequest},
		{name: "unknown owner", method: http.MethodPost, target: "/todos", body: map[string]string{"userId": "ghost", "title": "x"}, want: http.StatusNotFound},
		{name: "blank user email", method: http.MethodPost, target: "/users", body: map[string]string{"email": " ", "name": "x"}, want: http.StatusBadRequest},
		{name: "list without userId", method: http.MethodGet, target: "/todos", want: http.StatusBadRequest},
		{name: "complete unknown", method: http.MethodPatch, target: "/todos/nope/complete", want: http.StatusNotFound},
		{name: "wrong method", method: http.MethodDelete, target: "/todos", want: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

type failingTodos struct{}

func (failingTodos) CreateTodo(context.Context, todo.CreateInput) (todo.Todo, error) {
	return todo.Todo{}, errors.New("disk on fire")
}

func (failingTodos) CompleteTodo(context.Context, string) (todo.Todo, error) {
	return todo.Todo{}, todo.ErrConflict
}

func (failingTodos) TodosByUser(context.Context, string) ([]todo.Todo, error) {
	panic("boom")
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	t.Parallel()
	api := NewAPI(failingTodos{}, nil, nil, logx.Nop())
	h := withLogging(logx.Nop(), api.Routes())

	rec := do(t, h, http.MethodPost, "/todos", map[string]string{"userId": "u", "title": "x"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[errorResponse](t, rec); got.Error != "failed to create todo" {
		t.Fatalf("error leaked: %q", got.Error)
	}

	if rec := do(t, h, http.MethodPatch, "/todos/x/complete", nil); rec.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/todos?userId=u", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	api, _ := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" || body["storage"] != "memory" {
		t.Fatalf("body = %v", body)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	api, _ := newTestAPI(t)
	h := withRateLimit(newClientLimiter(0.001, 2), api.Routes())

	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d retry-after=%q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func TestClientLimiterSweepsIdle(t *testing.T) {
	t.Parallel()
	l := newClientLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.lastSweep = now
	if !l.allow("a", now) {
		t.Fatal("first request denied")
	}
	if !l.allow("b", now.Add(10*time.Minute)) {
		t.Fatal("other client denied")
	}
	l.mu.Lock()
	_, kept := l.clients["a"]
	l.mu.Unlock()
	if kept {
		t.Fatal("idle client was not swept")
	}
}
