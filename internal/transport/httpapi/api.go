package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"todoreminder/internal/todo"
	"todoreminder/internal/user"
	logx "todoreminder/pkg/logx"
)

const maxBodyBytes = 1 << 20

// TodoService is the lifecycle surface the API exposes.
type TodoService interface {
	CreateTodo(ctx context.Context, in todo.CreateInput) (todo.Todo, error)
	CompleteTodo(ctx context.Context, id string) (todo.Todo, error)
	TodosByUser(ctx context.Context, userID string) ([]todo.Todo, error)
}

type UserCreator interface {
	CreateUser(ctx context.Context, in user.NewUser) (user.User, error)
}

// HealthFunc returns extra detail merged into GET /health.
type HealthFunc func(ctx context.Context) map[string]any

// API maps HTTP requests onto the todo service.
type API struct {
	todos  TodoService
	users  UserCreator
	health HealthFunc
	log    logx.Logger
}

func NewAPI(todos TodoService, users UserCreator, health HealthFunc, log logx.Logger) *API {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &API{todos: todos, users: users, health: health, log: log}
}

// Routes registers every endpoint on a fresh mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users", a.createUser)
	mux.HandleFunc("POST /todos", a.createTodo)
	mux.HandleFunc("GET /todos", a.listTodos)
	mux.HandleFunc("PATCH /todos/{id}/complete", a.completeTodo)
	mux.HandleFunc("GET /health", a.healthz)
	return mux
}

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type createTodoRequest struct {
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	RemindAt    string `json:"remindAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !a.decode(w, r, &req) {
		return
	}
	in, err := user.ParseNewUser(req.Email, req.Name)
	if err != nil {
		a.fail(w, r, err, "failed to create user")
		return
	}
	u, err := a.users.CreateUser(r.Context(), in)
	if err != nil {
		a.fail(w, r, err, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) createTodo(w http.ResponseWriter, r *http.Request) {
	var req createTodoRequest
	if !a.decode(w, r, &req) {
		return
	}
	t, err := a.todos.CreateTodo(r.Context(), todo.CreateInput{
		UserID:      req.UserID,
		Title:       req.Title,
		Description: req.Description,
		RemindAt:    req.RemindAt,
	})
	if err != nil {
		a.fail(w, r, err, "failed to create todo")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) listTodos(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "userId query parameter is required"})
		return
	}
	list, err := a.todos.TodosByUser(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err, "failed to fetch todos")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) completeTodo(w http.ResponseWriter, r *http.Request) {
	t, err := a.todos.CompleteTodo(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err, "failed to complete todo")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{}
	if a.health != nil {
		for k, v := range a.health(r.Context()) {
			body[k] = v
		}
	}
	body["status"] = "ok"
	writeJSON(w, http.StatusOK, body)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return false
	}
	return true
}

// fail maps domain errors to status codes. Unexpected errors are logged and
// answered with a generic message.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, generic string) {
	switch {
	case errors.Is(err, todo.ErrValidation), errors.Is(err, user.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, todo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, todo.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		a.log.Error("request failed", logx.String("method", r.Method), logx.String("path", r.URL.Path), logx.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: generic})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
