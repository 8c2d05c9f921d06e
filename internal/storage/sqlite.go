package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"todoreminder/internal/todo"
	"todoreminder/internal/user"
	logx "todoreminder/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const todoColumns = `id, user_id, title, description, status, remind_at, created_at, updated_at, version`

// sqliteStore keeps timestamps as unix nanoseconds so UpdatedAt ordering
// survives the round trip without precision loss.
type sqliteStore struct {
	db    *sql.DB
	log   logx.Logger
	clock todo.Clock
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	clock := cfg.Clock
	if clock == nil {
		clock = todo.SystemClock
	}
	st := &sqliteStore{db: db, log: log, clock: clock}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Driver() string { return "sqlite" }

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, in todo.NewTodo) (todo.Todo, error) {
	now := s.clock.Now().UTC()
	t := cloneTodo(todo.Todo{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		RemindAt:    in.RemindAt,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	})
	if t.Status == "" {
		t.Status = todo.StatusPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO todos(`+todoColumns+`) VALUES(?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Description, string(t.Status), nullNanos(t.RemindAt),
		t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano(), t.Version,
	)
	if err != nil {
		return todo.Todo{}, err
	}
	return t, nil
}

// Update runs read-check-write in one transaction and guards the write with
// the version it read, so a concurrent writer surfaces as ErrConflict.
func (s *sqliteStore) Update(ctx context.Context, id string, p todo.Patch) (todo.Todo, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return todo.Todo{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanTodo(tx.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return todo.Todo{}, false, nil
	}
	if err != nil {
		return todo.Todo{}, false, err
	}
	if err := checkPreconditions(cur, p); err != nil {
		return todo.Todo{}, true, err
	}

	next := applyPatch(cur, p, s.clock.Now())
	res, err := tx.ExecContext(ctx,
		`UPDATE todos SET status = ?, description = ?, remind_at = ?, updated_at = ?, version = ?
		 WHERE id = ? AND version = ?`,
		string(next.Status), next.Description, nullNanos(next.RemindAt), next.UpdatedAt.UnixNano(), next.Version,
		id, cur.Version,
	)
	if err != nil {
		return todo.Todo{}, true, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return todo.Todo{}, true, err
	} else if n == 0 {
		return todo.Todo{}, true, todo.ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return todo.Todo{}, true, err
	}
	return next, true, nil
}

func (s *sqliteStore) FindByID(ctx context.Context, id string) (todo.Todo, bool, error) {
	t, err := scanTodo(s.db.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return todo.Todo{}, false, nil
	}
	if err != nil {
		return todo.Todo{}, false, err
	}
	return t, true, nil
}

func (s *sqliteStore) FindByUserID(ctx context.Context, userID string) ([]todo.Todo, error) {
	return s.queryTodos(ctx, `SELECT `+todoColumns+` FROM todos WHERE user_id = ?`, userID)
}

func (s *sqliteStore) FindDueReminders(ctx context.Context, now time.Time) ([]todo.Todo, error) {
	return s.queryTodos(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE status = ? AND remind_at IS NOT NULL AND remind_at <= ?`,
		string(todo.StatusPending), now.UnixNano(),
	)
}

func (s *sqliteStore) queryTodos(ctx context.Context, query string, args ...any) ([]todo.Todo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []todo.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateUser(ctx context.Context, in user.NewUser) (user.User, error) {
	u := user.User{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(in.Email),
		Name:      strings.TrimSpace(in.Name),
		CreatedAt: s.clock.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, email, name, created_at) VALUES(?,?,?,?)`,
		u.ID, u.Email, u.Name, u.CreatedAt.UnixNano(),
	)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *sqliteStore) FindUser(ctx context.Context, id string) (user.User, bool, error) {
	var (
		u       user.User
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, email, name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, false, nil
	}
	if err != nil {
		return user.User{}, false, err
	}
	u.CreatedAt = time.Unix(0, created).UTC()
	return u, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(r rowScanner) (todo.Todo, error) {
	var (
		t                  todo.Todo
		status             string
		remindAt           sql.NullInt64
		created, updatedAt int64
	)
	if err := r.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &status, &remindAt, &created, &updatedAt, &t.Version); err != nil {
		return todo.Todo{}, err
	}
	t.Status = todo.Status(status)
	if remindAt.Valid {
		at := time.Unix(0, remindAt.Int64).UTC()
		t.RemindAt = &at
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return t, nil
}

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
