package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"pingflow/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

const sqliteSchema = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  target TEXT NOT NULL,
  interval_minutes INTEGER NOT NULL CHECK(interval_minutes BETWEEN 1 AND 1440),
  description TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK(status IN ('active','paused','error')) DEFAULT 'active',
  last_run DATETIME,
  next_run DATETIME,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, next_run);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  target TEXT NOT NULL,
  interval_minutes INTEGER NOT NULL CHECK (interval_minutes BETWEEN 1 AND 1440),
  description TEXT NOT NULL DEFAULT '',
  status VARCHAR(20) NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'paused', 'error')),
  last_run TIMESTAMPTZ,
  next_run TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, next_run);
`

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == DriverPostgres {
		schema = postgresSchema
	}
	_, err := db.Exec(schema)
	return err
}

// Open connects to driver. A bare SQLite path is expanded into a DSN with
// WAL enabled.
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			dsn = fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", dsn)
		}
		db, err := sqlx.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1) // SQLite single writer
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case DriverPostgres:
		return sqlx.Connect(DriverPostgres, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

const taskColumns = `id, owner_id, target, interval_minutes, description, status, last_run, next_run, created_at, updated_at`

type taskRow struct {
	ID              string       `db:"id"`
	OwnerID         string       `db:"owner_id"`
	Target          string       `db:"target"`
	IntervalMinutes int          `db:"interval_minutes"`
	Description     string       `db:"description"`
	Status          string       `db:"status"`
	LastRun         sql.NullTime `db:"last_run"`
	NextRun         sql.NullTime `db:"next_run"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (r taskRow) task() domain.Task {
	target, err := domain.DecodeTarget(r.Target)
	if err != nil {
		target = domain.RawTarget(r.Target)
	}
	t := domain.Task{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		Target:          target,
		IntervalMinutes: r.IntervalMinutes,
		Description:     r.Description,
		Status:          domain.Status(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.LastRun.Valid {
		lr := r.LastRun.Time
		t.LastRun = &lr
	}
	if r.NextRun.Valid {
		nr := r.NextRun.Time
		t.NextRun = &nr
	}
	return t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// SQL is a Store backed by SQLite or Postgres through sqlx.
type SQL struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQL(db *sqlx.DB) *SQL { return &SQL{db: db, now: time.Now} }

// DB returns the underlying database connection.
func (s *SQL) DB() *sqlx.DB { return s.db }

func (s *SQL) selectTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.task())
	}
	return tasks, nil
}

func (s *SQL) FindDue(ctx context.Context, now time.Time) ([]domain.Task, error) {
	tasks, err := s.selectTasks(ctx, `
SELECT `+taskColumns+`
FROM tasks
WHERE status = ? AND next_run IS NOT NULL AND next_run <= ?
ORDER BY next_run`, string(domain.StatusActive), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("find due tasks: %w", err)
	}
	return tasks, nil
}

func (s *SQL) Get(ctx context.Context, owner, id string) (domain.Task, error) {
	var r taskRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`), id, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return r.task(), nil
}

func (s *SQL) List(ctx context.Context, owner string, page, limit int) (Page, error) {
	page, limit = NormalizePage(page, limit)
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM tasks WHERE owner_id = ?`), owner); err != nil {
		return Page{}, fmt.Errorf("count tasks: %w", err)
	}
	tasks, err := s.selectTasks(ctx, `
SELECT `+taskColumns+`
FROM tasks WHERE owner_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`, owner, limit, (page-1)*limit)
	if err != nil {
		return Page{}, fmt.Errorf("list tasks: %w", err)
	}
	return Page{Tasks: tasks, Page: page, TotalPages: totalPages(total, limit), TotalTasks: total}, nil
}

func (s *SQL) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
INSERT INTO tasks (`+taskColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?)`),
		t.ID, t.OwnerID, t.Target.Encode(), t.IntervalMinutes, t.Description, string(t.Status),
		nullTime(t.LastRun), nullTime(t.NextRun), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// Update applies the patch and reads the row back inside one transaction,
// so every field in the patch lands together or not at all.
func (s *SQL) Update(ctx context.Context, owner, id string, p domain.Patch) (domain.Task, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Target != nil {
		set("target", p.Target.Encode())
	}
	if p.IntervalMinutes != nil {
		set("interval_minutes", *p.IntervalMinutes)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.LastRun != nil {
		set("last_run", p.LastRun.UTC())
	}
	if p.NextRun != nil {
		set("next_run", p.NextRun.UTC())
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	set("updated_at", updatedAt.UTC())
	args = append(args, id, owner)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND owner_id = ?`), args...)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Task{}, fmt.Errorf("update task %s: %w", id, err)
	} else if n == 0 {
		return domain.Task{}, ErrNotFound
	}

	var r taskRow
	if err := tx.GetContext(ctx, &r, tx.Rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`), id, owner); err != nil {
		return domain.Task{}, fmt.Errorf("reload task %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, fmt.Errorf("commit task %s: %w", id, err)
	}
	return r.task(), nil
}

func (s *SQL) Delete(ctx context.Context, owner, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM tasks WHERE id = ? AND owner_id = ?`), id, owner)
	if err != nil {
		return false, fmt.Errorf("delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
