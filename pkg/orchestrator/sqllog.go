package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/strandkit/strand/pkg/config"
)

const createTasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id VARCHAR(255) PRIMARY KEY,
    kind VARCHAR(100) NOT NULL,
    payload TEXT,
    state VARCHAR(20) NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL,
    claim_token VARCHAR(255),
    lease_until TIMESTAMP,
    next_attempt_at TIMESTAMP,
    last_error TEXT,
    result TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
CREATE INDEX IF NOT EXISTS idx_tasks_finished_at ON tasks(finished_at);
`

// SQLLog persists tasks in sqlite, postgres, or mysql. The claim and
// idle-cancel transitions are single UPDATE statements guarded on the
// current state, so concurrent workers race safely.
type SQLLog struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

func NewSQLLog(cfg config.StoreConfig, logger *slog.Logger) (*SQLLog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(cfg.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open task log database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s task log: %w", cfg.Backend, err)
	}

	l := &SQLLog{db: db, dialect: cfg.Backend, logger: logger}
	if _, err := db.ExecContext(ctx, createTasksTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize task log schema: %w", err)
	}
	return l, nil
}

func (l *SQLLog) rebind(query string) string {
	if l.dialect != "postgres" {
		return query
	}
	var out []byte
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
		} else {
			out = append(out, query[i])
		}
	}
	return string(out)
}

func (l *SQLLog) Append(ctx context.Context, task *Task) error {
	query := l.rebind(`
INSERT INTO tasks (id, kind, payload, state, attempts, max_attempts, claim_token,
                   lease_until, next_attempt_at, last_error, result, created_at, updated_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := l.db.ExecContext(ctx, query,
		task.ID, task.Kind, string(task.Payload), string(task.State),
		task.Attempts, task.MaxAttempts, task.ClaimToken,
		nullTime(task.LeaseUntil), nullTime(task.NextAttemptAt),
		task.LastError, string(task.Result),
		task.CreatedAt, task.UpdatedAt, nullTime(task.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append task: %w", err)
	}
	return nil
}

func (l *SQLLog) Get(ctx context.Context, id string) (*Task, error) {
	query := l.rebind(`
SELECT id, kind, payload, state, attempts, max_attempts, claim_token,
       lease_until, next_attempt_at, last_error, result, created_at, updated_at, finished_at
FROM tasks WHERE id = ?`)

	task, err := scanTask(l.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

func (l *SQLLog) Update(ctx context.Context, task *Task) error {
	query := l.rebind(`
UPDATE tasks SET state = ?, attempts = ?, claim_token = ?, lease_until = ?,
       next_attempt_at = ?, last_error = ?, result = ?, updated_at = ?, finished_at = ?
WHERE id = ?`)

	result, err := l.db.ExecContext(ctx, query,
		string(task.State), task.Attempts, task.ClaimToken,
		nullTime(task.LeaseUntil), nullTime(task.NextAttemptAt),
		task.LastError, string(task.Result), task.UpdatedAt, nullTime(task.FinishedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (l *SQLLog) UpdateClaimed(ctx context.Context, task *Task, token string) (bool, error) {
	query := l.rebind(`
UPDATE tasks SET state = ?, attempts = ?, claim_token = ?, lease_until = ?,
       next_attempt_at = ?, last_error = ?, result = ?, updated_at = ?, finished_at = ?
WHERE id = ? AND state = ? AND claim_token = ?`)

	result, err := l.db.ExecContext(ctx, query,
		string(task.State), task.Attempts, task.ClaimToken,
		nullTime(task.LeaseUntil), nullTime(task.NextAttemptAt),
		task.LastError, string(task.Result), task.UpdatedAt, nullTime(task.FinishedAt),
		task.ID, string(StateRunning), token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update claimed task: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (l *SQLLog) Delete(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx, l.rebind(`DELETE FROM tasks WHERE id = ?`), id)
	return err
}

func (l *SQLLog) Claim(ctx context.Context, id, token string, leaseUntil time.Time) (*Task, bool, error) {
	now := time.Now()
	query := l.rebind(`
UPDATE tasks SET state = ?, claim_token = ?, lease_until = ?, updated_at = ?
WHERE id = ? AND (state = ? OR (state = ? AND next_attempt_at <= ?))`)

	result, err := l.db.ExecContext(ctx, query,
		string(StateRunning), token, leaseUntil, now,
		id, string(StatePending), string(StateRetrying), now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim task: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, false, nil
	}

	task, err := l.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

func (l *SQLLog) RenewLease(ctx context.Context, id, token string, leaseUntil time.Time) (bool, error) {
	query := l.rebind(`
UPDATE tasks SET lease_until = ?, updated_at = ?
WHERE id = ? AND state = ? AND claim_token = ?`)

	result, err := l.db.ExecContext(ctx, query, leaseUntil, time.Now(), id, string(StateRunning), token)
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (l *SQLLog) CancelIfIdle(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	query := l.rebind(`
UPDATE tasks SET state = ?, last_error = ?, updated_at = ?, finished_at = ?
WHERE id = ? AND state IN (?, ?)`)

	result, err := l.db.ExecContext(ctx, query,
		string(StateCancelled), "cancelled", now, now,
		id, string(StatePending), string(StateRetrying),
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (l *SQLLog) ListNonTerminal(ctx context.Context) ([]*Task, error) {
	query := l.rebind(`
SELECT id, kind, payload, state, attempts, max_attempts, claim_token,
       lease_until, next_attempt_at, last_error, result, created_at, updated_at, finished_at
FROM tasks WHERE state IN (?, ?, ?) ORDER BY created_at ASC`)

	rows, err := l.db.QueryContext(ctx, query,
		string(StatePending), string(StateRunning), string(StateRetrying))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (l *SQLLog) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := l.rebind(`DELETE FROM tasks WHERE state IN (?, ?, ?) AND finished_at < ?`)
	result, err := l.db.ExecContext(ctx, query,
		string(StateCompleted), string(StateFailed), string(StateCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune tasks: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (l *SQLLog) Close() error { return l.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var task Task
	var payload, result, lastError, claimToken sql.NullString
	var state string
	var leaseUntil, nextAttemptAt, finishedAt sql.NullTime

	err := row.Scan(&task.ID, &task.Kind, &payload, &state, &task.Attempts, &task.MaxAttempts,
		&claimToken, &leaseUntil, &nextAttemptAt, &lastError, &result,
		&task.CreatedAt, &task.UpdatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	task.State = TaskState(state)
	if payload.Valid && payload.String != "" {
		task.Payload = []byte(payload.String)
	}
	if result.Valid && result.String != "" {
		task.Result = []byte(result.String)
	}
	task.LastError = lastError.String
	task.ClaimToken = claimToken.String
	if leaseUntil.Valid {
		task.LeaseUntil = leaseUntil.Time
	}
	if nextAttemptAt.Valid {
		task.NextAttemptAt = nextAttemptAt.Time
	}
	if finishedAt.Valid {
		task.FinishedAt = finishedAt.Time
	}
	return &task, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
