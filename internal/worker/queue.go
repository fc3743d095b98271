// Package worker runs queued dispatches in the background. Jobs live in a
// side SQLite file next to the main database (<db>.queue) so the CLI can
// enqueue without holding the graph store open.
package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/liminalcommons/chora-cvm/internal/engine"
)

// Job statuses.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// Job is one queued dispatch.
type Job struct {
	ID         string
	Intent     string
	Inputs     map[string]any
	PersonaID  string
	StateID    string
	Status     string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Result     *engine.DispatchResult
}

const queueSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    intent      TEXT NOT NULL,
    inputs_json TEXT NOT NULL DEFAULT '{}',
    persona_id  TEXT NOT NULL DEFAULT '',
    state_id    TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'pending',
    created_at  TEXT NOT NULL,
    started_at  TEXT,
    finished_at TEXT,
    result_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
`

// Queue is the job table handle. Open one per process; the single
// connection serializes claim updates.
type Queue struct {
	db   *sql.DB
	path string
}

// QueuePath derives the queue file location from the main database path.
func QueuePath(dbPath string) string {
	return dbPath + ".queue"
}

// OpenQueue opens (creating if necessary) the queue database.
func OpenQueue(ctx context.Context, path string) (*Queue, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, queueSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create queue schema: %w", err)
	}
	return &Queue{db: db, path: path}, nil
}

// Path returns the queue file path.
func (q *Queue) Path() string { return q.path }

// Close releases the queue handle.
func (q *Queue) Close() error { return q.db.Close() }

// Enqueue adds a pending job and returns its id (generated when empty).
func (q *Queue) Enqueue(ctx context.Context, job *Job) (string, error) {
	if job.ID == "" {
		job.ID = "job-" + uuid.NewString()
	}
	inputs := job.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("failed to encode job inputs: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, intent, inputs_json, persona_id, state_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Intent, string(inputsJSON), job.PersonaID, job.StateID,
		JobPending, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

// Claim atomically moves the oldest pending job to running and returns it.
// Returns nil when the queue is empty.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, intent, inputs_json, persona_id, state_id, created_at
		FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`, JobPending)

	var job Job
	var inputsJSON, createdAt string
	err = row.Scan(&job.ID, &job.Intent, &inputsJSON, &job.PersonaID, &job.StateID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending job: %w", err)
	}

	if err := json.Unmarshal([]byte(inputsJSON), &job.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode job inputs: %w", err)
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	started := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
		JobRunning, started.Format(time.RFC3339Nano), job.ID); err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = JobRunning
	job.StartedAt = &started
	return &job, nil
}

// Complete records a job's dispatch result and final status.
func (q *Queue) Complete(ctx context.Context, jobID string, result engine.DispatchResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode job result: %w", err)
	}
	status := JobDone
	if !result.OK {
		status = JobError
	}

	_, err = q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, result_json = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339Nano), string(resultJSON), jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	return nil
}

// Get loads one job with its recorded result.
func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, intent, inputs_json, persona_id, state_id, status,
		       created_at, started_at, finished_at, result_json
		FROM jobs WHERE id = ?`, jobID)

	var job Job
	var inputsJSON, createdAt string
	var startedAt, finishedAt, resultJSON sql.NullString
	err := row.Scan(&job.ID, &job.Intent, &inputsJSON, &job.PersonaID, &job.StateID,
		&job.Status, &createdAt, &startedAt, &finishedAt, &resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if err := json.Unmarshal([]byte(inputsJSON), &job.Inputs); err != nil {
		return nil, fmt.Errorf("failed to decode job inputs: %w", err)
	}
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, startedAt.String)
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
		job.FinishedAt = &t
	}
	if resultJSON.Valid {
		var result engine.DispatchResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		job.Result = &result
	}
	return &job, nil
}

// CountByStatus tallies jobs per status.
func (q *Queue) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
