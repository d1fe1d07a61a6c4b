// Package audit persists whole-call transcripts after a call ends.
//
// The store receives the transcript exactly once per call, at teardown.
// Recording is best-effort: a failed write is logged and the call teardown
// continues, because losing an audit row must never wedge the telephony
// boundary.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxdesk/voxdesk/pkg/types"
)

// Record is the audit row for one completed call.
type Record struct {
	// CallID is the telephony call identifier.
	CallID string

	// CallerNumber is the caller's origin identifier. May be empty.
	CallerNumber string

	// StartedAt is when the call began.
	StartedAt time.Time

	// EndedAt is when the call ended.
	EndedAt time.Time

	// FinalStatus is the session's terminal status ("ended" or "escalated").
	FinalStatus string

	// Transcript is the full spoken exchange in order.
	Transcript []types.TranscriptEntry
}

// Recorder persists call records.
type Recorder interface {
	// RecordCall stores one completed call. Implementations must be safe
	// for concurrent use.
	RecordCall(ctx context.Context, rec Record) error
}

// schema creates the transcript tables. Applied on startup; all statements
// are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS calls (
	call_id       TEXT PRIMARY KEY,
	caller_number TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	ended_at      TIMESTAMPTZ NOT NULL,
	final_status  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS call_transcripts (
	id         BIGSERIAL PRIMARY KEY,
	call_id    TEXT NOT NULL REFERENCES calls(call_id) ON DELETE CASCADE,
	seq        INT NOT NULL,
	spoken_at  TIMESTAMPTZ NOT NULL,
	speaker    TEXT NOT NULL,
	department TEXT NOT NULL,
	line       TEXT NOT NULL,
	UNIQUE (call_id, seq)
);

CREATE INDEX IF NOT EXISTS call_transcripts_call_id_idx ON call_transcripts (call_id);
`

// PostgresRecorder stores call records in PostgreSQL via a pgx connection
// pool.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

var _ Recorder = (*PostgresRecorder)(nil)

// NewPostgres connects to the database at dsn and ensures the transcript
// schema exists.
func NewPostgres(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}
	return &PostgresRecorder{pool: pool}, nil
}

// RecordCall inserts the call row and its transcript lines in one
// transaction.
func (r *PostgresRecorder) RecordCall(ctx context.Context, rec Record) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("audit: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO calls (call_id, caller_number, started_at, ended_at, final_status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (call_id) DO NOTHING`,
		rec.CallID, rec.CallerNumber, rec.StartedAt, rec.EndedAt, rec.FinalStatus,
	)
	if err != nil {
		return fmt.Errorf("audit: insert call %q: %w", rec.CallID, err)
	}

	for i, entry := range rec.Transcript {
		_, err = tx.Exec(ctx,
			`INSERT INTO call_transcripts (call_id, seq, spoken_at, speaker, department, line)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (call_id, seq) DO NOTHING`,
			rec.CallID, i, entry.Timestamp, string(entry.Speaker), string(entry.Department), entry.Text,
		)
		if err != nil {
			return fmt.Errorf("audit: insert transcript line %d for call %q: %w", i, rec.CallID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("audit: commit call %q: %w", rec.CallID, err)
	}
	return nil
}

// Ping probes database connectivity, for readiness checks.
func (r *PostgresRecorder) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *PostgresRecorder) Close() {
	r.pool.Close()
}

// LogRecorder writes call records to the structured log. It is the fallback
// when no database is configured and keeps deployments observable without
// one.
type LogRecorder struct {
	logger *slog.Logger
}

var _ Recorder = (*LogRecorder)(nil)

// NewLogRecorder creates a [LogRecorder]. A nil logger uses the default.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

// RecordCall logs the call summary and each transcript line.
func (r *LogRecorder) RecordCall(ctx context.Context, rec Record) error {
	r.logger.InfoContext(ctx, "call completed",
		"call_id", rec.CallID,
		"caller_number", rec.CallerNumber,
		"started_at", rec.StartedAt,
		"ended_at", rec.EndedAt,
		"final_status", rec.FinalStatus,
		"lines", len(rec.Transcript),
	)
	for i, entry := range rec.Transcript {
		r.logger.InfoContext(ctx, "transcript line",
			"call_id", rec.CallID,
			"seq", i,
			"speaker", string(entry.Speaker),
			"department", string(entry.Department),
			"line", entry.Text,
		)
	}
	return nil
}
