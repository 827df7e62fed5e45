// Package history persists finished edit requests for the /stats command.
// Recording is best-effort and optional; without a database the bot runs
// with the no-op recorder and stays fully stateless.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Record is one finished edit request.
type Record struct {
	UserID     int64         `db:"user_id"`
	ChatID     int64         `db:"chat_id"`
	Prompt     string        `db:"prompt"`
	Outcome    string        `db:"outcome"`
	ResultKind string        `db:"result_kind"`
	Duration   time.Duration `db:"-"`
}

// Outcome values stored per request.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Stats aggregates stored edit requests.
type Stats struct {
	Total       int64   `db:"total"`
	Succeeded   int64   `db:"succeeded"`
	Failed      int64   `db:"failed"`
	UniqueUsers int64   `db:"unique_users"`
	AvgDuration float64 `db:"avg_duration_ms"`
}

// Recorder stores finished edit requests and answers aggregate queries.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Stats(ctx context.Context) (Stats, error)
}

type sqlRecorder struct {
	db *sqlx.DB
}

// NewSQLRecorder returns a Recorder backed by the edit_requests table.
func NewSQLRecorder(db *sqlx.DB) Recorder {
	return &sqlRecorder{db: db}
}

func (r *sqlRecorder) Record(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO edit_requests (user_id, chat_id, prompt, outcome, result_kind, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query,
		rec.UserID, rec.ChatID, rec.Prompt, rec.Outcome, rec.ResultKind, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert edit request: %w", err)
	}
	return nil
}

func (r *sqlRecorder) Stats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			COUNT(*)                                        AS total,
			COUNT(*) FILTER (WHERE outcome = 'ok')          AS succeeded,
			COUNT(*) FILTER (WHERE outcome <> 'ok')         AS failed,
			COUNT(DISTINCT user_id)                         AS unique_users,
			COALESCE(AVG(duration_ms), 0)                   AS avg_duration_ms
		FROM edit_requests`
	var stats Stats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return Stats{}, fmt.Errorf("query edit stats: %w", err)
	}
	return stats, nil
}

type noopRecorder struct{}

// NewNoop returns a Recorder that stores nothing, used when the database
// section of the config is left empty.
func NewNoop() Recorder {
	return noopRecorder{}
}

func (noopRecorder) Record(context.Context, Record) error { return nil }

func (noopRecorder) Stats(context.Context) (Stats, error) { return Stats{}, nil }
