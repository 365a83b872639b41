// Package journal keeps a SQLite record of assistant sessions and what was
// delivered in them. Audio is never stored, only text and outcomes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loqalabs/loqa-voice/internal/config"
)

const (
	ModeEphemeral  = "ephemeral"
	ModeSession    = "session"
	ModePersistent = "persistent"
)

// Session is one run of the assistant (interactive loop, single interaction,
// self-test or bus client).
type Session struct {
	ID        string
	Mode      string
	Language  string
	StartedAt time.Time
	EndedAt   time.Time
}

// Entry is one processed input and how its response was delivered.
type Entry struct {
	ID        int64
	SessionID string
	Input     string
	Response  string
	Outcome   string
	Strategy  string
	Played    int
	Attempted int
	Duration  time.Duration
	CreatedAt time.Time
}

// Journal is a no-op when retention mode is ephemeral.
type Journal struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	log = log.With(slog.String("component", "journal"))
	if cfg.RetentionMode == ModeEphemeral {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}
	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    mode TEXT,
    language TEXT,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    input TEXT,
    response TEXT,
    outcome TEXT NOT NULL,
    strategy TEXT,
    played INTEGER NOT NULL DEFAULT 0,
    attempted INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_deliveries_session_created ON deliveries(session_id, created_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

func (j *Journal) disabled() bool {
	return j.cfg.RetentionMode == ModeEphemeral || j.db == nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// StartSession records a session row; starting an existing session again
// refreshes its mode and language.
func (j *Journal) StartSession(ctx context.Context, s Session) error {
	if j.disabled() {
		return nil
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = j.clock().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, mode, language, started_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET mode=excluded.mode, language=excluded.language`,
		s.ID, s.Mode, s.Language, s.StartedAt)
	return err
}

// EndSession closes a session. In session retention mode its rows are
// dropped; in persistent mode only the end time is stored.
func (j *Journal) EndSession(ctx context.Context, sessionID string) error {
	if j.disabled() {
		return nil
	}
	if j.cfg.RetentionMode == ModeSession {
		_, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
		return err
	}
	_, err := j.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE session_id = ?`,
		j.clock().UTC(), sessionID)
	return err
}

// Record appends a delivery entry to its session.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j.disabled() {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.clock().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO deliveries(session_id, input, response, outcome, strategy, played, attempted, duration_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Input, e.Response, e.Outcome, e.Strategy, e.Played, e.Attempted, e.Duration.Milliseconds(), e.CreatedAt)
	return err
}

// List returns up to limit entries for a session, oldest first.
func (j *Journal) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if j.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, input, response, outcome, strategy, played, attempted, duration_ms, created_at
		 FROM deliveries WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
			created    string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Input, &e.Response, &e.Outcome, &e.Strategy,
			&e.Played, &e.Attempted, &durationMS, &created); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune applies retention days and the session cap.
func (j *Journal) Prune(ctx context.Context) (err error) {
	if j.disabled() {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if j.cfg.RetentionDays > 0 {
		cutoff := j.clock().Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour).UTC()
		if _, err = tx.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if j.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, j.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
