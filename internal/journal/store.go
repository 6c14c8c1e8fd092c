// Package journal keeps a sqlite record of pipeline runs. Only metadata is
// stored: outcome, language, stage latencies. Recordings and transcripts
// never touch the database.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/talkback-labs/talkback/internal/config"
	"github.com/talkback-labs/talkback/internal/pipeline"
)

// Run is one recorded pipeline run.
type Run struct {
	RunID      string    `json:"run_id"`
	Email      string    `json:"email"`
	Lang       string    `json:"lang"`
	Outcome    string    `json:"outcome"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	Corrected  bool      `json:"corrected"`
	DurationMS int64     `json:"duration_ms"`
	StageMS    string    `json:"stage_ms,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Store wraps the sqlite-backed run journal. A disabled store is a no-op.
type Store struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Store, error) {
	if !cfg.Enabled {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    lang TEXT,
    outcome TEXT NOT NULL,
    stage TEXT,
    error TEXT,
    corrected INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    stage_ms TEXT,
    started_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PipelineCompleted implements pipeline.Observer.
func (s *Store) PipelineCompleted(rec pipeline.RunRecord) {
	if s == nil || s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Record(ctx, rec); err != nil {
		s.log.Warn("failed to journal pipeline run",
			slog.String("run_id", rec.RunID),
			slog.String("error", err.Error()))
	}
}

// Record inserts one run.
func (s *Store) Record(ctx context.Context, rec pipeline.RunRecord) error {
	if s.db == nil {
		return nil
	}
	stageMS, err := json.Marshal(rec.StageMS)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, email, lang, outcome, stage, error, corrected, duration_ms, stage_ms, started_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Email, rec.Lang, string(rec.Outcome), rec.Stage, rec.Error,
		boolToInt(rec.Corrected), rec.Duration.Milliseconds(), string(stageMS), rec.StartedAt.UTC())
	return err
}

// ListRecent returns up to limit runs, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, email, lang, outcome, stage, error, corrected, duration_ms, stage_ms, started_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var corrected int
		var started string
		if err := rows.Scan(&r.RunID, &r.Email, &r.Lang, &r.Outcome, &r.Stage, &r.Error, &corrected, &r.DurationMS, &r.StageMS, &started); err != nil {
			return nil, err
		}
		r.Corrected = corrected != 0
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.StartedAt = ts
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRuns > 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
			SELECT run_id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRuns)
		if err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
