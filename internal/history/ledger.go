// Package history keeps an append-only ledger of model selection decisions.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/riskstack/riskmodel/internal/models"
	"github.com/riskstack/riskmodel/internal/utils"
)

// Entry is one recorded decision.
type Entry struct {
	RunID        string
	Task         string
	ArtifactPath string
	ContentHash  string
	GitCommit    string
	Summary      models.DecisionSummary
	RecordedAt   time.Time
}

// Ledger stores entries in a sqlite database.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

const schema = "CREATE TABLE IF NOT EXISTS decisions (" +
	"seq INTEGER PRIMARY KEY AUTOINCREMENT, " +
	"run_id TEXT NOT NULL UNIQUE, " +
	"task TEXT NOT NULL, " +
	"artifact_path TEXT NOT NULL, " +
	"content_hash TEXT NOT NULL, " +
	"git_commit TEXT NOT NULL, " +
	"selected_model TEXT NOT NULL, " +
	"task_type TEXT NOT NULL, " +
	"metric_name TEXT NOT NULL, " +
	"metric_score REAL NOT NULL, " +
	"decided_at TEXT NOT NULL, " +
	"business_impact TEXT NOT NULL, " +
	"rankings TEXT NOT NULL, " +
	"recorded_at TEXT NOT NULL" +
	")"

const selectColumns = "SELECT run_id, task, artifact_path, content_hash, git_commit, selected_model, " +
	"task_type, metric_name, metric_score, decided_at, business_impact, rankings, recorded_at FROM decisions"

// Open opens or creates the ledger at path. ":memory:" gives a private
// in-memory ledger.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	const op = "history.Open"
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, utils.InvalidInput(op, "ledger path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, utils.NewAppError(op, utils.ErrIO, "create ledger directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, utils.NewAppError(op, utils.ErrIO, "open "+path, err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, utils.NewAppError(op, utils.ErrIO, "create schema", err)
	}
	logger.Debug("history ledger ready", slog.String("path", path))
	return &Ledger{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// HashContent returns the hex sha256 of an artifact's bytes.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Record appends an entry for a saved artifact.
func (l *Ledger) Record(ctx context.Context, task, artifactPath, gitCommit string, summary models.DecisionSummary, content []byte) (Entry, error) {
	const op = "history.Record"
	if task == "" {
		return Entry{}, utils.InvalidInput(op, "task name is required")
	}
	rankings, err := json.Marshal(summary.ModelRankings)
	if err != nil {
		return Entry{}, utils.NewAppError(op, utils.ErrInvalidInput, "encode rankings", err)
	}
	entry := Entry{
		RunID:        uuid.NewString(),
		Task:         task,
		ArtifactPath: artifactPath,
		ContentHash:  HashContent(content),
		GitCommit:    gitCommit,
		Summary:      summary,
		RecordedAt:   l.now().UTC(),
	}

	_, err = l.db.ExecContext(ctx,
		"INSERT INTO decisions (run_id, task, artifact_path, content_hash, git_commit, selected_model, "+
			"task_type, metric_name, metric_score, decided_at, business_impact, rankings, recorded_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		entry.RunID,
		entry.Task,
		entry.ArtifactPath,
		entry.ContentHash,
		entry.GitCommit,
		summary.SelectedModel,
		string(summary.TaskType),
		summary.MetricName,
		summary.MetricScore,
		summary.Timestamp,
		summary.BusinessImpact,
		string(rankings),
		entry.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, utils.NewAppError(op, utils.ErrIO, "insert decision", err)
	}
	l.logger.Info("decision recorded",
		slog.String("task", task),
		slog.String("run_id", entry.RunID),
		slog.String("model", summary.SelectedModel))
	return entry, nil
}

// Latest returns the most recent entry for task.
func (l *Ledger) Latest(ctx context.Context, task string) (Entry, error) {
	const op = "history.Latest"
	row := l.db.QueryRowContext(ctx, selectColumns+" WHERE task = ? ORDER BY seq DESC LIMIT 1", task)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, utils.NewAppError(op, utils.ErrNotFound, "no decision for task "+task, nil)
	}
	if err != nil {
		return Entry{}, utils.NewAppError(op, utils.ErrIO, "query latest", err)
	}
	return entry, nil
}

// List returns entries newest first. An empty task lists all tasks; limit <= 0
// means no limit.
func (l *Ledger) List(ctx context.Context, task string, limit int) ([]Entry, error) {
	const op = "history.List"
	query := selectColumns
	var args []any
	if task != "" {
		query += " WHERE task = ?"
		args = append(args, task)
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(op, utils.ErrIO, "query entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, utils.NewAppError(op, utils.ErrIO, "scan entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(op, utils.ErrIO, "iterate entries", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e          Entry
		taskType   string
		rankings   string
		recordedAt string
	)
	err := s.Scan(
		&e.RunID,
		&e.Task,
		&e.ArtifactPath,
		&e.ContentHash,
		&e.GitCommit,
		&e.Summary.SelectedModel,
		&taskType,
		&e.Summary.MetricName,
		&e.Summary.MetricScore,
		&e.Summary.Timestamp,
		&e.Summary.BusinessImpact,
		&rankings,
		&recordedAt,
	)
	if err != nil {
		return Entry{}, err
	}
	e.Summary.TaskType = models.TaskType(taskType)
	if err := json.Unmarshal([]byte(rankings), &e.Summary.ModelRankings); err != nil {
		return Entry{}, fmt.Errorf("decode rankings: %w", err)
	}
	if e.RecordedAt, err = utils.ParseRFC3339(recordedAt); err != nil {
		return Entry{}, err
	}
	return e, nil
}
