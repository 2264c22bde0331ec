// Package history keeps a SQLite ledger of generation attempts so a failed
// or surprising generation can be inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"autocode/internal/logging"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome of one attempt.
const (
	OutcomeSuccess      = "success"
	OutcomeAgentError   = "agent_error"
	OutcomeCompileError = "compile_error"
	OutcomeRejected     = "rejected"
	OutcomeCancelled    = "cancelled"
)

// Attempt is one row of the ledger.
type Attempt struct {
	ID         string
	Session    string // groups the attempts of one generation
	Key        string
	Name       string
	Attempt    int
	Outcome    string
	Message    string
	Source     string
	Agent      string
	DurationMs int64
	CreatedAt  time.Time
}

// Filter narrows List.
type Filter struct {
	Key     string
	Session string
	Limit   int
}

// Store is the ledger.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure history schema: %w", err)
	}
	logging.HistoryDebug("history ledger opened at %s", path)
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		session TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		name TEXT,
		attempt INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		message TEXT,
		source TEXT,
		agent TEXT,
		duration_ms INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_key ON attempts(cache_key);
	CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Record appends an attempt. ID and CreatedAt are filled when empty.
func (s *Store) Record(ctx context.Context, a *Attempt) error {
	timer := logging.StartTimer(logging.CategoryHistory, "Record")
	defer timer.Stop()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts
		(id, session, cache_key, name, attempt, outcome, message, source, agent, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Session, a.Key, a.Name, a.Attempt, a.Outcome, a.Message, a.Source, a.Agent,
		a.DurationMs, a.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	logging.HistoryDebug("recorded %s attempt %d: %s", a.Key, a.Attempt, a.Outcome)
	return nil
}

// List returns attempts, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Attempt, error) {
	query := `SELECT id, session, cache_key, name, attempt, outcome, message, source, agent, duration_ms, created_at
		FROM attempts WHERE 1=1`
	var args []interface{}
	if f.Key != "" {
		query += " AND cache_key = ?"
		args = append(args, f.Key)
	}
	if f.Session != "" {
		query += " AND session = ?"
		args = append(args, f.Session)
	}
	query += " ORDER BY created_at DESC, attempt DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a                            Attempt
			name, msg, source, agentName sql.NullString
			duration                     sql.NullInt64
			created                      int64
		)
		if err := rows.Scan(&a.ID, &a.Session, &a.Key, &name, &a.Attempt, &a.Outcome,
			&msg, &source, &agentName, &duration, &created); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Name = name.String
		a.Message = msg.String
		a.Source = source.String
		a.Agent = agentName.String
		a.DurationMs = duration.Int64
		a.CreatedAt = time.Unix(0, created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes attempts older than the cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM attempts WHERE created_at < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
