// Package journal persists exchanges and turns to a local SQLite database.
//
// Exchanges are written once per orchestrator iteration and turns once per
// user turn, together with the files the turn touched. The latest turn's
// context fields can seed a resumed session.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fyrsmithlabs/relay/internal/logging"
	"github.com/fyrsmithlabs/relay/internal/orchestrator"
)

// ErrClosed is returned by every operation on a closed Store.
var ErrClosed = errors.New("journal: store is closed")

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id, id)`,
	`CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		iterations INTEGER NOT NULL,
		fields_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS turn_files (
		turn_id INTEGER NOT NULL REFERENCES turns(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		PRIMARY KEY (turn_id, path)
	)`,
}

// Exchange is one recorded (question, answer) pair.
type Exchange struct {
	ID        int64
	SessionID string
	Question  string
	Answer    string
	CreatedAt time.Time
}

// Turn is one recorded user turn.
type Turn struct {
	ID         int64                      `json:"id"`
	SessionID  string                     `json:"session_id"`
	Question   string                     `json:"question"`
	Answer     string                     `json:"answer"`
	Iterations int                        `json:"iterations"`
	Fields     orchestrator.ContextFields `json:"fields"`
	Files      []string                   `json:"files"`
	CreatedAt  time.Time                  `json:"created_at"`
}

// Store is a SQLite-backed journal. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
	now    func() time.Time
	logger *logging.Logger
}

// Open opens or creates the journal at path, creating parent directories.
func Open(ctx context.Context, path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	s := &Store{db: db, now: time.Now, logger: logger.Named("journal")}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	s.logger.Debug(ctx, "journal opened", zap.String("path", path))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		schemaVersion, formatTime(s.now()))
	return err
}

// Close closes the database. Further calls return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return s.db.Close()
}

// AppendExchange records one (question, answer) pair. Empty answers are kept.
func (s *Store) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (session_id, question, answer, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, question, answer, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("recording exchange: %w", err)
	}
	return nil
}

// Exchanges returns a session's exchanges in insertion order.
func (s *Store) Exchanges(ctx context.Context, sessionID string) ([]Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question, answer, created_at FROM exchanges WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var (
			e       Exchange
			created string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Question, &e.Answer, &created); err != nil {
			return nil, fmt.Errorf("scanning exchange: %w", err)
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordTurn stores a turn and its touched files in one transaction and
// returns the new turn ID.
func (s *Store) RecordTurn(ctx context.Context, t Turn) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return 0, fmt.Errorf("encoding context fields: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, question, answer, iterations, fields_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Question, t.Answer, t.Iterations, string(fields), formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("recording turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading turn id: %w", err)
	}

	for _, path := range t.Files {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO turn_files (turn_id, path) VALUES (?, ?)`, id, path); err != nil {
			return 0, fmt.Errorf("recording turn file: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing turn: %w", err)
	}

	s.logger.Debug(ctx, "turn recorded", zap.Int64("turn_id", id), zap.Int("files", len(t.Files)))
	return id, nil
}

// LatestFields returns the context fields of the most recent turn. ok is
// false when no turn has been recorded.
func (s *Store) LatestFields(ctx context.Context) (orchestrator.ContextFields, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return orchestrator.ContextFields{}, false, ErrClosed
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT fields_json FROM turns ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.ContextFields{}, false, nil
	}
	if err != nil {
		return orchestrator.ContextFields{}, false, fmt.Errorf("querying latest turn: %w", err)
	}

	var fields orchestrator.ContextFields
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return orchestrator.ContextFields{}, false, fmt.Errorf("decoding context fields: %w", err)
	}
	return fields, true, nil
}

// Recent returns up to limit turns, newest first, with their files.
func (s *Store) Recent(ctx context.Context, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, question, answer, iterations, fields_json, created_at
		 FROM turns ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}

	var turns []Turn
	for rows.Next() {
		var (
			t       Turn
			raw     string
			created string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Question, &t.Answer, &t.Iterations, &raw, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &t.Fields); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decoding context fields of turn %d: %w", t.ID, err)
		}
		t.CreatedAt = parseTime(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range turns {
		files, err := s.turnFiles(ctx, turns[i].ID)
		if err != nil {
			return nil, err
		}
		turns[i].Files = files
	}
	return turns, nil
}

func (s *Store) turnFiles(ctx context.Context, turnID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM turn_files WHERE turn_id = ? ORDER BY path`, turnID)
	if err != nil {
		return nil, fmt.Errorf("querying turn files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning turn file: %w", err)
		}
		files = append(files, p)
	}
	return files, rows.Err()
}

// SessionLog binds a Store to one session. It implements
// orchestrator.ConversationLog.
type SessionLog struct {
	store     *Store
	sessionID string
}

var _ orchestrator.ConversationLog = (*SessionLog)(nil)

// ForSession returns a ConversationLog writing to sessionID.
func (s *Store) ForSession(sessionID string) *SessionLog {
	return &SessionLog{store: s, sessionID: sessionID}
}

// Append records one exchange.
func (l *SessionLog) Append(ctx context.Context, question, answer string) error {
	return l.store.AppendExchange(ctx, l.sessionID, question, answer)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
