package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/terra-clan/interview-engine/internal/models"
)

// SQLiteRepository implements Repository using an embedded SQLite database.
// Timestamps are stored as unix nanoseconds and item lists as JSON text.
type SQLiteRepository struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY under WAL
}

// NewSQLiteRepository opens (and creates if needed) a SQLite database at dbPath
func NewSQLiteRepository(ctx context.Context, dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS interview_sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		topic TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		questions TEXT NOT NULL DEFAULT '[]',
		coding_challenges TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'in_progress',
		overall_score INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_owner_created ON interview_sessions(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_completed ON interview_sessions(completed_at) WHERE status = 'completed';

	CREATE TABLE IF NOT EXISTS api_clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		api_key TEXT NOT NULL UNIQUE,
		is_active INTEGER NOT NULL DEFAULT 1,
		permissions TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		last_used_at INTEGER
	);
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// --- Sessions ---

// CreateSession creates a new session record
func (r *SQLiteRepository) CreateSession(ctx context.Context, s *models.Session) error {
	questionsJSON, challengesJSON, err := encodeItems(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO interview_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.OwnerID,
		s.Title,
		s.Topic,
		string(s.Difficulty),
		string(questionsJSON),
		string(challengesJSON),
		string(s.Status),
		s.OverallScore,
		s.Feedback,
		s.CreatedAt.UnixNano(),
		s.UpdatedAt.UnixNano(),
		nullUnixNano(s.CompletedAt),
	)
	if err != nil {
		return wrapSQLiteErr("failed to create session", err)
	}

	return nil
}

// GetSession retrieves a session by ID, scoped to its owner
func (r *SQLiteRepository) GetSession(ctx context.Context, id, ownerID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE id = ? AND owner_id = ?`

	s, err := scanSQLiteSession(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// ListSessions retrieves an owner's sessions with optional filters, newest first
func (r *SQLiteRepository) ListSessions(ctx context.Context, ownerID string, filters models.ListFilters) ([]*models.Session, error) {
	conditions := []string{"owner_id = ?"}
	args := []any{ownerID}

	if filters.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filters.Status))
	}
	if filters.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, filters.Topic)
	}

	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC, id DESC`

	// SQLite requires a LIMIT clause before OFFSET; -1 means unbounded
	if filters.Limit > 0 || filters.Offset > 0 {
		limit := -1
		if filters.Limit > 0 {
			limit = filters.Limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filters.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.Session{}
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// UpdateSession writes a session if its stored status still equals expected
func (r *SQLiteRepository) UpdateSession(ctx context.Context, s *models.Session, expected models.SessionStatus) error {
	questionsJSON, challengesJSON, err := encodeItems(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE interview_sessions SET
			title = ?,
			questions = ?,
			coding_challenges = ?,
			status = ?,
			overall_score = ?,
			feedback = ?,
			updated_at = ?,
			completed_at = ?
		WHERE id = ? AND owner_id = ? AND status = ?
	`

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	result, err := r.db.ExecContext(ctx, query,
		s.Title,
		string(questionsJSON),
		string(challengesJSON),
		string(s.Status),
		s.OverallScore,
		s.Feedback,
		s.UpdatedAt.UnixNano(),
		nullUnixNano(s.CompletedAt),
		s.ID,
		s.OwnerID,
		string(expected),
	)
	if err != nil {
		return wrapSQLiteErr("failed to update session", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM interview_sessions WHERE id = ? AND owner_id = ?`,
		s.ID, s.OwnerID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// DeleteSession deletes a session owned by ownerID
func (r *SQLiteRepository) DeleteSession(ctx context.Context, id, ownerID string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	result, err := r.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return wrapSQLiteErr("failed to delete session", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCompletedBefore removes completed sessions finished before cutoff
func (r *SQLiteRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM interview_sessions WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		string(models.SessionCompleted), cutoff.UnixNano(),
	)
	if err != nil {
		return 0, wrapSQLiteErr("failed to delete completed sessions", err)
	}

	return result.RowsAffected()
}

func scanSQLiteSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var difficulty, status, questionsJSON, challengesJSON string
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.Title,
		&s.Topic,
		&difficulty,
		&questionsJSON,
		&challengesJSON,
		&status,
		&s.OverallScore,
		&s.Feedback,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Difficulty = models.Difficulty(difficulty)
	s.Status = models.SessionStatus(status)
	s.CreatedAt = time.Unix(0, createdAt).UTC()
	s.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		s.CompletedAt = &t
	}

	if err := decodeItems(&s, []byte(questionsJSON), []byte(challengesJSON)); err != nil {
		return nil, err
	}

	return &s, nil
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *SQLiteRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, owner_id, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients WHERE api_key = ?`

	var client models.ApiClient
	var isActive int
	var createdAt int64
	var lastUsedAt sql.NullInt64
	var permissionsJSON string

	err := r.db.QueryRowContext(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.OwnerID,
		&client.ApiKey,
		&isActive,
		&createdAt,
		&lastUsedAt,
		&permissionsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	client.IsActive = isActive != 0
	client.CreatedAt = time.Unix(0, createdAt).UTC()
	if lastUsedAt.Valid {
		t := time.Unix(0, lastUsedAt.Int64).UTC()
		client.LastUsedAt = &t
	}
	if permissionsJSON != "" {
		if err := json.Unmarshal([]byte(permissionsJSON), &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &client, nil
}

// CreateClient registers an API client; an existing key is left untouched
func (r *SQLiteRepository) CreateClient(ctx context.Context, c *models.ApiClient) error {
	permissions := c.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	permissionsJSON, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	isActive := 0
	if c.IsActive {
		isActive = 1
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO api_clients (name, owner_id, api_key, is_active, permissions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(api_key) DO NOTHING`,
		c.Name, c.OwnerID, c.ApiKey, isActive, string(permissionsJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return wrapSQLiteErr("failed to create api client", err)
	}
	return nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *SQLiteRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`UPDATE api_clients SET last_used_at = ? WHERE api_key = ?`,
		time.Now().UnixNano(), apiKey,
	)
	if err != nil {
		return wrapSQLiteErr("failed to update client last_used_at", err)
	}
	return nil
}

// wrapSQLiteErr maps lock contention to ErrConflict so callers can retry
func wrapSQLiteErr(msg string, err error) error {
	if isSQLiteBusy(err) {
		return fmt.Errorf("%s: %w", msg, errors.Join(ErrConflict, err))
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLITE_BUSY") || strings.Contains(errStr, "database is locked")
}
