package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/interview-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Sessions ---

const sessionColumns = `id, owner_id, title, topic, difficulty, questions, coding_challenges,
		status, overall_score, feedback, created_at, updated_at, completed_at`

// CreateSession creates a new session record
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	questionsJSON, challengesJSON, err := encodeItems(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO interview_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.OwnerID,
		s.Title,
		s.Topic,
		string(s.Difficulty),
		questionsJSON,
		challengesJSON,
		string(s.Status),
		s.OverallScore,
		s.Feedback,
		s.CreatedAt,
		s.UpdatedAt,
		nullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID, scoped to its owner
func (r *PostgresRepository) GetSession(ctx context.Context, id, ownerID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE id = $1 AND owner_id = $2`

	s, err := scanPostgresSession(r.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// ListSessions retrieves an owner's sessions with optional filters, newest first
func (r *PostgresRepository) ListSessions(ctx context.Context, ownerID string, filters models.ListFilters) ([]*models.Session, error) {
	conditions := []string{"owner_id = $1"}
	args := []any{ownerID}
	argNum := 2

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, string(filters.Status))
		argNum++
	}

	if filters.Topic != "" {
		conditions = append(conditions, fmt.Sprintf("topic = $%d", argNum))
		args = append(args, filters.Topic)
		argNum++
	}

	query := `SELECT ` + sessionColumns + ` FROM interview_sessions WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC, id DESC`

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.Session{}
	for rows.Next() {
		s, err := scanPostgresSession(rows)
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
func (r *PostgresRepository) UpdateSession(ctx context.Context, s *models.Session, expected models.SessionStatus) error {
	questionsJSON, challengesJSON, err := encodeItems(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE interview_sessions SET
			title = $4,
			questions = $5,
			coding_challenges = $6,
			status = $7,
			overall_score = $8,
			feedback = $9,
			updated_at = $10,
			completed_at = $11
		WHERE id = $1 AND owner_id = $2 AND status = $3
	`

	tag, err := r.pool.Exec(ctx, query,
		s.ID,
		s.OwnerID,
		string(expected),
		s.Title,
		questionsJSON,
		challengesJSON,
		string(s.Status),
		s.OverallScore,
		s.Feedback,
		s.UpdatedAt,
		nullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM interview_sessions WHERE id = $1 AND owner_id = $2)`,
			s.ID, s.OwnerID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check session: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	return nil
}

// DeleteSession deletes a session owned by ownerID
func (r *PostgresRepository) DeleteSession(ctx context.Context, id, ownerID string) error {
	query := `DELETE FROM interview_sessions WHERE id = $1 AND owner_id = $2`

	tag, err := r.pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteCompletedBefore removes completed sessions finished before cutoff
func (r *PostgresRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM interview_sessions WHERE status = $1 AND completed_at < $2`

	tag, err := r.pool.Exec(ctx, query, string(models.SessionCompleted), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanPostgresSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var difficulty, status string
	var questionsJSON, challengesJSON []byte
	var completedAt sql.NullTime

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
		&s.CreatedAt,
		&s.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Difficulty = models.Difficulty(difficulty)
	s.Status = models.SessionStatus(status)
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}

	if err := decodeItems(&s, questionsJSON, challengesJSON); err != nil {
		return nil, err
	}

	return &s, nil
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, owner_id, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.OwnerID,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	// Parse permissions JSON array
	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &client, nil
}

// CreateClient registers an API client; an existing key is left untouched
func (r *PostgresRepository) CreateClient(ctx context.Context, c *models.ApiClient) error {
	permissions := c.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	permissionsJSON, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO api_clients (name, owner_id, api_key, is_active, permissions)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (api_key) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, c.Name, c.OwnerID, c.ApiKey, c.IsActive, permissionsJSON); err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	return nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`

	_, err := r.pool.Exec(ctx, query, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}

	return nil
}
