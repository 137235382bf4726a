package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/interview-engine/internal/models"
)

var (
	// ErrNotFound is returned by writes that matched no row for the given id and owner
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write lost against a concurrent change
	ErrConflict = errors.New("write conflict")
)

// Repository defines the interface for session persistence.
// Every session read and write is scoped by owner.
type Repository interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	// GetSession returns (nil, nil) when the session does not exist or belongs to another owner
	GetSession(ctx context.Context, id, ownerID string) (*models.Session, error)
	ListSessions(ctx context.Context, ownerID string, filters models.ListFilters) ([]*models.Session, error)
	// UpdateSession writes s only if the stored status still equals expected.
	// It returns ErrNotFound if the session is gone and ErrConflict if the status moved on.
	UpdateSession(ctx context.Context, s *models.Session, expected models.SessionStatus) error
	DeleteSession(ctx context.Context, id, ownerID string) error
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// API Clients
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	CreateClient(ctx context.Context, c *models.ApiClient) error
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
