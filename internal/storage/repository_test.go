package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/models"
)

func strPtr(s string) *string { return &s }

func newTestSession(id, owner, topic string, createdAt time.Time) *models.Session {
	return &models.Session{
		ID:         id,
		OwnerID:    owner,
		Title:      topic + " Interview - beginner",
		Topic:      topic,
		Difficulty: models.DifficultyBeginner,
		Questions: []models.Question{
			{Question: "What is a closure?", Answer: strPtr("A function bundled with its scope.")},
			{Question: "Tell me about " + topic},
		},
		CodingChallenges: []models.Challenge{
			{Title: "FizzBuzz", SampleInput: "15", SampleOutput: "FizzBuzz", Difficulty: models.DifficultyBeginner},
		},
		Status:    models.SessionInProgress,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// repositoryFactories returns every backend under test. Postgres joins when DATABASE_DSN is set.
func repositoryFactories() map[string]func(t *testing.T) Repository {
	factories := map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository {
			return NewMemoryRepository()
		},
		"sqlite": func(t *testing.T) Repository {
			repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "db", "interview.db"))
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })
			return repo
		},
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		factories["postgres"] = func(t *testing.T) Repository {
			return newPostgresTestRepository(t, dsn)
		}
	}
	return factories
}

// newPostgresTestRepository migrates the database and empties it for one subtest
func newPostgresTestRepository(t *testing.T, dsn string) *PostgresRepository {
	t.Helper()
	ctx := context.Background()

	repo, err := NewPostgresRepository(ctx, PostgresConfig{DSN: dsn, MaxOpenConns: 4, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, RunMigrations(ctx, repo.Pool(), filepath.Join("..", "..", "migrations")))
	_, err = repo.Pool().Exec(ctx, "TRUNCATE interview_sessions, api_clients")
	require.NoError(t, err)
	return repo
}

func TestRepositoryContract(t *testing.T) {
	for name, factory := range repositoryFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("create and get", func(t *testing.T) {
				testCreateAndGet(t, factory(t))
			})
			t.Run("owner scoping", func(t *testing.T) {
				testOwnerScoping(t, factory(t))
			})
			t.Run("list filters and ordering", func(t *testing.T) {
				testListSessions(t, factory(t))
			})
			t.Run("conditional update", func(t *testing.T) {
				testConditionalUpdate(t, factory(t))
			})
			t.Run("delete", func(t *testing.T) {
				testDelete(t, factory(t))
			})
			t.Run("delete completed before", func(t *testing.T) {
				testDeleteCompletedBefore(t, factory(t))
			})
			t.Run("api clients", func(t *testing.T) {
				testClients(t, factory(t))
			})
		})
	}
}

func testCreateAndGet(t *testing.T, repo Repository) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newTestSession("s-1", "alice", "JavaScript", created)

	require.NoError(t, repo.CreateSession(ctx, s))

	got, err := repo.GetSession(ctx, "s-1", "alice")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "JavaScript", got.Topic)
	assert.Equal(t, models.SessionInProgress, got.Status)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.CompletedAt)
	require.Len(t, got.Questions, 2)
	require.NotNil(t, got.Questions[0].Answer)
	assert.Equal(t, "A function bundled with its scope.", *got.Questions[0].Answer)
	assert.Nil(t, got.Questions[1].Answer)
	assert.Nil(t, got.Questions[1].UserAnswer)
	require.Len(t, got.CodingChallenges, 1)
	assert.Equal(t, "FizzBuzz", got.CodingChallenges[0].SampleOutput)

	missing, err := repo.GetSession(ctx, "nope", "alice")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testOwnerScoping(t *testing.T, repo Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateSession(ctx, newTestSession("s-1", "alice", "React", time.Now())))

	got, err := repo.GetSession(ctx, "s-1", "bob")
	require.NoError(t, err)
	assert.Nil(t, got)

	list, err := repo.ListSessions(ctx, "bob", models.ListFilters{})
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, repo.DeleteSession(ctx, "s-1", "bob"), ErrNotFound)
	still, err := repo.GetSession(ctx, "s-1", "alice")
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func testListSessions(t *testing.T, repo Repository) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, topic := range []string{"React", "Algorithms", "React", "JavaScript"} {
		s := newTestSession(fmt.Sprintf("s-%d", i), "alice", topic, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.CreateSession(ctx, s))
	}

	all, err := repo.ListSessions(ctx, "alice", models.ListFilters{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "s-3", all[0].ID, "newest first")
	assert.Equal(t, "s-0", all[3].ID)

	react, err := repo.ListSessions(ctx, "alice", models.ListFilters{Topic: "React"})
	require.NoError(t, err)
	require.Len(t, react, 2)
	assert.Equal(t, "s-2", react[0].ID)

	page, err := repo.ListSessions(ctx, "alice", models.ListFilters{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "s-2", page[0].ID)
	assert.Equal(t, "s-1", page[1].ID)

	tail, err := repo.ListSessions(ctx, "alice", models.ListFilters{Offset: 3})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "s-0", tail[0].ID)

	completed, err := repo.ListSessions(ctx, "alice", models.ListFilters{Status: models.SessionCompleted})
	require.NoError(t, err)
	assert.NotNil(t, completed)
	assert.Empty(t, completed)
}

func testConditionalUpdate(t *testing.T, repo Repository) {
	ctx := context.Background()
	s := newTestSession("s-1", "alice", "Algorithms", time.Now().UTC())
	require.NoError(t, repo.CreateSession(ctx, s))

	done := s.Clone()
	// Postgres keeps microseconds
	now := time.Now().UTC().Truncate(time.Microsecond)
	score := 5
	done.Questions[0].UserAnswer = strPtr("my answer")
	done.Questions[0].Score = &score
	done.Questions[0].Feedback = strPtr("Great")
	done.Status = models.SessionCompleted
	done.OverallScore = 100
	done.Feedback = "Excellent performance!"
	done.UpdatedAt = now
	done.CompletedAt = &now

	require.NoError(t, repo.UpdateSession(ctx, done, models.SessionInProgress))

	got, err := repo.GetSession(ctx, "s-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, 100, got.OverallScore)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(now))
	require.NotNil(t, got.Questions[0].Score)
	assert.Equal(t, 5, *got.Questions[0].Score)

	// A second writer that still believes the session is in progress loses
	stale := s.Clone()
	stale.OverallScore = 20
	err = repo.UpdateSession(ctx, stale, models.SessionInProgress)
	assert.ErrorIs(t, err, ErrConflict)

	ghost := newTestSession("ghost", "alice", "React", time.Now())
	assert.ErrorIs(t, repo.UpdateSession(ctx, ghost, models.SessionInProgress), ErrNotFound)
}

func testDelete(t *testing.T, repo Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateSession(ctx, newTestSession("s-1", "alice", "React", time.Now())))

	require.NoError(t, repo.DeleteSession(ctx, "s-1", "alice"))
	got, err := repo.GetSession(ctx, "s-1", "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.True(t, errors.Is(repo.DeleteSession(ctx, "s-1", "alice"), ErrNotFound))
}

func testDeleteCompletedBefore(t *testing.T, repo Repository) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	old := newTestSession("old", "alice", "React", now.Add(-48*time.Hour))
	require.NoError(t, repo.CreateSession(ctx, old))
	oldDone := old.Clone()
	oldDone.Status = models.SessionCompleted
	completedAt := now.Add(-47 * time.Hour)
	oldDone.CompletedAt = &completedAt
	require.NoError(t, repo.UpdateSession(ctx, oldDone, models.SessionInProgress))

	fresh := newTestSession("fresh", "alice", "React", now.Add(-time.Hour))
	require.NoError(t, repo.CreateSession(ctx, fresh))
	freshDone := fresh.Clone()
	freshDone.Status = models.SessionCompleted
	recent := now.Add(-30 * time.Minute)
	freshDone.CompletedAt = &recent
	require.NoError(t, repo.UpdateSession(ctx, freshDone, models.SessionInProgress))

	open := newTestSession("open", "alice", "React", now.Add(-72*time.Hour))
	require.NoError(t, repo.CreateSession(ctx, open))

	deleted, err := repo.DeleteCompletedBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.ListSessions(ctx, "alice", models.ListFilters{})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "fresh", remaining[0].ID)
	assert.Equal(t, "open", remaining[1].ID)
}

func testClients(t *testing.T, repo Repository) {
	ctx := context.Background()

	missing, err := repo.GetClientByApiKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	client := &models.ApiClient{
		Name:        "bootstrap",
		OwnerID:     "alice",
		ApiKey:      "key-123",
		IsActive:    true,
		Permissions: []string{"sessions:*", "catalog:read"},
	}
	require.NoError(t, repo.CreateClient(ctx, client))

	// Registering the same key again keeps the first record
	require.NoError(t, repo.CreateClient(ctx, &models.ApiClient{Name: "other", OwnerID: "bob", ApiKey: "key-123"}))

	got, err := repo.GetClientByApiKey(ctx, "key-123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.OwnerID)
	assert.True(t, got.IsActive)
	assert.Equal(t, []string{"sessions:*", "catalog:read"}, got.Permissions)
	assert.Nil(t, got.LastUsedAt)

	require.NoError(t, repo.UpdateClientLastUsed(ctx, "key-123"))
	got, err = repo.GetClientByApiKey(ctx, "key-123")
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)
}

func TestIsSQLiteBusy(t *testing.T) {
	assert.True(t, isSQLiteBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isSQLiteBusy(errors.New("no such table")))
	assert.False(t, isSQLiteBusy(nil))

	err := wrapSQLiteErr("failed to update session", errors.New("database is locked"))
	assert.ErrorIs(t, err, ErrConflict)
}
