package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/interview-engine/internal/events"
	"github.com/terra-clan/interview-engine/internal/locks"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/storage"
)

const (
	// DefaultListLimit caps list results when the caller gives no limit
	DefaultListLimit = 50
	// DefaultMaxAnswerLength bounds one submitted answer or solution in bytes
	DefaultMaxAnswerLength = 20000
)

// Engine creates sessions and drives them through submission and scoring
type Engine struct {
	repo            storage.Repository
	catalog         Catalog
	evaluator       Evaluator
	locker          locks.Locker
	publisher       events.Publisher
	now             func() time.Time
	newID           func() string
	maxAnswerLength int
}

// Option configures an Engine
type Option func(*Engine)

// WithLocker sets the per-session lock; defaults to an in-process lock
func WithLocker(l locks.Locker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithPublisher sets where lifecycle events go; defaults to nowhere
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides session ID generation
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// WithMaxAnswerLength bounds submitted answers; n <= 0 disables the check
func WithMaxAnswerLength(n int) Option {
	return func(e *Engine) {
		e.maxAnswerLength = n
	}
}

// NewEngine creates an Engine
func NewEngine(repo storage.Repository, cat Catalog, evaluator Evaluator, opts ...Option) *Engine {
	e := &Engine{
		repo:            repo,
		catalog:         cat,
		evaluator:       evaluator,
		locker:          locks.NewLocal(0),
		publisher:       events.Nop{},
		now:             func() time.Time { return time.Now().UTC() },
		newID:           func() string { return uuid.New().String() },
		maxAnswerLength: DefaultMaxAnswerLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ping checks the session store
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.repo.Ping(ctx); err != nil {
		return persistenceError("ping store", err)
	}
	return nil
}

// CreateSession builds a session from catalog content and persists it
func (e *Engine) CreateSession(ctx context.Context, ownerID string, req models.CreateSessionRequest) (*models.Session, error) {
	s, err := NewSession(e.newID(), ownerID, req, e.catalog, e.now())
	if err != nil {
		return nil, err
	}

	if err := e.repo.CreateSession(ctx, s); err != nil {
		return nil, persistenceError("create session", err)
	}

	slog.Info("session created",
		"id", s.ID,
		"owner_id", ownerID,
		"topic", s.Topic,
		"difficulty", s.Difficulty,
		"questions", len(s.Questions),
		"challenges", len(s.CodingChallenges),
	)

	e.publish(ctx, events.New(events.SessionCreated, s, s.CreatedAt))
	return s, nil
}

// GetSession returns one of the owner's sessions
func (e *Engine) GetSession(ctx context.Context, ownerID, id string) (*models.Session, error) {
	s, err := e.repo.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, persistenceError("get session", err)
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// ListSessions returns the owner's sessions, newest first
func (e *Engine) ListSessions(ctx context.Context, ownerID string, filters models.ListFilters) ([]*models.Session, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, validationError("unknown status %q", filters.Status)
	}
	if filters.Limit < 0 || filters.Offset < 0 {
		return nil, validationError("limit and offset must not be negative")
	}
	if filters.Limit == 0 {
		filters.Limit = DefaultListLimit
	}

	sessions, err := e.repo.ListSessions(ctx, ownerID, filters)
	if err != nil {
		return nil, persistenceError("list sessions", err)
	}
	return sessions, nil
}

// DeleteSession removes one of the owner's sessions
func (e *Engine) DeleteSession(ctx context.Context, ownerID, id string) error {
	if err := e.repo.DeleteSession(ctx, id, ownerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return persistenceError("delete session", err)
	}

	slog.Info("session deleted", "id", id, "owner_id", ownerID)
	e.publish(ctx, events.NewDeleted(id, ownerID, e.now()))
	return nil
}

// PurgeCompleted deletes completed sessions that finished more than olderThan ago
func (e *Engine) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := e.now().Add(-olderThan)
	n, err := e.repo.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, persistenceError("purge completed sessions", err)
	}
	return n, nil
}

// SubmitAnswers applies answers and an optional coding solution to an in-progress
// session, scores them and completes the session. A completed session is frozen.
func (e *Engine) SubmitAnswers(ctx context.Context, ownerID, id string, req models.SubmitRequest) (*models.Session, error) {
	if err := e.validateSubmission(req); err != nil {
		return nil, err
	}

	work, err := e.completeSession(ctx, ownerID, id, req)
	if err != nil {
		return nil, err
	}

	slog.Info("session completed",
		"id", id,
		"owner_id", ownerID,
		"overall_score", work.OverallScore,
		"band", BandFor(work.OverallScore),
	)

	// Published after the session lock is released
	e.publish(ctx, events.New(events.SessionCompleted, work, *work.CompletedAt))
	return work, nil
}

// completeSession scores and saves the session while holding its lock
func (e *Engine) completeSession(ctx context.Context, ownerID, id string, req models.SubmitRequest) (*models.Session, error) {
	unlock, err := e.locker.Lock(ctx, "session:"+id)
	if err != nil {
		return nil, persistenceError("lock session", err)
	}
	defer unlock()

	current, err := e.repo.GetSession(ctx, id, ownerID)
	if err != nil {
		return nil, persistenceError("load session", err)
	}
	if current == nil {
		return nil, ErrNotFound
	}
	if current.IsCompleted() {
		return nil, ErrInvalidState
	}

	// Work on a copy; it only replaces the stored session if the save succeeds
	work := current.Clone()
	e.applyAnswers(ctx, work, req)
	e.applySolution(ctx, work, req)

	if overall, ok := Aggregate(collectScores(work)); ok {
		work.OverallScore = overall
		work.Feedback = BandFor(overall).Message()
	}

	now := e.now()
	work.Status = models.SessionCompleted
	work.CompletedAt = &now
	work.UpdatedAt = now

	if err := e.repo.UpdateSession(ctx, work, models.SessionInProgress); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, storage.ErrConflict):
			return nil, fmt.Errorf("failed to save session %s: %w", id, ErrConflict)
		default:
			return nil, persistenceError("save session", err)
		}
	}
	return work, nil
}

func (e *Engine) validateSubmission(req models.SubmitRequest) error {
	if e.maxAnswerLength <= 0 {
		return nil
	}
	for i, a := range req.Answers {
		if a != nil && len(*a) > e.maxAnswerLength {
			return validationError("answer %d exceeds %d bytes", i, e.maxAnswerLength)
		}
	}
	if req.CodingSolution != nil && len(*req.CodingSolution) > e.maxAnswerLength {
		return validationError("coding solution exceeds %d bytes", e.maxAnswerLength)
	}
	return nil
}

func (e *Engine) applyAnswers(ctx context.Context, s *models.Session, req models.SubmitRequest) {
	for i, answer := range req.Answers {
		if i >= len(s.Questions) {
			break
		}
		if answer == nil || *answer == "" {
			continue
		}

		q := &s.Questions[i]
		value := *answer
		q.UserAnswer = &value

		item := Item{
			Kind:       KindQuestion,
			Index:      i,
			Prompt:     q.Question,
			Reference:  q.Answer,
			Difficulty: s.Difficulty,
			Topic:      s.Topic,
		}
		if ev, ok := e.evaluate(ctx, s.ID, item, value); ok {
			q.Score = &ev.Score
			q.Feedback = &ev.Feedback
		}
	}
}

func (e *Engine) applySolution(ctx context.Context, s *models.Session, req models.SubmitRequest) {
	if req.CodingSolution == nil || *req.CodingSolution == "" || len(s.CodingChallenges) == 0 {
		return
	}

	c := &s.CodingChallenges[0]
	value := *req.CodingSolution
	c.UserSolution = &value
	if req.Language != "" {
		lang := req.Language
		c.Language = &lang
	}

	expected := c.SampleOutput
	item := Item{
		Kind:       KindChallenge,
		Index:      0,
		Prompt:     c.Description,
		Reference:  &expected,
		Input:      c.SampleInput,
		Difficulty: c.Difficulty,
		Topic:      s.Topic,
		Language:   req.Language,
	}
	if ev, ok := e.evaluate(ctx, s.ID, item, value); ok {
		c.Score = &ev.Score
		c.Feedback = &ev.Feedback
	}
}

// evaluate calls the evaluator and reports whether the item got a usable score.
// Errors, panics and out-of-range scores leave the item unscored.
func (e *Engine) evaluate(ctx context.Context, sessionID string, item Item, value string) (ev Evaluation, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("evaluator panicked",
				"session_id", sessionID,
				"kind", item.Kind,
				"index", item.Index,
				"panic", fmt.Sprint(r),
			)
			ev, ok = Evaluation{}, false
		}
	}()

	ev, err := e.evaluator.Evaluate(ctx, item, value)
	if err != nil {
		slog.Warn("evaluator failed",
			"session_id", sessionID,
			"kind", item.Kind,
			"index", item.Index,
			"error", err,
		)
		return Evaluation{}, false
	}
	if ev.Score < MinItemScore || ev.Score > MaxItemScore {
		slog.Warn("evaluator returned out of range score",
			"session_id", sessionID,
			"kind", item.Kind,
			"index", item.Index,
			"score", ev.Score,
		)
		return Evaluation{}, false
	}
	return ev, true
}

// publish is best effort; a failed publish never fails the operation
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.publisher.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish session event",
			"event_type", ev.Type,
			"session_id", ev.SessionID,
			"error", err,
		)
	}
}
