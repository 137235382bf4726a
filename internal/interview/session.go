package interview

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/terra-clan/interview-engine/internal/models"
)

// Catalog is the content source sessions are built from
type Catalog interface {
	LookupQuestions(topic string, difficulty models.Difficulty) []models.QuestionTemplate
	LookupChallenge(difficulty models.Difficulty) *models.ChallengeTemplate
}

// Column widths of the sessions table, in characters
const (
	MaxTopicLength      = 255
	MaxDifficultyLength = 64
	MaxTitleLength      = 512
)

// NewSession builds a session in its initial state from catalog content.
// It does not persist anything.
func NewSession(id, ownerID string, req models.CreateSessionRequest, cat Catalog, now time.Time) (*models.Session, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, validationError("owner is required")
	}

	// Topics match the catalog exactly, so surrounding whitespace is kept
	topic := req.Topic
	if strings.TrimSpace(topic) == "" {
		return nil, validationError("topic is required")
	}
	if err := checkText("topic", topic, MaxTopicLength); err != nil {
		return nil, err
	}

	difficulty := models.NormalizeDifficulty(req.Difficulty)
	if difficulty == "" {
		return nil, validationError("difficulty is required")
	}
	if err := checkText("difficulty", string(difficulty), MaxDifficultyLength); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = fmt.Sprintf("%s Interview - %s level", topic, difficulty)
	}
	if err := checkText("title", title, MaxTitleLength); err != nil {
		return nil, err
	}

	templates := cat.LookupQuestions(topic, difficulty)
	questions := make([]models.Question, 0, len(templates))
	for _, t := range templates {
		questions = append(questions, models.Question{
			Question: t.Question,
			Answer:   t.Answer,
		})
	}

	challenges := []models.Challenge{}
	if tmpl := cat.LookupChallenge(difficulty); tmpl != nil {
		challenges = append(challenges, tmpl.ToChallenge())
	}

	return &models.Session{
		ID:               id,
		OwnerID:          ownerID,
		Title:            title,
		Topic:            topic,
		Difficulty:       difficulty,
		Questions:        questions,
		CodingChallenges: challenges,
		Status:           models.SessionInProgress,
		OverallScore:     0,
		Feedback:         "",
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// checkText rejects values every store cannot hold: invalid UTF-8, NUL bytes
// and more than limit characters.
func checkText(field, value string, limit int) error {
	if !utf8.ValidString(value) {
		return validationError("%s must be valid UTF-8", field)
	}
	if strings.ContainsRune(value, 0) {
		return validationError("%s must not contain NUL characters", field)
	}
	if n := utf8.RuneCountInString(value); n > limit {
		return validationError("%s is too long (%d characters, max %d)", field, n, limit)
	}
	return nil
}
