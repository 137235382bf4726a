package models

import (
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a practice session
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress" // Created, waiting for answers
	SessionCompleted  SessionStatus = "completed"   // Answers submitted and scored
)

// IsTerminal returns true if no further transition is possible
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted
}

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	return s == SessionInProgress || s == SessionCompleted
}

// Difficulty is the tier a session's content is drawn from
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// legacyDifficulties maps the older easy/medium/hard vocabulary onto the canonical tiers.
var legacyDifficulties = map[string]Difficulty{
	"easy":   DifficultyBeginner,
	"medium": DifficultyIntermediate,
	"hard":   DifficultyAdvanced,
}

// Difficulties returns the canonical tiers in ascending order
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}
}

// NormalizeDifficulty trims the value and maps canonical names and legacy aliases
// (case-insensitive) onto a canonical tier. Unrecognized values are returned trimmed
// but otherwise untouched.
func NormalizeDifficulty(raw string) Difficulty {
	value := strings.TrimSpace(raw)
	lower := strings.ToLower(value)

	switch Difficulty(lower) {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return Difficulty(lower)
	}
	if d, ok := legacyDifficulties[lower]; ok {
		return d
	}
	return Difficulty(value)
}

// IsCanonical reports whether d is one of the three canonical tiers
func (d Difficulty) IsCanonical() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// Question is a single interview question owned by a session.
// Answer is nil for open-ended questions that have no reference answer.
type Question struct {
	Question   string  `json:"question"`
	Answer     *string `json:"answer"`
	UserAnswer *string `json:"user_answer"`
	Feedback   *string `json:"feedback"`
	Score      *int    `json:"score"`
}

// Challenge is a coding challenge owned by a session
type Challenge struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	SampleInput  string     `json:"sample_input"`
	SampleOutput string     `json:"sample_output"`
	Difficulty   Difficulty `json:"difficulty"`
	UserSolution *string    `json:"user_solution"`
	Language     *string    `json:"language,omitempty"`
	Feedback     *string    `json:"feedback"`
	Score        *int       `json:"score"`
}

// Session is a single interview-practice attempt with a fixed question and challenge set.
type Session struct {
	ID               string        `json:"id"`
	OwnerID          string        `json:"owner_id"`
	Title            string        `json:"title"`
	Topic            string        `json:"topic"`
	Difficulty       Difficulty    `json:"difficulty"`
	Questions        []Question    `json:"questions"`
	CodingChallenges []Challenge   `json:"coding_challenges"`
	Status           SessionStatus `json:"status"`
	OverallScore     int           `json:"overall_score"`
	Feedback         string        `json:"feedback"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// IsCompleted returns true once answers have been submitted
func (s *Session) IsCompleted() bool {
	return s.Status == SessionCompleted
}

// Clone returns a deep copy of the session, including every nullable item field.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s
	if s.Questions != nil {
		c.Questions = make([]Question, len(s.Questions))
		for i, q := range s.Questions {
			c.Questions[i] = Question{
				Question:   q.Question,
				Answer:     cloneString(q.Answer),
				UserAnswer: cloneString(q.UserAnswer),
				Feedback:   cloneString(q.Feedback),
				Score:      cloneInt(q.Score),
			}
		}
	}
	if s.CodingChallenges != nil {
		c.CodingChallenges = make([]Challenge, len(s.CodingChallenges))
		for i, ch := range s.CodingChallenges {
			cc := ch
			cc.UserSolution = cloneString(ch.UserSolution)
			cc.Language = cloneString(ch.Language)
			cc.Feedback = cloneString(ch.Feedback)
			cc.Score = cloneInt(ch.Score)
			c.CodingChallenges[i] = cc
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ListFilters defines filters for listing an owner's sessions
type ListFilters struct {
	Status SessionStatus
	Topic  string
	Limit  int
	Offset int
}

// CreateSessionRequest represents a request to start a practice session
type CreateSessionRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Title      string `json:"title,omitempty"`
}

// SubmitRequest carries answers aligned by index to the session's questions.
// Nil or empty entries are skipped.
type SubmitRequest struct {
	Answers        []*string `json:"answers"`
	CodingSolution *string   `json:"coding_solution,omitempty"`
	Language       string    `json:"language,omitempty"`
}
