package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/terra-clan/interview-engine/internal/models"
)

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// encodeItems marshals the session's question and challenge lists for storage
func encodeItems(s *models.Session) (questionsJSON, challengesJSON []byte, err error) {
	questions := s.Questions
	if questions == nil {
		questions = []models.Question{}
	}
	challenges := s.CodingChallenges
	if challenges == nil {
		challenges = []models.Challenge{}
	}

	questionsJSON, err = json.Marshal(questions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal questions: %w", err)
	}
	challengesJSON, err = json.Marshal(challenges)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal coding challenges: %w", err)
	}
	return questionsJSON, challengesJSON, nil
}

// decodeItems fills the session's question and challenge lists from stored JSON
func decodeItems(s *models.Session, questionsJSON, challengesJSON []byte) error {
	s.Questions = []models.Question{}
	s.CodingChallenges = []models.Challenge{}

	if len(questionsJSON) > 0 {
		if err := json.Unmarshal(questionsJSON, &s.Questions); err != nil {
			return fmt.Errorf("failed to unmarshal questions: %w", err)
		}
	}
	if len(challengesJSON) > 0 {
		if err := json.Unmarshal(challengesJSON, &s.CodingChallenges); err != nil {
			return fmt.Errorf("failed to unmarshal coding challenges: %w", err)
		}
	}
	return nil
}

// Helper functions for nullable values

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullUnixNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
