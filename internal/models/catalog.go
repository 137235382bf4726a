package models

// QuestionTemplate is a catalog question with its optional reference answer
type QuestionTemplate struct {
	Question string  `yaml:"question" json:"question"`
	Answer   *string `yaml:"answer" json:"answer"`
}

// ChallengeTemplate is the catalog form of a coding challenge
type ChallengeTemplate struct {
	Title        string     `yaml:"title" json:"title"`
	Description  string     `yaml:"description" json:"description"`
	SampleInput  string     `yaml:"sample_input" json:"sample_input"`
	SampleOutput string     `yaml:"sample_output" json:"sample_output"`
	Difficulty   Difficulty `yaml:"-" json:"difficulty"`
}

// TopicSummary describes a known catalog topic for browsing
type TopicSummary struct {
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Difficulties   []Difficulty       `json:"difficulties"`
	QuestionCounts map[Difficulty]int `json:"question_counts"`
}

// ToChallenge converts a template into a fresh, unanswered session challenge
func (t *ChallengeTemplate) ToChallenge() Challenge {
	return Challenge{
		Title:        t.Title,
		Description:  t.Description,
		SampleInput:  t.SampleInput,
		SampleOutput: t.SampleOutput,
		Difficulty:   t.Difficulty,
	}
}
