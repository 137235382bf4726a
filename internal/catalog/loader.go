package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/interview-engine/internal/models"
)

//go:embed data/catalog.yaml
var builtinCatalog []byte

// Loader holds the static topic/difficulty keyed interview content.
// It is safe for concurrent use; lookups return copies.
type Loader struct {
	mu         sync.RWMutex
	topics     map[string]*topic
	challenges map[models.Difficulty]*models.ChallengeTemplate
}

type topic struct {
	name        string
	description string
	tiers       map[models.Difficulty][]models.QuestionTemplate
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		topics:     make(map[string]*topic),
		challenges: make(map[models.Difficulty]*models.ChallengeTemplate),
	}
}

// NewDefault creates a loader populated with the built-in catalog
func NewDefault() (*Loader, error) {
	l := NewLoader()
	if err := l.LoadBytes(builtinCatalog); err != nil {
		return nil, fmt.Errorf("failed to load built-in catalog: %w", err)
	}
	return l, nil
}

// LoadFromDir merges every YAML file of a directory on top of the current content
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading catalog from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	if len(files) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("failed to read catalog directory: %w", err)
		}
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load catalog file", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("catalog files loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile merges a single YAML catalog file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return l.LoadBytes(data)
}

// LoadBytes parses catalog YAML and merges it. A tier or challenge defined in data
// replaces the existing one; everything else is kept.
func (l *Loader) LoadBytes(data []byte) error {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate before touching shared state so a bad file merges nothing
	for i, t := range cf.Topics {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("topic #%d: name is required", i+1)
		}
		for tier, questions := range t.Tiers {
			for j, q := range questions {
				if strings.TrimSpace(q.Question) == "" {
					return fmt.Errorf("topic %q tier %q question #%d: text is required", t.Name, tier, j+1)
				}
			}
		}
	}
	for tier, ch := range cf.Challenges {
		if ch.Title == "" {
			return fmt.Errorf("challenge %q: title is required", tier)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range cf.Topics {
		existing, ok := l.topics[t.Name]
		if !ok {
			existing = &topic{
				name:  t.Name,
				tiers: make(map[models.Difficulty][]models.QuestionTemplate),
			}
			l.topics[t.Name] = existing
		}
		if t.Description != "" {
			existing.description = t.Description
		}
		for tier, questions := range t.Tiers {
			existing.tiers[models.NormalizeDifficulty(tier)] = cloneQuestions(questions)
		}
	}

	for tier, ch := range cf.Challenges {
		d := models.NormalizeDifficulty(tier)
		tmpl := ch
		tmpl.Difficulty = d
		l.challenges[d] = &tmpl
	}

	return nil
}

// LookupQuestions returns the ordered questions for a topic and difficulty.
// Unknown topics yield three open-ended questions without reference answers;
// a known topic without the requested tier yields an empty list.
func (l *Loader) LookupQuestions(topicName string, difficulty models.Difficulty) []models.QuestionTemplate {
	l.mu.RLock()
	t, ok := l.topics[topicName]
	var questions []models.QuestionTemplate
	if ok {
		questions = cloneQuestions(t.tiers[models.NormalizeDifficulty(string(difficulty))])
	}
	l.mu.RUnlock()

	if !ok {
		return GenericQuestions(topicName)
	}
	if questions == nil {
		return []models.QuestionTemplate{}
	}
	return questions
}

// LookupChallenge returns the challenge template for a difficulty, or nil
func (l *Loader) LookupChallenge(difficulty models.Difficulty) *models.ChallengeTemplate {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ch, ok := l.challenges[models.NormalizeDifficulty(string(difficulty))]
	if !ok {
		return nil
	}
	c := *ch
	return &c
}

// IsKnownTopic reports whether the topic has catalog content
func (l *Loader) IsKnownTopic(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.topics[name]
	return ok
}

// ListTopics returns summaries of all known topics sorted by name
func (l *Loader) ListTopics() []models.TopicSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]models.TopicSummary, 0, len(l.topics))
	for _, t := range l.topics {
		summary := models.TopicSummary{
			Name:           t.name,
			Description:    t.description,
			Difficulties:   make([]models.Difficulty, 0, len(t.tiers)),
			QuestionCounts: make(map[models.Difficulty]int, len(t.tiers)),
		}
		for tier, questions := range t.tiers {
			summary.Difficulties = append(summary.Difficulties, tier)
			summary.QuestionCounts[tier] = len(questions)
		}
		sortDifficulties(summary.Difficulties)
		result = append(result, summary)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ListChallenges returns all challenge templates ordered by tier
func (l *Loader) ListChallenges() []models.ChallengeTemplate {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tiers := make([]models.Difficulty, 0, len(l.challenges))
	for d := range l.challenges {
		tiers = append(tiers, d)
	}
	sortDifficulties(tiers)

	result := make([]models.ChallengeTemplate, 0, len(tiers))
	for _, d := range tiers {
		result = append(result, *l.challenges[d])
	}
	return result
}

// GenericQuestions builds the open-ended fallback questions for a topic outside the catalog
func GenericQuestions(topicName string) []models.QuestionTemplate {
	return []models.QuestionTemplate{
		{Question: fmt.Sprintf("Tell me about your experience with %s.", topicName)},
		{Question: fmt.Sprintf("What projects have you worked on using %s?", topicName)},
		{Question: fmt.Sprintf("What are the main challenges you've faced when working with %s?", topicName)},
	}
}

func cloneQuestions(in []models.QuestionTemplate) []models.QuestionTemplate {
	if in == nil {
		return nil
	}
	out := make([]models.QuestionTemplate, len(in))
	for i, q := range in {
		out[i] = models.QuestionTemplate{Question: q.Question}
		if q.Answer != nil {
			a := *q.Answer
			out[i].Answer = &a
		}
	}
	return out
}

// sortDifficulties orders canonical tiers ascending, then any custom tiers by name
func sortDifficulties(ds []models.Difficulty) {
	rank := func(d models.Difficulty) int {
		for i, c := range models.Difficulties() {
			if d == c {
				return i
			}
		}
		return len(models.Difficulties())
	}
	sort.Slice(ds, func(i, j int) bool {
		ri, rj := rank(ds[i]), rank(ds[j])
		if ri != rj {
			return ri < rj
		}
		return ds[i] < ds[j]
	})
}

// --- YAML file structs ---

// catalogFile represents the YAML structure of a catalog file
type catalogFile struct {
	Topics     []topicFile                         `yaml:"topics"`
	Challenges map[string]models.ChallengeTemplate `yaml:"challenges"`
}

// topicFile represents one topic entry of a catalog file
type topicFile struct {
	Name        string                               `yaml:"name"`
	Description string                               `yaml:"description"`
	Tiers       map[string][]models.QuestionTemplate `yaml:"tiers"`
}
