package interview

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/terra-clan/interview-engine/internal/models"
)

// Score bounds for a single evaluated item
const (
	MinItemScore = 1
	MaxItemScore = 5
)

// ItemKind tells an evaluator what it is grading
type ItemKind string

const (
	KindQuestion  ItemKind = "question"
	KindChallenge ItemKind = "challenge"
)

// Item describes one question or challenge handed to an Evaluator.
// Reference is the expected answer for questions and the sample output for challenges.
type Item struct {
	Kind       ItemKind
	Index      int
	Prompt     string
	Reference  *string
	Input      string
	Difficulty models.Difficulty
	Topic      string
	Language   string
}

// Evaluation is the result of grading one item
type Evaluation struct {
	Score    int
	Feedback string
}

// Evaluator scores a single submitted answer or solution.
// Returning an error leaves the item unscored; it never fails the submission.
type Evaluator interface {
	Evaluate(ctx context.Context, item Item, submitted string) (Evaluation, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface
type EvaluatorFunc func(ctx context.Context, item Item, submitted string) (Evaluation, error)

// Evaluate calls f
func (f EvaluatorFunc) Evaluate(ctx context.Context, item Item, submitted string) (Evaluation, error) {
	return f(ctx, item, submitted)
}

const (
	questionFeedback  = "Good answer! You covered the key points."
	challengeFeedback = "Your solution works correctly for the given test cases."
)

// RandomEvaluator is the placeholder grader: it draws a uniform score in [1,5]
// and returns fixed feedback. It is stochastic unless constructed with a fixed seed.
type RandomEvaluator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomEvaluator creates a RandomEvaluator; seed 0 seeds from the clock
func NewRandomEvaluator(seed int64) *RandomEvaluator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomEvaluator{
		rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}
}

// Evaluate draws a score
func (e *RandomEvaluator) Evaluate(ctx context.Context, item Item, submitted string) (Evaluation, error) {
	e.mu.Lock()
	score := e.rng.IntN(MaxItemScore) + MinItemScore
	e.mu.Unlock()

	feedback := questionFeedback
	if item.Kind == KindChallenge {
		feedback = challengeFeedback
	}
	return Evaluation{Score: score, Feedback: feedback}, nil
}

// ReferenceEvaluator grades answers by how many reference-answer words they cover.
// Items without a reference answer, and challenges, are graded on answer length.
type ReferenceEvaluator struct{}

// NewReferenceEvaluator creates a ReferenceEvaluator
func NewReferenceEvaluator() *ReferenceEvaluator {
	return &ReferenceEvaluator{}
}

// Evaluate compares the submission with the item's reference
func (e *ReferenceEvaluator) Evaluate(ctx context.Context, item Item, submitted string) (Evaluation, error) {
	if item.Kind == KindQuestion && item.Reference != nil && len(tokenize(*item.Reference)) > 0 {
		return gradeRecall(recall(*item.Reference, submitted)), nil
	}
	return gradeLength(len(strings.Fields(submitted)), item.Kind), nil
}

// recall is the share of distinct reference tokens present in the answer
func recall(reference, answer string) float64 {
	ref := tokenize(reference)
	got := tokenize(answer)

	hits := 0
	for token := range ref {
		if _, ok := got[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(ref))
}

func gradeRecall(r float64) Evaluation {
	switch {
	case r >= 0.8:
		return Evaluation{Score: 5, Feedback: "Excellent answer. You covered essentially all of the key points."}
	case r >= 0.6:
		return Evaluation{Score: 4, Feedback: "Good answer. Most of the key points are there."}
	case r >= 0.4:
		return Evaluation{Score: 3, Feedback: "Decent answer, but several key points are missing."}
	case r >= 0.2:
		return Evaluation{Score: 2, Feedback: "Your answer touches on the topic but misses most of the key points."}
	default:
		return Evaluation{Score: 1, Feedback: "Your answer does not cover the expected key points. Review this concept."}
	}
}

func gradeLength(words int, kind ItemKind) Evaluation {
	noun := "answer"
	if kind == KindChallenge {
		noun = "solution"
	}
	switch {
	case words >= 50:
		return Evaluation{Score: 4, Feedback: "Thorough " + noun + "."}
	case words >= 20:
		return Evaluation{Score: 3, Feedback: "Reasonable " + noun + "; more detail would strengthen it."}
	case words >= 5:
		return Evaluation{Score: 2, Feedback: "Brief " + noun + "; try to elaborate."}
	default:
		return Evaluation{Score: 1, Feedback: "The " + noun + " is too short to assess."}
	}
}

// stopwords are ignored when comparing answers
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"can": {}, "its": {}, "has": {}, "that": {}, "this": {}, "with": {}, "from": {}, "into": {},
	"when": {}, "which": {}, "their": {}, "them": {}, "they": {}, "was": {}, "were": {}, "will": {},
	"also": {}, "each": {}, "than": {}, "then": {}, "only": {}, "such": {}, "more": {}, "other": {},
}

func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		tokens[word] = struct{}{}
	}
	return tokens
}

// Router sends questions and challenges to different evaluators.
// A nil Challenges evaluator falls back to Questions.
type Router struct {
	Questions  Evaluator
	Challenges Evaluator
}

// Evaluate dispatches by item kind
func (r *Router) Evaluate(ctx context.Context, item Item, submitted string) (Evaluation, error) {
	if item.Kind == KindChallenge && r.Challenges != nil {
		return r.Challenges.Evaluate(ctx, item, submitted)
	}
	return r.Questions.Evaluate(ctx, item, submitted)
}
