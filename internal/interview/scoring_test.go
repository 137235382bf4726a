package interview

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/models"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name   string
		scores []int
		want   int
		ok     bool
	}{
		{"empty", nil, 0, false},
		{"single minimum", []int{1}, 20, true},
		{"single maximum", []int{5}, 100, true},
		{"all maximum", []int{5, 5, 5, 5}, 100, true},
		{"scenario", []int{5, 4, 5, 3}, 85, true},
		{"repeating fraction rounds down", []int{1, 1, 2}, 27, true},
		{"half rounds up", []int{1, 2, 2, 2, 2, 2, 1, 1}, 33, true},
		{"exact", []int{3, 4}, 70, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Aggregate(tt.scores)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregateMatchesRoundedMeanForAllSmallMultisets(t *testing.T) {
	// Every multiset of 1..4 scores drawn from [1,5]
	var walk func(prefix []int)
	walk = func(prefix []int) {
		if len(prefix) > 0 {
			sum := 0
			for _, s := range prefix {
				sum += s
			}
			mean := float64(sum) / float64(len(prefix))
			want := int(math.Floor(mean*20 + 0.5))

			got, ok := Aggregate(prefix)
			require.True(t, ok)
			require.Equal(t, want, got, "scores %v", prefix)
			require.GreaterOrEqual(t, got, 20)
			require.LessOrEqual(t, got, 100)
		}
		if len(prefix) == 4 {
			return
		}
		start := 1
		if len(prefix) > 0 {
			start = prefix[len(prefix)-1]
		}
		for s := start; s <= 5; s++ {
			walk(append(append([]int(nil), prefix...), s))
		}
	}
	walk(nil)
}

func TestBandPartition(t *testing.T) {
	for score := 0; score <= 100; score++ {
		band := BandFor(score)
		switch {
		case score >= 80:
			assert.Equal(t, BandExcellent, band, score)
		case score >= 60:
			assert.Equal(t, BandGood, band, score)
		case score >= 40:
			assert.Equal(t, BandSatisfactory, band, score)
		default:
			assert.Equal(t, BandNeedsPractice, band, score)
		}
		assert.NotEmpty(t, band.Message())
	}

	assert.Equal(t, BandNeedsPractice, BandFor(39))
	assert.Equal(t, BandSatisfactory, BandFor(40))
	assert.Equal(t, BandGood, BandFor(60))
	assert.Equal(t, BandExcellent, BandFor(80))
	assert.Equal(t,
		"Excellent performance! You demonstrated strong knowledge and problem-solving skills.",
		BandExcellent.Message())
}

func TestRandomEvaluator(t *testing.T) {
	ctx := context.Background()
	a := NewRandomEvaluator(42)
	b := NewRandomEvaluator(42)

	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		ea, err := a.Evaluate(ctx, Item{Kind: KindQuestion}, "answer")
		require.NoError(t, err)
		eb, err := b.Evaluate(ctx, Item{Kind: KindQuestion}, "answer")
		require.NoError(t, err)

		assert.Equal(t, ea.Score, eb.Score, "same seed, same sequence")
		assert.GreaterOrEqual(t, ea.Score, MinItemScore)
		assert.LessOrEqual(t, ea.Score, MaxItemScore)
		seen[ea.Score] = true
	}
	assert.Len(t, seen, 5, "every score in [1,5] is drawn")

	q, _ := a.Evaluate(ctx, Item{Kind: KindQuestion}, "x")
	assert.Equal(t, "Good answer! You covered the key points.", q.Feedback)
	c, _ := a.Evaluate(ctx, Item{Kind: KindChallenge}, "x")
	assert.Equal(t, "Your solution works correctly for the given test cases.", c.Feedback)
}

func TestReferenceEvaluator(t *testing.T) {
	ctx := context.Background()
	e := NewReferenceEvaluator()
	ref := "A closure is a function that has access to variables in its outer lexical scope."
	item := Item{Kind: KindQuestion, Reference: &ref}

	full, err := e.Evaluate(ctx, item, "A closure is a function with access to variables from the outer lexical scope even after it returns.")
	require.NoError(t, err)
	assert.Equal(t, 5, full.Score)

	partial, err := e.Evaluate(ctx, item, "It is a function that uses variables.")
	require.NoError(t, err)
	assert.Less(t, partial.Score, full.Score)
	assert.GreaterOrEqual(t, partial.Score, MinItemScore)

	none, err := e.Evaluate(ctx, item, "No idea")
	require.NoError(t, err)
	assert.Equal(t, 1, none.Score)

	open, err := e.Evaluate(ctx, Item{Kind: KindQuestion}, "I built two production services and a CLI with it")
	require.NoError(t, err)
	assert.Equal(t, 2, open.Score)

	expected := "FizzBuzz"
	short, err := e.Evaluate(ctx, Item{Kind: KindChallenge, Reference: &expected}, "print()")
	require.NoError(t, err)
	assert.Equal(t, 1, short.Score)
	assert.Contains(t, short.Feedback, "solution")
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	questions := EvaluatorFunc(func(ctx context.Context, item Item, submitted string) (Evaluation, error) {
		return Evaluation{Score: 2, Feedback: "q"}, nil
	})
	challenges := EvaluatorFunc(func(ctx context.Context, item Item, submitted string) (Evaluation, error) {
		return Evaluation{Score: 4, Feedback: "c"}, nil
	})

	r := &Router{Questions: questions, Challenges: challenges}
	q, _ := r.Evaluate(ctx, Item{Kind: KindQuestion}, "a")
	c, _ := r.Evaluate(ctx, Item{Kind: KindChallenge}, "a")
	assert.Equal(t, "q", q.Feedback)
	assert.Equal(t, "c", c.Feedback)

	fallback := &Router{Questions: questions}
	c, _ = fallback.Evaluate(ctx, Item{Kind: KindChallenge}, "a")
	assert.Equal(t, "q", c.Feedback)
}

func TestCollectScoresSkipsNulls(t *testing.T) {
	five, three := 5, 3
	s := &models.Session{
		Questions:        []models.Question{{Score: &five}, {}, {Score: &three}},
		CodingChallenges: []models.Challenge{{}},
	}
	assert.Equal(t, []int{5, 3}, collectScores(s))
}
