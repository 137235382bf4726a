package interview

import "github.com/terra-clan/interview-engine/internal/models"

// Band is a qualitative feedback tier derived from the overall score
type Band string

const (
	BandExcellent     Band = "excellent"
	BandGood          Band = "good"
	BandSatisfactory  Band = "satisfactory"
	BandNeedsPractice Band = "needs_practice"
)

var bandMessages = map[Band]string{
	BandExcellent:     "Excellent performance! You demonstrated strong knowledge and problem-solving skills.",
	BandGood:          "Good job! You showed solid understanding of the concepts with some areas for improvement.",
	BandSatisfactory:  "Satisfactory performance. There are several areas where you could deepen your knowledge.",
	BandNeedsPractice: "You need more practice in this area. Focus on strengthening your fundamental understanding.",
}

// BandFor maps an overall score onto its band. Lower bounds are inclusive.
func BandFor(score int) Band {
	switch {
	case score >= 80:
		return BandExcellent
	case score >= 60:
		return BandGood
	case score >= 40:
		return BandSatisfactory
	default:
		return BandNeedsPractice
	}
}

// Message returns the feedback text for the band
func (b Band) Message() string {
	return bandMessages[b]
}

// Aggregate converts per-item scores on the [1,5] scale into an overall score on
// [20,100]: round(mean * 20), halves rounded up. ok is false for an empty set.
func Aggregate(scores []int) (overall int, ok bool) {
	n := len(scores)
	if n == 0 {
		return 0, false
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	// round(sum*20/n) == floor((sum*40 + n) / 2n)
	return (sum*40 + n) / (2 * n), true
}

// collectScores gathers every non-null item score of a session
func collectScores(s *models.Session) []int {
	var scores []int
	for _, q := range s.Questions {
		if q.Score != nil {
			scores = append(scores, *q.Score)
		}
	}
	for _, c := range s.CodingChallenges {
		if c.Score != nil {
			scores = append(scores, *c.Score)
		}
	}
	return scores
}
