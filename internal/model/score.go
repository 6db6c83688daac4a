package model

import "math"

// ScorePercent computes the session score as a 0-100 integer percentage of
// correct answers among answered questions. Unanswered-only sessions score 0.
//
// The engine applies this to its in-memory answers at completion; the session
// service applies it to persisted answer rows. Both sides must agree, so this
// is the single shared implementation.
func ScorePercent(correct, answered int) int {
	if answered <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(answered) * 100))
}
