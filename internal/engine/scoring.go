package engine

import "livequiz-service/internal/domain"

// Policy maps a submitted answer to a point delta for one question. Policies
// are pure and safely shared across rooms.
type Policy func(q domain.Question, answer string) int

// ExactMatch awards the question's full point value when the submitted answer
// literally equals one of the acceptable answers, and zero otherwise. No case
// folding or whitespace trimming: the authoring side owns normalization.
func ExactMatch(q domain.Question, answer string) int {
	if Matches(q, answer) {
		return q.Points
	}
	return 0
}

// Matches reports whether the answer is literally in the acceptable set.
// Correctness and point award are kept separate so a zero-point question
// still reveals a correct answer as correct.
func Matches(q domain.Question, answer string) bool {
	for _, accepted := range q.Answers {
		if accepted == answer {
			return true
		}
	}
	return false
}
