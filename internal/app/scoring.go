package app

import (
	"time"

	"quiz-session-service/internal/domain"
)

// defaultBasePoints applies when a question carries no explicit point value.
const defaultBasePoints = 100

// validateQuiz rejects content the engine cannot score. Malformed questions
// fail the session up front instead of being silently corrected at scoring
// time, where a fix-up would be indistinguishable from a scoring bug.
func validateQuiz(quiz domain.Quiz) error {
	if len(quiz.Questions) == 0 {
		return domain.ErrInvalidQuiz
	}
	for i := range quiz.Questions {
		if err := validateQuestion(quiz.Questions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateQuestion(q domain.Question) error {
	switch q.Type {
	case domain.QuestionMultipleChoice, domain.QuestionTrueFalse:
		if len(q.Options) < 2 || countCorrect(q) != 1 {
			return domain.ErrInvalidQuiz
		}
	case domain.QuestionMultipleSelect, domain.QuestionPoll:
		if len(q.Options) == 0 || countCorrect(q) == 0 {
			return domain.ErrInvalidQuiz
		}
	case domain.QuestionOpenEnded:
		// no option constraints; graded asynchronously
	default:
		return domain.ErrInvalidQuiz
	}
	return nil
}

func countCorrect(q domain.Question) int {
	n := 0
	for _, opt := range q.Options {
		if opt.Correct {
			n++
		}
	}
	return n
}

// validateResponse checks the response shape against the question type and
// that every referenced option exists.
func validateResponse(q domain.Question, resp domain.Response) error {
	switch q.Type {
	case domain.QuestionMultipleChoice, domain.QuestionTrueFalse:
		if len(resp.OptionIDs) != 1 || resp.FreeText != "" {
			return domain.ErrInvalidResponse
		}
	case domain.QuestionMultipleSelect, domain.QuestionPoll:
		if len(resp.OptionIDs) == 0 || resp.FreeText != "" {
			return domain.ErrInvalidResponse
		}
	case domain.QuestionOpenEnded:
		if resp.FreeText == "" || len(resp.OptionIDs) != 0 {
			return domain.ErrInvalidResponse
		}
		return nil
	default:
		return domain.ErrInvalidResponse
	}

	seen := make(map[string]bool, len(resp.OptionIDs))
	for _, id := range resp.OptionIDs {
		if seen[id] || !hasOption(q, id) {
			return domain.ErrInvalidResponse
		}
		seen[id] = true
	}
	return nil
}

func hasOption(q domain.Question, optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// scoreResponse determines correctness and points for a validated response.
// Correctness is exact set equality for single- and multi-answer questions,
// membership for polls, and open-ended responses are recorded as attempted
// with no real-time points. Points combine the question's base value with a
// speed bonus that decays linearly from the base value at elapsed 0 to zero
// at the deadline; both are derived only from the stored elapsed offset and
// the question's time limit, so re-scoring reproduces identical results.
func scoreResponse(q domain.Question, resp domain.Response, elapsed time.Duration) (bool, int) {
	correct := false
	switch q.Type {
	case domain.QuestionMultipleChoice, domain.QuestionTrueFalse, domain.QuestionMultipleSelect:
		correct = matchesCorrectSet(q, resp.OptionIDs)
	case domain.QuestionPoll:
		for _, id := range resp.OptionIDs {
			if isCorrectOption(q, id) {
				correct = true
				break
			}
		}
	case domain.QuestionOpenEnded:
		return false, 0
	}

	if !correct {
		return false, 0
	}

	base := q.Points
	if base == 0 {
		base = defaultBasePoints
	}
	return true, base + timeBonus(base, elapsed, q.TimeLimit)
}

// timeBonus decays linearly from base at elapsed 0 to zero at the limit.
// Questions without a limit award no speed bonus.
func timeBonus(base int, elapsed time.Duration, limitSec int) int {
	if limitSec <= 0 {
		return 0
	}
	limit := time.Duration(limitSec) * time.Second
	if elapsed <= 0 {
		return base
	}
	if elapsed >= limit {
		return 0
	}
	remaining := limit - elapsed
	return int(int64(base) * int64(remaining) / int64(limit))
}

func matchesCorrectSet(q domain.Question, optionIDs []string) bool {
	if len(optionIDs) != countCorrect(q) {
		return false
	}
	for _, id := range optionIDs {
		if !isCorrectOption(q, id) {
			return false
		}
	}
	return true
}

func isCorrectOption(q domain.Question, optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID && opt.Correct {
			return true
		}
	}
	return false
}
