package app

import (
	"errors"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func TestValidateQuestionConstraints(t *testing.T) {
	cases := []struct {
		name string
		q    domain.Question
		ok   bool
	}{
		{"mc one correct", mcQuestion(), true},
		{"mc no correct", domain.Question{Type: domain.QuestionMultipleChoice, Options: []domain.Option{{ID: "a"}, {ID: "b"}}}, false},
		{"mc two correct", domain.Question{Type: domain.QuestionMultipleChoice, Options: []domain.Option{{ID: "a", Correct: true}, {ID: "b", Correct: true}}}, false},
		{"true_false one option", domain.Question{Type: domain.QuestionTrueFalse, Options: []domain.Option{{ID: "t", Correct: true}}}, false},
		{"multi select two correct", domain.Question{Type: domain.QuestionMultipleSelect, Options: []domain.Option{{ID: "a", Correct: true}, {ID: "b", Correct: true}, {ID: "c"}}}, true},
		{"poll no correct", domain.Question{Type: domain.QuestionPoll, Options: []domain.Option{{ID: "a"}, {ID: "b"}}}, false},
		{"open ended bare", domain.Question{Type: domain.QuestionOpenEnded}, true},
		{"unknown type", domain.Question{Type: "essay"}, false},
	}
	for _, tc := range cases {
		err := validateQuestion(tc.q)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, domain.ErrInvalidQuiz) {
			t.Errorf("%s: expected ErrInvalidQuiz, got %v", tc.name, err)
		}
	}
}

func TestTimeBonusBoundaries(t *testing.T) {
	if got := timeBonus(100, 0, 30); got != 100 {
		t.Fatalf("expected full bonus at t=0, got %d", got)
	}
	if got := timeBonus(100, 30*time.Second, 30); got != 0 {
		t.Fatalf("expected zero bonus at the deadline, got %d", got)
	}
	if got := timeBonus(100, 15*time.Second, 30); got != 50 {
		t.Fatalf("expected half bonus at half time, got %d", got)
	}
	if got := timeBonus(100, 5*time.Second, 0); got != 0 {
		t.Fatalf("expected no bonus without a limit, got %d", got)
	}
	if got := timeBonus(100, 45*time.Second, 30); got != 0 {
		t.Fatalf("expected clamped bonus past the deadline, got %d", got)
	}
}

func TestScoreMultipleSelectExactEquality(t *testing.T) {
	q := domain.Question{
		Type:   domain.QuestionMultipleSelect,
		Points: 100,
		Options: []domain.Option{
			{ID: "a", Correct: true},
			{ID: "b", Correct: true},
			{ID: "c"},
		},
	}

	correct, awarded := scoreResponse(q, domain.Response{OptionIDs: []string{"b", "a"}}, 0)
	if !correct || awarded != 100 {
		t.Fatalf("expected full set match to score, got correct=%v awarded=%d", correct, awarded)
	}

	// a subset of the correct set is not exact equality
	if correct, _ := scoreResponse(q, domain.Response{OptionIDs: []string{"a"}}, 0); correct {
		t.Fatalf("expected partial selection to be incorrect")
	}
	if correct, _ := scoreResponse(q, domain.Response{OptionIDs: []string{"a", "b", "c"}}, 0); correct {
		t.Fatalf("expected superset selection to be incorrect")
	}
}

func TestScorePollMembership(t *testing.T) {
	q := domain.Question{
		Type:   domain.QuestionPoll,
		Points: 10,
		Options: []domain.Option{
			{ID: "a", Correct: true},
			{ID: "b", Correct: true},
			{ID: "c"},
		},
	}

	if correct, _ := scoreResponse(q, domain.Response{OptionIDs: []string{"b"}}, 0); !correct {
		t.Fatalf("expected any marked-correct choice to count for polls")
	}
	if correct, _ := scoreResponse(q, domain.Response{OptionIDs: []string{"c"}}, 0); correct {
		t.Fatalf("expected unmarked choice to be incorrect")
	}
}

func TestScoringIsReproducible(t *testing.T) {
	q := mcQuestion()
	elapsed := 7 * time.Second
	resp := domain.Response{OptionIDs: []string{"a"}}

	correct1, awarded1 := scoreResponse(q, resp, elapsed)
	correct2, awarded2 := scoreResponse(q, resp, elapsed)
	if correct1 != correct2 || awarded1 != awarded2 {
		t.Fatalf("expected identical re-score, got (%v,%d) vs (%v,%d)", correct1, awarded1, correct2, awarded2)
	}
}

func TestDefaultBasePoints(t *testing.T) {
	q := mcQuestion()
	q.Points = 0
	_, awarded := scoreResponse(q, domain.Response{OptionIDs: []string{"a"}}, 0)
	if awarded != 2*defaultBasePoints {
		t.Fatalf("expected default base plus full bonus, got %d", awarded)
	}
}

func mcQuestion() domain.Question {
	return domain.Question{
		ID:     "q",
		Type:   domain.QuestionMultipleChoice,
		Points: 100,
		Options: []domain.Option{
			{ID: "a", Correct: true},
			{ID: "b"},
		},
		TimeLimit: 30,
	}
}
