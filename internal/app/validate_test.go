package app_test

import (
	"errors"
	"testing"

	"quizsnap/internal/app"
	"quizsnap/internal/domain"
)

func TestValidateQuizRejectsBadQuestions(t *testing.T) {
	cases := map[string]func(q []domain.Question){
		"fill blanks without options": func(q []domain.Question) { q[4].Options = nil },
		"empty options":               func(q []domain.Question) { q[0].Options = []string{} },
		"single multiple choice":      func(q []domain.Question) { q[0].Options = []string{"4"} },
		"true false with three":       func(q []domain.Question) { q[1].Options = []string{"True", "False", "Maybe"} },
		"answer not an option":        func(q []domain.Question) { q[4].CorrectAnswer = "Argon" },
		"duplicate ids":               func(q []domain.Question) { q[1].ID = q[0].ID },
		"type not allowed":            func(q []domain.Question) { q[2].Type = "ESSAY" },
	}
	for name, mutate := range cases {
		questions := sampleQuiz()
		mutate(questions)
		if _, err := app.ValidateQuiz(questions, quizConfig()); !errors.Is(err, domain.ErrInvalidQuiz) {
			t.Fatalf("%s: expected ErrInvalidQuiz, got %v", name, err)
		}
	}
}

func TestValidateQuizAcceptsFillBlanksOption(t *testing.T) {
	questions := sampleQuiz()
	// Fill-in-the-blank answers match options case-insensitively.
	questions[4].CorrectAnswer = " oxygen"

	got, err := app.ValidateQuiz(questions, quizConfig())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(got))
	}
}

func TestValidateQuizTrimsToCount(t *testing.T) {
	cfg := quizConfig()
	cfg.QuestionCount = 3

	got, err := app.ValidateQuiz(sampleQuiz(), cfg)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(got) != 3 || got[2].ID != "q3" {
		t.Fatalf("expected first three questions, got %+v", got)
	}
}
