package domain_test

import (
	"testing"

	"quizsnap/internal/domain"
)

func TestAnswerScoresOnlyFirstAttempt(t *testing.T) {
	questions := sampleQuestions()
	p := domain.NewProgress()

	p, correct := p.Answer(questions[0], "3", len(questions))
	if correct {
		t.Fatalf("expected wrong answer")
	}
	if p.CurrentQuestionIndex != 0 || p.Score != 0 || p.Attempts["q1"] != 1 {
		t.Fatalf("wrong answer should record attempt only, got %+v", p)
	}

	p, correct = p.Answer(questions[0], "4", len(questions))
	if !correct {
		t.Fatalf("expected correct answer")
	}
	if p.Score != 0 {
		t.Fatalf("retry must not score, got %d", p.Score)
	}
	if p.CurrentQuestionIndex != 1 || !p.IsWaiting || p.IsFinished {
		t.Fatalf("expected advance with settle, got %+v", p)
	}

	p = p.Release()
	p, _ = p.Answer(questions[1], "True", len(questions))
	if p.Score != 1 || !p.IsFinished || p.IsWaiting {
		t.Fatalf("expected finished with score 1, got %+v", p)
	}
}

func TestAnswerDoesNotMutateReceiver(t *testing.T) {
	questions := sampleQuestions()
	p := domain.NewProgress()
	_, _ = p.Answer(questions[0], "3", len(questions))
	if len(p.Attempts) != 0 {
		t.Fatalf("receiver attempts mutated: %+v", p.Attempts)
	}
}

func TestScoreMonotonicAndBounded(t *testing.T) {
	questions := sampleQuestions()
	answers := []string{"5", "4", "False", "True"}

	p := domain.NewProgress()
	prev := 0
	for _, a := range answers {
		if p.IsFinished {
			break
		}
		p, _ = p.Answer(questions[p.CurrentQuestionIndex], a, len(questions))
		p = p.Release()
		if p.Score < prev {
			t.Fatalf("score decreased from %d to %d", prev, p.Score)
		}
		prev = p.Score
		if p.IsFinished != (p.CurrentQuestionIndex >= len(questions)) {
			t.Fatalf("finished flag out of sync: %+v", p)
		}
	}
	if p.Score > len(questions) {
		t.Fatalf("score %d exceeds question count", p.Score)
	}
	if !p.IsFinished {
		t.Fatalf("expected finished")
	}
}

func TestFillBlanksIgnoresCase(t *testing.T) {
	q := domain.Question{ID: "f1", Type: domain.FillBlanks, Question: "The sky is ___", CorrectAnswer: "Blue"}
	if !q.Accepts("  blue ") {
		t.Fatalf("expected case-insensitive match")
	}
	mc := domain.Question{ID: "m1", Type: domain.MultipleChoice, Options: []string{"Blue", "Red"}, CorrectAnswer: "Blue"}
	if mc.Accepts("blue") {
		t.Fatalf("multiple choice must match exactly")
	}
}

func TestSummaryTitle(t *testing.T) {
	qs := []domain.Question{{Question: "What is the largest planet in the solar system?"}}
	if got := domain.SummaryTitle(qs); got != "What is the largest planet in ..." {
		t.Fatalf("unexpected title %q", got)
	}
	if got := domain.SummaryTitle(nil); got != "..." {
		t.Fatalf("unexpected empty title %q", got)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            "q1",
			Type:          domain.MultipleChoice,
			Question:      "What is 2 + 2?",
			Options:       []string{"3", "4", "5"},
			CorrectAnswer: "4",
		},
		{
			ID:            "q2",
			Type:          domain.TrueFalse,
			Question:      "Water boils at 100C at sea level.",
			Options:       []string{"True", "False"},
			CorrectAnswer: "True",
		},
	}
}
