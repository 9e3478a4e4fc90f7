package app

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"quizsnap/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateConfig checks a quiz configuration.
func ValidateConfig(cfg domain.QuizConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: config: %v", domain.ErrInvalidQuiz, err)
	}
	return nil
}

// ValidateQuiz checks generated or received questions against cfg and
// returns the set to play. Questions beyond cfg.QuestionCount are dropped.
func ValidateQuiz(questions []domain.Question, cfg domain.QuizConfig) ([]domain.Question, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", domain.ErrInvalidQuiz)
	}
	if cfg.QuestionCount > 0 && len(questions) > cfg.QuestionCount {
		questions = questions[:cfg.QuestionCount]
	}

	ids := lo.Map(questions, func(q domain.Question, _ int) string { return q.ID })
	if dup := lo.FindDuplicates(ids); len(dup) > 0 {
		return nil, fmt.Errorf("%w: duplicate question ids %v", domain.ErrInvalidQuiz, dup)
	}

	for i, q := range questions {
		if err := validate.Struct(q); err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", domain.ErrInvalidQuiz, i, err)
		}
		if len(cfg.AllowedTypes) > 0 && !cfg.Allows(q.Type) {
			return nil, fmt.Errorf("%w: question %d has type %s not in allowed types", domain.ErrInvalidQuiz, i, q.Type)
		}
		// Every type is answered by picking an option.
		switch q.Type {
		case domain.MultipleChoice:
			if len(q.Options) < 2 {
				return nil, fmt.Errorf("%w: question %d needs at least two options", domain.ErrInvalidQuiz, i)
			}
		case domain.TrueFalse:
			if len(q.Options) != 2 {
				return nil, fmt.Errorf("%w: question %d must have exactly two options", domain.ErrInvalidQuiz, i)
			}
		}
		if !lo.ContainsBy(q.Options, q.Accepts) {
			return nil, fmt.Errorf("%w: question %d answer %q is not an option", domain.ErrInvalidQuiz, i, q.CorrectAnswer)
		}
	}
	return questions, nil
}
