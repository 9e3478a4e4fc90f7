package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"quizsnap/internal/domain"
)

func TestGenerateQuizFromText(t *testing.T) {
	fake := &fakeModels{text: `[
		{"id":"q1","type":"MULTIPLE_CHOICE","question":"What do bees make?","options":["Honey","Milk","Bread","Salt"],"correctAnswer":"Honey"},
		{"id":"","type":"FILL_BLANKS","question":"Bees live in a ____.","options":["hive","cave","nest"],"correctAnswer":"hive"}
	]`}
	gen := &Generator{models: fake, model: DefaultModel, log: zerolog.Nop()}
	cfg := domain.QuizConfig{
		QuestionCount: 2,
		Difficulty:    domain.Easy,
		Language:      domain.English,
		AllowedTypes:  []domain.QuestionType{domain.MultipleChoice, domain.FillBlanks},
	}

	questions, err := gen.GenerateQuiz(context.Background(), domain.LessonSource{Text: "Bees make honey in hives."}, cfg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(questions) != 2 || questions[1].ID != "q2" || questions[0].CorrectAnswer != "Honey" {
		t.Fatalf("unexpected questions %+v", questions)
	}

	if fake.model != DefaultModel {
		t.Fatalf("expected model %s, got %s", DefaultModel, fake.model)
	}
	if fake.config.ResponseMIMEType != "application/json" || fake.config.ResponseSchema == nil {
		t.Fatalf("expected JSON schema response config")
	}
	prompt := fake.contents[0].Parts[0].Text
	for _, want := range []string{"Bees make honey in hives.", "exactly 2 questions", "Difficulty Level: easy", "Language: English", "Multiple Choice (4 options)", "Fill-in-the-blanks"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateQuizFromImage(t *testing.T) {
	fake := &fakeModels{text: `[{"id":"q1","type":"TRUE_FALSE","question":"Die Sonne ist ein Stern.","options":["Wahr","Falsch"],"correctAnswer":"Wahr"}]`}
	gen := &Generator{models: fake, model: DefaultModel, log: zerolog.Nop()}
	cfg := domain.QuizConfig{QuestionCount: 1, Difficulty: domain.Hard, Language: domain.German, AllowedTypes: []domain.QuestionType{domain.TrueFalse}}

	src := domain.LessonSource{Image: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/png"}
	if _, err := gen.GenerateQuiz(context.Background(), src, cfg); err != nil {
		t.Fatalf("generate: %v", err)
	}
	parts := fake.contents[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "image/png" {
		t.Fatalf("expected inline image part first, got %+v", parts)
	}
	if !strings.Contains(parts[1].Text, "Analyze this image") || !strings.Contains(parts[1].Text, "Language: German") {
		t.Fatalf("unexpected image prompt %q", parts[1].Text)
	}
}

func TestGenerateQuizFailures(t *testing.T) {
	cfg := domain.DefaultQuizConfig()
	cases := map[string]*fakeModels{
		"empty text":   {text: "  "},
		"invalid json": {text: "Here is your quiz!"},
		"empty array":  {text: "[]"},
		"api error":    {err: errors.New("quota exceeded")},
	}
	for name, fake := range cases {
		gen := &Generator{models: fake, model: DefaultModel, log: zerolog.Nop()}
		if _, err := gen.GenerateQuiz(context.Background(), domain.LessonSource{Text: "x"}, cfg); !errors.Is(err, domain.ErrGenerationFailed) {
			t.Fatalf("%s: expected ErrGenerationFailed, got %v", name, err)
		}
	}
}

type fakeModels struct {
	text string
	err  error

	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}, Role: "model"},
		}},
	}, nil
}
