// Package gemini generates quizzes with the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"quizsnap/internal/domain"
)

const DefaultModel = "gemini-3-flash-preview"

var languageNames = map[domain.Language]string{
	domain.Arabic:  "Arabic",
	domain.English: "English",
	domain.German:  "German",
}

var typeDescriptions = map[domain.QuestionType]string{
	domain.MultipleChoice: "Multiple Choice (4 options)",
	domain.TrueFalse:      "True/False",
	domain.FillBlanks:     "short Fill-in-the-blanks (one or two words maximum)",
}

var quizSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"id":            {Type: genai.TypeString},
			"type":          {Type: genai.TypeString, Enum: []string{string(domain.MultipleChoice), string(domain.TrueFalse), string(domain.FillBlanks)}},
			"question":      {Type: genai.TypeString},
			"options":       {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"correctAnswer": {Type: genai.TypeString},
		},
		Required: []string{"id", "type", "question", "options", "correctAnswer"},
	},
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator turns a lesson photo or text into questions.
type Generator struct {
	models contentGenerator
	model  string
	log    zerolog.Logger
}

// New connects to the Gemini API with apiKey.
func New(ctx context.Context, apiKey, model string, log zerolog.Logger) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Generator{models: client.Models, model: model, log: log}, nil
}

func (g *Generator) GenerateQuiz(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, contents(src, cfg), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   quizSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}

	questions, err := parseQuestions(resp.Text())
	if err != nil {
		return nil, err
	}
	g.log.Debug().Int("questions", len(questions)).Bool("image", src.IsImage()).Str("model", g.model).Msg("quiz generated")
	return questions, nil
}

func contents(src domain.LessonSource, cfg domain.QuizConfig) []*genai.Content {
	if src.IsImage() {
		mime := src.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts := []*genai.Part{
			genai.NewPartFromBytes(src.Image, mime),
			genai.NewPartFromText("Analyze this image and create a quiz based on its educational content. " + instruction(cfg)),
		}
		return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	}
	return genai.Text(fmt.Sprintf("Based on this text: %q, %s", src.Text, instruction(cfg)))
}

func instruction(cfg domain.QuizConfig) string {
	types := make([]string, 0, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		if desc, ok := typeDescriptions[t]; ok {
			types = append(types, desc)
		}
	}
	lang, ok := languageNames[cfg.Language]
	if !ok {
		lang = string(cfg.Language)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an educational expert. Generate a quiz with exactly %d questions.\n", cfg.QuestionCount)
	fmt.Fprintf(&b, "Difficulty Level: %s.\n", cfg.Difficulty)
	fmt.Fprintf(&b, "Language: %s.\n", lang)
	b.WriteString("Ensure the questions are engaging for children.\n")
	fmt.Fprintf(&b, "Allowed question types: %s.\n", strings.Join(types, ", "))
	b.WriteString("For TRUE_FALSE questions the options are the two words for true and false in the quiz language.\n")
	b.WriteString("Strictly return only the JSON array.")
	return b.String()
}

// parseQuestions decodes the model's JSON array. Missing ids are filled in
// by position; everything else is left to quiz validation.
func parseQuestions(text string) ([]domain.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response from model", domain.ErrGenerationFailed)
	}
	var questions []domain.Question
	if err := json.Unmarshal([]byte(text), &questions); err != nil {
		return nil, fmt.Errorf("%w: decode model output: %v", domain.ErrGenerationFailed, err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: model returned no questions", domain.ErrGenerationFailed)
	}
	for i := range questions {
		if strings.TrimSpace(questions[i].ID) == "" {
			questions[i].ID = "q" + strconv.Itoa(i+1)
		}
	}
	return questions, nil
}
