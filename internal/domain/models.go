package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// QuestionType is the shape of a generated question.
type QuestionType string

const (
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TrueFalse      QuestionType = "TRUE_FALSE"
	FillBlanks     QuestionType = "FILL_BLANKS"
)

// Difficulty controls the generation prompt.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Language is the language questions are generated in.
type Language string

const (
	Arabic  Language = "ar"
	English Language = "en"
	German  Language = "de"
)

// Question is immutable once generated. Every type carries at least one
// option and CorrectAnswer must be one of them.
type Question struct {
	ID            string       `json:"id" validate:"required"`
	Type          QuestionType `json:"type" validate:"required,oneof=MULTIPLE_CHOICE TRUE_FALSE FILL_BLANKS"`
	Question      string       `json:"question" validate:"required"`
	Options       []string     `json:"options" validate:"min=1"`
	CorrectAnswer string       `json:"correctAnswer" validate:"required"`
}

// Accepts reports whether answer matches the correct answer.
// Fill-in-the-blank answers ignore case and surrounding whitespace.
func (q Question) Accepts(answer string) bool {
	if q.Type == FillBlanks {
		return strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectAnswer))
	}
	return answer == q.CorrectAnswer
}

// QuizConfig travels with the question set so both sides render identically.
type QuizConfig struct {
	QuestionCount int            `json:"questionCount" validate:"min=1,max=50"`
	Difficulty    Difficulty     `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Language      Language       `json:"language" validate:"required,oneof=ar en de"`
	AllowedTypes  []QuestionType `json:"allowedTypes" validate:"min=1,dive,oneof=MULTIPLE_CHOICE TRUE_FALSE FILL_BLANKS"`
}

// DefaultQuizConfig mirrors the defaults of the quiz setup screen.
func DefaultQuizConfig() QuizConfig {
	return QuizConfig{
		QuestionCount: 5,
		Difficulty:    Medium,
		Language:      Arabic,
		AllowedTypes:  []QuestionType{MultipleChoice},
	}
}

// Allows reports whether t is one of the configured question types.
func (c QuizConfig) Allows(t QuestionType) bool {
	for _, allowed := range c.AllowedTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// LessonSource is what the quiz is generated from: a photo or pasted text.
type LessonSource struct {
	Image    []byte
	MIMEType string
	Text     string
}

// IsImage reports whether the source carries image bytes.
func (s LessonSource) IsImage() bool {
	return len(s.Image) > 0
}

// Fingerprint identifies a generation request: the same lesson with the same
// config yields the same key.
func (s LessonSource) Fingerprint(cfg QuizConfig) string {
	h := sha256.New()
	cfgJSON, _ := json.Marshal(cfg)
	h.Write(cfgJSON)
	h.Write([]byte{0})
	h.Write([]byte(s.MIMEType))
	h.Write([]byte{0})
	h.Write(s.Image)
	h.Write([]byte{0})
	h.Write([]byte(s.Text))
	return hex.EncodeToString(h.Sum(nil))
}

// MatchSummary is the record appended to local history when a quiz completes.
type MatchSummary struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	Config    QuizConfig `json:"config"`
	BestScore int        `json:"bestScore"`
}

// HistoryLimit caps the number of summaries kept in local history.
const HistoryLimit = 10

// SummaryTitle derives a history title from the first question.
func SummaryTitle(questions []Question) string {
	if len(questions) == 0 {
		return "..."
	}
	runes := []rune(questions[0].Question)
	if len(runes) > 30 {
		runes = runes[:30]
	}
	return string(runes) + "..."
}
