// Package protocol is the session contract between two peers: two message
// kinds carried as {"type": ..., "payload": ...} records.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"quizsnap/internal/domain"
)

// Kind tags a message on the wire.
type Kind string

const (
	// KindInitQuiz is sent once by the host after the guest connects.
	KindInitQuiz Kind = "INIT_QUIZ"
	// KindProgress is sent by either side whenever its own progress changes.
	KindProgress Kind = "PROGRESS"
)

// Message is implemented by InitQuiz and Progress only.
type Message interface {
	Kind() Kind
	isMessage()
}

// InitQuiz delivers the host's quiz to the guest.
type InitQuiz struct {
	Questions []domain.Question `json:"questions"`
	Config    domain.QuizConfig `json:"config"`
}

func (InitQuiz) Kind() Kind { return KindInitQuiz }
func (InitQuiz) isMessage()  {}

// Progress carries the sender's own PlayerProgress. Receivers overwrite
// their mirror with it, last write wins.
type Progress struct {
	domain.PlayerProgress
}

func (Progress) Kind() Kind { return KindProgress }
func (Progress) isMessage()  {}

// NewProgress wraps a progress snapshot for sending.
func NewProgress(p domain.PlayerProgress) Progress {
	return Progress{PlayerProgress: p.Clone()}
}

type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes m as a tagged record.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return json.Marshal(envelope{Type: m.Kind(), Payload: payload})
}

// Decode parses a tagged record. Anything that is not a well-formed
// INIT_QUIZ or PROGRESS yields an error wrapping domain.ErrMalformedMessage.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		return nil, fmt.Errorf("%w: missing payload for %q", domain.ErrMalformedMessage, env.Type)
	}

	switch env.Type {
	case KindInitQuiz:
		var m InitQuiz
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", domain.ErrMalformedMessage, env.Type, err)
		}
		return m, nil
	case KindProgress:
		var m Progress
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", domain.ErrMalformedMessage, env.Type, err)
		}
		if m.Attempts == nil {
			m.Attempts = map[string]int{}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", domain.ErrMalformedMessage, env.Type)
	}
}
