package app

import (
	"context"

	"quizsnap/internal/domain"
	"quizsnap/internal/transport/p2p"
)

// QuizGenerator is the AI collaborator turning a lesson into questions.
// Its output is validated before use.
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, src domain.LessonSource, cfg domain.QuizConfig) ([]domain.Question, error)
}

// HistoryStore persists completed match summaries, capped at
// domain.HistoryLimit, most recent first.
type HistoryStore interface {
	Append(ctx context.Context, summary domain.MatchSummary) error
	List(ctx context.Context) ([]domain.MatchSummary, error)
}

// Channel is one end of an established or pending peer connection.
type Channel interface {
	RoomID() string
	Events() <-chan p2p.Event
	Done() <-chan struct{}
	Send(data []byte) bool
	Close() error
}

// Network opens rooms for hosts and joins them for guests.
type Network interface {
	OpenRoom(ctx context.Context) (Channel, error)
	JoinRoom(ctx context.Context, roomID string) (Channel, error)
}

type peerNetwork struct {
	network *p2p.Network
}

// NewPeerNetwork adapts a p2p.Network to the Network port.
func NewPeerNetwork(network *p2p.Network) Network {
	return peerNetwork{network: network}
}

func (n peerNetwork) OpenRoom(ctx context.Context) (Channel, error) {
	h, err := n.network.OpenRoom(ctx)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (n peerNetwork) JoinRoom(ctx context.Context, roomID string) (Channel, error) {
	h, err := n.network.JoinRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return h, nil
}
