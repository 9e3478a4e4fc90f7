package memory

import (
	"context"
	"sync"

	"quizsnap/internal/domain"
)

// Rendezvous is an in-process room registry. It backs the signalling server
// when Redis is not configured and stands in for it in tests.
type Rendezvous struct {
	mu    sync.RWMutex
	rooms map[string]string
}

func NewRendezvous() *Rendezvous {
	return &Rendezvous{rooms: make(map[string]string)}
}

func (r *Rendezvous) Register(_ context.Context, roomID, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; ok {
		return domain.ErrRoomTaken
	}
	r.rooms[roomID] = addr
	return nil
}

func (r *Rendezvous) Resolve(_ context.Context, roomID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.rooms[roomID]
	if !ok {
		return "", domain.ErrRoomNotFound
	}
	return addr, nil
}

func (r *Rendezvous) Unregister(_ context.Context, roomID, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] == addr {
		delete(r.rooms, roomID)
	}
	return nil
}
