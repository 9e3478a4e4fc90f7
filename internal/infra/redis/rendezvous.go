package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizsnap/internal/domain"
)

// Rendezvous maps room codes to host addresses in Redis so several signalling
// instances share one room namespace. Entries expire after ttl in case a
// host never unregisters.
// unregisterScript deletes the room only while it still holds the caller's
// address.
var unregisterScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Rendezvous struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRendezvous(client *redis.Client, ttl time.Duration) *Rendezvous {
	return &Rendezvous{client: client, ttl: ttl}
}

func (r *Rendezvous) Register(ctx context.Context, roomID, addr string) error {
	ok, err := r.client.SetNX(ctx, r.key(roomID), addr, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignallingUnavailable, err)
	}
	if !ok {
		return domain.ErrRoomTaken
	}
	return nil
}

func (r *Rendezvous) Resolve(ctx context.Context, roomID string) (string, error) {
	addr, err := r.client.Get(ctx, r.key(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrRoomNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSignallingUnavailable, err)
	}
	return addr, nil
}

func (r *Rendezvous) Unregister(ctx context.Context, roomID, addr string) error {
	if err := unregisterScript.Run(ctx, r.client, []string{r.key(roomID)}, addr).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignallingUnavailable, err)
	}
	return nil
}

func (r *Rendezvous) key(roomID string) string {
	return "quizsnap:room:" + roomID
}
