package redis

import (
	"context"
	"sync"
	"time"

	"flashquiz-service/internal/game"
	"github.com/redis/go-redis/v9"
)

// GameRegistry is a Redis-aware implementation of app.GameRepository.
// Notes:
//   - Sessions themselves are in-process actors; the local map keeps the
//     existing single-writer loop and broadcast path.
//   - Redis holds liveness markers so an operator (or a future router) can
//     see which PINs are taken across instances.
type GameRegistry struct {
	client     *redis.Client
	ttl        time.Duration
	ctx        context.Context
	newSession func(ctx context.Context, pin string) *game.Session

	mu       sync.RWMutex
	sessions map[string]*game.Session
}

func NewGameRegistry(ctx context.Context, client *redis.Client, ttl time.Duration, cfg game.Config) *GameRegistry {
	return &GameRegistry{
		client: client,
		ttl:    ttl,
		ctx:    ctx,
		newSession: func(ctx context.Context, pin string) *game.Session {
			return game.NewSession(ctx, pin, cfg)
		},
		sessions: make(map[string]*game.Session),
	}
}

func (r *GameRegistry) GetOrCreate(pin string) *game.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[pin]; ok {
		return session
	}
	session := r.newSession(r.ctx, pin)
	r.sessions[pin] = session
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(pin), "1", r.ttl).Err()
	return session
}

func (r *GameRegistry) Get(pin string) (*game.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[pin]
	return session, ok
}

func (r *GameRegistry) Delete(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[pin]; !ok {
		return
	}
	delete(r.sessions, pin)
	_ = r.client.Del(context.Background(), r.key(pin)).Err()
}

func (r *GameRegistry) key(pin string) string {
	return "game:session:" + pin
}
