package memory

import (
	"context"
	"sync"

	"flashquiz-service/internal/game"
)

// GameRegistry is an in-memory implementation of app.GameRepository. Sessions
// are built by the injected factory so the registry stays agnostic of game
// configuration.
type GameRegistry struct {
	ctx        context.Context
	newSession func(ctx context.Context, pin string) *game.Session

	mu       sync.RWMutex
	sessions map[string]*game.Session
}

func NewGameRegistry(ctx context.Context, cfg game.Config) *GameRegistry {
	return &GameRegistry{
		ctx: ctx,
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
	delete(r.sessions, pin)
}
