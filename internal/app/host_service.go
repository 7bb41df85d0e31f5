// Package app contains the host-facing use cases: creating sessions, loading
// content into them, and driving the game lifecycle.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"flashquiz-service/internal/content"
	"flashquiz-service/internal/domain"
	"flashquiz-service/internal/game"
)

// GameRepository abstracts how live sessions are tracked (in-memory, Redis
// liveness markers, etc).
type GameRepository interface {
	GetOrCreate(pin string) *game.Session
	Get(pin string) (*game.Session, bool)
	Delete(pin string)
}

// HostService wires session management to the content collaborator.
type HostService struct {
	games     GameRepository
	generator content.Generator
}

func NewHostService(games GameRepository, generator content.Generator) *HostService {
	return &HostService{games: games, generator: generator}
}

// CreateGame allocates a fresh PIN and a lobby session behind it.
func (s *HostService) CreateGame() (string, error) {
	for {
		pin, err := generatePIN()
		if err != nil {
			return "", err
		}
		if _, taken := s.games.Get(pin); taken {
			continue
		}
		s.games.GetOrCreate(pin)
		return pin, nil
	}
}

// Get looks up a live session by PIN.
func (s *HostService) Get(pin string) (*game.Session, error) {
	session, ok := s.games.Get(pin)
	if !ok {
		return nil, domain.ErrGameNotFound
	}
	return session, nil
}

// StartGame begins the first round; preconditions (questions, players) are
// checked inside the session and surfaced here.
func (s *HostService) StartGame(pin string) error {
	return s.command(pin, func(reply chan error) game.Msg {
		return game.StartGame{Reply: reply}
	})
}

// Advance moves from a leaderboard to the next round or the podium.
func (s *HostService) Advance(pin string) error {
	return s.command(pin, func(reply chan error) game.Msg {
		return game.Advance{Reply: reply}
	})
}

// AddQuestion validates and appends a host-authored question.
func (s *HostService) AddQuestion(pin string, q domain.Question) error {
	q = content.EnsureIDs(q)
	if err := content.ValidateQuestion(q); err != nil {
		return err
	}
	return s.command(pin, func(reply chan error) game.Msg {
		return game.AddQuestion{Question: q, Reply: reply}
	})
}

// KickPlayer removes a player from a lobby roster.
func (s *HostService) KickPlayer(pin, playerID string) error {
	return s.command(pin, func(reply chan error) game.Msg {
		return game.KickPlayer{PlayerID: playerID, Reply: reply}
	})
}

// GenerateQuestions fetches a batch from the content collaborator without
// blocking the session loop: the call runs in its own goroutine and the
// result (or failure) is injected back as a single event. A failed fetch
// leaves previously loaded questions untouched.
func (s *HostService) GenerateQuestions(ctx context.Context, pin, topic string, count int) error {
	session, ok := s.games.Get(pin)
	if !ok {
		return domain.ErrGameNotFound
	}
	go func() {
		questions, err := s.generator.Generate(ctx, topic, count)
		session.Send(game.QuestionsLoaded{Questions: questions, Err: err})
	}()
	return nil
}

// EndGame destroys a session; the host calls this when leaving the podium.
func (s *HostService) EndGame(pin string) {
	session, ok := s.games.Get(pin)
	if !ok {
		return
	}
	session.Send(game.Shutdown{})
	s.games.Delete(pin)
}

// View returns a race-free copy of session state for host display.
func (s *HostService) View(pin string) (game.View, error) {
	session, ok := s.games.Get(pin)
	if !ok {
		return game.View{}, domain.ErrGameNotFound
	}
	reply := make(chan game.View, 1)
	if !session.Send(game.GetView{Reply: reply}) {
		return game.View{}, domain.ErrGameClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-session.Done():
		select {
		case v := <-reply:
			return v, nil
		default:
			return game.View{}, domain.ErrGameClosed
		}
	}
}

func (s *HostService) command(pin string, build func(chan error) game.Msg) error {
	session, ok := s.games.Get(pin)
	if !ok {
		return domain.ErrGameNotFound
	}
	reply := make(chan error, 1)
	if !session.Send(build(reply)) {
		return domain.ErrGameClosed
	}
	// The session answers queued commands with ErrGameClosed on shutdown, but
	// a reply can still race the teardown; Done keeps the caller from
	// blocking forever.
	select {
	case err := <-reply:
		return err
	case <-session.Done():
		// Prefer an answer that landed just before teardown.
		select {
		case err := <-reply:
			return err
		default:
			return domain.ErrGameClosed
		}
	}
}

// generatePIN returns a short join code, six hex characters.
func generatePIN() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
