// Package game implements the session engine: the phase state machine, the
// player roster, scoring, and the round timers. Each session is a single
// actor; every mutation flows through one inbox consumed by one goroutine, so
// the engine needs no locking and participants observe broadcasts in a single
// authoritative order.
package game

import (
	"context"
	"fmt"
	"log"
	"time"

	"flashquiz-service/internal/domain"
	"flashquiz-service/internal/protocol"
)

// Config carries the tunables of a session. Tick intervals are configurable so
// tests can run the real timer path quickly.
type Config struct {
	PreviewSeconds   float64
	DefaultTimeLimit float64
	PodiumSize       int
	PreviewTick      time.Duration
	AnswerStep       float64
	AnswerTick       time.Duration
}

// DefaultConfig mirrors the reference rules: 3s preview, 5s answers counted
// down in 0.1 steps, a podium of three.
func DefaultConfig() Config {
	return Config{
		PreviewSeconds:   3,
		DefaultTimeLimit: 5,
		PodiumSize:       3,
		PreviewTick:      time.Second,
		AnswerStep:       0.1,
		AnswerTick:       100 * time.Millisecond,
	}
}

// Msg is an event consumed by the session loop.
type Msg interface{ isSessionMsg() }

// FromClient carries a participant envelope off the transport. Envelope types
// outside the participant catalogue are ignored.
type FromClient struct {
	Env protocol.Envelope
}

// Attach registers a connection's outbox for broadcasts. Host connections also
// receive ERROR notifications.
type Attach struct {
	ClientID string
	Outbox   chan protocol.Envelope
	Host     bool
}

// Detach unregisters a connection.
type Detach struct {
	ClientID string
}

// StartGame begins the first round. Fails unless the session is in the lobby
// with at least one question and one player.
type StartGame struct {
	Reply chan error
}

// Advance moves past the leaderboard to the next round, or to the podium when
// questions are exhausted.
type Advance struct {
	Reply chan error
}

// AddQuestion appends a host-authored question while in the lobby.
type AddQuestion struct {
	Question domain.Question
	Reply    chan error
}

// KickPlayer removes a player from the lobby roster.
type KickPlayer struct {
	PlayerID string
	Reply    chan error
}

// QuestionsLoaded injects the result of an external content fetch. On failure
// previously loaded questions are kept and the host is notified.
type QuestionsLoaded struct {
	Questions []domain.Question
	Err       error
}

// GetView replies with a copy of the session state for host display and tests.
type GetView struct {
	Reply chan View
}

// Shutdown stops the loop and detaches every client.
type Shutdown struct{}

func (FromClient) isSessionMsg()      {}
func (Attach) isSessionMsg()          {}
func (Detach) isSessionMsg()          {}
func (StartGame) isSessionMsg()       {}
func (Advance) isSessionMsg()         {}
func (AddQuestion) isSessionMsg()     {}
func (KickPlayer) isSessionMsg()      {}
func (QuestionsLoaded) isSessionMsg() {}
func (GetView) isSessionMsg()         {}
func (Shutdown) isSessionMsg()        {}

// View is a race-free copy of session state.
type View struct {
	PIN            string
	Phase          domain.Phase
	QuestionIndex  int
	TotalQuestions int
	TimeLeft       float64
	Players        []domain.Player
}

type client struct {
	out  chan protocol.Envelope
	host bool
}

// Session is one live game keyed by PIN.
type Session struct {
	pin string
	cfg Config

	inbox     chan Msg
	roster    *Roster
	questions []domain.Question
	index     int
	phase     domain.Phase
	timeLeft  float64
	finalized map[int]bool

	timerGen int
	timer    *countdown

	clients map[string]client

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates a session in the lobby phase and starts its loop.
func NewSession(parent context.Context, pin string, cfg Config) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		pin:       pin,
		cfg:       cfg,
		inbox:     make(chan Msg, 64),
		roster:    NewRoster(),
		index:     -1,
		phase:     domain.PhaseLobby,
		finalized: make(map[int]bool),
		clients:   make(map[string]client),
		ctx:       ctx,
		cancel:    cancel,
	}
	go s.loop()
	return s
}

// PIN returns the session's join code.
func (s *Session) PIN() string { return s.pin }

// Inbox exposes the event channel for the transport and timer.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session has shut down. Callers waiting on a command
// reply must select on it so a racing shutdown cannot strand them.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Send enqueues a message unless the session has shut down.
func (s *Session) Send(m Msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Attach:
				s.clients[msg.ClientID] = client{out: msg.Outbox, host: msg.Host}

			case Detach:
				delete(s.clients, msg.ClientID)

			case FromClient:
				s.handleClient(msg.Env)

			case StartGame:
				msg.Reply <- s.startGame()

			case Advance:
				msg.Reply <- s.advance()

			case AddQuestion:
				msg.Reply <- s.addQuestion(msg.Question)

			case KickPlayer:
				msg.Reply <- s.kickPlayer(msg.PlayerID)

			case QuestionsLoaded:
				s.questionsLoaded(msg)

			case timerEvent:
				s.handleTimer(msg)

			case GetView:
				msg.Reply <- View{
					PIN:            s.pin,
					Phase:          s.phase,
					QuestionIndex:  s.index,
					TotalQuestions: len(s.questions),
					TimeLeft:       s.timeLeft,
					Players:        s.roster.Snapshot(),
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

// handleClient dispatches the participant catalogue. Messages arriving in the
// wrong phase are dropped without error: senders may race a phase boundary.
func (s *Session) handleClient(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoinRequest:
		if s.phase != domain.PhaseLobby {
			return
		}
		var req protocol.JoinRequest
		if err := protocol.Decode(env, &req); err != nil || req.ID == "" {
			return
		}
		player, added := s.roster.Join(req.ID, req.Name, req.Avatar)
		if !added {
			return
		}
		s.broadcast(protocol.MustEncode(protocol.TypePlayerJoined, protocol.PlayerJoined{Player: player}))

	case protocol.TypeSubmitAnswer:
		if s.phase != domain.PhaseAnswering {
			return
		}
		var sub protocol.SubmitAnswer
		if err := protocol.Decode(env, &sub); err != nil {
			return
		}
		q := s.questions[s.index]
		correct := false
		for _, a := range q.Answers {
			if a.ID == sub.AnswerID {
				correct = a.Correct
				break
			}
		}
		s.roster.RecordAnswer(sub.PlayerID, correct, sub.TimeLeft, q.TimeLimit, s.index)

	default:
		// Unknown or misdirected types are ignored, keeping the protocol
		// forward-compatible.
	}
}

func (s *Session) startGame() error {
	if s.phase != domain.PhaseLobby {
		return domain.ErrWrongPhase
	}
	if len(s.questions) == 0 {
		return domain.ErrNoQuestions
	}
	if s.roster.Len() == 0 {
		return domain.ErrNoPlayers
	}
	s.broadcast(protocol.MustEncode(protocol.TypeGameStart, protocol.GameStart{TotalQuestions: len(s.questions)}))
	s.startRound(0)
	return nil
}

func (s *Session) advance() error {
	if s.phase != domain.PhaseLeaderboard {
		return domain.ErrWrongPhase
	}
	next := s.index + 1
	if next >= len(s.questions) {
		s.cancelTimer()
		s.phase = domain.PhasePodium
		s.broadcast(protocol.MustEncode(protocol.TypeGameOver, protocol.GameOver{Podium: s.roster.Podium(s.cfg.PodiumSize)}))
		return nil
	}
	s.startRound(next)
	return nil
}

func (s *Session) startRound(idx int) {
	s.index = idx
	s.phase = domain.PhasePreview
	s.timeLeft = s.cfg.PreviewSeconds

	q := s.questions[idx]
	s.broadcast(protocol.MustEncode(protocol.TypeNextQuestion, protocol.NextQuestion{
		QuestionIndex: idx,
		Text:          q.Text,
		TimeLimit:     q.TimeLimit,
		Answers:       protocol.PublicAnswers(q),
	}))
	s.startTimer(s.cfg.PreviewSeconds, 1, s.cfg.PreviewTick)
}

func (s *Session) handleTimer(ev timerEvent) {
	if ev.gen != s.timerGen {
		return // tick from a cancelled timer
	}
	s.timeLeft = ev.remaining
	if !ev.expired {
		return
	}

	switch s.phase {
	case domain.PhasePreview:
		q := s.questions[s.index]
		s.phase = domain.PhaseAnswering
		s.timeLeft = q.TimeLimit
		s.broadcast(protocol.MustEncode(protocol.TypeStartTimer, nil))
		s.startTimer(q.TimeLimit, s.cfg.AnswerStep, s.cfg.AnswerTick)

	case domain.PhaseAnswering:
		s.finalizeRound()
	}
}

// finalizeRound is the single point where the correct answer is revealed. It
// is idempotent per question index: a duplicate trigger is a guarded no-op,
// never a double broadcast.
func (s *Session) finalizeRound() {
	if s.finalized[s.index] {
		return
	}
	s.finalized[s.index] = true
	s.cancelTimer()

	s.roster.MissUnanswered(s.index)
	s.phase = domain.PhaseLeaderboard
	s.broadcast(protocol.MustEncode(protocol.TypeRoundEnd, protocol.RoundEnd{
		CorrectID: s.questions[s.index].CorrectAnswerID(),
		Scores:    s.roster.Snapshot(),
	}))
}

func (s *Session) addQuestion(q domain.Question) error {
	if s.phase != domain.PhaseLobby {
		return domain.ErrWrongPhase
	}
	if q.TimeLimit <= 0 {
		q.TimeLimit = s.cfg.DefaultTimeLimit
	}
	s.questions = append(s.questions, q)
	return nil
}

func (s *Session) kickPlayer(id string) error {
	if s.phase != domain.PhaseLobby {
		return domain.ErrWrongPhase
	}
	s.roster.Kick(id)
	return nil
}

func (s *Session) questionsLoaded(msg QuestionsLoaded) {
	if msg.Err != nil {
		log.Printf("game %s: question generation failed: %v", s.pin, msg.Err)
		s.notifyHost(fmt.Sprintf("question generation failed: %v", msg.Err))
		return
	}
	if s.phase != domain.PhaseLobby {
		s.notifyHost("generated questions discarded: game already started")
		return
	}
	for _, q := range msg.Questions {
		if q.TimeLimit <= 0 {
			q.TimeLimit = s.cfg.DefaultTimeLimit
		}
		s.questions = append(s.questions, q)
	}
}

// startTimer cancels any running countdown and starts a new one. The bumped
// generation makes ticks from the old timer harmless if they are already in
// the inbox.
func (s *Session) startTimer(total, step float64, interval time.Duration) {
	s.cancelTimer()
	s.timerGen++
	s.timer = startCountdown(s.timerGen, total, step, interval, s.inbox)
}

func (s *Session) cancelTimer() {
	if s.timer != nil {
		s.timer.cancel()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) broadcast(env protocol.Envelope) {
	for id, c := range s.clients {
		select {
		case c.out <- env:
		default:
			if c.host {
				// The host must keep receiving error feedback; it only
				// misses this frame.
				continue
			}
			// Slow or stuck connection: drop it rather than stall the loop.
			// The transport owns the channel and will notice on detach.
			delete(s.clients, id)
		}
	}
}

func (s *Session) notifyHost(message string) {
	env := protocol.MustEncode(protocol.TypeError, protocol.Error{Message: message})
	for _, c := range s.clients {
		if !c.host {
			continue
		}
		select {
		case c.out <- env:
		default:
		}
	}
}

func (s *Session) shutdown() {
	s.cancelTimer()
	clear(s.clients)
	s.cancel()

	// Commands already queued behind the shutdown would otherwise never get
	// their reply. Drain them and fail each one explicitly.
	for {
		select {
		case m := <-s.inbox:
			s.rejectClosed(m)
		default:
			return
		}
	}
}

func (s *Session) rejectClosed(m Msg) {
	var reply chan error
	switch msg := m.(type) {
	case StartGame:
		reply = msg.Reply
	case Advance:
		reply = msg.Reply
	case AddQuestion:
		reply = msg.Reply
	case KickPlayer:
		reply = msg.Reply
	default:
		return
	}
	select {
	case reply <- domain.ErrGameClosed:
	default:
	}
}
