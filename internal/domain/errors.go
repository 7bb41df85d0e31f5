package domain

import "errors"

var (
	// ErrGameNotFound is returned when no live session matches a PIN.
	ErrGameNotFound = errors.New("game session not found")
	// ErrNoQuestions rejects starting a game before any question is loaded.
	ErrNoQuestions = errors.New("cannot start a game without questions")
	// ErrNoPlayers rejects starting a game with an empty roster.
	ErrNoPlayers = errors.New("cannot start a game without players")
	// ErrWrongPhase is returned for a host operation issued outside its phase.
	ErrWrongPhase = errors.New("operation not allowed in current phase")
	// ErrBankNotFound indicates no question bank exists for a topic.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrInvalidQuestion indicates a question failed batch validation.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrGameClosed is returned when the session actor has shut down.
	ErrGameClosed = errors.New("game session closed")
)
