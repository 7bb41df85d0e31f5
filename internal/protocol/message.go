// Package protocol defines the wire events exchanged between host and
// participants. The catalogue is closed: unknown types are ignored by the
// receiver so new kinds can be added without breaking old clients.
package protocol

import (
	"encoding/json"

	"flashquiz-service/internal/domain"
)

// Type discriminates the payload shape of an Envelope.
type Type string

const (
	// Participant -> host.
	TypeJoinRequest  Type = "JOIN_REQUEST"
	TypeSubmitAnswer Type = "SUBMIT_ANSWER"

	// Host -> all participants.
	TypePlayerJoined Type = "PLAYER_JOINED"
	TypeGameStart    Type = "GAME_START"
	TypeNextQuestion Type = "NEXT_QUESTION"
	TypeStartTimer   Type = "START_TIMER"
	TypeRoundEnd     Type = "ROUND_END"
	TypeGameOver     Type = "GAME_OVER"

	// Host control commands, accepted only on the host connection and never
	// broadcast.
	TypeStartGame   Type = "START_GAME"
	TypeAdvance     Type = "ADVANCE"
	TypeGenerate    Type = "GENERATE"
	TypeAddQuestion Type = "ADD_QUESTION"
	TypeKickPlayer  Type = "KICK_PLAYER"
	TypeEndGame     Type = "END_GAME"

	// Host-only notification (generation failures and rejected commands).
	TypeError Type = "ERROR"
)

// Envelope is the tagged union carried on the wire: a type tag plus a payload
// whose shape is determined by the tag.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinRequest asks for roster admission. The id is chosen by the participant;
// a replay of the same id is an idempotent rejoin.
type JoinRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// PlayerJoined confirms roster admission to everyone.
type PlayerJoined struct {
	Player domain.Player `json:"player"`
}

// GameStart announces the game is beginning.
type GameStart struct {
	TotalQuestions int `json:"totalQuestions"`
}

// PublicAnswer is an answer option stripped of its correctness flag.
type PublicAnswer struct {
	ID    string             `json:"id"`
	Color domain.AnswerColor `json:"color"`
	Text  string             `json:"text"`
}

// NextQuestion carries the question for the upcoming round. It deliberately
// has no field for correctness.
type NextQuestion struct {
	QuestionIndex int            `json:"questionIndex"`
	Text          string         `json:"text"`
	TimeLimit     float64        `json:"timeLimit"`
	Answers       []PublicAnswer `json:"answers"`
}

// SubmitAnswer is a participant's answer for the current question. Extras for
// the same question are ignored.
type SubmitAnswer struct {
	PlayerID string  `json:"playerId"`
	AnswerID string  `json:"answerId"`
	TimeLeft float64 `json:"timeLeft"`
}

// RoundEnd reveals the correct answer and carries a full score snapshot, not a
// delta.
type RoundEnd struct {
	CorrectID string          `json:"correctId"`
	Scores    []domain.Player `json:"scores"`
}

// GameOver is the terminal broadcast with the top placements, score-descending.
type GameOver struct {
	Podium []domain.Player `json:"podium"`
}

// Generate asks the content collaborator for a batch of questions on a topic.
type Generate struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// AddQuestion authors a single question by hand. Host side only, so it may
// carry correctness.
type AddQuestion struct {
	Question domain.Question `json:"question"`
}

// KickPlayer removes a player from the lobby roster.
type KickPlayer struct {
	PlayerID string `json:"playerId"`
}

// Error reports a rejected command or a failed generation to the host.
type Error struct {
	Message string `json:"message"`
}

// PublicAnswers strips correctness from a question's answers for broadcast.
func PublicAnswers(q domain.Question) []PublicAnswer {
	out := make([]PublicAnswer, 0, len(q.Answers))
	for _, a := range q.Answers {
		out = append(out, PublicAnswer{ID: a.ID, Color: a.Color, Text: a.Text})
	}
	return out
}

// Encode wraps a payload into an envelope of the given type.
func Encode(t Type, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: raw}, nil
}

// MustEncode is Encode for payload types that cannot fail to marshal.
func MustEncode(t Type, payload any) Envelope {
	env, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope payload into dst.
func Decode(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, dst)
}
