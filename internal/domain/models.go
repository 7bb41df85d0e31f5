package domain

import "time"

// Phase is one discrete stage of the game lifecycle.
type Phase string

const (
	PhaseLobby       Phase = "LOBBY"
	PhasePreview     Phase = "PREVIEW_QUESTION"
	PhaseAnswering   Phase = "ANSWERING"
	PhaseLeaderboard Phase = "LEADERBOARD"
	PhasePodium      Phase = "PODIUM"
)

// AnswerColor tags an answer slot for presentation; the set is fixed at four values.
type AnswerColor string

const (
	ColorRed    AnswerColor = "red"
	ColorBlue   AnswerColor = "blue"
	ColorYellow AnswerColor = "yellow"
	ColorGreen  AnswerColor = "green"
)

// Colors lists every valid answer color in presentation order.
var Colors = []AnswerColor{ColorRed, ColorBlue, ColorYellow, ColorGreen}

// Valid reports whether c is one of the four known colors.
func (c AnswerColor) Valid() bool {
	switch c {
	case ColorRed, ColorBlue, ColorYellow, ColorGreen:
		return true
	}
	return false
}

// Answer is one of the four options of a question. Correct is host-side only
// and must never reach participants before the round ends.
type Answer struct {
	ID      string      `json:"id"`
	Text    string      `json:"text"`
	Correct bool        `json:"correct"`
	Color   AnswerColor `json:"color"`
}

// Question models a single timed multiple-choice question with exactly one
// correct answer. Immutable once loaded into a session.
type Question struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Answers   []Answer `json:"answers"`
	TimeLimit float64  `json:"timeLimit"` // seconds
}

// CorrectAnswerID returns the id of the question's correct answer, or "" if none.
func (q Question) CorrectAnswerID() string {
	for _, a := range q.Answers {
		if a.Correct {
			return a.ID
		}
	}
	return ""
}

// Player is a session participant and their accumulated state. Players are
// never deleted mid-game; a disconnect is indistinguishable from silence.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Score  int    `json:"score"`
	Streak int    `json:"streak"`

	// LastAnswered is the index of the last question this player submitted an
	// answer for; -1 until the first submission. Guards duplicate submissions.
	LastAnswered int       `json:"-"`
	JoinedAt     time.Time `json:"-"`
}

// QuestionBank groups pre-authored questions under a topic; the content
// generation collaborator draws batches from banks.
type QuestionBank struct {
	Topic     string     `json:"topic"`
	Questions []Question `json:"questions"`
}
