package game

import (
	"sort"
	"time"

	"flashquiz-service/internal/domain"
)

// Roster tracks the players of one session. It is only ever touched from the
// session loop, so it carries no locking of its own.
type Roster struct {
	players map[string]*domain.Player
	now     func() time.Time
}

// NewRoster returns an empty roster using the wall clock for join times.
func NewRoster() *Roster {
	return NewRosterWithClock(time.Now)
}

// NewRosterWithClock allows deterministic join timestamps in tests.
func NewRosterWithClock(now func() time.Time) *Roster {
	return &Roster{
		players: make(map[string]*domain.Player),
		now:     now,
	}
}

// Join admits a player. A replayed join for a known id is a no-op; the second
// return reports whether the player was newly added.
func (r *Roster) Join(id, name, avatar string) (domain.Player, bool) {
	if p, ok := r.players[id]; ok {
		return *p, false
	}
	p := &domain.Player{
		ID:           id,
		Name:         name,
		Avatar:       avatar,
		LastAnswered: -1,
		JoinedAt:     r.now(),
	}
	r.players[id] = p
	return *p, true
}

// Kick removes a player, reporting whether it was present.
func (r *Roster) Kick(id string) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	return true
}

// Len returns the roster size.
func (r *Roster) Len() int { return len(r.players) }

// RecordAnswer scores a submission for the given question index. It rejects
// unknown players and duplicate submissions for the same index; both are
// silent no-ops per the protocol. On success it commits the score delta and
// streak update and returns the awarded points.
func (r *Roster) RecordAnswer(playerID string, correct bool, timeLeft, timeLimit float64, questionIndex int) (int, bool) {
	p, ok := r.players[playerID]
	if !ok {
		return 0, false
	}
	if p.LastAnswered == questionIndex {
		return 0, false
	}

	points := Score(correct, timeLeft, timeLimit)
	p.Score += points
	if correct {
		p.Streak++
	} else {
		p.Streak = 0
	}
	p.LastAnswered = questionIndex
	return points, true
}

// MissUnanswered resets the streak of every player who did not answer the
// given question. Called once at round finalization.
func (r *Roster) MissUnanswered(questionIndex int) {
	for _, p := range r.players {
		if p.LastAnswered != questionIndex {
			p.Streak = 0
		}
	}
}

// Snapshot returns a copy of the roster sorted by score descending. Ties are
// broken by earlier join time, then by name, so ordering is deterministic.
func (r *Roster) Snapshot() []domain.Player {
	out := make([]domain.Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Podium returns the top n of the snapshot.
func (r *Roster) Podium(n int) []domain.Player {
	snap := r.Snapshot()
	if len(snap) > n {
		snap = snap[:n]
	}
	return snap
}
