package game

import "math"

// Score returns the points awarded for an answer. A correct answer earns a
// linear speed bonus: 1000 points when answered instantly (timeLeft equals the
// question's time limit) down to a floor of 500 at the last instant. The
// result is rounded half-up. Incorrect or missing answers earn nothing.
func Score(correct bool, timeLeft, timeLimit float64) int {
	if !correct || timeLimit <= 0 {
		return 0
	}
	if timeLeft < 0 {
		timeLeft = 0
	}
	if timeLeft > timeLimit {
		timeLeft = timeLimit
	}
	return int(math.Floor(500 + 500*(timeLeft/timeLimit) + 0.5))
}
