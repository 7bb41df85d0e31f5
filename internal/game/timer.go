package game

import "time"

// timerEvent is a countdown tick or expiry injected into the session inbox.
// The generation number lets the loop discard events from a cancelled timer.
type timerEvent struct {
	gen       int
	remaining float64
	expired   bool
}

func (timerEvent) isSessionMsg() {}

// countdown is the per-phase clock. Only the session loop starts or cancels
// it, and at most one is active per session.
type countdown struct {
	stop chan struct{}
}

// startCountdown counts down from total in step decrements, emitting one
// timerEvent per wall-clock interval. The final event has expired set and
// remaining clamped to zero. Emission stops as soon as cancel is called.
func startCountdown(gen int, total, step float64, interval time.Duration, out chan<- Msg) *countdown {
	c := &countdown{stop: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		remaining := total
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
			}

			remaining -= step
			ev := timerEvent{gen: gen, remaining: remaining}
			if remaining <= 1e-9 {
				ev.remaining = 0
				ev.expired = true
			}
			select {
			case out <- ev:
			case <-c.stop:
				return
			}
			if ev.expired {
				return
			}
		}
	}()
	return c
}

// cancel stops the countdown; it is safe to call more than once.
func (c *countdown) cancel() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}
