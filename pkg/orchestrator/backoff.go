package orchestrator

import (
	"math/rand"
	"time"
)

// backoffDelay computes the delay before the next attempt: base doubling
// per finished attempt, jittered by +-20%, capped. attempts is the number
// of executions that have already failed, so the first retry waits about
// one base interval.
func backoffDelay(base, cap time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}
	if delay > cap {
		delay = cap
	}

	jitter := 0.8 + 0.4*rand.Float64()
	jittered := time.Duration(float64(delay) * jitter)
	if jittered > cap {
		jittered = cap
	}
	return jittered
}
