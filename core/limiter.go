package core

import "sync"

// StepLimiter enforces the hard iteration ceiling for one orchestration run.
// Every AgentActive entry increments the counter; exceeding the ceiling is a
// resource-class failure, making non-termination structurally impossible.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a limiter with the given ceiling. A max of 0 means
// unlimited (tests only; production config always sets a ceiling).
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Increment counts one iteration and returns an IterationLimitExceeded error
// once the ceiling is crossed.
func (l *StepLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	if l.max > 0 && l.count > l.max {
		return NewError(KindIterationLimitExceeded, "exceeded iteration ceiling of %d", l.max)
	}
	return nil
}

// Count returns the iterations consumed so far.
func (l *StepLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Remaining returns iterations left before the ceiling (-1 when unlimited).
func (l *StepLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.max == 0 {
		return -1
	}
	return l.max - l.count
}
