package chat

import (
	"errors"
	"sync"
	"time"
)

// Default per-turn resource limits.
const (
	DefaultMaxToolCallIterations = 5
	DefaultMaxWorkingTime        = 30 * time.Second
)

// ErrIterationLimit is returned by [Budget.ConsumeIteration] once the turn's
// tool call allowance is used up.
var ErrIterationLimit = errors.New("chat: tool call iteration limit exceeded")

// ErrTimeLimit is returned by [Budget.CheckTime] once the turn's working time
// window has elapsed.
var ErrTimeLimit = errors.New("chat: working time limit exceeded")

// Budget tracks the resource allowance of a single turn: a maximum number of
// tool call iterations and a wall-clock working time window, both measured
// from construction. It is safe for concurrent use.
type Budget struct {
	mu     sync.Mutex
	limit  int
	used   int
	start  time.Time
	window time.Duration
	now    func() time.Time
}

// NewBudget starts a fresh budget. maxIterations < 0 is treated as 0 (no
// tool calls allowed); maxWorkingTime <= 0 disables the time check.
func NewBudget(maxIterations int, maxWorkingTime time.Duration) *Budget {
	return newBudget(maxIterations, maxWorkingTime, time.Now)
}

// newBudget injects the clock, for tests.
func newBudget(maxIterations int, maxWorkingTime time.Duration, now func() time.Time) *Budget {
	if maxIterations < 0 {
		maxIterations = 0
	}
	return &Budget{
		limit:  maxIterations,
		window: maxWorkingTime,
		start:  now(),
		now:    now,
	}
}

// ConsumeIteration reserves one tool call iteration. The first maxIterations
// calls succeed; every later call returns [ErrIterationLimit] without
// consuming anything.
func (b *Budget) ConsumeIteration() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used >= b.limit {
		return ErrIterationLimit
	}
	b.used++
	return nil
}

// CheckTime returns [ErrTimeLimit] when the working time window has elapsed.
func (b *Budget) CheckTime() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.window <= 0 {
		return nil
	}
	if b.now().Sub(b.start) >= b.window {
		return ErrTimeLimit
	}
	return nil
}

// Used returns the number of iterations consumed so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Elapsed returns the wall-clock time since the budget was started.
func (b *Budget) Elapsed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Sub(b.start)
}
