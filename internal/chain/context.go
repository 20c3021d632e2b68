// Package chain holds the mutable per-chain state shared by the state machine
// and the submission protocol: first-seen timestamps per task, submission
// attempt counts, the active-task pointer and the retry offset timer.
package chain

import (
	"sync"
	"time"
)

// Context is chain-scoped state. One chain executes at a time per process;
// the internal lock keeps individual operations consistent but the timer and
// counter semantics assume no concurrent chains.
type Context struct {
	mu        sync.Mutex
	firstSeen map[string]time.Time
	attempts  map[string]int
	active    string
	offset    time.Time

	now func() time.Time
}

func NewContext() *Context {
	return &Context{
		firstSeen: map[string]time.Time{},
		attempts:  map[string]int{},
		now:       time.Now,
	}
}

// NewContextAt builds a Context with a custom clock for tests.
func NewContextAt(now func() time.Time) *Context {
	c := NewContext()
	if now != nil {
		c.now = now
	}
	return c
}

// Reset clears all chain-scoped state, registers start as first seen now and
// makes it the active task.
func (c *Context) Reset(start string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.firstSeen = map[string]time.Time{start: c.now()}
	c.attempts = map[string]int{}
	c.active = start
	c.offset = time.Time{}
}

// Touch records the first-seen time for task if it has none and returns the
// recorded time. An existing entry is never overwritten.
func (c *Context) Touch(task string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.firstSeen[task]; ok {
		return t
	}
	t := c.now()
	c.firstSeen[task] = t
	return t
}

func (c *Context) FirstSeen(task string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.firstSeen[task]
	return t, ok
}

// Elapsed reports how long ago task was first seen. ok is false when the task
// has never been registered.
func (c *Context) Elapsed(task string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.firstSeen[task]
	if !ok {
		return 0, false
	}
	return c.now().Sub(t), true
}

// RecordAttempt increments the submission counter for task and returns the
// new count.
func (c *Context) RecordAttempt(task string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[task]++
	return c.attempts[task]
}

func (c *Context) Attempts(task string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[task]
}

func (c *Context) ActiveTask() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Context) SetActiveTask(task string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = task
}

// SetOffset arms the retry offset timer. It is set to the first-seen time of
// a deferred next task while the protocol keeps the chain on the current one.
func (c *Context) SetOffset(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = t
}

func (c *Context) ClearOffset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = time.Time{}
}

// Offset returns the offset timer; ok is false when it is not armed. A zero
// offset never counts as armed.
func (c *Context) Offset() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset, !c.offset.IsZero()
}
