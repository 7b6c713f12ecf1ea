package usecase

import (
	"sync"
	"time"
)

// DefaultTypingQuietPeriod is how long after the last keystroke the indicator clears.
const DefaultTypingQuietPeriod = 1500 * time.Millisecond

// TypingIndicator is ephemeral per-session state: Keystroke raises the flag and restarts
// a quiet-period timer that clears it. Nothing is persisted. onChange is called on every
// transition, never while the internal lock is held.
type TypingIndicator struct {
	mu       sync.Mutex
	quiet    time.Duration
	typing   bool
	timer    *time.Timer
	gen      uint64
	closed   bool
	onChange func(typing bool)
}

func NewTypingIndicator(quiet time.Duration, onChange func(typing bool)) *TypingIndicator {
	if quiet <= 0 {
		quiet = DefaultTypingQuietPeriod
	}
	if onChange == nil {
		onChange = func(bool) {}
	}
	return &TypingIndicator{
		quiet:    quiet,
		onChange: onChange,
	}
}

func (t *TypingIndicator) Keystroke() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	started := !t.typing
	t.typing = true
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.quiet, func() { t.expire(gen) })
	t.mu.Unlock()

	if started {
		t.onChange(true)
	}
}

// Clear drops the flag immediately, e.g. once the message is sent.
func (t *TypingIndicator) Clear() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	was := t.typing
	t.typing = false
	t.mu.Unlock()

	if was {
		t.onChange(false)
	}
}

func (t *TypingIndicator) expire(gen uint64) {
	t.mu.Lock()
	// a newer keystroke or Clear superseded this timer
	if gen != t.gen || !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.timer = nil
	t.mu.Unlock()

	t.onChange(false)
}

func (t *TypingIndicator) IsTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// Close cancels the pending timer without firing onChange.
func (t *TypingIndicator) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.typing = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
