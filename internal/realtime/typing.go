package realtime

import (
	"sync"
	"time"

	"github.com/noah-isme/storefront-api/internal/models"
)

// DefaultTypingTimeout clears a typing indicator that was not refreshed.
const DefaultTypingTimeout = 5 * time.Second

// TypingKey identifies one side of a thread.
type TypingKey struct {
	ThreadUserID string
	Direction    models.Direction
}

type typingEntry struct {
	generation uint64
	timer      *time.Timer
}

// TypingTracker holds ephemeral typing state. Last write wins; entries that are not
// refreshed within the timeout are dropped and reported through onExpire.
type TypingTracker struct {
	mu         sync.Mutex
	timeout    time.Duration
	entries    map[TypingKey]*typingEntry
	generation uint64
	stopped    bool
	onExpire   func(TypingKey)
}

// NewTypingTracker creates a tracker. onExpire may be nil.
func NewTypingTracker(timeout time.Duration, onExpire func(TypingKey)) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingTracker{
		timeout:  timeout,
		entries:  make(map[TypingKey]*typingEntry),
		onExpire: onExpire,
	}
}

// Set marks key as typing and restarts its timeout. It reports whether the key was idle before.
func (t *TypingTracker) Set(key TypingKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}

	t.generation++
	generation := t.generation

	existing, wasTyping := t.entries[key]
	if wasTyping {
		existing.timer.Stop()
	}

	entry := &typingEntry{generation: generation}
	entry.timer = time.AfterFunc(t.timeout, func() { t.expire(key, generation) })
	t.entries[key] = entry

	return !wasTyping
}

// Clear marks key as idle. It reports whether the key was typing.
func (t *TypingTracker) Clear(key TypingKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, key)
	return true
}

// IsTyping reports the current state of key.
func (t *TypingTracker) IsTyping(key TypingKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// Stop cancels all timers. Later calls to Set are ignored.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for key, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, key)
	}
}

func (t *TypingTracker) expire(key TypingKey, generation uint64) {
	t.mu.Lock()
	entry, ok := t.entries[key]
	if !ok || entry.generation != generation {
		t.mu.Unlock()
		return
	}
	delete(t.entries, key)
	callback := t.onExpire
	t.mu.Unlock()

	if callback != nil {
		callback(key)
	}
}
