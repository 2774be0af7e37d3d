package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-api/internal/models"
)

func TestTypingTrackerSetAndClear(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, nil)
	defer tracker.Stop()

	key := TypingKey{ThreadUserID: "u1", Direction: models.DirectionFromUser}

	require.True(t, tracker.Set(key))
	require.False(t, tracker.Set(key))
	require.True(t, tracker.IsTyping(key))

	require.True(t, tracker.Clear(key))
	require.False(t, tracker.Clear(key))
	require.False(t, tracker.IsTyping(key))
}

func TestTypingTrackerExpiresWithoutRefresh(t *testing.T) {
	expired := make(chan TypingKey, 1)
	tracker := NewTypingTracker(20*time.Millisecond, func(key TypingKey) {
		expired <- key
	})
	defer tracker.Stop()

	key := TypingKey{ThreadUserID: "u1", Direction: models.DirectionFromAdmin}
	tracker.Set(key)

	select {
	case got := <-expired:
		require.Equal(t, key, got)
	case <-time.After(time.Second):
		t.Fatal("typing state did not expire")
	}
	require.False(t, tracker.IsTyping(key))
}

func TestTypingTrackerClearPreventsExpiry(t *testing.T) {
	expired := make(chan TypingKey, 1)
	tracker := NewTypingTracker(20*time.Millisecond, func(key TypingKey) {
		expired <- key
	})
	defer tracker.Stop()

	key := TypingKey{ThreadUserID: "u1", Direction: models.DirectionFromUser}
	tracker.Set(key)
	tracker.Clear(key)

	select {
	case <-expired:
		t.Fatal("cleared typing state must not expire")
	case <-time.After(80 * time.Millisecond):
	}
}
