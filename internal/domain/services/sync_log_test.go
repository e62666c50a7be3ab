package services

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cursorSpy struct {
	resets int
}

func (c *cursorSpy) ResetCursor(context.Context) error {
	c.resets++
	return nil
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
}

func TestSyncLog_NewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewSyncLog(newMemState(), 0)
	log.now = fixedClock

	require.NoError(t, log.Append(ctx, "первая"))
	require.NoError(t, log.Append(ctx, "вторая"))

	text, err := log.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[2024-03-01 12:30:00] вторая\n[2024-03-01 12:30:00] первая\n", text)
}

func TestSyncLog_Capped(t *testing.T) {
	ctx := context.Background()
	log := NewSyncLog(newMemState(), 60)
	log.now = fixedClock

	for i := 0; i < 10; i++ {
		require.NoError(t, log.Append(ctx, strings.Repeat("ж", 10)))
	}
	require.NoError(t, log.Append(ctx, "последняя"))

	text, err := log.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, utf8.RuneCountInString(text))
	assert.True(t, utf8.ValidString(text))
	assert.True(t, strings.HasPrefix(text, "[2024-03-01 12:30:00] последняя\n"))
}

func TestSyncLog_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	state := newMemState()
	log := NewSyncLog(state, 0)

	state.failCAS = syncLogRetries - 1
	require.NoError(t, log.Append(ctx, "ok"))

	state.failCAS = syncLogRetries
	assert.ErrorIs(t, log.Append(ctx, "lost"), utils.ErrConcurrentRun)
}

func TestSyncLog_ClearResetsCursor(t *testing.T) {
	ctx := context.Background()
	log := NewSyncLog(newMemState(), 0)
	require.NoError(t, log.Append(ctx, "запись"))

	spy := &cursorSpy{}
	require.NoError(t, log.Clear(ctx, spy))

	text, err := log.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 1, spy.resets)

	require.NoError(t, log.Clear(ctx, nil))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "абв", truncateRunes("абвгд", 3))
	assert.Equal(t, "аб", truncateRunes("аб", 3))
}
