package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

const (
	syncLogKey = "sync_log"
	// MaxSyncLogChars предел размера журнала в символах
	MaxSyncLogChars = 50000
	syncLogRetries  = 5
)

// CursorResetter сбрасывает курсор прохода по каталогу
type CursorResetter interface {
	ResetCursor(ctx context.Context) error
}

// SyncLog журнал синхронизации: новые записи сверху, размер ограничен
type SyncLog struct {
	state    interfaces.StatePort
	maxChars int
	now      func() time.Time
}

// NewSyncLog создает журнал
func NewSyncLog(state interfaces.StatePort, maxChars int) *SyncLog {
	if maxChars <= 0 {
		maxChars = MaxSyncLogChars
	}
	return &SyncLog{state: state, maxChars: maxChars, now: time.Now}
}

// Append добавляет строку с отметкой времени в начало журнала
func (l *SyncLog) Append(ctx context.Context, line string) error {
	entry := fmt.Sprintf("[%s] %s\n", l.now().Format("2006-01-02 15:04:05"), line)

	for attempt := 0; attempt < syncLogRetries; attempt++ {
		prev, err := l.state.Get(ctx, syncLogKey)
		if err != nil {
			return fmt.Errorf("load sync log: %w", err)
		}

		next := truncateRunes(entry+string(prev), l.maxChars)

		ok, err := l.state.CompareAndSwap(ctx, syncLogKey, prev, []byte(next))
		if err != nil {
			return fmt.Errorf("append sync log: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("append sync log: %w", utils.ErrConcurrentRun)
}

// Get возвращает журнал целиком
func (l *SyncLog) Get(ctx context.Context) (string, error) {
	data, err := l.state.Get(ctx, syncLogKey)
	if err != nil {
		return "", fmt.Errorf("load sync log: %w", err)
	}
	return string(data), nil
}

// Clear очищает журнал и сбрасывает курсор
func (l *SyncLog) Clear(ctx context.Context, cursor CursorResetter) error {
	if err := l.state.Delete(ctx, syncLogKey); err != nil {
		return fmt.Errorf("clear sync log: %w", err)
	}
	if cursor != nil {
		return cursor.ResetCursor(ctx)
	}
	return nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
