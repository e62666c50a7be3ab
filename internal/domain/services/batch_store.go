package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

const (
	batchStateKey = "batch_state"
	cursorKey     = "sync_cursor"
)

// BatchStore состояние батча и курсор поверх хранилища состояния.
// Состояние меняется только сравнением-с-обменом по прочитанным байтам
type BatchStore struct {
	state interfaces.StatePort
}

// NewBatchStore создает хранилище батча
func NewBatchStore(state interfaces.StatePort) *BatchStore {
	return &BatchStore{state: state}
}

// LoadState возвращает состояние и его сырые байты для последующего обмена.
// nil, если батч ни разу не запускался
func (s *BatchStore) LoadState(ctx context.Context) (*models.BatchState, []byte, error) {
	raw, err := s.state.Get(ctx, batchStateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("load batch state: %w", err)
	}
	if raw == nil {
		return nil, nil, nil
	}
	var st models.BatchState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, nil, fmt.Errorf("decode batch state: %w", err)
	}
	return &st, raw, nil
}

// SwapState записывает next, если состояние не менялось с момента чтения prev
func (s *BatchStore) SwapState(ctx context.Context, prev []byte, next *models.BatchState) ([]byte, error) {
	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("marshal batch state: %w", err)
	}
	ok, err := s.state.CompareAndSwap(ctx, batchStateKey, prev, data)
	if err != nil {
		return nil, fmt.Errorf("save batch state: %w", err)
	}
	if !ok {
		return nil, utils.ErrConcurrentRun
	}
	return data, nil
}

// LoadCursor текущее смещение. 0, если курсор не сохранялся
func (s *BatchStore) LoadCursor(ctx context.Context) (int, error) {
	raw, err := s.state.Get(ctx, cursorKey)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	offset, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || offset < 0 {
		return 0, nil
	}
	return offset, nil
}

// SaveCursor сохраняет смещение
func (s *BatchStore) SaveCursor(ctx context.Context, offset int) error {
	if offset < 0 {
		return utils.ErrInvalidCursor
	}
	if err := s.state.Set(ctx, cursorKey, []byte(strconv.Itoa(offset))); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
