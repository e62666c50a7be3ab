package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/metrics"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/google/uuid"
)

const (
	chunkLockKey       = "batch_chunk"
	chunkCommitRetries = 3
)

// BatchConfig параметры прохода по каталогу
type BatchConfig struct {
	DefaultSize int
	ChunkSize   int
	// StaleAfter батч без изменений дольше этого срока считается брошенным
	StaleAfter time.Duration
	// LockTTL срок блокировки шага, должен превышать время обработки чанка
	LockTTL time.Duration
}

// DefaultBatchConfig значения по умолчанию
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		DefaultSize: 200,
		ChunkSize:   5,
		StaleAfter:  10 * time.Minute,
		LockTTL:     15 * time.Minute,
	}
}

// BatchService возобновляемый проход по каталогу чанками
type BatchService struct {
	store   *BatchStore
	catalog CatalogSource
	engine  *ProductEngine
	locker  Locker
	cfg     BatchConfig
	logger  interfaces.LoggerPort
	now     func() time.Time
}

// NewBatchService создает сервис батчей
func NewBatchService(store *BatchStore, catalog CatalogSource, engine *ProductEngine, locker Locker, cfg BatchConfig, logger interfaces.LoggerPort) *BatchService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = 200
	}
	return &BatchService{
		store:   store,
		catalog: catalog,
		engine:  engine,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// State текущее состояние батча. nil, если батч не запускался
func (s *BatchService) State(ctx context.Context) (*models.BatchState, error) {
	st, _, err := s.store.LoadState(ctx)
	return st, err
}

// StartBatch начинает прогон с сохраненного курсора
func (s *BatchService) StartBatch(ctx context.Context, batchSize int) (*models.BatchState, error) {
	if batchSize < 0 {
		return nil, utils.ErrInvalidBatch
	}
	if batchSize == 0 {
		batchSize = s.cfg.DefaultSize
	}

	prev, prevRaw, err := s.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.InProgress {
		if s.now().Sub(prev.UpdatedAt) < s.cfg.StaleAfter {
			return prev, utils.ErrBatchInProgress
		}
		s.logger.WarnWithContext(ctx, "Предыдущий батч не обновлялся, перезапускаем",
			interfaces.LogField{Key: "run_id", Value: prev.RunID},
			interfaces.LogField{Key: "updated_at", Value: prev.UpdatedAt.Format(time.RFC3339)},
		)
	}

	total, err := s.catalog.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, utils.ErrEmptyCatalog
	}

	offset, err := s.store.LoadCursor(ctx)
	if err != nil {
		return nil, err
	}
	if offset >= total {
		s.logger.InfoWithContext(ctx, "Все товары обработаны, начинаем сначала",
			interfaces.LogField{Key: "offset", Value: offset},
			interfaces.LogField{Key: "total", Value: total},
		)
		offset = 0
		if err := s.store.SaveCursor(ctx, 0); err != nil {
			return nil, err
		}
	}

	now := s.now()
	state := &models.BatchState{
		RunID:          uuid.New().String(),
		TotalProducts:  total,
		BatchSize:      batchSize,
		ChunkSize:      min(s.cfg.ChunkSize, batchSize),
		StartOffset:    offset,
		CurrentOffset:  offset,
		TotalToProcess: min(batchSize, total-offset),
		InProgress:     true,
		StartedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := s.store.SwapState(ctx, prevRaw, state); err != nil {
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Батч запущен",
		interfaces.LogField{Key: "run_id", Value: state.RunID},
		interfaces.LogField{Key: "offset", Value: offset},
		interfaces.LogField{Key: "to_process", Value: state.TotalToProcess},
		interfaces.LogField{Key: "total", Value: total},
	)
	return state, nil
}

// ProcessChunk обрабатывает следующий чанк и сохраняет состояние и курсор
func (s *BatchService) ProcessChunk(ctx context.Context) (*models.ChunkResult, error) {
	token, locked, err := s.locker.Lock(ctx, chunkLockKey, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, utils.ErrBatchBusy
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), chunkLockKey, token); err != nil {
			s.logger.WarnWithContext(ctx, "Не удалось снять блокировку чанка",
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}()

	started := time.Now()
	defer func() { metrics.ChunkDuration.Observe(time.Since(started).Seconds()) }()

	state, raw, err := s.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil || !state.InProgress {
		result := &models.ChunkResult{Completed: true}
		if state != nil {
			result.RunID = state.RunID
			result.Offset = state.CurrentOffset
			result.State = *state
		}
		return result, nil
	}

	ctx = context.WithValue(ctx, interfaces.RunIDKey, state.RunID)
	result := &models.ChunkResult{RunID: state.RunID}

	remaining := state.Remaining()
	if remaining <= 0 {
		return s.finish(ctx, state, raw, result, "")
	}

	records, err := s.catalog.Slice(ctx, state.CurrentOffset, min(state.ChunkSize, remaining))
	if err != nil {
		s.logger.ErrorWithContext(ctx, "Ошибка чтения каталога, батч остановлен",
			interfaces.LogField{Key: "offset", Value: state.CurrentOffset},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		if _, finishErr := s.finish(ctx, state, raw, result, err.Error()); finishErr != nil {
			return nil, finishErr
		}
		return nil, err
	}
	if len(records) == 0 {
		return s.finish(ctx, state, raw, result, "catalog is shorter than expected")
	}

	outcomes := s.evaluate(ctx, records)

	for _, o := range outcomes {
		s.engine.RecordOutcome(ctx, o)
		switch o.Kind {
		case models.OutcomeCreated, models.OutcomeUpdated:
			result.Created++
		case models.OutcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	state, err = s.commitChunk(ctx, state, raw, len(records), result)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveCursor(ctx, state.CurrentOffset); err != nil {
		return nil, err
	}
	metrics.CursorOffset.Set(float64(state.CurrentOffset))

	result.Visited = len(records)
	result.Offset = state.CurrentOffset
	result.Completed = !state.InProgress
	result.Outcomes = outcomes
	result.State = *state

	s.logger.InfoWithContext(ctx, "Чанк обработан",
		interfaces.LogField{Key: "offset", Value: state.CurrentOffset},
		interfaces.LogField{Key: "created", Value: result.Created},
		interfaces.LogField{Key: "skipped", Value: result.Skipped},
		interfaces.LogField{Key: "failed", Value: result.Failed},
		interfaces.LogField{Key: "progress", Value: fmt.Sprintf("%d/%d", state.Consumed(), state.TotalToProcess)},
	)
	if result.Completed {
		s.logger.InfoWithContext(ctx, "Батч завершен",
			interfaces.LogField{Key: "processed", Value: state.ProcessedCount},
			interfaces.LogField{Key: "skipped", Value: state.SkippedCount},
			interfaces.LogField{Key: "failed", Value: state.FailedCount},
		)
	}
	return result, nil
}

// commitChunk записывает итоги чанка. Пока чанк обрабатывался, Stop мог
// поменять состояние того же прогона. Тогда итоги переносятся на свежее
// состояние, а флаг остановки сохраняется. Смена прогона или смещения
// означает чужую запись и возвращает ErrConcurrentRun
func (s *BatchService) commitChunk(ctx context.Context, base *models.BatchState, raw []byte, visited int, result *models.ChunkResult) (*models.BatchState, error) {
	runID, from := base.RunID, base.CurrentOffset

	for attempt := 0; attempt < chunkCommitRetries; attempt++ {
		next := *base
		next.ProcessedCount += result.Created
		next.SkippedCount += result.Skipped
		next.FailedCount += result.Failed
		// смещение двигается на весь чанк, независимо от итогов
		next.CurrentOffset += visited
		next.UpdatedAt = s.now()
		if next.InProgress && next.Remaining() <= 0 {
			next.InProgress = false
			finished := next.UpdatedAt
			next.FinishedAt = &finished
		}

		_, err := s.store.SwapState(ctx, raw, &next)
		if err == nil {
			return &next, nil
		}
		if !errors.Is(err, utils.ErrConcurrentRun) {
			return nil, err
		}

		fresh, freshRaw, loadErr := s.store.LoadState(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		if fresh == nil || fresh.RunID != runID || fresh.CurrentOffset != from {
			return nil, err
		}
		s.logger.DebugWithContext(ctx, "Состояние батча изменилось во время чанка, переносим итоги",
			interfaces.LogField{Key: "in_progress", Value: fresh.InProgress},
		)
		base, raw = fresh, freshRaw
	}
	return nil, utils.ErrConcurrentRun
}

// evaluate сначала проверяет остатки по всему чанку. Если ни у одной записи
// нет остатка, цены не запрашиваются вовсе
func (s *BatchService) evaluate(ctx context.Context, records []models.ProductRecord) []models.Outcome {
	outcomes := make([]models.Outcome, len(records))
	candidates := make([]int, 0, len(records))
	pending := make(map[int]*Candidate, len(records))

	for i, rec := range records {
		candidate, outcome := s.engine.Precheck(ctx, rec)
		if candidate == nil {
			outcomes[i] = outcome
			continue
		}
		candidates = append(candidates, i)
		pending[i] = candidate
	}

	if len(candidates) == 0 {
		s.logger.InfoWithContext(ctx, "В чанке нет товаров с остатком, пропускаем",
			interfaces.LogField{Key: "records", Value: len(records)},
		)
		return outcomes
	}

	for _, i := range candidates {
		outcomes[i] = s.engine.Complete(ctx, pending[i])
	}
	return outcomes
}

func (s *BatchService) finish(ctx context.Context, state *models.BatchState, raw []byte, result *models.ChunkResult, lastError string) (*models.ChunkResult, error) {
	now := s.now()
	state.InProgress = false
	state.UpdatedAt = now
	state.FinishedAt = &now
	state.LastError = lastError

	if _, err := s.store.SwapState(ctx, raw, state); err != nil {
		return nil, err
	}

	result.Completed = true
	result.Offset = state.CurrentOffset
	result.State = *state
	return result, nil
}

// Stop прекращает планирование новых чанков. Курсор остается на последнем
// сохраненном смещении, следующий StartBatch продолжит с него
func (s *BatchService) Stop(ctx context.Context) (*models.BatchState, error) {
	state, raw, err := s.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil || !state.InProgress {
		return state, nil
	}

	now := s.now()
	state.InProgress = false
	state.UpdatedAt = now
	state.FinishedAt = &now
	state.LastError = "stopped"

	if _, err := s.store.SwapState(ctx, raw, state); err != nil {
		return nil, err
	}

	s.logger.InfoWithContext(ctx, "Батч остановлен",
		interfaces.LogField{Key: "run_id", Value: state.RunID},
		interfaces.LogField{Key: "offset", Value: state.CurrentOffset},
	)
	return state, nil
}

// RunBatch запускает батч и обрабатывает чанки до конца или до отмены контекста
func (s *BatchService) RunBatch(ctx context.Context, batchSize int) (*models.BatchState, error) {
	if _, err := s.StartBatch(ctx, batchSize); err != nil {
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			stopped, err := s.Stop(context.WithoutCancel(ctx))
			if err != nil {
				return nil, err
			}
			return stopped, ctx.Err()
		}

		result, err := s.ProcessChunk(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return nil, err
		}
		if result.Completed {
			st := result.State
			return &st, nil
		}
	}
}

// Progress позиция курсора относительно размера каталога
func (s *BatchService) Progress(ctx context.Context) (models.Progress, error) {
	offset, err := s.store.LoadCursor(ctx)
	if err != nil {
		return models.Progress{}, err
	}
	total, err := s.catalog.Count(ctx)
	if err != nil {
		if errors.Is(err, utils.ErrEmptyCatalog) {
			return models.NewProgress(offset, 0), nil
		}
		return models.Progress{}, err
	}
	return models.NewProgress(offset, total), nil
}

// Cursor текущее смещение
func (s *BatchService) Cursor(ctx context.Context) (int, error) {
	return s.store.LoadCursor(ctx)
}

// ResetCursor возвращает курсор в начало каталога
func (s *BatchService) ResetCursor(ctx context.Context) error {
	if err := s.store.SaveCursor(ctx, 0); err != nil {
		return err
	}
	metrics.CursorOffset.Set(0)
	s.logger.InfoWithContext(ctx, "Курсор сброшен")
	return nil
}

// SetCursor устанавливает смещение, ограничивая его размером каталога
func (s *BatchService) SetCursor(ctx context.Context, offset int) (int, error) {
	if offset < 0 {
		return 0, utils.ErrInvalidCursor
	}
	total, err := s.catalog.Count(ctx)
	if err != nil && !errors.Is(err, utils.ErrEmptyCatalog) {
		return 0, err
	}
	if offset > total {
		offset = total
	}
	if err := s.store.SaveCursor(ctx, offset); err != nil {
		return 0, err
	}
	metrics.CursorOffset.Set(float64(offset))
	s.logger.InfoWithContext(ctx, "Курсор установлен",
		interfaces.LogField{Key: "offset", Value: offset},
	)
	return offset, nil
}
