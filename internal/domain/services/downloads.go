package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/metrics"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	pkgmodels "github.com/athebyme/gomarket-platform/catalog-sync/pkg/models"
	"github.com/google/uuid"
)

const lastDownloadKey = "last_download"

// DownloadConfig параметры загрузки больших выгрузок
type DownloadConfig struct {
	CatalogFile         string
	TranslationsFile    string
	CatalogProfile      models.PollProfile
	TranslationsProfile models.PollProfile
	// RecoveryAttempts прямые попытки FetchData, если ожидание не удалось, а данные готовы
	RecoveryAttempts          int
	CatalogRecoveryDelay      time.Duration
	TranslationsRecoveryDelay time.Duration
	// MinPayloadSize файл меньше этого размера подозрителен
	MinPayloadSize int64
	LockTTL        time.Duration
}

// DefaultDownloadConfig значения по умолчанию
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		CatalogFile:               "nomenclature.xml",
		TranslationsFile:          "translations.xml",
		CatalogProfile:            models.PollProfile{MaxAttempts: 60, Interval: 5 * time.Second},
		TranslationsProfile:       models.PollProfile{MaxAttempts: 120, Interval: 15 * time.Second},
		RecoveryAttempts:          3,
		CatalogRecoveryDelay:      3 * time.Second,
		TranslationsRecoveryDelay: 5 * time.Second,
		MinPayloadSize:            100,
		LockTTL:                   45 * time.Minute,
	}
}

// CategorySyncer синхронизация дерева категорий
type CategorySyncer interface {
	SyncCategories(ctx context.Context) (int, error)
}

// TranslationProcessor пересборка таблицы переводов из файла
type TranslationProcessor interface {
	Process(ctx context.Context) (*models.TranslationTable, error)
}

// DownloadService отложенные загрузки каталога, переводов и категорий
type DownloadService struct {
	client       *RemoteClient
	payloads     PayloadStore
	translations TranslationProcessor
	categories   CategorySyncer
	state        interfaces.StatePort
	queue        JobQueue
	locker       Locker
	cfg          DownloadConfig
	logger       interfaces.LoggerPort
	sleep        Sleeper
}

// NewDownloadService создает сервис загрузок
func NewDownloadService(
	client *RemoteClient,
	payloads PayloadStore,
	translations TranslationProcessor,
	categories CategorySyncer,
	state interfaces.StatePort,
	queue JobQueue,
	locker Locker,
	cfg DownloadConfig,
	logger interfaces.LoggerPort,
) *DownloadService {
	return &DownloadService{
		client:       client,
		payloads:     payloads,
		translations: translations,
		categories:   categories,
		state:        state,
		queue:        queue,
		locker:       locker,
		cfg:          cfg,
		logger:       logger,
		sleep:        ContextSleep,
	}
}

// WithSleeper подменяет паузы между попытками
func (s *DownloadService) WithSleeper(sl Sleeper) *DownloadService {
	s.sleep = sl
	return s
}

// Schedule ставит задачу в очередь и сразу возвращается
func (s *DownloadService) Schedule(ctx context.Context, kind pkgmodels.JobKind, requestedBy string) (*pkgmodels.DownloadJob, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnknownJobKind, kind)
	}

	job := &pkgmodels.DownloadJob{
		ID:          uuid.New().String(),
		Kind:        kind,
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := s.queue.PublishWithKey(ctx, messaging.JobsTopic, string(kind), data); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.InfoWithContext(ctx, "Задача загрузки поставлена в очередь",
		interfaces.LogField{Key: "kind", Value: string(kind)},
		interfaces.LogField{Key: "job_id", Value: job.ID},
	)
	return job, nil
}

// RunDownloadJob выполняет задачу. Вызывается очередью, не зависит от HTTP-запроса
func (s *DownloadService) RunDownloadJob(ctx context.Context, job pkgmodels.DownloadJob) (*pkgmodels.JobResult, error) {
	if !job.Kind.Valid() {
		return nil, fmt.Errorf("%w: %s", utils.ErrUnknownJobKind, job.Kind)
	}

	lockKey := "download:" + string(job.Kind)
	token, locked, err := s.locker.Lock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, utils.ErrJobBusy
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.logger.WarnWithContext(ctx, "Не удалось снять блокировку загрузки",
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}()

	ctx = context.WithValue(ctx, interfaces.JobIDKey, job.ID)
	started := time.Now()
	result := &pkgmodels.JobResult{JobID: job.ID, Kind: job.Kind}

	s.logger.InfoWithContext(ctx, "Начинаем загрузку",
		interfaces.LogField{Key: "kind", Value: string(job.Kind)},
	)

	switch job.Kind {
	case pkgmodels.JobNomenclature:
		result.Bytes, err = s.download(ctx,
			models.RemoteRequest{Service: models.ServiceNomenclature, All: true},
			s.cfg.CatalogProfile, s.cfg.CatalogRecoveryDelay, s.cfg.CatalogFile)
		if err == nil {
			if setErr := s.state.Set(ctx, lastDownloadKey, []byte(time.Now().UTC().Format(time.RFC3339))); setErr != nil {
				s.logger.WarnWithContext(ctx, "Не удалось сохранить время загрузки",
					interfaces.LogField{Key: "error", Value: setErr.Error()},
				)
			}
		}

	case pkgmodels.JobTranslations:
		result.Bytes, err = s.download(ctx,
			models.RemoteRequest{Service: models.ServiceTranslations, All: true},
			s.cfg.TranslationsProfile, s.cfg.TranslationsRecoveryDelay, s.cfg.TranslationsFile)
		if err == nil {
			var table *models.TranslationTable
			if table, err = s.translations.Process(ctx); err == nil {
				result.Processed = len(table.Nomenclature) + len(table.Properties)
			}
		}

	case pkgmodels.JobCategories:
		result.Processed, err = s.categories.SyncCategories(ctx)
	}

	result.Duration = time.Since(started)
	result.CompletedAt = time.Now().UTC()

	if err != nil {
		metrics.DownloadJobs.WithLabelValues(string(job.Kind), "error").Inc()
		s.logger.ErrorWithContext(ctx, "Загрузка не удалась",
			interfaces.LogField{Key: "kind", Value: string(job.Kind)},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return nil, err
	}

	metrics.DownloadJobs.WithLabelValues(string(job.Kind), "ok").Inc()
	s.logger.InfoWithContext(ctx, "Загрузка завершена",
		interfaces.LogField{Key: "kind", Value: string(job.Kind)},
		interfaces.LogField{Key: "bytes", Value: result.Bytes},
		interfaces.LogField{Key: "processed", Value: result.Processed},
		interfaces.LogField{Key: "duration", Value: result.Duration.Round(time.Second).String()},
	)
	return result, nil
}

// download запрашивает выгрузку, ждет ее и сохраняет в файл
func (s *DownloadService) download(ctx context.Context, req models.RemoteRequest, profile models.PollProfile, recoveryDelay time.Duration, fileName string) (int64, error) {
	id, err := s.client.RequestDataWithFallback(ctx, req)
	if err != nil {
		return 0, err
	}

	payload, err := s.client.WaitAndFetch(ctx, id, profile)
	if err != nil && ctx.Err() == nil && s.client.IsReady(ctx, id) {
		s.logger.WarnWithContext(ctx, "Ожидание не удалось, но данные готовы. Пробуем забрать напрямую",
			interfaces.LogField{Key: "request_id", Value: id},
		)
		for attempt := 1; attempt <= s.cfg.RecoveryAttempts; attempt++ {
			if sleepErr := s.sleep(ctx, recoveryDelay); sleepErr != nil {
				return 0, sleepErr
			}
			if payload, err = s.client.FetchData(ctx, id); err == nil {
				break
			}
		}
	}
	if err != nil {
		return 0, err
	}

	written, err := s.payloads.Save(ctx, fileName, []byte(payload))
	if err != nil {
		return 0, err
	}
	if written < s.cfg.MinPayloadSize {
		s.logger.WarnWithContext(ctx, "Файл выгрузки подозрительно мал",
			interfaces.LogField{Key: "file", Value: fileName},
			interfaces.LogField{Key: "bytes", Value: written},
		)
	}

	s.logger.InfoWithContext(ctx, "Файл выгрузки сохранен",
		interfaces.LogField{Key: "file", Value: fileName},
		interfaces.LogField{Key: "bytes", Value: written},
	)
	return written, nil
}

// LastDownload время последней успешной загрузки каталога
func (s *DownloadService) LastDownload(ctx context.Context) (*time.Time, error) {
	data, err := s.state.Get(ctx, lastDownloadKey)
	if err != nil || data == nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, string(data))
	if err != nil {
		return nil, nil
	}
	return &t, nil
}
