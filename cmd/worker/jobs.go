package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	pkgmodels "github.com/athebyme/gomarket-platform/catalog-sync/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики для Prometheus
var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_worker_messages_processed_total",
		Help: "Общее количество обработанных сообщений",
	}, []string{"topic", "status"})

	messageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_worker_message_processing_duration_seconds",
		Help:    "Длительность обработки сообщений",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600},
	}, []string{"topic"})

	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_sync_worker_active_goroutines",
		Help: "Количество активных горутин-обработчиков",
	})

	scheduledBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_worker_scheduled_batches_total",
		Help: "Проходы по каталогу, запущенные по расписанию",
	}, []string{"status"})
)

type jobRunner interface {
	RunDownloadJob(ctx context.Context, job pkgmodels.DownloadJob) (*pkgmodels.JobResult, error)
}

type batchRunner interface {
	RunBatch(ctx context.Context, batchSize int) (*models.BatchState, error)
}

// newJobHandler обработчик очереди загрузок.
// Ошибка возвращается только при отмене контекста, тогда сообщение будет прочитано снова.
// Неудачная загрузка не повторяется бесконечно: она записана в журнал, задачу ставят заново
func newJobHandler(runner jobRunner, logger interfaces.LoggerPort) interfaces.MessageHandler {
	return func(ctx context.Context, msg *interfaces.Message) error {
		startTime := time.Now()
		activeWorkers.Inc()
		defer activeWorkers.Dec()

		var job pkgmodels.DownloadJob
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			logger.ErrorWithContext(ctx, "Ошибка декодирования задачи",
				interfaces.LogField{Key: "error", Value: err.Error()},
				interfaces.LogField{Key: "message_id", Value: msg.ID},
			)
			messagesProcessed.WithLabelValues(msg.Topic, "invalid").Inc()
			return nil
		}

		logger.InfoWithContext(ctx, "Получена задача загрузки",
			interfaces.LogField{Key: "job_id", Value: job.ID},
			interfaces.LogField{Key: "kind", Value: string(job.Kind)},
		)

		result, err := runner.RunDownloadJob(ctx, job)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			messagesProcessed.WithLabelValues(msg.Topic, "canceled").Inc()
			return ctx.Err()
		case errors.Is(err, utils.ErrJobBusy):
			logger.WarnWithContext(ctx, "Загрузка этого вида уже выполняется, задача пропущена",
				interfaces.LogField{Key: "job_id", Value: job.ID})
			messagesProcessed.WithLabelValues(msg.Topic, "busy").Inc()
			return nil
		case errors.Is(err, utils.ErrUnknownJobKind):
			logger.WarnWithContext(ctx, "Неизвестный вид задачи",
				interfaces.LogField{Key: "kind", Value: string(job.Kind)})
			messagesProcessed.WithLabelValues(msg.Topic, "unknown").Inc()
			return nil
		default:
			logger.ErrorWithContext(ctx, "Ошибка выполнения задачи загрузки",
				interfaces.LogField{Key: "job_id", Value: job.ID},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			messagesProcessed.WithLabelValues(msg.Topic, "error").Inc()
			return nil
		}

		duration := time.Since(startTime).Seconds()
		messageProcessingDuration.WithLabelValues(msg.Topic).Observe(duration)
		messagesProcessed.WithLabelValues(msg.Topic, "success").Inc()

		logger.InfoWithContext(ctx, "Задача загрузки выполнена",
			interfaces.LogField{Key: "job_id", Value: result.JobID},
			interfaces.LogField{Key: "bytes", Value: result.Bytes},
			interfaces.LogField{Key: "processed", Value: result.Processed},
			interfaces.LogField{Key: "duration", Value: duration},
		)
		return nil
	}
}

// newEventHandler учитывает события о товарах. Невалидные события отбрасываются
func newEventHandler(logger interfaces.LoggerPort) interfaces.MessageHandler {
	return func(ctx context.Context, msg *interfaces.Message) error {
		var event pkgmodels.ProductEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.WarnWithContext(ctx, "Ошибка декодирования события",
				interfaces.LogField{Key: "error", Value: err.Error()},
				interfaces.LogField{Key: "message_id", Value: msg.ID},
			)
			messagesProcessed.WithLabelValues(msg.Topic, "invalid").Inc()
			return nil
		}

		logger.DebugWithContext(ctx, "Событие товара",
			interfaces.LogField{Key: "type", Value: event.Type},
			interfaces.LogField{Key: "sku", Value: event.SKU},
			interfaces.LogField{Key: "run_id", Value: event.RunID},
		)
		messagesProcessed.WithLabelValues(msg.Topic, event.Type).Inc()
		return nil
	}
}

// runScheduledBatch один проход по расписанию. Занятость прохода не ошибка
func runScheduledBatch(ctx context.Context, runner batchRunner, size int, logger interfaces.LoggerPort) {
	state, err := runner.RunBatch(ctx, size)
	switch {
	case err == nil:
		scheduledBatches.WithLabelValues("completed").Inc()
		logger.Info("Проход по расписанию завершен",
			interfaces.LogField{Key: "run_id", Value: state.RunID},
			interfaces.LogField{Key: "processed", Value: state.ProcessedCount},
			interfaces.LogField{Key: "skipped", Value: state.SkippedCount},
			interfaces.LogField{Key: "failed", Value: state.FailedCount},
		)
	case ctx.Err() != nil:
		scheduledBatches.WithLabelValues("stopped").Inc()
		logger.Info("Проход по расписанию остановлен при завершении воркера")
	case errors.Is(err, utils.ErrBatchInProgress), errors.Is(err, utils.ErrBatchBusy):
		scheduledBatches.WithLabelValues("skipped").Inc()
		logger.Debug("Проход уже выполняется, запуск по расписанию пропущен")
	default:
		scheduledBatches.WithLabelValues("error").Inc()
		logger.Error("Ошибка прохода по расписанию", interfaces.LogField{Key: "error", Value: err.Error()})
	}
}

// runBatchScheduler запускает проход каждые interval до отмены контекста
func runBatchScheduler(ctx context.Context, runner batchRunner, size int, interval time.Duration, logger interfaces.LoggerPort) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runScheduledBatch(ctx, runner, size, logger)
		}
	}
}
