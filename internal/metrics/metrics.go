package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики синхронизации для Prometheus
var (
	RemoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_remote_calls_total",
		Help: "Количество вызовов удаленной учетной системы",
	}, []string{"operation", "status"})

	PayloadBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_payload_bytes",
		Help:    "Размер полученных выгрузок",
		Buckets: prometheus.ExponentialBuckets(256, 8, 8),
	}, []string{"strategy"})

	ProductOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_product_outcomes_total",
		Help: "Итоги обработки товаров каталога",
	}, []string{"kind", "reason"})

	ChunkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_sync_chunk_duration_seconds",
		Help:    "Длительность обработки одного чанка",
		Buckets: prometheus.DefBuckets,
	})

	CursorOffset = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_sync_cursor_offset",
		Help: "Текущее смещение курсора в каталоге",
	})

	DownloadJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_download_jobs_total",
		Help: "Выполненные задачи загрузки",
	}, []string{"kind", "status"})

	ImageDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_image_downloads_total",
		Help: "Загрузки изображений товаров",
	}, []string{"status"})
)
