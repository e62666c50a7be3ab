package app

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/config"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/cache"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/files"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/remote"
	storage "github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/storage"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/services"
	pgschema "github.com/athebyme/gomarket-platform/catalog-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/security"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/auth"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/tx"
)

const (
	catalogCacheTTL     = 10 * time.Minute
	translationsHotTTL  = 10 * time.Minute
	memoryCacheInterval = time.Minute
)

// App собранные зависимости сервиса. Общая сборка для api и worker
type App struct {
	Config    *config.Config
	Logger    interfaces.LoggerPort
	Storage   *storage.CatalogStorage
	Cache     interfaces.CachePort
	Messaging *messaging.KafkaMessaging

	Remote       *services.RemoteClient
	Translations *services.TranslationStore
	Categories   *services.CategoryMapper
	Catalog      *services.CatalogReader
	Engine       *services.ProductEngine
	Batch        *services.BatchService
	Downloads    *services.DownloadService
	SyncLog      *services.SyncLog

	closers []func() error
}

// New подключается к хранилищам и собирает сервисы.
// base пишет только в журнал процесса, сервисы получают логгер с копией в журнал синхронизации
func New(ctx context.Context, cfg *config.Config, base interfaces.LoggerPort) (*App, error) {
	a := &App{Config: cfg}

	connectionStr, err := utils.GenerateConnectionString(utils.ConnectionParams{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxConns:        cfg.Postgres.MaxConns,
		ConnectTimeout:  cfg.Postgres.Timeout,
		ApplicationName: cfg.AppName,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации строки подключения к PostgreSQL: %w", err)
	}

	db, err := storage.NewPostgresStorage(ctx, connectionStr)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}
	a.Storage = db
	a.closers = append(a.closers, db.Close)

	if err := pgschema.EnsureSchema(ctx, db.Pool()); err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка создания схемы: %w", err)
	}
	base.Info("Хранилище инициализировано")

	a.SyncLog = services.NewSyncLog(db, services.MaxSyncLogChars)
	log := logger.NewSyncLogTee(base, a.SyncLog)
	a.Logger = log

	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка инициализации кэша: %w", err)
		}
		a.Cache = redisCache
		base.Info("Кэш Redis инициализирован")
	} else {
		a.Cache = cache.NewMemoryCache(memoryCacheInterval)
		base.Info("Используется кэш в памяти процесса")
	}
	a.closers = append(a.closers, a.Cache.Close)

	kafkaClient, err := messaging.NewKafkaMessaging(cfg.Kafka.Brokers, cfg.Kafka.GroupID, base)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка инициализации системы обмена сообщениями: %w", err)
	}
	a.Messaging = kafkaClient
	a.closers = append(a.closers, kafkaClient.Close)

	if err := kafkaClient.EnsureTopics(ctx, []string{messaging.JobsTopic, messaging.EventsTopic},
		cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		base.Warn("Не удалось создать топики", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	transport, err := remote.NewSOAPTransport(remote.Config{
		Endpoint:           cfg.Remote.WSDL,
		Namespace:          cfg.Remote.Namespace,
		User:               cfg.Remote.User,
		Password:           cfg.Remote.Password,
		InsecureSkipVerify: cfg.Remote.InsecureSkipVerify,
		Timeout:            cfg.Remote.Timeout,
		LargeDataTimeout:   cfg.Remote.LargeDataTimeout,
		RateLimitPerMinute: cfg.Remote.RateLimitPerMinute,
	}, base)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка инициализации транспорта учетной системы: %w", err)
	}

	payloads, err := files.NewPayloadStore(cfg.Catalog.StorageDir, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	media, err := files.NewMediaDownloader(cfg.Catalog.MediaDir, cfg.Catalog.ImageTimeout, cfg.Catalog.ImageRatePerMin, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	parser := services.NewCatalogParser(cfg.Catalog.SKUPrefix, cfg.Catalog.TranslationLocale, log)

	remoteCfg := services.DefaultRemoteClientConfig()
	remoteCfg.FetchRetries = cfg.Remote.FetchRetries
	remoteCfg.FetchBackoff = cfg.Remote.FetchBackoff
	remoteCfg.Interactive = cfg.Polling.Interactive
	a.Remote = services.NewRemoteClient(transport, parser, remoteCfg, log)

	a.Translations = services.NewTranslationStore(db, payloads, parser, cfg.Catalog.TranslationsFile, translationsHotTTL, log)
	a.Categories = services.NewCategoryMapper(a.Remote, parser, db, db, cfg.Polling.Catalog, log)
	a.Catalog = services.NewCatalogReader(payloads, parser, cfg.Catalog.CatalogFile, catalogCacheTTL, log)

	images := services.NewImagePipeline(media, db, log)
	a.Engine = services.NewProductEngine(
		db,
		a.Remote,
		a.Translations,
		a.Categories,
		images,
		tx.NewTxManager(db.Pool(), base),
		kafkaClient,
		cfg.Catalog.SKUPrefix,
		log,
	)

	a.Batch = services.NewBatchService(
		services.NewBatchStore(db),
		a.Catalog,
		a.Engine,
		a.Cache,
		services.BatchConfig{
			DefaultSize: cfg.Batch.Size,
			ChunkSize:   cfg.Batch.ChunkSize,
			StaleAfter:  cfg.Batch.StaleAfter,
			LockTTL:     cfg.Batch.LockTTL,
		},
		log,
	)

	downloadCfg := services.DefaultDownloadConfig()
	downloadCfg.CatalogFile = cfg.Catalog.CatalogFile
	downloadCfg.TranslationsFile = cfg.Catalog.TranslationsFile
	downloadCfg.CatalogProfile = cfg.Polling.Catalog
	downloadCfg.TranslationsProfile = cfg.Polling.Translations
	a.Downloads = services.NewDownloadService(a.Remote, payloads, a.Translations, a.Categories, db, kafkaClient, a.Cache, downloadCfg, log)

	return a, nil
}

// AuthPort проверка токенов: Keycloak, если включен, иначе HS256
func (a *App) AuthPort(ctx context.Context) (interfaces.AuthPort, error) {
	if a.Config.Keycloak.Enabled {
		kc, err := auth.NewKeycloakClient(ctx, a.Config.Keycloak.GetKeycloakConfig())
		if err != nil {
			return nil, err
		}
		return kc, nil
	}
	return security.NewJWTManager(a.Config.Security.JWTSecret, a.Config.Security.JWTExpirationMin, a.Config.Security.JWTIssuer)
}

// SyncHandler обработчики панели управления
func (a *App) SyncHandler() *handlers.SyncHandler {
	return handlers.NewSyncHandler(handlers.SyncDeps{
		Batch:        a.Batch,
		Downloads:    a.Downloads,
		SyncLog:      a.SyncLog,
		Categories:   a.Categories,
		Translations: a.Translations,
		Catalog:      a.Catalog,
		Refresher:    a.Engine,
		Products:     a.Storage,
		Logger:       a.Logger,
	})
}

// Close закрывает соединения в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
