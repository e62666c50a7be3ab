package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/auth"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		RequestTimeout  time.Duration
	}

	Postgres struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	Redis struct {
		Enabled   bool
		Host      string
		Port      int
		Password  string
		DB        int
		KeyPrefix string
	}

	Kafka struct {
		Brokers           []string `mapstructure:"brokers"`
		GroupID           string   `mapstructure:"group_id"`
		Partitions        int      `mapstructure:"partitions"`
		ReplicationFactor int      `mapstructure:"replication_factor"`
	}

	Metrics struct {
		Enabled bool
		Port    int `mapstructure:"port"`
	}

	Security struct {
		JWTSecret        string
		JWTExpirationMin time.Duration
		JWTIssuer        string
		CORSAllowOrigins []string
	}

	Keycloak KeycloakConfig

	// Remote веб-сервис учетной системы
	Remote struct {
		WSDL               string
		Namespace          string
		User               string
		Password           string
		InsecureSkipVerify bool
		Timeout            time.Duration
		LargeDataTimeout   time.Duration
		RateLimitPerMinute int
		FetchRetries       int
		FetchBackoff       time.Duration
	}

	Polling struct {
		Interactive  models.PollProfile
		Catalog      models.PollProfile
		Translations models.PollProfile
	}

	Batch struct {
		Size             int
		ChunkSize        int
		StaleAfter       time.Duration
		LockTTL          time.Duration
		SchedulerEnabled bool
		Interval         time.Duration
	}

	Catalog struct {
		StorageDir        string
		CatalogFile       string
		TranslationsFile  string
		MediaDir          string
		SKUPrefix         string
		TranslationLocale string
		ImageRatePerMin   int
		ImageTimeout      time.Duration
	}
}

// KeycloakConfig конфигурация Keycloak. При Enabled токены проверяет Keycloak вместо HS256
type KeycloakConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ServerURL string `mapstructure:"server_url"`
	Realm     string `mapstructure:"realm"`
	ClientID  string `mapstructure:"client_id"`
}

// GetKeycloakConfig возвращает конфигурацию для auth.KeycloakClient
func (k *KeycloakConfig) GetKeycloakConfig() auth.KeycloakConfig {
	return auth.KeycloakConfig{
		ServerURL: k.ServerURL,
		Realm:     k.Realm,
		ClientID:  k.ClientID,
	}
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}

	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	v := viper.New()
	v.SetConfigName(configFile)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("../../config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Чтение конфигурационного файла
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Продолжаем, если файл не найден, будем использовать только переменные окружения
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	cfg.ENV = v.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	return &cfg, nil
}

// IsProduction true для боевого окружения
func (c *Config) IsProduction() bool {
	return c.ENV == "production"
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	// Основные настройки
	v.SetDefault("appName", "catalog-sync")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("logLevel", "info")
	v.SetDefault("env", "development")

	// Настройки сервера
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "120s")
	v.SetDefault("server.shutdownTimeout", "15s")
	v.SetDefault("server.requestTimeout", "110s")

	// Настройки Postgres
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "catalog")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.maxconns", 10)
	v.SetDefault("postgres.timeout", "5s")

	// Настройки Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "catalog-sync")

	// Настройки Kafka
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "catalog-sync")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	// Настройки метрик
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Настройки безопасности
	v.SetDefault("security.jwtSecret", "change-me-please-32-bytes-secret")
	v.SetDefault("security.jwtExpirationMin", "60m")
	v.SetDefault("security.jwtIssuer", "catalog-sync")
	v.SetDefault("security.corsAllowOrigins", []string{"*"})

	v.SetDefault("keycloak.enabled", false)

	// Учетная система
	v.SetDefault("remote.wsdl", "")
	v.SetDefault("remote.namespace", "urn:b2b")
	v.SetDefault("remote.insecureSkipVerify", true)
	v.SetDefault("remote.timeout", "5m")
	v.SetDefault("remote.largeDataTimeout", "20m")
	v.SetDefault("remote.rateLimitPerMinute", 120)
	v.SetDefault("remote.fetchRetries", 3)
	v.SetDefault("remote.fetchBackoff", "5s")

	// Бюджеты ожидания
	v.SetDefault("polling.interactive.max_attempts", 20)
	v.SetDefault("polling.interactive.interval", "3s")
	v.SetDefault("polling.catalog.max_attempts", 60)
	v.SetDefault("polling.catalog.interval", "5s")
	v.SetDefault("polling.translations.max_attempts", 120)
	v.SetDefault("polling.translations.interval", "15s")

	// Пакетная обработка
	v.SetDefault("batch.size", 200)
	v.SetDefault("batch.chunkSize", 5)
	v.SetDefault("batch.staleAfter", "10m")
	v.SetDefault("batch.lockTTL", "15m")
	v.SetDefault("batch.schedulerEnabled", false)
	v.SetDefault("batch.interval", "1h")

	// Каталог
	v.SetDefault("catalog.storageDir", "./data")
	v.SetDefault("catalog.catalogFile", "nomenclature.xml")
	v.SetDefault("catalog.translationsFile", "translations.xml")
	v.SetDefault("catalog.mediaDir", "./data/media")
	v.SetDefault("catalog.skuPrefix", "LU")
	v.SetDefault("catalog.translationLocale", "md")
	v.SetDefault("catalog.imageRatePerMin", 300)
	v.SetDefault("catalog.imageTimeout", "60s")
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables(v *viper.Viper) {
	// Основные настройки
	v.BindEnv("appName", "APP_NAME")
	v.BindEnv("version", "APP_VERSION")
	v.BindEnv("logLevel", "LOG_LEVEL")
	v.BindEnv("env", "APP_ENV")

	// Настройки сервера
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.readTimeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.writeTimeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.shutdownTimeout", "SERVER_SHUTDOWN_TIMEOUT")
	v.BindEnv("server.requestTimeout", "SERVER_REQUEST_TIMEOUT")

	// Настройки Postgres
	v.BindEnv("postgres.host", "POSTGRES_HOST")
	v.BindEnv("postgres.port", "POSTGRES_PORT")
	v.BindEnv("postgres.user", "POSTGRES_USER")
	v.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	v.BindEnv("postgres.dbname", "POSTGRES_DBNAME")
	v.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	v.BindEnv("postgres.maxconns", "POSTGRES_MAX_CONNS")
	v.BindEnv("postgres.timeout", "POSTGRES_TIMEOUT")

	// Настройки Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// Настройки Kafka
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.group_id", "KAFKA_GROUP_ID")

	// Настройки метрик
	v.BindEnv("metrics.enabled", "METRICS_ENABLED")
	v.BindEnv("metrics.port", "METRICS_PORT")

	// Настройки безопасности
	v.BindEnv("security.jwtSecret", "JWT_SECRET")
	v.BindEnv("security.jwtExpirationMin", "JWT_EXPIRATION_MIN")
	v.BindEnv("security.corsAllowOrigins", "CORS_ALLOW_ORIGINS")

	v.BindEnv("keycloak.enabled", "KEYCLOAK_ENABLED")
	v.BindEnv("keycloak.server_url", "KEYCLOAK_SERVER_URL")
	v.BindEnv("keycloak.realm", "KEYCLOAK_REALM")
	v.BindEnv("keycloak.client_id", "KEYCLOAK_CLIENT_ID")

	// Учетная система
	v.BindEnv("remote.wsdl", "REMOTE_WSDL")
	v.BindEnv("remote.namespace", "REMOTE_NAMESPACE")
	v.BindEnv("remote.user", "REMOTE_USER")
	v.BindEnv("remote.password", "REMOTE_PASSWORD")
	v.BindEnv("remote.insecureSkipVerify", "REMOTE_INSECURE_SKIP_VERIFY")
	v.BindEnv("remote.rateLimitPerMinute", "REMOTE_RATE_LIMIT_PER_MINUTE")

	// Пакетная обработка
	v.BindEnv("batch.size", "BATCH_SIZE")
	v.BindEnv("batch.chunkSize", "BATCH_CHUNK_SIZE")
	v.BindEnv("batch.schedulerEnabled", "BATCH_SCHEDULER_ENABLED")
	v.BindEnv("batch.interval", "BATCH_INTERVAL")

	// Каталог
	v.BindEnv("catalog.storageDir", "CATALOG_STORAGE_DIR")
	v.BindEnv("catalog.mediaDir", "CATALOG_MEDIA_DIR")
	v.BindEnv("catalog.skuPrefix", "CATALOG_SKU_PREFIX")
	v.BindEnv("catalog.translationLocale", "CATALOG_TRANSLATION_LOCALE")
}
