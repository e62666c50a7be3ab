package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/config"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/api"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/app"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Инициализация сервиса",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Ошибка инициализации зависимостей", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	testCtx, testCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := checkConnections(testCtx, application); err != nil {
		testCancel()
		application.Close()
		log.Fatal("Ошибка проверки зависимостей", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	testCancel()
	log.Info("Соединения с PostgreSQL и кэшем проверены")

	authPort, err := application.AuthPort(ctx)
	if err != nil {
		application.Close()
		log.Fatal("Ошибка инициализации аутентификации", interfaces.LogField{Key: "error", Value: err.Error()})
	}

	router := api.SetupRouter(application.SyncHandler(), authPort, log, api.RouterConfig{
		CORSAllowedOrigins: cfg.Security.CORSAllowOrigins,
		RequestTimeout:     cfg.Server.RequestTimeout,
	})
	log.Info("Маршрутизатор настроен")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Сервер запущен", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Ошибка запуска сервера", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Ошибка при graceful shutdown", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		log.Info("HTTP сервер остановлен")

		cancel()
		application.Close()
		close(done)
	}()

	<-done
	log.Info("Сервер корректно завершил работу")
}

// checkConnections проверяет PostgreSQL и запись в кэш
func checkConnections(ctx context.Context, a *app.App) error {
	if err := a.Storage.Ping(ctx); err != nil {
		return fmt.Errorf("PostgreSQL недоступен: %w", err)
	}

	testKey := "test:connection"
	testValue := []byte("test-value")
	if err := a.Cache.Set(ctx, testKey, testValue, 10*time.Second); err != nil {
		return fmt.Errorf("ошибка записи в кэш: %w", err)
	}
	value, err := a.Cache.Get(ctx, testKey)
	if err != nil {
		return fmt.Errorf("ошибка чтения из кэша: %w", err)
	}
	if string(value) != string(testValue) {
		return fmt.Errorf("некорректное значение из кэша: получено %s, ожидалось %s", value, testValue)
	}
	return a.Cache.Delete(ctx, testKey)
}
