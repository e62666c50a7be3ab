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
)

// RemoteClientConfig параметры повторов протокола
type RemoteClientConfig struct {
	// FetchRetries попытки GetDataByID при ошибке транспорта
	FetchRetries int
	FetchBackoff time.Duration
	// ReadyFetchRetries попытки FetchData после сигнала готовности
	ReadyFetchRetries int
	ReadyFetchBackoff time.Duration
	// ProgressEvery как часто писать в журнал ход ожидания
	ProgressEvery int
	// Interactive бюджет ожидания для запросов цены и остатка
	Interactive models.PollProfile
}

// DefaultRemoteClientConfig значения по умолчанию
func DefaultRemoteClientConfig() RemoteClientConfig {
	return RemoteClientConfig{
		FetchRetries:      3,
		FetchBackoff:      5 * time.Second,
		ReadyFetchRetries: 3,
		ReadyFetchBackoff: 3 * time.Second,
		ProgressEvery:     5,
		Interactive:       models.PollProfile{MaxAttempts: 20, Interval: 3 * time.Second},
	}
}

// RemoteClient протокол запрос/ожидание/получение поверх транспорта
type RemoteClient struct {
	transport RemoteTransport
	parser    *CatalogParser
	cfg       RemoteClientConfig
	logger    interfaces.LoggerPort
	sleep     Sleeper
}

// NewRemoteClient создает клиента
func NewRemoteClient(transport RemoteTransport, parser *CatalogParser, cfg RemoteClientConfig, logger interfaces.LoggerPort) *RemoteClient {
	if cfg.FetchRetries < 1 {
		cfg.FetchRetries = 1
	}
	if cfg.ReadyFetchRetries < 1 {
		cfg.ReadyFetchRetries = 1
	}
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = 5
	}
	return &RemoteClient{
		transport: transport,
		parser:    parser,
		cfg:       cfg,
		logger:    logger,
		sleep:     ContextSleep,
	}
}

// WithSleeper подменяет паузы между попытками
func (c *RemoteClient) WithSleeper(s Sleeper) *RemoteClient {
	c.sleep = s
	return c
}

// RequestData ставит запрос. Повторов на этом уровне нет
func (c *RemoteClient) RequestData(ctx context.Context, req models.RemoteRequest) (string, error) {
	id, err := c.transport.RequestData(ctx, req)
	if err != nil {
		metrics.RemoteCalls.WithLabelValues("request_data", "error").Inc()
		c.logger.ErrorWithContext(ctx, "Ошибка запроса данных",
			interfaces.LogField{Key: "service", Value: string(req.Service)},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return "", fmt.Errorf("%w: %s: %v", utils.ErrRemoteTransport, req.Service, err)
	}
	if id == "" {
		metrics.RemoteCalls.WithLabelValues("request_data", "no_id").Inc()
		c.logger.ErrorWithContext(ctx, "Учетная система не вернула ID запроса",
			interfaces.LogField{Key: "service", Value: string(req.Service)},
		)
		return "", fmt.Errorf("%w: %s", utils.ErrNoRequestID, req.Service)
	}

	metrics.RemoteCalls.WithLabelValues("request_data", "ok").Inc()
	c.logger.InfoWithContext(ctx, "Получен ID запроса",
		interfaces.LogField{Key: "service", Value: string(req.Service)},
		interfaces.LogField{Key: "request_id", Value: id},
	)
	return id, nil
}

// RequestDataWithFallback повторяет запрос с именем сервиса в нижнем регистре
func (c *RemoteClient) RequestDataWithFallback(ctx context.Context, req models.RemoteRequest) (string, error) {
	id, err := c.RequestData(ctx, req)
	if err == nil {
		return id, nil
	}

	alt := req.Service.Alternate()
	if alt == req.Service {
		return "", err
	}

	c.logger.WarnWithContext(ctx, "Пробуем альтернативное имя сервиса",
		interfaces.LogField{Key: "service", Value: string(alt)},
	)
	altReq := req
	altReq.Service = alt
	return c.RequestData(ctx, altReq)
}

// IsReady опрашивает готовность. Ошибка транспорта считается "не готово"
func (c *RemoteClient) IsReady(ctx context.Context, requestID string) bool {
	ready, err := c.transport.IsReady(ctx, requestID)
	if err != nil {
		metrics.RemoteCalls.WithLabelValues("is_ready", "error").Inc()
		c.logger.WarnWithContext(ctx, "Ошибка проверки готовности",
			interfaces.LogField{Key: "request_id", Value: requestID},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		return false
	}
	metrics.RemoteCalls.WithLabelValues("is_ready", "ok").Inc()
	return ready
}

// FetchData забирает готовые данные и извлекает из ответа выгрузку
func (c *RemoteClient) FetchData(ctx context.Context, requestID string) (string, error) {
	var resp *models.RemoteResponse
	var err error

	for attempt := 1; attempt <= c.cfg.FetchRetries; attempt++ {
		resp, err = c.transport.GetDataByID(ctx, requestID)
		if err == nil {
			break
		}
		metrics.RemoteCalls.WithLabelValues("get_data", "error").Inc()
		c.logger.WarnWithContext(ctx, "Ошибка получения данных",
			interfaces.LogField{Key: "request_id", Value: requestID},
			interfaces.LogField{Key: "attempt", Value: attempt},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
		if attempt < c.cfg.FetchRetries {
			if sleepErr := c.sleep(ctx, c.cfg.FetchBackoff); sleepErr != nil {
				return "", sleepErr
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: get data %s: %v", utils.ErrRemoteTransport, requestID, err)
	}
	metrics.RemoteCalls.WithLabelValues("get_data", "ok").Inc()

	payload, strategy, ok := ExtractPayload(resp)
	if !ok {
		c.logger.ErrorWithContext(ctx, "Выгрузка не найдена в ответе",
			interfaces.LogField{Key: "request_id", Value: requestID},
			interfaces.LogField{Key: "raw_length", Value: len(resp.Raw)},
		)
		return "", fmt.Errorf("%w: %s", utils.ErrPayloadNotFound, requestID)
	}

	metrics.PayloadBytes.WithLabelValues(strategy).Observe(float64(len(payload)))
	c.logger.InfoWithContext(ctx, "Данные получены",
		interfaces.LogField{Key: "request_id", Value: requestID},
		interfaces.LogField{Key: "strategy", Value: strategy},
		interfaces.LogField{Key: "length", Value: len(payload)},
	)
	return payload, nil
}

// WaitAndFetch ждет готовности по профилю и забирает данные
func (c *RemoteClient) WaitAndFetch(ctx context.Context, requestID string, profile models.PollProfile) (string, error) {
	started := time.Now()

	for attempt := 1; attempt <= profile.MaxAttempts; attempt++ {
		if c.IsReady(ctx, requestID) {
			c.logger.InfoWithContext(ctx, "Данные готовы",
				interfaces.LogField{Key: "request_id", Value: requestID},
				interfaces.LogField{Key: "attempt", Value: attempt},
				interfaces.LogField{Key: "elapsed", Value: time.Since(started).Round(time.Second).String()},
			)
			return c.fetchWhenReady(ctx, requestID)
		}

		if attempt%c.cfg.ProgressEvery == 0 {
			c.logger.InfoWithContext(ctx, "Ожидаем готовности данных",
				interfaces.LogField{Key: "request_id", Value: requestID},
				interfaces.LogField{Key: "attempt", Value: fmt.Sprintf("%d/%d", attempt, profile.MaxAttempts)},
				interfaces.LogField{Key: "elapsed", Value: time.Since(started).Round(time.Second).String()},
			)
		}

		if attempt < profile.MaxAttempts {
			if err := c.sleep(ctx, profile.Interval); err != nil {
				return "", err
			}
		}
	}

	c.logger.ErrorWithContext(ctx, "Данные не готовы за отведенное время",
		interfaces.LogField{Key: "request_id", Value: requestID},
		interfaces.LogField{Key: "attempts", Value: profile.MaxAttempts},
		interfaces.LogField{Key: "elapsed", Value: time.Since(started).Round(time.Second).String()},
	)
	return "", fmt.Errorf("%w: %s after %d attempts", utils.ErrRemoteTimeout, requestID, profile.MaxAttempts)
}

func (c *RemoteClient) fetchWhenReady(ctx context.Context, requestID string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReadyFetchRetries; attempt++ {
		payload, err := c.FetchData(ctx, requestID)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if attempt < c.cfg.ReadyFetchRetries {
			if sleepErr := c.sleep(ctx, c.cfg.ReadyFetchBackoff); sleepErr != nil {
				return "", sleepErr
			}
		}
	}
	return "", lastErr
}

// Fetch запрос, ожидание и получение одной операцией
func (c *RemoteClient) Fetch(ctx context.Context, req models.RemoteRequest, profile models.PollProfile) (string, error) {
	id, err := c.RequestData(ctx, req)
	if err != nil {
		return "", err
	}
	return c.WaitAndFetch(ctx, id, profile)
}

// GetStock запрашивает текущий остаток товара. Не кэшируется
func (c *RemoteClient) GetStock(ctx context.Context, uuid string) (int, error) {
	raw, err := c.Fetch(ctx, models.RemoteRequest{Service: models.ServiceBalance, All: false, Params: uuid}, c.cfg.Interactive)
	if err != nil {
		return 0, fmt.Errorf("stock for %s: %w", uuid, err)
	}
	stock, err := c.parser.ParseBalance(raw)
	if err != nil {
		return 0, fmt.Errorf("stock for %s: %w", uuid, err)
	}
	c.logger.DebugWithContext(ctx, "Остаток получен",
		interfaces.LogField{Key: "uuid", Value: uuid},
		interfaces.LogField{Key: "stock", Value: stock},
	)
	return stock, nil
}

// GetPrice запрашивает цену товара. nil, если цены нет
func (c *RemoteClient) GetPrice(ctx context.Context, uuid string) (*float64, error) {
	raw, err := c.Fetch(ctx, models.RemoteRequest{Service: models.ServicePriceList, All: false, Params: uuid}, c.cfg.Interactive)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", uuid, err)
	}
	price, err := c.parser.ParsePriceList(raw)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", uuid, err)
	}
	return price, nil
}
