package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func testClientConfig() RemoteClientConfig {
	cfg := DefaultRemoteClientConfig()
	cfg.Interactive = models.PollProfile{MaxAttempts: 3, Interval: time.Second}
	return cfg
}

func newTestClient(transport RemoteTransport, cfg RemoteClientConfig) (*RemoteClient, *sleepRecorder) {
	rec := &sleepRecorder{}
	parser := NewCatalogParser(DefaultSKUPrefix, DefaultTranslationLocale, nopLogger)
	client := NewRemoteClient(transport, parser, cfg, nopLogger).WithSleeper(rec.sleep)
	return client, rec
}

func TestRequestData_Errors(t *testing.T) {
	ctx := context.Background()

	client, _ := newTestClient(&fakeTransport{requestData: func(models.RemoteRequest) (string, error) {
		return "", nil
	}}, testClientConfig())
	_, err := client.RequestData(ctx, models.RemoteRequest{Service: models.ServiceBalance})
	assert.ErrorIs(t, err, utils.ErrNoRequestID)

	client, _ = newTestClient(&fakeTransport{requestData: func(models.RemoteRequest) (string, error) {
		return "", errors.New("connection refused")
	}}, testClientConfig())
	_, err = client.RequestData(ctx, models.RemoteRequest{Service: models.ServiceBalance})
	assert.ErrorIs(t, err, utils.ErrRemoteTransport)
}

func TestRequestDataWithFallback(t *testing.T) {
	transport := &fakeTransport{requestData: func(req models.RemoteRequest) (string, error) {
		if req.Service == models.ServiceNomenclature {
			return "", errors.New("unknown service")
		}
		return "id-lower", nil
	}}
	client, _ := newTestClient(transport, testClientConfig())

	id, err := client.RequestDataWithFallback(context.Background(), models.RemoteRequest{Service: models.ServiceNomenclature, All: true})
	require.NoError(t, err)

	assert.Equal(t, "id-lower", id)
	require.Len(t, transport.requests, 2)
	assert.Equal(t, models.RemoteService("nomenclature"), transport.requests[1].Service)
	assert.True(t, transport.requests[1].All)
}

func TestRequestDataWithFallback_LowercaseServiceHasNoAlternative(t *testing.T) {
	transport := &fakeTransport{requestData: func(models.RemoteRequest) (string, error) {
		return "", errors.New("down")
	}}
	client, _ := newTestClient(transport, testClientConfig())

	_, err := client.RequestDataWithFallback(context.Background(), models.RemoteRequest{Service: "nomenclature"})
	assert.ErrorIs(t, err, utils.ErrRemoteTransport)
	assert.Len(t, transport.requests, 1)
}

func TestWaitAndFetch_PollsUntilReady(t *testing.T) {
	payload := "<root>" + strings.Repeat("a", 50) + "</root>"
	transport := &fakeTransport{
		isReady: func(n int) (bool, error) {
			if n == 2 {
				return false, errors.New("flaky")
			}
			return n >= 3, nil
		},
		getData: func(int) (*models.RemoteResponse, error) { return dataResponse(payload), nil },
	}
	client, sleeps := newTestClient(transport, testClientConfig())

	got, err := client.WaitAndFetch(context.Background(), "req-1", models.PollProfile{MaxAttempts: 5, Interval: 2 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, payload, got)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeps.delays)
	assert.Equal(t, 1, transport.fetchN)
}

func TestWaitAndFetch_Timeout(t *testing.T) {
	transport := &fakeTransport{isReady: func(int) (bool, error) { return false, nil }}
	client, sleeps := newTestClient(transport, testClientConfig())

	_, err := client.WaitAndFetch(context.Background(), "req-1", models.PollProfile{MaxAttempts: 3, Interval: time.Second})

	assert.ErrorIs(t, err, utils.ErrRemoteTimeout)
	assert.Equal(t, 3, transport.readyN)
	assert.Len(t, sleeps.delays, 2)
	assert.Zero(t, transport.fetchN)
}

func TestWaitAndFetch_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	transport := &fakeTransport{isReady: func(int) (bool, error) { return false, nil }}
	client, _ := newTestClient(transport, testClientConfig())

	_, err := client.WaitAndFetch(ctx, "req-1", models.PollProfile{MaxAttempts: 10, Interval: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, transport.readyN)
}

func TestFetchData_RetriesTransport(t *testing.T) {
	transport := &fakeTransport{getData: func(n int) (*models.RemoteResponse, error) {
		if n < 3 {
			return nil, errors.New("reset by peer")
		}
		return dataResponse("<ok/>"), nil
	}}
	cfg := testClientConfig()
	cfg.FetchBackoff = 5 * time.Second
	client, sleeps := newTestClient(transport, cfg)

	got, err := client.FetchData(context.Background(), "req-1")
	require.NoError(t, err)

	assert.Equal(t, "<ok/>", got)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps.delays)
}

func TestFetchData_Failures(t *testing.T) {
	transport := &fakeTransport{getData: func(int) (*models.RemoteResponse, error) {
		return nil, errors.New("reset by peer")
	}}
	client, _ := newTestClient(transport, testClientConfig())
	_, err := client.FetchData(context.Background(), "req-1")
	assert.ErrorIs(t, err, utils.ErrRemoteTransport)
	assert.Equal(t, 3, transport.fetchN)

	transport = &fakeTransport{getData: func(int) (*models.RemoteResponse, error) {
		return &models.RemoteResponse{Body: node("GetDataByIDResponse", leaf("return", "short"))}, nil
	}}
	client, _ = newTestClient(transport, testClientConfig())
	_, err = client.FetchData(context.Background(), "req-1")
	assert.ErrorIs(t, err, utils.ErrPayloadNotFound)
}

func TestGetStockAndPrice(t *testing.T) {
	transport := &fakeTransport{
		getData: func(int) (*models.RemoteResponse, error) {
			return dataResponse(`<root><balance><quantity>7</quantity></balance><price><Price>1 250,50</Price></price></root>`), nil
		},
	}
	client, _ := newTestClient(transport, testClientConfig())

	stock, err := client.GetStock(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, stock)

	p, err := client.GetPrice(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1250.5, *p)

	require.Len(t, transport.requests, 2)
	assert.Equal(t, models.RemoteRequest{Service: models.ServiceBalance, Params: "u1"}, transport.requests[0])
	assert.Equal(t, models.RemoteRequest{Service: models.ServicePriceList, Params: "u1"}, transport.requests[1])
}

func TestGetPrice_Missing(t *testing.T) {
	transport := &fakeTransport{
		getData: func(int) (*models.RemoteResponse, error) { return dataResponse(`<root></root>`), nil },
	}
	client, _ := newTestClient(transport, testClientConfig())

	p, err := client.GetPrice(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, p)

	stock, err := client.GetStock(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, stock)
}
