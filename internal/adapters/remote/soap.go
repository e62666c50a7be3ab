package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"golang.org/x/time/rate"
)

const soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// Config параметры подключения к веб-сервису учетной системы
type Config struct {
	// Endpoint адрес WSDL. Суффикс ?wsdl отбрасывается
	Endpoint           string
	Namespace          string
	User               string
	Password           string
	InsecureSkipVerify bool
	Timeout            time.Duration
	LargeDataTimeout   time.Duration
	// RateLimitPerMinute 0 отключает ограничение
	RateLimitPerMinute int
	UserAgent          string
}

// SOAPTransport реализация RemoteTransport поверх SOAP 1.1
type SOAPTransport struct {
	cfg         Config
	endpoint    string
	client      *http.Client
	largeClient *http.Client
	limiter     *rate.Limiter
	logger      interfaces.LoggerPort
}

// NewSOAPTransport создает транспорт
func NewSOAPTransport(cfg Config, logger interfaces.LoggerPort) (*SOAPTransport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote endpoint is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.LargeDataTimeout <= 0 {
		cfg.LargeDataTimeout = 20 * time.Minute
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "catalog-sync/1.0"
	}

	endpoint := cfg.Endpoint
	if i := strings.Index(strings.ToLower(endpoint), "?wsdl"); i >= 0 {
		endpoint = endpoint[:i]
	}

	t := &SOAPTransport{
		cfg:         cfg,
		endpoint:    endpoint,
		client:      newHTTPClient(cfg.Timeout, cfg.InsecureSkipVerify),
		largeClient: newHTTPClient(cfg.LargeDataTimeout, cfg.InsecureSkipVerify),
		logger:      logger,
	}
	if cfg.RateLimitPerMinute > 0 {
		t.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitPerMinute)), cfg.RateLimitPerMinute)
	}
	return t, nil
}

func newHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// IsLargeRequestID true для идентификаторов вида UUID. Такие ответы бывают очень большими
func IsLargeRequestID(id string) bool {
	return strings.Contains(id, "-") && len(id) > 30
}

type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	NS      string   `xml:"xmlns:ns,attr"`
	Body    struct {
		Content interface{}
	} `xml:"soap:Body"`
}

type requestDataCall struct {
	XMLName              xml.Name `xml:"ns:requestData"`
	Service              string   `xml:"ns:Service"`
	All                  bool     `xml:"ns:all"`
	AdditionalParameters string   `xml:"ns:additionalParameters"`
	Compress             bool     `xml:"ns:compress"`
}

type isReadyCall struct {
	XMLName xml.Name `xml:"ns:isReady"`
	ID      string   `xml:"ns:ID"`
}

type getDataByIDCall struct {
	XMLName xml.Name `xml:"ns:getDataByID"`
	ID      string   `xml:"ns:ID"`
}

// RequestData ставит запрос и возвращает его идентификатор
func (t *SOAPTransport) RequestData(ctx context.Context, req models.RemoteRequest) (string, error) {
	resp, err := t.call(ctx, t.client, "requestData", requestDataCall{
		Service:              string(req.Service),
		All:                  req.All,
		AdditionalParameters: req.Params,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text(resp.Body.Child("return"))), nil
}

// IsReady проверяет готовность данных
func (t *SOAPTransport) IsReady(ctx context.Context, requestID string) (bool, error) {
	resp, err := t.call(ctx, t.client, "isReady", isReadyCall{ID: requestID})
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(text(resp.Body.Child("return"))), "true"), nil
}

// GetDataByID забирает ответ целиком
func (t *SOAPTransport) GetDataByID(ctx context.Context, requestID string) (*models.RemoteResponse, error) {
	client := t.client
	if IsLargeRequestID(requestID) {
		client = t.largeClient
	}
	return t.call(ctx, client, "getDataByID", getDataByIDCall{ID: requestID})
}

func (t *SOAPTransport) call(ctx context.Context, client *http.Client, operation string, payload interface{}) (*models.RemoteResponse, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	env := envelope{SoapNS: soapEnvelopeNS, NS: t.cfg.Namespace}
	env.Body.Content = payload
	body, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", operation, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", fmt.Sprintf("%q", t.cfg.Namespace+"#"+operation))
	httpReq.Header.Set("User-Agent", t.cfg.UserAgent)
	if t.cfg.User != "" {
		httpReq.SetBasicAuth(t.cfg.User, t.cfg.Password)
	}

	started := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", operation, err)
	}

	t.logger.DebugWithContext(ctx, "SOAP вызов выполнен",
		interfaces.LogField{Key: "operation", Value: operation},
		interfaces.LogField{Key: "status", Value: httpResp.StatusCode},
		interfaces.LogField{Key: "bytes", Value: len(raw)},
		interfaces.LogField{Key: "duration", Value: time.Since(started).String()},
	)

	resp, parseErr := parseEnvelope(raw)
	if parseErr == nil {
		fault := resp.Body.Child("Fault")
		if fault == nil && resp.Body != nil && strings.EqualFold(resp.Body.Name, "Fault") {
			fault = resp.Body
		}
		if fault != nil {
			return nil, fmt.Errorf("%s: soap fault: %s", operation, strings.TrimSpace(text(fault.Child("faultstring"))))
		}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", operation, httpResp.StatusCode)
	}
	if parseErr != nil {
		// тело не разобралось, но извлечение по сырому конверту еще возможно
		return &models.RemoteResponse{Raw: string(raw)}, nil
	}
	return resp, nil
}

func text(n *models.ResponseNode) string {
	if n == nil {
		return ""
	}
	return n.Text
}

// parseEnvelope разбирает конверт и возвращает первый элемент внутри Body
func parseEnvelope(raw []byte) (*models.RemoteResponse, error) {
	root, err := ParseTree(raw)
	if err != nil {
		return nil, err
	}
	body := root.Child("Body")
	if body == nil {
		return nil, fmt.Errorf("soap body not found")
	}
	var content *models.ResponseNode
	if len(body.Children) > 0 {
		content = body.Children[0]
	}
	return &models.RemoteResponse{Body: content, Raw: string(raw)}, nil
}
