package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/utils"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/go-chi/render"
)

// errorResponse представляет структуру ответа с ошибкой
type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// response представляет структуру успешного ответа
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// порядок важен: первое совпадение по errors.Is
var errorMappings = []errorMapping{
	{utils.ErrBatchInProgress, http.StatusConflict, "batch_in_progress"},
	{utils.ErrBatchBusy, http.StatusConflict, "batch_busy"},
	{utils.ErrConcurrentRun, http.StatusConflict, "concurrent_run"},
	{utils.ErrJobBusy, http.StatusConflict, "job_busy"},
	{utils.ErrEmptyCatalog, http.StatusConflict, "empty_catalog"},
	{utils.ErrInvalidCursor, http.StatusBadRequest, "invalid_cursor"},
	{utils.ErrInvalidBatch, http.StatusBadRequest, "invalid_batch"},
	{utils.ErrUnknownJobKind, http.StatusBadRequest, "unknown_job_kind"},
	{utils.ErrNotFound, http.StatusNotFound, "not_found"},
	{utils.ErrRemoteTimeout, http.StatusGatewayTimeout, "remote_timeout"},
	{utils.ErrRemoteTransport, http.StatusBadGateway, "remote_transport"},
	{utils.ErrNoRequestID, http.StatusBadGateway, "remote_transport"},
	{utils.ErrPayloadNotFound, http.StatusBadGateway, "payload_not_found"},
	{utils.ErrParse, http.StatusUnprocessableEntity, "parse_error"},
	{utils.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{utils.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeOK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, response{Success: true, Data: data})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{
		Error:   "bad_request",
		Code:    http.StatusBadRequest,
		Message: message,
	})
}

// writeError переводит доменную ошибку в HTTP-ответ
func writeError(w http.ResponseWriter, r *http.Request, logger interfaces.LoggerPort, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			render.Status(r, m.status)
			render.JSON(w, r, errorResponse{Error: m.code, Code: m.status, Message: err.Error()})
			return
		}
	}

	logger.ErrorWithContext(r.Context(), "Ошибка обработки запроса",
		interfaces.LogField{Key: "path", Value: r.URL.Path},
		interfaces.LogField{Key: "error", Value: err.Error()},
	)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, errorResponse{
		Error:   "internal_error",
		Code:    http.StatusInternalServerError,
		Message: "Внутренняя ошибка сервера",
	})
}

// decodeOptional разбирает тело, пустое тело не ошибка
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
