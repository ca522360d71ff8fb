package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/af-corp/querysmith/internal/pipeline"
)

// StatusContentBlocked is returned when the guard chain refuses a request.
const StatusContentBlocked = http.StatusUnavailableForLegalReasons

// APIError is the envelope every error response uses.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

type kindMapping struct {
	status  int
	errType string
}

var kindStatus = map[pipeline.Kind]kindMapping{
	pipeline.KindInvalidMode:        {http.StatusBadRequest, "invalid_request_error"},
	pipeline.KindMissingInput:       {http.StatusBadRequest, "invalid_request_error"},
	pipeline.KindSchemaRequired:     {http.StatusUnprocessableEntity, "invalid_request_error"},
	pipeline.KindEmptyResult:        {http.StatusUnprocessableEntity, "generation_error"},
	pipeline.KindQuotaExceeded:      {http.StatusTooManyRequests, "quota_error"},
	pipeline.KindPayloadUnparseable: {http.StatusBadGateway, "upstream_error"},
	pipeline.KindUpstreamCallFailed: {http.StatusBadGateway, "upstream_error"},
	pipeline.KindContentBlocked:     {StatusContentBlocked, "content_filter_error"},
	pipeline.KindDependency:         {http.StatusServiceUnavailable, "server_error"},
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

// WritePipelineError writes a classified pipeline failure. Only the kind's
// fixed user message reaches the client; anything else becomes a 500.
func WritePipelineError(w http.ResponseWriter, requestID string, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		WriteInternalError(w, requestID, "Internal error.")
		return
	}
	m, ok := kindStatus[pe.Kind]
	if !ok {
		WriteInternalError(w, requestID, "Internal error.")
		return
	}
	WriteError(w, requestID, m.status, m.errType, string(pe.Kind), pe.UserMessage())
}

// StatusForKind returns the HTTP status a pipeline error kind maps to.
func StatusForKind(kind pipeline.Kind) int {
	if m, ok := kindStatus[kind]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_api_key", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteNotFoundError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusNotFound, "invalid_request_error", "not_found", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "service_unavailable", message)
}

// WriteJSON writes v with the given status and the request id header.
func WriteJSON(w http.ResponseWriter, requestID string, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
