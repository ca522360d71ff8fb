package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/af-corp/querysmith/internal/auth"
	"github.com/af-corp/querysmith/internal/config"
	"github.com/af-corp/querysmith/internal/httputil"
	"github.com/af-corp/querysmith/internal/store"
	"github.com/af-corp/querysmith/internal/types"
)

const maxBodyBytes = 1 << 20

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req *types.Request) (*types.Result, error)
}

type HistoryLister interface {
	List(ctx context.Context, userID string, limit int) ([]types.HistoryRecord, error)
}

// SchemaService reads and replaces a user's schema context.
type SchemaService interface {
	Get(ctx context.Context, userID string) (types.SchemaContext, error)
	Put(ctx context.Context, userID, text string) (types.SchemaContext, error)
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	runner  Runner
	history HistoryLister
	schemas SchemaService
	usage   UsageReader
	cfg     func() config.PipelineConfig
	now     func() time.Time
}

func NewHandler(runner Runner, history HistoryLister, schemas SchemaService, usage UsageReader, cfg func() config.PipelineConfig) *Handler {
	return &Handler{runner: runner, history: history, schemas: schemas, usage: usage, cfg: cfg, now: time.Now}
}

type sqlRequest struct {
	Mode   string `json:"mode"`
	Prompt string `json:"prompt"`
	SQL    string `json:"sql"`
}

// RunSQL handles POST /v1/sql
func (h *Handler) RunSQL(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var body sqlRequest
	if !decodeBody(w, r, reqID, &body) {
		return
	}

	if limit := h.cfg().MaxInputChars; limit > 0 {
		if n := utf8.RuneCountInString(body.Prompt) + utf8.RuneCountInString(body.SQL); n > limit {
			httputil.WriteBadRequestError(w, reqID, "Input exceeds "+strconv.Itoa(limit)+" characters")
			return
		}
	}

	req := &types.Request{
		RequestID:  reqID,
		UserID:     authInfo.UserID,
		APIKeyID:   authInfo.KeyID,
		Mode:       types.Mode(body.Mode),
		Prompt:     body.Prompt,
		SQL:        body.SQL,
		ReceivedAt: receivedAt,
		DailyQuota: authInfo.Quota(),
	}

	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		httputil.WritePipelineError(w, reqID, err)
		return
	}

	httputil.WriteJSON(w, reqID, http.StatusOK, res)
}

type historyResponse struct {
	Object string                `json:"object"`
	Data   []types.HistoryRecord `json:"data"`
}

// ListHistory handles GET /v1/history
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteBadRequestError(w, reqID, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.history.List(r.Context(), authInfo.UserID, limit)
	if err != nil {
		slog.Error("list history failed", "request_id", reqID, "user_id", authInfo.UserID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "History is temporarily unavailable")
		return
	}
	if records == nil {
		records = []types.HistoryRecord{}
	}

	httputil.WriteJSON(w, reqID, http.StatusOK, historyResponse{Object: "list", Data: records})
}

// GetSchema handles GET /v1/schema
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	sc, err := h.schemas.Get(r.Context(), authInfo.UserID)
	if errors.Is(err, store.ErrNotFound) {
		httputil.WriteNotFoundError(w, reqID, "No schema saved")
		return
	}
	if err != nil {
		slog.Error("get schema failed", "request_id", reqID, "user_id", authInfo.UserID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Schema store is temporarily unavailable")
		return
	}

	httputil.WriteJSON(w, reqID, http.StatusOK, sc)
}

type schemaRequest struct {
	Text string `json:"text"`
}

// PutSchema handles PUT /v1/schema
func (h *Handler) PutSchema(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var body schemaRequest
	if !decodeBody(w, r, reqID, &body) {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		httputil.WriteBadRequestError(w, reqID, "text is required")
		return
	}

	sc, err := h.schemas.Put(r.Context(), authInfo.UserID, body.Text)
	if err != nil {
		slog.Error("put schema failed", "request_id", reqID, "user_id", authInfo.UserID, "error", err)
		httputil.WriteServiceUnavailableError(w, reqID, "Schema store is temporarily unavailable")
		return
	}

	slog.Info("schema saved", "request_id", reqID, "user_id", authInfo.UserID, "chars", utf8.RuneCountInString(sc.Text))
	httputil.WriteJSON(w, reqID, http.StatusOK, sc)
}

type modeObject struct {
	ID          string `json:"id"`
	Input       string `json:"input"`
	Output      string `json:"output"`
	UsesModel   bool   `json:"uses_model"`
	NeedsSchema bool   `json:"needs_schema"`
}

type modeListResponse struct {
	Object string       `json:"object"`
	Data   []modeObject `json:"data"`
}

// ListModes handles GET /v1/modes
func (h *Handler) ListModes(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var modes []modeObject
	for _, m := range types.Modes() {
		obj := modeObject{
			ID:          string(m),
			Input:       "sql",
			Output:      "sql",
			UsesModel:   m.CallsModel(),
			NeedsSchema: m == types.ModeGenerate,
		}
		if m.TakesPrompt() {
			obj.Input = "prompt"
		}
		if !m.ProducesSQL() {
			obj.Output = "explanation"
		}
		modes = append(modes, obj)
	}

	httputil.WriteJSON(w, reqID, http.StatusOK, modeListResponse{Object: "list", Data: modes})
}

func decodeBody(w http.ResponseWriter, r *http.Request, reqID string, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON body")
		return false
	}
	return true
}
