package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/upb/stockbot/middleware"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/services/assistant"
	"github.com/upb/stockbot/utils"
	"go.uber.org/zap"
)

// AssistantService is the orchestrator as seen by the HTTP API
type AssistantService interface {
	HandleMessage(ctx context.Context, userID, text string) *assistant.Outcome
	Ask(ctx context.Context, userID, text string) (*assistant.Outcome, error)
	Confirm(ctx context.Context, userID, reply string) (*assistant.Outcome, error)
	Usage(ctx context.Context, userID string) (*models.Usage, error)
	ResolveTicker(text string) (string, error)
}

// AliasLister exposes the alias table
type AliasLister interface {
	List() []models.Alias
}

// HistoryReader reads a user's audit trail
type HistoryReader interface {
	History(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
}

// MessageRequest is one chat turn
type MessageRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// ConfirmationRequest answers a pending analysis
type ConfirmationRequest struct {
	Reply string `json:"reply" validate:"required,max=64"`
}

// ResolveResponse is the result of GET /tickers/resolve
type ResolveResponse struct {
	Text   string `json:"text"`
	Symbol string `json:"symbol"`
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AssistantHandler handles the per-user assistant endpoints
type AssistantHandler struct {
	service AssistantService
	aliases AliasLister
	history HistoryReader
	logger  *zap.Logger
}

// NewAssistantHandler creates a new AssistantHandler
func NewAssistantHandler(service AssistantService, aliases AliasLister, history HistoryReader, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{
		service: service,
		aliases: aliases,
		history: history,
		logger:  logger,
	}
}

// HandleMessage handles POST /api/v1/messages
// The turn is decided by whether an analysis is pending. Failures are part
// of the outcome, so the response is always 200.
func (h *AssistantHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	userID := middleware.GetUserIDFromContext(r.Context())
	out := h.service.HandleMessage(r.Context(), userID, req.Text)
	_ = utils.WriteOK(w, out)
}

// HandleAsk handles POST /api/v1/questions
func (h *AssistantHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	userID := middleware.GetUserIDFromContext(r.Context())
	out, err := h.service.Ask(r.Context(), userID, req.Text)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, out)
}

// HandleConfirm handles POST /api/v1/confirmations
func (h *AssistantHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmationRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	userID := middleware.GetUserIDFromContext(r.Context())
	out, err := h.service.Confirm(r.Context(), userID, req.Reply)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, out)
}

// HandleUsage handles GET /api/v1/usage
func (h *AssistantHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	usage, err := h.service.Usage(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, usage)
}

// HandleResolve handles GET /api/v1/tickers/resolve?text=
func (h *AssistantHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		_ = utils.WriteBadRequest(w, "text query parameter is required", nil)
		return
	}

	symbol, err := h.service.ResolveTicker(text)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, ResolveResponse{Text: text, Symbol: symbol})
}

// HandleListAliases handles GET /api/v1/aliases
func (h *AssistantHandler) HandleListAliases(w http.ResponseWriter, r *http.Request) {
	aliases := h.aliases.List()
	if aliases == nil {
		aliases = []models.Alias{}
	}
	_ = utils.WriteOK(w, aliases)
}

// HandleHistory handles GET /api/v1/history?limit=&offset=
func (h *AssistantHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil || limit < 1 || limit > maxHistoryLimit {
		_ = utils.WriteBadRequest(w, "limit must be between 1 and 100", nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		_ = utils.WriteBadRequest(w, "offset must be a non-negative integer", nil)
		return
	}

	userID := middleware.GetUserIDFromContext(r.Context())
	logs, err := h.history.History(r.Context(), userID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	_ = utils.WriteOK(w, logs)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
