package handlers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/upb/stockbot/middleware"
	"github.com/upb/stockbot/models"
	"github.com/upb/stockbot/utils"
	"go.uber.org/zap"
)

// AliasEditor edits the alias table
type AliasEditor interface {
	Add(ctx context.Context, actorID, name, symbol string) (models.Alias, error)
	Remove(ctx context.Context, actorID, name string) (models.Alias, error)
}

// AccessManager edits the allow-list
type AccessManager interface {
	List(ctx context.Context) ([]*models.AccessEntry, error)
	Grant(ctx context.Context, actorID, targetID string) (bool, error)
	Revoke(ctx context.Context, actorID, targetID string) (bool, error)
}

// AliasRequest binds a company name to a ticker symbol
type AliasRequest struct {
	Name   string `json:"name" validate:"required,max=64"`
	Symbol string `json:"symbol" validate:"required,symbol"`
}

// AccessResponse reports the result of an allow-list edit
type AccessResponse struct {
	UserID  string `json:"user_id"`
	Allowed bool   `json:"allowed"`
	Changed bool   `json:"changed"`
}

// AdminHandler handles the admin-only endpoints
type AdminHandler struct {
	aliases AliasEditor
	access  AccessManager
	logger  *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(aliases AliasEditor, access AccessManager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		aliases: aliases,
		access:  access,
		logger:  logger,
	}
}

// HandleAddAlias handles POST /api/v1/admin/aliases
func (h *AdminHandler) HandleAddAlias(w http.ResponseWriter, r *http.Request) {
	var req AliasRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	actorID := middleware.GetUserIDFromContext(r.Context())
	alias, err := h.aliases.Add(r.Context(), actorID, req.Name, req.Symbol)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteCreated(w, alias)
}

// HandleRemoveAlias handles DELETE /api/v1/admin/aliases/{name}
func (h *AdminHandler) HandleRemoveAlias(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		_ = utils.WriteBadRequest(w, "invalid alias name", nil)
		return
	}

	actorID := middleware.GetUserIDFromContext(r.Context())
	alias, err := h.aliases.Remove(r.Context(), actorID, name)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, alias)
}

// HandleListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	entries, err := h.access.List(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if entries == nil {
		entries = []*models.AccessEntry{}
	}
	_ = utils.WriteOK(w, entries)
}

// HandleGrantUser handles POST /api/v1/admin/users/{id}
func (h *AdminHandler) HandleGrantUser(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	actorID := middleware.GetUserIDFromContext(r.Context())

	changed, err := h.access.Grant(r.Context(), actorID, targetID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	response := AccessResponse{UserID: targetID, Allowed: true, Changed: changed}
	if changed {
		_ = utils.WriteCreated(w, response)
		return
	}
	_ = utils.WriteOK(w, response)
}

// HandleRevokeUser handles DELETE /api/v1/admin/users/{id}
func (h *AdminHandler) HandleRevokeUser(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	actorID := middleware.GetUserIDFromContext(r.Context())

	changed, err := h.access.Revoke(r.Context(), actorID, targetID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if !changed {
		_ = utils.WriteNotFound(w, "user is not on the allow-list")
		return
	}
	_ = utils.WriteOK(w, AccessResponse{UserID: targetID, Allowed: false, Changed: true})
}
