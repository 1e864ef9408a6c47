package handlers

import (
	"net/http"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
)

// TenantContextResponse echoes the tenant scope the key resolved to.
type TenantContextResponse struct {
	TenantID    string   `json:"tenant_id"`
	Permissions []string `json:"permissions"`
}

// TenantHandler serves the tenant-key data surface.
type TenantHandler struct {
	logger *zap.Logger
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(logger *zap.Logger) *TenantHandler {
	return &TenantHandler{logger: logger}
}

// HandleContext handles GET /api/v1/tenant/context behind the key guard:
// returns the tenant scope the presented key grants.
func (h *TenantHandler) HandleContext(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuthFromContext(r.Context())
	if auth == nil || auth.TenantID == nil {
		_ = utils.WriteErrorCode(w, http.StatusUnauthorized, "API_KEY_REQUIRED", "api key required")
		return
	}

	_ = utils.WriteOK(w, TenantContextResponse{
		TenantID:    auth.TenantID.String(),
		Permissions: auth.TenantPermissions,
	})
}
