package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/models"
	"github.com/upb/identity-gateway/repositories"
	"github.com/upb/identity-gateway/services"
	"github.com/upb/identity-gateway/services/account"
	"github.com/upb/identity-gateway/utils"
	"go.uber.org/zap"
)

// CurrentUserResponse is the response body for GET /api/v1/users/me
type CurrentUserResponse struct {
	ID          string                  `json:"id"`
	Email       string                  `json:"email"`
	Name        string                  `json:"name"`
	Roles       []string                `json:"roles"`
	Permissions []string                `json:"permissions"`
	Tier        models.SubscriptionTier `json:"subscription_tier"`
}

// UserHandler handles identity-facing HTTP requests.
type UserHandler struct {
	users    repositories.UserRepository
	accounts *account.Service
	logger   *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repositories.UserRepository, accounts *account.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:    users,
		accounts: accounts,
		logger:   logger,
	}
}

// HandleMe handles GET /api/v1/users/me. The authorization context is
// already resolved; no second store round-trip.
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuthFromContext(r.Context())
	if auth == nil || auth.Anonymous() {
		_ = utils.WriteErrorCode(w, http.StatusUnauthorized, "MISSING_AUTH_HEADER", "authentication required")
		return
	}

	_ = utils.WriteOK(w, CurrentUserResponse{
		ID:          auth.UserID.String(),
		Email:       auth.Email,
		Name:        auth.Name,
		Roles:       auth.Roles,
		Permissions: auth.Permissions,
		Tier:        auth.Tier,
	})
}

// ListUsersQuery holds the validated pagination parameters for the admin
// user listing.
type ListUsersQuery struct {
	Limit  int `validate:"min=1,max=200"`
	Offset int `validate:"min=0"`
}

// HandleList handles GET /api/v1/admin/users with limit/offset pagination.
// Admin-only; the route guard enforces that.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := ListUsersQuery{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if err := utils.ValidateStruct(query); err != nil {
		_ = utils.WriteBadRequest(w, err.Error())
		return
	}

	users, err := h.users.List(r.Context(), query.Limit, query.Offset)
	if err != nil {
		h.logger.Error("user listing failed", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	_ = utils.WriteOK(w, users)
}

// HandleDeleteAccount handles DELETE /api/v1/users/me: the caller removes
// their own account, provider side first.
func (h *UserHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	auth := middleware.GetAuthFromContext(r.Context())
	if auth == nil || auth.Anonymous() {
		_ = utils.WriteErrorCode(w, http.StatusUnauthorized, "MISSING_AUTH_HEADER", "authentication required")
		return
	}

	ip := r.RemoteAddr
	err := h.accounts.Delete(r.Context(), auth.UserID, ip, r.UserAgent())
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			_ = utils.WriteErrorCode(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
			return
		}
		h.logger.Error("account deletion failed",
			zap.String("user_id", auth.UserID.String()), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	utils.WriteNoContent(w)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
