package handlers

import (
	"net/http"

	"github.com/upb/identity-gateway/middleware"
	"github.com/upb/identity-gateway/utils"
)

// StatusResponse reports service identity plus whether the caller
// authenticated. Served behind optional auth, so both states are valid.
type StatusResponse struct {
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
}

// StatusHandler handles GET /api/v1/status.
func StatusHandler(environment string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Service:     "identity-gateway",
			Environment: environment,
		}

		if auth := middleware.GetAuthFromContext(r.Context()); auth != nil && !auth.Anonymous() {
			resp.Authenticated = true
			resp.UserID = auth.UserID.String()
		}

		_ = utils.WriteOK(w, resp)
	}
}
