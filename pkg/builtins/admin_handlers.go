package builtins

import (
	"net/http"
	"strconv"

	"github.com/Ryan-Har/authgate/api"
)

const (
	defaultLoginsLimit = 50
	maxLoginsLimit     = 500
)

func (h *Handler) handleAdminAccountsGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := h.auth.ListAccounts(r.Context())
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.AccountsResponse{Accounts: accounts})
	}
}

// handleAdminLoginsGet lists recent login events, newest first. The optional
// limit query parameter is clamped to maxLoginsLimit.
func (h *Handler) handleAdminLoginsGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLoginsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				api.ReturnError(w, h.log, func() (int, api.ErrorResponse) {
					return api.BadRequestValidation("limit", "must be a positive integer")
				})
				return
			}
			limit = min(n, maxLoginsLimit)
		}

		logins, err := h.auth.ListLogins(r.Context(), limit)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.LoginsResponse{Logins: logins})
	}
}
