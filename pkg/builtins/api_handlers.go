package builtins

import (
	"errors"
	"net/http"
	"time"

	"github.com/Ryan-Har/authgate/api"
	"github.com/Ryan-Har/authgate/pkg/auth"
	"github.com/Ryan-Har/authgate/pkg/enforcer"
)

func (h *Handler) handleAPIMeGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// the enforcer has already rejected anonymous callers
		sess, ok := enforcer.SessionFromContext(r.Context())
		if !ok {
			api.ReturnError(w, h.log, api.Unauthorized)
			return
		}

		resp := api.MeResponse{
			User:      sess.Identity,
			IsAdmin:   h.auth.IsAdmin(&sess.Identity),
			IP:        sess.IPAddress,
			ExpiresAt: sess.ExpiresAt,
		}

		acct, err := h.auth.Account(r.Context(), sess.Identity.ID)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		resp.LastLocation = acct.LastLocation

		api.RespondJSONAndLog(w, h.log, http.StatusOK, resp)
	}
}

// handleAPITokenPost issues a bearer token bound to the caller's session.
// The token stops working when the session ends.
func (h *Handler) handleAPITokenPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := enforcer.SessionFromContext(r.Context())
		if !ok {
			api.ReturnError(w, h.log, api.Unauthorized)
			return
		}

		token, expiresAt, err := h.auth.IssueToken(sess)
		if err != nil {
			if errors.Is(err, auth.ErrTokensDisabled) {
				api.ReturnError(w, h.log, func() (int, api.ErrorResponse) {
					return api.NotEnabled("api tokens are not enabled")
				})
				return
			}
			h.respondServiceError(w, r, err)
			return
		}

		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.TokenResponse{
			ExpiresIn: int64(time.Until(expiresAt).Seconds()),
			Token:     token,
		})
	}
}
