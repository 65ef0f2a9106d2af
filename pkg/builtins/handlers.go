package builtins

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/Ryan-Har/authgate/api"
	"github.com/Ryan-Har/authgate/internal/logutil"
	"github.com/Ryan-Har/authgate/pkg/auth"
	"github.com/Ryan-Har/authgate/pkg/enforcer"
	"github.com/Ryan-Har/authgate/pkg/models"
)

const maxFormBytes = 1 << 20

type Handler struct {
	auth     *auth.Service
	enforcer *enforcer.Enforcer
	log      *slog.Logger
}

func newHandler(logger *slog.Logger, authService *auth.Service, enforcer *enforcer.Enforcer) *Handler {
	return &Handler{
		auth:     authService,
		enforcer: enforcer,
		log:      logger,
	}
}

func (h *Handler) handleRegisterPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.RegisterRequest
		if err := decodeRequest(w, r, &req, func() {
			req.Username = r.PostFormValue("username")
			req.Email = r.PostFormValue("email")
			req.Password = r.PostFormValue("password")
		}); err != nil {
			h.log.Debug("invalid register request", "err", err)
			api.ReturnError(w, h.log, api.BadRequestInvalidJSON)
			return
		}

		id, err := h.auth.Register(r.Context(), auth.RegisterParams{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}

		api.RespondJSONAndLog(w, h.log, http.StatusCreated, api.RegisterResponse{ID: id.String()})
	}
}

func (h *Handler) handleLoginPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		if err := decodeRequest(w, r, &req, func() {
			req.Username = r.PostFormValue("username")
			req.Password = r.PostFormValue("password")
		}); err != nil {
			h.log.Debug("invalid login request", "err", err)
			api.ReturnError(w, h.log, api.BadRequestInvalidJSON)
			return
		}

		sess, err := h.auth.Login(r.Context(), auth.LoginParams{
			Username:  req.Username,
			Password:  req.Password,
			IP:        api.ClientIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}

		h.enforcer.SetSessionCookie(w, sess)
		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.LoginResponse{
			User:      sess.Identity,
			ExpiresAt: sess.ExpiresAt,
		})
	}
}

// handleLogoutPost always succeeds and always clears the cookie, even when
// the session is already gone.
func (h *Handler) handleLogoutPost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.auth.Logout(r.Context(), h.enforcer.SessionID(r))
		h.enforcer.ExpireCookie(w)
		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.StatusResponse{Status: "logged out"})
	}
}

func (h *Handler) handleHealthGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.auth.Ping(r.Context()); err != nil {
			h.log.Error("health check failed", "err", err)
			api.RespondJSONAndLog(w, h.log, http.StatusServiceUnavailable, api.StatusResponse{Status: "unavailable"})
			return
		}
		api.RespondJSONAndLog(w, h.log, http.StatusOK, api.StatusResponse{Status: "ok"})
	}
}

// respondServiceError maps an auth service error to its response. Anything
// that is not part of the public taxonomy is logged and hidden.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if !isPublicError(err) {
		h.log.Error("request failed", append(logutil.RequestFields(r), "err", err)...)
	}
	api.ReturnError(w, h.log, api.FromError(err))
}

func isPublicError(err error) bool {
	var vErr *models.ValidationError
	return errors.As(err, &vErr) ||
		errors.Is(err, models.ErrDuplicate) ||
		errors.Is(err, models.ErrInvalidCredentials) ||
		errors.Is(err, models.ErrUnauthorized) ||
		errors.Is(err, models.ErrNotFound)
}

// decodeRequest reads a JSON body into dst, or calls fromForm after parsing a
// url-encoded or multipart form.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any, fromForm func()) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			return err
		}
		fromForm()
		return nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormBytes); err != nil {
			return err
		}
		fromForm()
		return nil
	default:
		return api.DecodeJSON(w, r, dst)
	}
}
