package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Ryan-Har/authgate/pkg/models"
	"github.com/goccy/go-json"
)

// RespondJSONAndLog is a convenience wrapper around RespondJSON that also logs any encoding errors.
func RespondJSONAndLog(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	if err := RespondJSON(w, status, payload); err != nil {
		logger.Debug("failed to respond with JSON", "err", err)
	}
}

// RespondJSON sets the status code and Content-Type header and encodes payload.
//
// Returns an error only if JSON encoding fails. In most cases, this happens
// if the response writer is closed or the payload is not serializable.
func RespondJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// DecodeJSON reads a single JSON object from the request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ClientIP returns the first address in X-Forwarded-For when present,
// otherwise the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return RemoteIP(r)
}

// RemoteIP returns the host part of RemoteAddr, ignoring any forwarding headers.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RegisterRequest defines model for RegisterRequest.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	ID string `json:"id"`
}

// LoginRequest defines model for LoginRequest.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User      models.Identity `json:"user"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// MeResponse describes the caller and the session they are using.
type MeResponse struct {
	User         models.Identity `json:"user"`
	IsAdmin      bool            `json:"isAdmin"`
	IP           *string         `json:"ip,omitempty"`
	LastLocation *string         `json:"lastLocation,omitempty"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

type TokenResponse struct {
	ExpiresIn int64  `json:"expiresIn"`
	Token     string `json:"token"`
}

type AccountsResponse struct {
	Accounts []*models.Account `json:"accounts"`
}

type LoginsResponse struct {
	Logins []*models.LoginEvent `json:"logins"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
