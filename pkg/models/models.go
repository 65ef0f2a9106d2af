package models

import (
	"time"

	"github.com/google/uuid"
)

// CreateAccountParams holds the values needed to insert a new account.
// PasswordHash must already be hashed, stores never see plaintext.
type CreateAccountParams struct {
	Username     string  `json:"username"`
	Email        *string `json:"email"`
	PasswordHash string  `json:"-"`
}

// Account is a registered principal as held by the credential store.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLoginIP  *string   `json:"lastLoginIp,omitempty"`
	LastLocation *string   `json:"lastLocation,omitempty"`
}

// Identity returns the session-safe snapshot of the account.
func (a *Account) Identity() Identity {
	return Identity{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
	}
}

// Identity is what a session knows about the authenticated account.
// It never carries the password hash.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    *string   `json:"email,omitempty"`
}

// LoginEvent is one row of the append-only login audit trail.
type LoginEvent struct {
	ID        int64     `json:"id"`
	AccountID uuid.UUID `json:"accountId"`
	Username  string    `json:"username,omitempty"` // populated on reads only
	IP        string    `json:"ip"`
	Location  string    `json:"location"`
	Device    string    `json:"device"`
	LoggedAt  time.Time `json:"loggedAt"`
}
