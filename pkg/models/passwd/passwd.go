package passwd

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Constants for cost and max password length (bcrypt rejects more than 72 bytes)
const (
	DefaultCost    = 12
	MinCost        = 10
	MaxPasswordLen = 72 // bcrypt input limit
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password must not be empty")

// Hasher hashes and verifies passwords with salted bcrypt at a fixed cost.
// It is safe for concurrent use.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewHasher returns a Hasher using the given bcrypt cost.
// Costs below MinCost are raised to MinCost, costs above bcrypt.MaxCost are lowered.
func NewHasher(cost int) *Hasher {
	switch {
	case cost < MinCost:
		cost = MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost returns the bcrypt work factor used for new hashes.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt hash of the password.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hashedBytes, err := bcrypt.GenerateFromPassword(bcryptInput(password), h.cost)
	if err != nil {
		return "", err
	}

	return string(hashedBytes), nil
}

// Verify compares a plaintext password with a bcrypt hash.
// Returns true if they match, false otherwise, including when the hash is malformed.
func (h *Hasher) Verify(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password))
	return err == nil
}

// VerifyDummy burns the same amount of work as a real Verify so that a
// lookup miss is not distinguishable from a wrong password by timing.
func (h *Hasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		// error is impossible for a fixed short input at a valid cost
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("timing-equaliser"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, bcryptInput(password))
}

// bcryptInput returns the bytes fed to bcrypt. Inputs over the bcrypt limit
// are first reduced with SHA-256 so every byte of a long password counts.
func bcryptInput(password string) []byte {
	if len(password) <= MaxPasswordLen {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
