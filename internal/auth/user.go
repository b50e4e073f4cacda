package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/email"
	"github.com/stefchosov/walkdata/internal/krypto"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 32
)

// ErrInvalidUsername indicates a username does not meet the requirements.
var ErrInvalidUsername = errors.New("invalid username")

// User contains the data for a user account.
type User struct {
	ID           uuid.UUID
	Username     Username
	Name         string
	Email        email.Address
	PasswordHash krypto.Argon2Hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Username identifies a user for login purposes. Usernames are unique
// regardless of case.
type Username string

// ParseUsername checks if the raw string is an acceptable username:
// 3 to 32 characters, letters, digits, dashes and underscores only.
func ParseUsername(raw string) (Username, error) {
	trimmed := strings.TrimSpace(raw)

	if len(trimmed) < minUsernameLen || len(trimmed) > maxUsernameLen {
		return Username(""), ErrInvalidUsername
	}

	for _, r := range trimmed {
		if !validUsernameRune(r) {
			return Username(""), ErrInvalidUsername
		}
	}

	return Username(trimmed), nil
}

func validUsernameRune(r rune) bool {
	if r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
		return true
	}

	return false
}

func (u *Username) UnmarshalText(text []byte) error {
	username, err := ParseUsername(string(text))
	if err != nil {
		return err
	}

	*u = username

	return nil
}
