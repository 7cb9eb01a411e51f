package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrAdminDisabled = errors.New("admin token not configured")

// HashAdminToken returns the bcrypt hash to place in ARSHARE_ADMIN_TOKEN_HASH.
func HashAdminToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", errors.New("admin token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin token: %w", err)
	}
	return string(hash), nil
}

// CheckAdminToken compares a presented bearer token against the configured hash.
func CheckAdminToken(hash, token string) error {
	if strings.TrimSpace(hash) == "" {
		return ErrAdminDisabled
	}
	if token == "" {
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}
