package service

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("missing token")
)

// TokenAuth checks API tokens against a single bcrypt hash. A zero TokenAuth
// accepts every request.
type TokenAuth struct {
	hash []byte
}

func NewTokenAuth(hash string) (*TokenAuth, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &TokenAuth{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("API token hash is not a bcrypt hash: %w", err)
	}
	return &TokenAuth{hash: []byte(hash)}, nil
}

func (a *TokenAuth) Enabled() bool {
	return a != nil && len(a.hash) > 0
}

func (a *TokenAuth) Verify(token string) error {
	if !a.Enabled() {
		return nil
	}
	if token == "" {
		return ErrMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// HashToken produces the value to put in API_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if len(token) < 16 {
		return "", fmt.Errorf("token must be at least 16 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
