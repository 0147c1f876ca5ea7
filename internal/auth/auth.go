// Package auth guards the HTTP surface with HS256 bearer tokens or static API
// keys. When neither is configured every request is allowed.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
)

// User is the authenticated caller. Its ID keys rate limiting and is recorded
// on every outcome.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	APIKeys     []APIKeyConfig
}

// APIKeyConfig binds a static key to the identity it authenticates as. An
// empty UserID is derived from the key digest.
type APIKeyConfig struct {
	Key    string `yaml:"key" json:"key"`
	UserID string `yaml:"user_id" json:"user_id"`
	Email  string `yaml:"email" json:"email"`
	Name   string `yaml:"name" json:"name"`
}

// apiKey is a configured key. Only the digest is kept.
type apiKey struct {
	digest [sha256.Size]byte
	user   User
}

// Service validates JWTs and API keys.
type Service struct {
	jwt  *JWTService
	keys []apiKey
}

func NewService(cfg Config) *Service {
	s := &Service{}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		s.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	}
	for _, entry := range cfg.APIKeys {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			continue
		}
		k := apiKey{digest: sha256.Sum256([]byte(key))}
		k.user = User{
			ID:    strings.TrimSpace(entry.UserID),
			Email: strings.TrimSpace(entry.Email),
			Name:  strings.TrimSpace(entry.Name),
		}
		if k.user.ID == "" {
			k.user.ID = "api_" + hex.EncodeToString(k.digest[:8])
		}
		s.keys = append(s.keys, k)
	}
	return s
}

// Enabled reports whether requests must authenticate.
func (s *Service) Enabled() bool {
	return s != nil && (s.jwt != nil || len(s.keys) > 0)
}

func (s *Service) GenerateJWT(user *User) (string, error) {
	if s == nil || s.jwt == nil {
		return "", ErrAuthDisabled
	}
	return s.jwt.Generate(user)
}

func (s *Service) ValidateJWT(token string) (*User, error) {
	if s == nil || s.jwt == nil {
		return nil, ErrAuthDisabled
	}
	return s.jwt.Validate(token)
}

// ValidateAPIKey returns the identity bound to key. Digests of equal length
// are compared against every configured key so timing does not reveal which
// one matched.
func (s *Service) ValidateAPIKey(key string) (*User, error) {
	if s == nil || len(s.keys) == 0 {
		return nil, ErrAuthDisabled
	}
	digest := sha256.Sum256([]byte(strings.TrimSpace(key)))
	match := -1
	for i := range s.keys {
		if subtle.ConstantTimeCompare(digest[:], s.keys[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return nil, ErrInvalidKey
	}
	user := s.keys[match].user
	return &user, nil
}
