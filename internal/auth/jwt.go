package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped on every token and required on validation.
const Issuer = "scholar"

// JWTService signs and verifies HS256 tokens.
type JWTService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWTService returns a signer whose tokens live for expiry. A
// non-positive expiry issues tokens without an exp claim.
func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// Claims carry the user profile next to the registered claims. The subject is
// the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) user() *User {
	return &User{
		ID:    c.Subject,
		Email: strings.TrimSpace(c.Email),
		Name:  strings.TrimSpace(c.Name),
	}
}

func (s *JWTService) ready() bool {
	return s != nil && len(s.secret) > 0
}

func (s *JWTService) Generate(user *User) (string, error) {
	if !s.ready() {
		return "", ErrAuthDisabled
	}
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", errors.New("user id required")
	}

	issued := s.now()
	claims := &Claims{
		Email: strings.TrimSpace(user.Email),
		Name:  strings.TrimSpace(user.Name),
	}
	claims.Issuer = Issuer
	claims.Subject = strings.TrimSpace(user.ID)
	claims.IssuedAt = jwt.NewNumericDate(issued)
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issued.Add(s.expiry))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate verifies signature, algorithm, issuer and expiry, then returns the
// user the token was issued to.
func (s *JWTService) Validate(token string) (*User, error) {
	if !s.ready() {
		return nil, ErrAuthDisabled
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.user(), nil
}
