package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTServiceGenerateValidate(t *testing.T) {
	service := NewJWTService("secret", time.Hour)
	token, err := service.Generate(&User{ID: "student-1", Email: "asha@example.com", Name: "Asha"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	user, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if user.ID != "student-1" {
		t.Fatalf("expected user id, got %q", user.ID)
	}
	if user.Email != "asha@example.com" {
		t.Fatalf("expected email, got %q", user.Email)
	}
	if user.Name != "Asha" {
		t.Fatalf("expected name, got %q", user.Name)
	}
}

func TestJWTServiceRejects(t *testing.T) {
	service := NewJWTService("secret", time.Hour)

	wrongSecret, _ := NewJWTService("other", time.Hour).Generate(&User{ID: "student-1"})

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "student-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))

	foreignIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", Subject: "student-1"},
	}).SignedString([]byte("secret"))

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString([]byte("secret"))

	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "student-1"},
	}).SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", wrongSecret},
		{"expired", expired},
		{"foreign issuer", foreignIssuer},
		{"missing subject", noSubject},
		{"unexpected algorithm", hs512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTServiceDisabled(t *testing.T) {
	var service *JWTService
	if _, err := service.Generate(&User{ID: "x"}); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("Generate() error = %v, want ErrAuthDisabled", err)
	}
	if _, err := NewJWTService("secret", 0).Generate(&User{}); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestJWTServiceExpiry(t *testing.T) {
	service := NewJWTService("secret", time.Minute)
	issued := time.Now()
	service.now = func() time.Time { return issued }

	token, err := service.Generate(&User{ID: "student-1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if _, err := service.Validate(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	service.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := service.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate() after expiry error = %v, want ErrInvalidToken", err)
	}
}
