package util

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseJWT(t *testing.T) {
	tok, err := GenerateJWT("GCLIENT", "admin", "secret", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseJWT(tok, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "GCLIENT" || claims.Role != "admin" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseJWTRejects(t *testing.T) {
	good, _ := GenerateJWT("GCLIENT", "", "secret", time.Hour)
	// GenerateJWT never issues expired tokens, so build one by hand
	expiredClaims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "GCLIENT",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString([]byte("secret"))
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString([]byte("secret"))

	tests := map[string]struct {
		token  string
		secret string
	}{
		"wrong secret": {good, "other"},
		"expired":      {expired, "secret"},
		"no subject":   {noSub, "secret"},
		"garbage":      {"not-a-token", "secret"},
	}
	for name, tt := range tests {
		if _, err := ParseJWT(tt.token, tt.secret); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := ParseJWT(expired, "secret"); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestGenerateJWTRequiresSubject(t *testing.T) {
	if _, err := GenerateJWT("", "", "secret", time.Hour); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestExtractToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc": "abc",
		"bearer abc": "abc",
		"Basic abc":  "",
		"Bearer":     "",
		"":           "",
		"Bearer a b": "",
	}
	for header, want := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		if got := ExtractToken(r); got != want {
			t.Fatalf("ExtractToken(%q) = %q, want %q", header, got, want)
		}
	}
}
