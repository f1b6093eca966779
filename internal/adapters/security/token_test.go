package security

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Role != "admin" {
		t.Errorf("se esperaba rol admin, se obtuvo %q", claims.Role)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a", time.Hour).GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := NewTokenManager("secret-b", time.Hour).VerifyToken(token); err == nil {
		t.Fatal("un token firmado con otro secreto no debe verificar")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	m := NewTokenManager("secret", -time.Minute)
	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := m.VerifyToken(token); err == nil {
		t.Fatal("un token caducado no debe verificar")
	}
}

func TestAuthorize(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	r := httptest.NewRequest("GET", "/debug/version", nil)
	if err := m.Authorize(r); err != ErrMissingToken {
		t.Errorf("se esperaba ErrMissingToken, se obtuvo %v", err)
	}

	r.Header.Set("Authorization", token)
	if err := m.Authorize(r); err != ErrInvalidToken {
		t.Errorf("se esperaba ErrInvalidToken sin prefijo Bearer, se obtuvo %v", err)
	}

	r.Header.Set("Authorization", "Bearer "+token)
	if err := m.Authorize(r); err != nil {
		t.Errorf("se esperaba petición autorizada, se obtuvo %v", err)
	}
}
