package security

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims que viajan en los tokens de acceso a debug.
type Claims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

// TokenManager emite y valida los tokens HS256 que protegen la superficie
// de introspección.
type TokenManager struct {
	secretKey     string
	tokenDuration time.Duration
}

func NewTokenManager(secretKey string, tokenDuration time.Duration) *TokenManager {
	return &TokenManager{secretKey: secretKey, tokenDuration: tokenDuration}
}

func (m *TokenManager) GenerateToken(role string) (string, error) {
	claims := Claims{
		Role: role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(m.tokenDuration).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

func (m *TokenManager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize comprueba la cabecera Authorization de una petición de debug.
// Los llamadores responden a todo fallo igual que a una superficie ausente,
// así que aquí se reportan errores sin detalle.
func (m *TokenManager) Authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ErrMissingToken
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header {
		return ErrInvalidToken
	}
	_, err := m.VerifyToken(tokenString)
	return err
}
