package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agente-digital/config"
)

var ErrInvalidToken = errors.New("auth: token invalido")

// Claims carried by the bearer token. The session id lets a logout revoke
// tokens before their expiry.
type Claims struct {
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	TenantID  int64    `json:"inquilino_id,omitempty"`
	SessionID string   `json:"sid"`
	jwt.RegisteredClaims
}

// IssueToken signs a token bound to the given session.
func IssueToken(cfg config.AuthConfig, userID int64, username string, roles []string, tenantID int64, sessionID string, now time.Time) (string, error) {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	claims := Claims{
		Username:  username,
		Roles:     roles,
		TenantID:  tenantID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWTIssuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ParseToken verifies the signature and expiry and returns the claims.
func ParseToken(cfg config.AuthConfig, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithIssuer(cfg.JWTIssuer))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
