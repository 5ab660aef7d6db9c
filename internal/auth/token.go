// Package auth verifies the bearer tokens accepted by the report server.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const Issuer = "ipo"

// APITokenSubject is the subject reported for the static API token.
const APITokenSubject = "api-token"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrNoSecret     = errors.New("no JWT secret configured")
)

// Claims represents JWT token claims
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager accepts a static API token, HS256 JWTs signed with a shared
// secret, or both. With neither configured authentication is disabled.
type TokenManager struct {
	apiToken string
	secret   []byte
	now      func() time.Time
}

func NewTokenManager(apiToken, jwtSecret string) *TokenManager {
	m := &TokenManager{apiToken: apiToken, now: time.Now}
	if jwtSecret != "" {
		m.secret = []byte(jwtSecret)
	}
	return m
}

// Enabled reports whether any credential is configured.
func (m *TokenManager) Enabled() bool {
	return m.apiToken != "" || len(m.secret) > 0
}

// Issue signs a JWT for subject valid for ttl.
func (m *TokenManager) Issue(subject, scope string, ttl time.Duration) (string, time.Time, error) {
	if len(m.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	now := m.now()
	expiresAt := now.Add(ttl)

	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   subject,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Authenticate returns the subject of a valid token.
func (m *TokenManager) Authenticate(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	if m.apiToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(m.apiToken)) == 1 {
		return APITokenSubject, nil
	}
	if len(m.secret) == 0 {
		return "", ErrInvalidToken
	}

	claims, err := m.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (m *TokenManager) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
