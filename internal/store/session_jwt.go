package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const jwtIssuer = "noteshare"

// JWTSessionStore issues and validates stateless HS256 session tokens.
// DeleteSession is a no-op: tokens simply expire. Deployments that need
// server-side revocation should use RedisSessionStore instead.
type JWTSessionStore struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTSessionStore builds a stateless JWT session store.
func NewJWTSessionStore(secret string, ttl time.Duration) *JWTSessionStore {
	return &JWTSessionStore{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// NewSession creates a signed JWT carrying the user ID as subject.
func (s *JWTSessionStore) NewSession(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    jwtIssuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// GetUserIDByToken validates a JWT and returns its subject.
func (s *JWTSessionStore) GetUserIDByToken(token string) (string, bool, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", false, err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return "", false, errors.New("missing subject claim")
	}
	return claims.Subject, true, nil
}

// DeleteSession is a no-op for stateless JWT; provided for interface parity.
func (s *JWTSessionStore) DeleteSession(_ string) error {
	return nil
}
