// Package auth issues and verifies the HMAC-signed device tokens used by the
// REST API and the room channel join handshake.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lulajax/streamer-hub/internal/domain"
)

// Service signs and verifies device tokens. It implements
// domain.TokenValidator for the room hub.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// Claims carries the device identity inside a signed token.
type Claims struct {
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

// NewService creates a token service with the given signing secret and token
// lifetime.
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Sign issues a token for deviceID.
func (s *Service) Sign(deviceID string) (string, error) {
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token, returning its claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Validate implements domain.TokenValidator for room joins.
func (s *Service) Validate(token string) error {
	if token == "" {
		return domain.ErrInvalidToken
	}
	if _, err := s.Verify(token); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidToken, err)
	}
	return nil
}
