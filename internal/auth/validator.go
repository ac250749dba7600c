package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds bearer-token validation configuration for the operator API.
type Config struct {
	// Secret signs and verifies HS256 tokens.
	Secret string
	// Issuer, if set, must match the token's iss claim.
	Issuer string
}

// Validator verifies operator bearer tokens and extracts the caller's subject.
type Validator struct {
	config Config
}

// NewValidator constructs a Validator. Secret must be non-empty.
func NewValidator(config Config) (*Validator, error) {
	if config.Secret == "" {
		return nil, ErrNoSecretConfigured
	}
	return &Validator{config: config}, nil
}

// Operator is the caller identity extracted from a validated token.
type Operator struct {
	Subject string
}

// ValidateToken parses and verifies tokenStr, returning the caller identity.
func (v *Validator) ValidateToken(tokenStr string) (*Operator, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(v.config.Secret), nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "token is expired") {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if v.config.Issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != v.config.Issuer {
			return nil, ErrInvalidToken
		}
	}

	sub, _ := claims.GetSubject()
	return &Operator{Subject: sub}, nil
}

// ExtractToken pulls a bearer token out of an Authorization header value.
func ExtractToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}
