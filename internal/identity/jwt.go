// Package identity decodes inbound credentials into a caller identity.
// Token issuance lives in the external auth service; the gateway only
// validates and reads.
package identity

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	id "civigate/pkg/domain"
	dErrors "civigate/pkg/domain-errors"
)

// Claims are the JWT claims the platform's auth service issues.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTDecoder validates HS256 tokens issued by the platform auth service.
type JWTDecoder struct {
	signingKey []byte
}

// NewJWTDecoder constructs a decoder for the shared signing key.
func NewJWTDecoder(signingKey string) *JWTDecoder {
	return &JWTDecoder{signingKey: []byte(signingKey)}
}

// Decode validates the token and returns the caller identity.
func (d *JWTDecoder) Decode(tokenString string) (*id.Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return d.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}

	return &id.Identity{Subject: claims.Subject, Roles: claims.Roles}, nil
}
