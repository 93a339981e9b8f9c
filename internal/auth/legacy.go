package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// LegacyClaims are the claims carried by self-issued HMAC tokens, kept as a
// fallback for deployments without an OIDC provider.
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// ValidateLegacyToken validates an HMAC-signed token against the shared
// secret. Only HS256-family methods are accepted.
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	claims := &LegacyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
