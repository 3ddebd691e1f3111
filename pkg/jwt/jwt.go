package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates upstream-issued access tokens
type Verifier struct {
	accessSecret string
}

// NewVerifier creates a new token verifier
func NewVerifier(accessSecret string) *Verifier {
	return &Verifier{accessSecret: accessSecret}
}

// VerifyAccessToken validates and parses an access token
func (v *Verifier) VerifyAccessToken(tokenString string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.accessSecret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
