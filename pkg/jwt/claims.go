package jwt

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityClaims are the claims the upstream auth service places in the
// access token. The core does not issue tokens; it only verifies them and
// uses the (creator, student) pair as a data filter.
type IdentityClaims struct {
	CreatorID uuid.UUID `json:"creator_id"`
	StudentID uuid.UUID `json:"student_id"`
	Role      string    `json:"role"`
	jwt.RegisteredClaims
}
