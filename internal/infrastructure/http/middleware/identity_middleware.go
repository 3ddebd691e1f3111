package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appjwt "github.com/lessonlens/lessonlens/pkg/jwt"
)

// IdentityContextKey is the echo context key carrying the caller identity
const IdentityContextKey = "identity"

// Identity is the resolved (creator, student) pair the core filters by.
// Authorization happened upstream; the pair is trusted as already
// authorized and used purely as a data filter.
type Identity struct {
	CreatorID uuid.UUID
	StudentID uuid.UUID
	Role      string
}

// IdentityMiddleware verifies upstream-issued access tokens
type IdentityMiddleware struct {
	verifier *appjwt.Verifier
}

// NewIdentityMiddleware creates an identity middleware
func NewIdentityMiddleware(verifier *appjwt.Verifier) *IdentityMiddleware {
	return &IdentityMiddleware{verifier: verifier}
}

// Resolve validates the bearer token and places the caller identity into
// the echo context
func (m *IdentityMiddleware) Resolve() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := extractToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization token")
			}

			claims, err := m.verifier.VerifyAccessToken(token)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "Access token has expired")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token")
			}
			if claims.CreatorID == uuid.Nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Token carries no creator identity")
			}

			c.Set(IdentityContextKey, &Identity{
				CreatorID: claims.CreatorID,
				StudentID: claims.StudentID,
				Role:      claims.Role,
			})
			return next(c)
		}
	}
}

// RequireRole restricts a route to callers holding one of the roles
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := GetIdentity(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Caller identity not resolved")
			}
			for _, role := range roles {
				if identity.Role == role {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
		}
	}
}

// GetIdentity retrieves the caller identity from the echo context
func GetIdentity(c echo.Context) (*Identity, bool) {
	identity, ok := c.Get(IdentityContextKey).(*Identity)
	return identity, ok
}

func extractToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}
