package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/domain"
	apperrors "github.com/spec-kit/queue-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller as asserted by the external
// identity provider. Sign-in and session management live outside this
// service; only verification happens here.
type Principal struct {
	UserID string
	Role   domain.ProfileRole
}

// Claims describes the identity provider's JWT payload.
type Claims struct {
	Role domain.ProfileRole `json:"role"`
	jwt.RegisteredClaims
}

// Middleware validates bearer tokens and attaches the principal.
type Middleware struct {
	secret []byte
}

// NewMiddleware constructs middleware from auth config.
func NewMiddleware(cfg config.AuthConfig) *Middleware {
	return &Middleware{secret: []byte(cfg.JWTSecret)}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.parseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.Subject == "" {
		return apperrors.NewUnauthorized("token missing subject")
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleCitizen
	}
	c.Locals(principalKey, &Principal{UserID: claims.Subject, Role: role})
	return c.Next()
}

func (m *Middleware) parseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
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

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
