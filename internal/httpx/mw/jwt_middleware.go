// Package mw contains HTTP middleware including authentication and rate limiting.
package mw

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
)

// AuthContext holds authentication details extracted from JWT.
type AuthContext struct {
	Subject string
	Kind    string // user | anon
	Roles   []string
}

// TokenParser parses a token string and returns the auth context.
type TokenParser func(token string) (*AuthContext, error)

// Claims are the claims this service reads from CMS-issued tokens.
type Claims struct {
	Kind  string   `json:"kind"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

var ErrNoSecret = errors.New("jwt secret not configured")

// HS256Parser verifies HS256 tokens signed with secret. A non-empty issuer
// must match the iss claim.
func HS256Parser(secret, issuer string) TokenParser {
	return func(token string) (*AuthContext, error) {
		if secret == "" {
			return nil, ErrNoSecret
		}
		opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
		if issuer != "" {
			opts = append(opts, jwt.WithIssuer(issuer))
		}
		claims := &Claims{}
		if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return []byte(secret), nil
		}, opts...); err != nil {
			return nil, err
		}
		return &AuthContext{Subject: claims.Subject, Kind: lo.Ternary(claims.Kind != "", claims.Kind, "user"), Roles: claims.Roles}, nil
	}
}

// JWTMiddlewareDynamic attaches auth context parsed by the given token parser.
// Invalid or missing tokens leave the request anonymous.
func JWTMiddlewareDynamic(parse TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return c.Next()
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		if ac, err := parse(token); err == nil && ac.Subject != "" {
			c.Locals("auth", ac)
		}
		return c.Next()
	}
}

// RequireRoles enforces that the authenticated context has at least one of the roles.
func RequireRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ac, _ := c.Locals("auth").(*AuthContext)
		if ac == nil || ac.Kind == "" {
			return fiber.ErrUnauthorized
		}
		if len(roles) == 0 {
			return c.Next()
		}
		if lo.Some(ac.Roles, roles) {
			return c.Next()
		}
		return fiber.ErrForbidden
	}
}
