// Package middleware provides authentication, logging and metrics middleware
// for the HTTP API.
package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"

	"doubtdesk/internal/models"
	"doubtdesk/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token issuer and audience.
const (
	TokenIssuer   = "doubtdesk-api"
	TokenAudience = "doubtdesk-client"
)

// Fiber locals set by AuthRequired.
const (
	LocalUserID = "userID"
	LocalRole   = "role"
)

// UserLookup loads the account behind a token.
type UserLookup interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
}

// Auth validates bearer tokens issued by the identity provider.
type Auth struct {
	secret []byte
	users  UserLookup
}

// NewAuth returns an Auth verifying HS256 tokens signed with secret.
func NewAuth(secret string, users UserLookup) *Auth {
	return &Auth{secret: []byte(secret), users: users}
}

// IssueToken signs a token for userID. The identity provider normally does
// this; the seed command uses it to mint development tokens.
func IssueToken(secret string, userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    TokenIssuer,
		Audience:  jwt.ClaimStrings{TokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenString and returns the user id in its subject.
func (a *Auth) ParseToken(tokenString string) (uint, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return 0, models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, models.NewUnauthorizedError("Invalid token claims")
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return 0, models.NewUnauthorizedError("Invalid user ID in token")
	}
	return uint(userID), nil
}

// AuthRequired rejects requests without a valid bearer token, and users whose
// platform access has been revoked.
func (a *Auth) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		userID, err := a.ParseToken(tokenString)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		user, err := a.users.GetUser(c.UserContext(), userID)
		if err != nil {
			if models.HasCode(err, models.CodeNotFound) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Unknown user"))
			}
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !user.AccessGranted {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Platform access has not been granted"))
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalRole, user.Role)
		ctx := context.WithValue(c.UserContext(), observability.UserIDKey, user.ID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// RequireAdmin must run after AuthRequired.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals(LocalRole).(string); role != models.RoleAdmin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// UserID returns the authenticated user id, or 0.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalUserID).(uint)
	return id
}

// IsAdmin reports whether the authenticated user is an admin.
func IsAdmin(c *fiber.Ctx) bool {
	role, _ := c.Locals(LocalRole).(string)
	return role == models.RoleAdmin
}

func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
