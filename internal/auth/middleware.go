package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/proximityhq/proximity-backend/internal/db"
	svcErr "github.com/proximityhq/proximity-backend/internal/errors"
	"github.com/proximityhq/proximity-backend/internal/repository"
)

const currentUserKey = "auth_current_user"

// Middleware validates bearer tokens and loads the calling user.
type Middleware struct {
	tokens *TokenManager
	users  *repository.UserRepository
}

// NewMiddleware constructs the bearer-token middleware.
func NewMiddleware(tokens *TokenManager, users *repository.UserRepository) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

// Handle enforces authentication for member-facing routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return svcErr.Unauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return svcErr.Unauthorized("invalid authorization header")
	}

	userID, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return svcErr.Unauthorized("invalid token")
	}

	user, err := m.users.GetByID(c.UserContext(), userID)
	if err != nil {
		if svcErr.IsCode(svcErr.Map(err), "NOT_FOUND") {
			return svcErr.Unauthorized("user not found")
		}
		return svcErr.Map(err)
	}

	c.Locals(currentUserKey, user)
	return c.Next()
}

// AdminKeyMiddleware guards admin routes with a static API key.
func AdminKeyMiddleware(adminKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if adminKey == "" || c.Get("X-Admin-Key") != adminKey {
			return svcErr.Unauthorized("invalid admin key")
		}
		return c.Next()
	}
}

// CurrentUser retrieves the authenticated user set by Handle.
func CurrentUser(c *fiber.Ctx) (*db.User, bool) {
	val := c.Locals(currentUserKey)
	if val == nil {
		return nil, false
	}
	user, ok := val.(*db.User)
	return user, ok
}

// CurrentUserID is a convenience accessor for handlers that only need the id.
func CurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		return uuid.Nil, false
	}
	return user.ID, true
}
