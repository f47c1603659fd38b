package server

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/proximityhq/proximity-backend/internal/app"
	"github.com/proximityhq/proximity-backend/internal/auth"
	svcErr "github.com/proximityhq/proximity-backend/internal/errors"
	"github.com/proximityhq/proximity-backend/internal/lifecycle"
	"github.com/proximityhq/proximity-backend/internal/repository"
	"github.com/proximityhq/proximity-backend/internal/service/groupchat"
	"github.com/proximityhq/proximity-backend/internal/service/groupmatch"
)

// Handlers bundles the HTTP endpoints over the domain services.
type Handlers struct {
	appCtx  *app.AppContext
	tokens  *auth.TokenManager
	users   *repository.UserRepository
	matches *groupmatch.Service
	chat    *groupchat.Service
}

// NewHandlers wires handlers from AppContext.
func NewHandlers(appCtx *app.AppContext, tokens *auth.TokenManager) *Handlers {
	return &Handlers{
		appCtx:  appCtx,
		tokens:  tokens,
		users:   repository.NewUserRepository(appCtx.DB),
		matches: groupmatch.NewService(appCtx),
		chat:    groupchat.NewService(appCtx),
	}
}

// Health handles GET /health.
func (h *Handlers) Health(c *fiber.Ctx) error {
	redisStatus := "ok"
	if err := h.appCtx.RedisCache.Ping(c.UserContext()); err != nil {
		redisStatus = "unreachable"
	}
	return c.JSON(fiber.Map{"status": "ok", "redis": redisStatus})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return svcErr.InvalidArgument("email and password required")
	}

	user, err := h.users.GetByEmail(c.UserContext(), req.Email)
	if err != nil {
		return svcErr.Unauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(user.PasswordHash, req.Password); err != nil {
		return svcErr.Unauthorized("invalid credentials")
	}

	token, expiresAt, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		return svcErr.Map(err)
	}
	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": expiresAt,
		"user": fiber.Map{
			"id":           user.ID,
			"display_name": user.DisplayName,
			"email":        user.Email,
		},
	})
}

// Matches handles GET /api/v1/matches.
func (h *Handlers) Matches(c *fiber.Ctx) error {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		return svcErr.Unauthorized("not authenticated")
	}
	items, err := h.matches.Matches(c.UserContext(), userID, c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"matches": items})
}

// ListGroups handles GET /api/v1/group-matches.
func (h *Handlers) ListGroups(c *fiber.Ctx) error {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		return svcErr.Unauthorized("not authenticated")
	}
	items, err := h.matches.List(c.UserContext(), userID, c.QueryInt("limit"), c.QueryInt("offset"),
		c.QueryBool("include_inactive_memberships"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"group_matches": items})
}

// GetGroup handles GET /api/v1/group-matches/:id.
func (h *Handlers) GetGroup(c *fiber.Ctx) error {
	userID, groupID, err := h.callerAndGroup(c)
	if err != nil {
		return err
	}
	detail, err := h.matches.Get(c.UserContext(), groupID, userID)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// MemberAction returns the handler for one of the accept/decline/leave routes.
func (h *Handlers) MemberAction(action lifecycle.MemberAction) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, groupID, err := h.callerAndGroup(c)
		if err != nil {
			return err
		}
		detail, err := h.matches.MemberAction(c.UserContext(), groupID, userID, action)
		if err != nil {
			return err
		}
		return c.JSON(detail)
	}
}

// ListMessages handles GET /api/v1/group-matches/:id/messages.
func (h *Handlers) ListMessages(c *fiber.Ctx) error {
	userID, groupID, err := h.callerAndGroup(c)
	if err != nil {
		return err
	}
	var token *string
	if v := c.Query("pagination_token"); v != "" {
		token = &v
	}
	page, err := h.chat.List(c.UserContext(), groupID, userID, token, c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

type postMessageRequest struct {
	Body string `json:"body"`
}

// PostMessage handles POST /api/v1/group-matches/:id/messages.
func (h *Handlers) PostMessage(c *fiber.Ctx) error {
	userID, groupID, err := h.callerAndGroup(c)
	if err != nil {
		return err
	}
	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid payload")
	}
	msg, err := h.chat.Post(c.UserContext(), groupID, userID, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(msg)
}

// Generate handles POST /api/v1/admin/group-matches/generate.
func (h *Handlers) Generate(c *fiber.Ctx) error {
	var req groupmatch.GenerateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return svcErr.InvalidArgument("invalid payload")
		}
	}
	resp, err := h.matches.Generate(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// Reindex handles POST /api/v1/admin/vector/reindex.
func (h *Handlers) Reindex(c *fiber.Ctx) error {
	indexed, err := h.matches.ReindexProfiles(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"indexed_users": indexed})
}

func (h *Handlers) callerAndGroup(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, svcErr.Unauthorized("not authenticated")
	}
	groupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, svcErr.InvalidArgument("id must be a valid uuid")
	}
	return userID, groupID, nil
}
