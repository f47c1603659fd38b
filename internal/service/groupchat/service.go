package groupchat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/proximityhq/proximity-backend/internal/app"
	svcErr "github.com/proximityhq/proximity-backend/internal/errors"
	"github.com/proximityhq/proximity-backend/internal/lifecycle"
	"github.com/proximityhq/proximity-backend/internal/repository"
	"github.com/proximityhq/proximity-backend/internal/utils/pagination"
)

const (
	maxMessageLength = 2000
	defaultPageSize  = 50
	maxPageSize      = 200
)

// Service is the append-only group chat: accepted members of a group whose
// chat room is open can post and read messages. No edits, no deletes.
type Service struct {
	appCtx *app.AppContext
	groups *repository.GroupMatchRepository
}

// NewService creates the chat service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		groups: repository.NewGroupMatchRepository(appCtx.DB),
	}
}

// Message is one chat log entry.
type Message struct {
	ID           uuid.UUID `json:"id"`
	SenderUserID uuid.UUID `json:"sender_user_id"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// MessagePage is one page of the chat log, newest first.
type MessagePage struct {
	Messages            []Message `json:"messages"`
	NextPaginationToken *string   `json:"next_pagination_token"`
}

// Post appends a message to the group's chat log on behalf of the sender.
func (s *Service) Post(ctx context.Context, groupID, senderID uuid.UUID, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, svcErr.InvalidArgument("message body must not be empty")
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, svcErr.InvalidArgument("message body exceeds 2000 characters")
	}

	if err := s.authorize(ctx, groupID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.groups.CreateMessage(ctx, groupID, senderID, body)
	if err != nil {
		s.appCtx.Logger.Error("chat message create failed", "group", groupID, "err", err)
		return nil, svcErr.Map(err)
	}

	return &Message{
		ID:           msg.ID,
		SenderUserID: msg.SenderUserID,
		Body:         msg.Body,
		CreatedAt:    msg.CreatedAt,
	}, nil
}

// List returns a page of the group's chat log, newest first.
func (s *Service) List(ctx context.Context, groupID, userID uuid.UUID, paginationToken *string, limit int) (*MessagePage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if err := s.authorize(ctx, groupID, userID); err != nil {
		return nil, err
	}

	rows, nextToken, err := s.groups.ListMessages(ctx, groupID, paginationToken, limit)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidToken) {
			return nil, svcErr.InvalidArgument("invalid pagination token")
		}
		return nil, svcErr.Map(err)
	}

	page := &MessagePage{NextPaginationToken: nextToken, Messages: make([]Message, 0, len(rows))}
	for _, m := range rows {
		page.Messages = append(page.Messages, Message{
			ID:           m.ID,
			SenderUserID: m.SenderUserID,
			Body:         m.Body,
			CreatedAt:    m.CreatedAt,
		})
	}
	return page, nil
}

// authorize checks that the user is an accepted member of an active group
// whose chat room is open. Non-members get NOT_FOUND so group existence never
// leaks.
func (s *Service) authorize(ctx context.Context, groupID, userID uuid.UUID) error {
	member, err := s.groups.GetMember(ctx, groupID, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	if member.Status != lifecycle.MemberAccepted {
		return svcErr.Conflict("membership is not accepted")
	}

	group, err := s.groups.GetForUser(ctx, groupID, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	if group.Status.IsTerminal() {
		return svcErr.Conflict("group match is not active")
	}
	if group.ChatRoomKey == nil {
		return svcErr.Conflict("chat room is not open yet")
	}
	return nil
}
