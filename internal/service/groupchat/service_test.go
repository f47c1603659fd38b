package groupchat_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proximityhq/proximity-backend/internal/app"
	"github.com/proximityhq/proximity-backend/internal/cache"
	"github.com/proximityhq/proximity-backend/internal/config"
	"github.com/proximityhq/proximity-backend/internal/db"
	svcErr "github.com/proximityhq/proximity-backend/internal/errors"
	"github.com/proximityhq/proximity-backend/internal/lifecycle"
	"github.com/proximityhq/proximity-backend/internal/service/groupchat"
)

type fixture struct {
	svc      *groupchat.Service
	gdb      *gorm.DB
	groupID  uuid.UUID
	accepted uuid.UUID
	invited  uuid.UUID
	outsider uuid.UUID
}

// setupChat seeds a confirmed group with an open chat room, one accepted and
// one invited member, plus an outsider with no membership at all.
func setupChat(t *testing.T) fixture {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(db.Models()...))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(gdb, cache.NewRedisCache(cfg), logger, nil)

	f := fixture{svc: groupchat.NewService(appCtx), gdb: gdb}

	users := make([]db.User, 3)
	for i := range users {
		users[i] = db.User{
			Email:        fmt.Sprintf("chat%d@test.dev", i),
			DisplayName:  fmt.Sprintf("chat%d", i),
			PasswordHash: "x",
			Discoverable: true,
		}
		require.NoError(t, gdb.Create(&users[i]).Error)
	}
	f.accepted, f.invited, f.outsider = users[0].ID, users[1].ID, users[2].ID

	group := db.GroupMatch{Status: lifecycle.GroupConfirmed, Mode: lifecycle.ModeChatOnly}
	require.NoError(t, gdb.Create(&group).Error)
	key := lifecycle.ChatRoomKey(group.ID.String())
	require.NoError(t, gdb.Model(&group).Update("chat_room_key", key).Error)
	f.groupID = group.ID

	require.NoError(t, gdb.Create(&db.GroupMatchMember{
		GroupMatchID: group.ID, UserID: f.accepted, Status: lifecycle.MemberAccepted,
	}).Error)
	require.NoError(t, gdb.Create(&db.GroupMatchMember{
		GroupMatchID: group.ID, UserID: f.invited, Status: lifecycle.MemberInvited,
	}).Error)

	return f
}

func TestPostAndList_NewestFirstWithPagination(t *testing.T) {
	ctx := context.Background()
	f := setupChat(t)

	bodies := []string{"first", "second", "third"}
	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	for i, body := range bodies {
		msg := db.GroupChatMessage{
			GroupMatchID: f.groupID,
			SenderUserID: f.accepted,
			Body:         body,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, f.gdb.Create(&msg).Error)
	}

	page1, err := f.svc.List(ctx, f.groupID, f.accepted, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1.Messages, 2)
	assert.Equal(t, "third", page1.Messages[0].Body)
	assert.Equal(t, "second", page1.Messages[1].Body)
	require.NotNil(t, page1.NextPaginationToken)

	page2, err := f.svc.List(ctx, f.groupID, f.accepted, page1.NextPaginationToken, 2)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 1)
	assert.Equal(t, "first", page2.Messages[0].Body)
	assert.Nil(t, page2.NextPaginationToken)
}

func TestPost_AppendsMessage(t *testing.T) {
	ctx := context.Background()
	f := setupChat(t)

	msg, err := f.svc.Post(ctx, f.groupID, f.accepted, "  anyone up for thai tonight?  ")
	require.NoError(t, err)
	assert.Equal(t, "anyone up for thai tonight?", msg.Body)
	assert.Equal(t, f.accepted, msg.SenderUserID)

	page, err := f.svc.List(ctx, f.groupID, f.accepted, nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
}

func TestPost_ValidatesBody(t *testing.T) {
	ctx := context.Background()
	f := setupChat(t)

	_, err := f.svc.Post(ctx, f.groupID, f.accepted, "   ")
	assert.True(t, svcErr.IsCode(err, "INVALID_ARGUMENT"))

	_, err = f.svc.Post(ctx, f.groupID, f.accepted, strings.Repeat("x", 2001))
	assert.True(t, svcErr.IsCode(err, "INVALID_ARGUMENT"))

	// length is counted in characters, not bytes
	_, err = f.svc.Post(ctx, f.groupID, f.accepted, strings.Repeat("é", 2000))
	assert.NoError(t, err)
}

func TestPost_RequiresAcceptedMembership(t *testing.T) {
	ctx := context.Background()
	f := setupChat(t)

	_, err := f.svc.Post(ctx, f.groupID, f.invited, "hello")
	assert.True(t, svcErr.IsCode(err, "CONFLICT"))

	_, err = f.svc.Post(ctx, f.groupID, f.outsider, "hello")
	assert.True(t, svcErr.IsCode(err, "NOT_FOUND"))

	_, err = f.svc.List(ctx, f.groupID, f.outsider, nil, 10)
	assert.True(t, svcErr.IsCode(err, "NOT_FOUND"))
}

func TestPost_RejectsClosedRooms(t *testing.T) {
	ctx := context.Background()
	f := setupChat(t)

	// room not open yet
	require.NoError(t, f.gdb.Model(&db.GroupMatch{}).Where("id = ?", f.groupID).
		Updates(map[string]any{"status": lifecycle.GroupForming, "chat_room_key": nil}).Error)
	_, err := f.svc.Post(ctx, f.groupID, f.accepted, "hello")
	assert.True(t, svcErr.IsCode(err, "CONFLICT"))

	// terminal group
	key := lifecycle.ChatRoomKey(f.groupID.String())
	require.NoError(t, f.gdb.Model(&db.GroupMatch{}).Where("id = ?", f.groupID).
		Updates(map[string]any{"status": lifecycle.GroupCancelled, "chat_room_key": key}).Error)
	_, err = f.svc.Post(ctx, f.groupID, f.accepted, "hello")
	assert.True(t, svcErr.IsCode(err, "CONFLICT"))
}

func TestList_RejectsGarbageToken(t *testing.T) {
	ctx := context.Background()
	f := setupChat(t)

	garbage := "not-a-token"
	_, err := f.svc.List(ctx, f.groupID, f.accepted, &garbage, 10)
	assert.True(t, svcErr.IsCode(err, "INVALID_ARGUMENT"))
}
