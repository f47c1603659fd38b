package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/proximityhq/proximity-backend/internal/db"
	"github.com/proximityhq/proximity-backend/internal/lifecycle"
	"github.com/proximityhq/proximity-backend/internal/matching"
	"github.com/proximityhq/proximity-backend/internal/repository"
)

// setup in-memory DB
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

func createUser(t *testing.T, database *gorm.DB, email, neighborhood string) db.User {
	t.Helper()
	user := db.User{
		Email:        email,
		DisplayName:  email,
		PasswordHash: "x",
		Neighborhood: neighborhood,
		Discoverable: true,
	}
	require.NoError(t, database.Create(&user).Error)
	return user
}

func proposedGroupOf(users ...db.User) matching.ProposedGroup {
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	venue := "Downtown Meetup Spot"
	return matching.ProposedGroup{
		MemberIDs: ids,
		VenueName: &venue,
		Status:    lifecycle.GroupForming,
		Mode:      lifecycle.ModeInPerson,
	}
}

func TestCreateProposedGroup_PersistsGroupMembersAndVenue(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewGroupMatchRepository(dbase)

	users := []db.User{
		createUser(t, dbase, "a@test.dev", "Downtown"),
		createUser(t, dbase, "b@test.dev", "Downtown"),
		createUser(t, dbase, "c@test.dev", "Midtown"),
		createUser(t, dbase, "d@test.dev", "Midtown"),
	}

	group, err := repo.CreateProposedGroup(ctx, proposedGroupOf(users...), lifecycle.SourceSystem)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.GroupForming, group.Status)
	assert.Equal(t, lifecycle.ModeInPerson, group.Mode)

	members, err := repo.ListMembersWithUsers(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 4)
	for i, m := range members {
		assert.Equal(t, lifecycle.MemberInvited, m.Member.Status)
		require.NotNil(t, m.Member.SlotNumber)
		assert.Equal(t, i+1, *m.Member.SlotNumber)
		assert.Equal(t, users[i].ID, m.User.ID)
	}

	venue, err := repo.GetVenue(ctx, group.ID)
	require.NoError(t, err)
	require.NotNil(t, venue)
	assert.Equal(t, "Downtown Meetup Spot", venue.NameSnapshot)
}

func TestCreateProposedGroup_ChatOnlyHasNoVenue(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewGroupMatchRepository(dbase)

	users := []db.User{
		createUser(t, dbase, "a@test.dev", ""),
		createUser(t, dbase, "b@test.dev", ""),
	}
	proposed := matching.ProposedGroup{
		MemberIDs: []uuid.UUID{users[0].ID, users[1].ID},
		Status:    lifecycle.GroupForming,
		Mode:      lifecycle.ModeChatOnly,
	}

	group, err := repo.CreateProposedGroup(ctx, proposed, lifecycle.SourceAdmin)
	require.NoError(t, err)

	venue, err := repo.GetVenue(ctx, group.ID)
	require.NoError(t, err)
	assert.Nil(t, venue)
}

func TestGetForUser_HidesGroupsFromNonMembers(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewGroupMatchRepository(dbase)

	member := createUser(t, dbase, "member@test.dev", "Downtown")
	outsider := createUser(t, dbase, "outsider@test.dev", "Downtown")

	group, err := repo.CreateProposedGroup(ctx, matching.ProposedGroup{
		MemberIDs: []uuid.UUID{member.ID},
		Status:    lifecycle.GroupForming,
		Mode:      lifecycle.ModeChatOnly,
	}, lifecycle.SourceSystem)
	require.NoError(t, err)

	got, err := repo.GetForUser(ctx, group.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, group.ID, got.ID)

	_, err = repo.GetForUser(ctx, group.ID, outsider.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListForUser_SkipsInactiveMemberships(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewGroupMatchRepository(dbase)

	user := createUser(t, dbase, "u@test.dev", "Downtown")

	active, err := repo.CreateProposedGroup(ctx, matching.ProposedGroup{
		MemberIDs: []uuid.UUID{user.ID},
		Status:    lifecycle.GroupForming,
		Mode:      lifecycle.ModeChatOnly,
	}, lifecycle.SourceSystem)
	require.NoError(t, err)

	left, err := repo.CreateProposedGroup(ctx, matching.ProposedGroup{
		MemberIDs: []uuid.UUID{user.ID},
		Status:    lifecycle.GroupForming,
		Mode:      lifecycle.ModeChatOnly,
	}, lifecycle.SourceSystem)
	require.NoError(t, err)

	m, err := repo.GetMember(ctx, left.ID, user.ID)
	require.NoError(t, err)
	require.NoError(t, repo.ApplyMemberStatus(ctx, m, lifecycle.MemberLeft))

	groups, err := repo.ListForUser(ctx, user.ID, 10, 0, false)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, active.ID, groups[0].ID)

	all, err := repo.ListForUser(ctx, user.ID, 10, 0, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestApplyMemberStatus_TimestampBookkeeping(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewGroupMatchRepository(dbase)

	user := createUser(t, dbase, "u@test.dev", "Downtown")
	group, err := repo.CreateProposedGroup(ctx, matching.ProposedGroup{
		MemberIDs: []uuid.UUID{user.ID},
		Status:    lifecycle.GroupForming,
		Mode:      lifecycle.ModeChatOnly,
	}, lifecycle.SourceSystem)
	require.NoError(t, err)

	member, err := repo.GetMember(ctx, group.ID, user.ID)
	require.NoError(t, err)
	assert.Nil(t, member.RespondedAt)
	assert.Nil(t, member.JoinedAt)

	require.NoError(t, repo.ApplyMemberStatus(ctx, member, lifecycle.MemberAccepted))
	require.NotNil(t, member.RespondedAt)
	require.NotNil(t, member.JoinedAt)
	firstJoin := *member.JoinedAt

	require.NoError(t, repo.ApplyMemberStatus(ctx, member, lifecycle.MemberAccepted))
	assert.Equal(t, firstJoin, *member.JoinedAt)

	require.NoError(t, repo.ApplyMemberStatus(ctx, member, lifecycle.MemberLeft))
	require.NotNil(t, member.LeftAt)
}

func TestAcceptedCountAndStatusCounts(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewGroupMatchRepository(dbase)

	users := []db.User{
		createUser(t, dbase, "a@test.dev", "Downtown"),
		createUser(t, dbase, "b@test.dev", "Downtown"),
		createUser(t, dbase, "c@test.dev", "Downtown"),
	}
	group, err := repo.CreateProposedGroup(ctx, matching.ProposedGroup{
		MemberIDs: []uuid.UUID{users[0].ID, users[1].ID, users[2].ID},
		Status:    lifecycle.GroupForming,
		Mode:      lifecycle.ModeChatOnly,
	}, lifecycle.SourceSystem)
	require.NoError(t, err)

	for _, u := range users[:2] {
		m, err := repo.GetMember(ctx, group.ID, u.ID)
		require.NoError(t, err)
		require.NoError(t, repo.ApplyMemberStatus(ctx, m, lifecycle.MemberAccepted))
	}

	accepted, err := repo.AcceptedCount(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)

	counts, err := repo.MemberStatusCounts(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[lifecycle.MemberAccepted])
	assert.Equal(t, 1, counts[lifecycle.MemberInvited])
}

func TestListMessages_CursorPagination(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	repo := repository.NewGroupMatchRepository(dbase)

	user := createUser(t, dbase, "u@test.dev", "Downtown")
	group, err := repo.CreateProposedGroup(ctx, matching.ProposedGroup{
		MemberIDs: []uuid.UUID{user.ID},
		Status:    lifecycle.GroupForming,
		Mode:      lifecycle.ModeChatOnly,
	}, lifecycle.SourceSystem)
	require.NoError(t, err)

	base := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Hour)
	bodies := []string{"first", "second", "third"}
	for i, body := range bodies {
		msg := db.GroupChatMessage{
			GroupMatchID: group.ID,
			SenderUserID: user.ID,
			Body:         body,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, dbase.Create(&msg).Error)
	}

	page1, next, err := repo.ListMessages(ctx, group.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotNil(t, next)
	assert.Equal(t, "third", page1[0].Body)
	assert.Equal(t, "second", page1[1].Body)

	page2, next2, err := repo.ListMessages(ctx, group.ID, next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "first", page2[0].Body)
	assert.Nil(t, next2)
}

func TestBuildSignals_AggregatesLikedRows(t *testing.T) {
	ctx := context.Background()
	dbase := setupTestDB(t)
	users := repository.NewUserRepository(dbase)

	alice := createUser(t, dbase, "alice@test.dev", "Downtown")
	bob := createUser(t, dbase, "bob@test.dev", "Downtown")

	hiking := db.Hobby{Code: "hiking", Label: "Hiking"}
	trivia := db.Hobby{Code: "trivia", Label: "Trivia"}
	require.NoError(t, dbase.Create(&hiking).Error)
	require.NoError(t, dbase.Create(&trivia).Error)
	require.NoError(t, dbase.Create(&db.UserHobby{UserID: alice.ID, HobbyID: trivia.ID}).Error)
	require.NoError(t, dbase.Create(&db.UserHobby{UserID: alice.ID, HobbyID: hiking.ID}).Error)

	thai := db.Restaurant{Name: "Thai Spot", Neighborhood: "Downtown", Cuisine: "thai"}
	diner := db.Restaurant{Name: "Diner", Neighborhood: "Downtown", Cuisine: "american"}
	require.NoError(t, dbase.Create(&thai).Error)
	require.NoError(t, dbase.Create(&diner).Error)

	wouldReturn := true
	wouldNot := false
	require.NoError(t, dbase.Create(&db.RestaurantRating{UserID: alice.ID, RestaurantID: thai.ID, Rating: 5, WouldReturn: &wouldNot}).Error)
	require.NoError(t, dbase.Create(&db.RestaurantRating{UserID: alice.ID, RestaurantID: diner.ID, Rating: 2, WouldReturn: &wouldReturn}).Error)
	require.NoError(t, dbase.Create(&db.RestaurantRating{UserID: bob.ID, RestaurantID: diner.ID, Rating: 3, WouldReturn: &wouldNot}).Error)

	sigs, err := users.BuildSignals(ctx, []uuid.UUID{alice.ID, bob.ID})
	require.NoError(t, err)

	aliceSig := sigs[alice.ID]
	assert.Equal(t, []string{"hiking", "trivia"}, aliceSig.HobbyCodes)
	assert.Contains(t, aliceSig.LikedRestaurants, thai.ID)
	assert.Contains(t, aliceSig.LikedRestaurants, diner.ID)
	assert.Contains(t, aliceSig.LikedCuisines, "thai")
	assert.Contains(t, aliceSig.LikedCuisines, "american")

	// bob's only rating is low and he would not return
	_, ok := sigs[bob.ID]
	assert.False(t, ok)
}
