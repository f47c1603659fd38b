package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/proximityhq/proximity-backend/internal/db"
	"github.com/proximityhq/proximity-backend/internal/lifecycle"
	"github.com/proximityhq/proximity-backend/internal/matching"
	"github.com/proximityhq/proximity-backend/internal/utils/pagination"
)

// GroupMatchRepository provides data access for group matches, their members,
// venue snapshots and the chat log.
type GroupMatchRepository struct {
	db *gorm.DB
}

// NewGroupMatchRepository creates a new repository bound to the given DB
// connection.
func NewGroupMatchRepository(database *gorm.DB) *GroupMatchRepository {
	return &GroupMatchRepository{db: database}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *GroupMatchRepository) WithTx(tx *gorm.DB) *GroupMatchRepository {
	return &GroupMatchRepository{db: tx}
}

// forUpdate applies a row lock on dialects that support it. SQLite (tests)
// serializes writers on its own.
func (r *GroupMatchRepository) forUpdate(query *gorm.DB) *gorm.DB {
	if r.db.Dialector.Name() == "mysql" {
		return query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

// CreateProposedGroup persists one proposed group: the GroupMatch row, one
// invited member per user with sequential slot numbers, and the venue
// snapshot when a name was chosen. Callers wrap this in a transaction so the
// group commits whole or not at all.
func (r *GroupMatchRepository) CreateProposedGroup(ctx context.Context, proposed matching.ProposedGroup, source lifecycle.CreatedSource) (*db.GroupMatch, error) {
	group := db.GroupMatch{
		Status:        proposed.Status,
		Mode:          proposed.Mode,
		CreatedSource: source,
	}
	if err := r.db.WithContext(ctx).Create(&group).Error; err != nil {
		return nil, err
	}

	members := make([]db.GroupMatchMember, len(proposed.MemberIDs))
	for i, userID := range proposed.MemberIDs {
		slot := i + 1
		members[i] = db.GroupMatchMember{
			GroupMatchID: group.ID,
			UserID:       userID,
			Status:       lifecycle.MemberInvited,
			SlotNumber:   &slot,
		}
	}
	if err := r.db.WithContext(ctx).Create(&members).Error; err != nil {
		return nil, err
	}

	if proposed.VenueName != nil {
		kind := "restaurant"
		if proposed.Mode == lifecycle.ModeChatOnly {
			kind = "custom"
		}
		venue := db.GroupMatchVenue{
			GroupMatchID: group.ID,
			VenueKind:    kind,
			Source:       "manual",
			NameSnapshot: *proposed.VenueName,
		}
		if err := r.db.WithContext(ctx).Create(&venue).Error; err != nil {
			return nil, err
		}
	}

	return &group, nil
}

// ListForUser returns groups the user holds a membership in, most recently
// updated first. By default only invited/accepted memberships qualify.
func (r *GroupMatchRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int, includeInactiveMemberships bool) ([]db.GroupMatch, error) {
	query := r.db.WithContext(ctx).
		Table("group_matches g").
		Select("g.*").
		Joins("JOIN group_match_members m ON m.group_match_id = g.id").
		Where("m.user_id = ?", userID)
	if !includeInactiveMemberships {
		query = query.Where("m.status IN ?", []lifecycle.MemberStatus{lifecycle.MemberInvited, lifecycle.MemberAccepted})
	}

	var groups []db.GroupMatch
	err := query.Order("g.updated_at DESC, g.created_at DESC").Offset(offset).Limit(limit).Find(&groups).Error
	return groups, err
}

// GetForUser loads a group only if the user holds a membership in it.
// Non-members get gorm.ErrRecordNotFound, indistinguishable from a group
// that does not exist.
func (r *GroupMatchRepository) GetForUser(ctx context.Context, groupID, userID uuid.UUID) (*db.GroupMatch, error) {
	var group db.GroupMatch
	err := r.db.WithContext(ctx).
		Table("group_matches g").
		Select("g.*").
		Joins("JOIN group_match_members m ON m.group_match_id = g.id").
		Where("g.id = ? AND m.user_id = ?", groupID, userID).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GetGroupForUpdate loads and locks the group row.
func (r *GroupMatchRepository) GetGroupForUpdate(ctx context.Context, groupID uuid.UUID) (*db.GroupMatch, error) {
	var group db.GroupMatch
	err := r.forUpdate(r.db.WithContext(ctx)).First(&group, "id = ?", groupID).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GetMemberForUpdate loads and locks the user's membership row in the group.
func (r *GroupMatchRepository) GetMemberForUpdate(ctx context.Context, groupID, userID uuid.UUID) (*db.GroupMatchMember, error) {
	var member db.GroupMatchMember
	err := r.forUpdate(r.db.WithContext(ctx)).
		First(&member, "group_match_id = ? AND user_id = ?", groupID, userID).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// GetMember loads the user's membership row without locking.
func (r *GroupMatchRepository) GetMember(ctx context.Context, groupID, userID uuid.UUID) (*db.GroupMatchMember, error) {
	var member db.GroupMatchMember
	err := r.db.WithContext(ctx).
		First(&member, "group_match_id = ? AND user_id = ?", groupID, userID).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// MemberWithUser pairs a membership row with its user snippet.
type MemberWithUser struct {
	Member db.GroupMatchMember
	User   db.User
}

// ListMembersWithUsers returns all membership rows with their users, ordered
// by slot number (nulls last) then creation time.
func (r *GroupMatchRepository) ListMembersWithUsers(ctx context.Context, groupID uuid.UUID) ([]MemberWithUser, error) {
	var members []db.GroupMatchMember
	err := r.db.WithContext(ctx).
		Where("group_match_id = ?", groupID).
		Order("slot_number IS NULL, slot_number ASC, created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}

	userIDs := make([]uuid.UUID, len(members))
	for i, m := range members {
		userIDs[i] = m.UserID
	}
	var users []db.User
	if len(userIDs) > 0 {
		if err := r.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[uuid.UUID]db.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]MemberWithUser, len(members))
	for i, m := range members {
		out[i] = MemberWithUser{Member: m, User: byID[m.UserID]}
	}
	return out, nil
}

// GetVenue returns the group's venue snapshot, or nil when none exists.
func (r *GroupMatchRepository) GetVenue(ctx context.Context, groupID uuid.UUID) (*db.GroupMatchVenue, error) {
	var venue db.GroupMatchVenue
	err := r.db.WithContext(ctx).First(&venue, "group_match_id = ?", groupID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &venue, nil
}

// MemberStatusCounts tallies membership rows per status.
func (r *GroupMatchRepository) MemberStatusCounts(ctx context.Context, groupID uuid.UUID) (map[lifecycle.MemberStatus]int, error) {
	type row struct {
		Status lifecycle.MemberStatus
		N      int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("group_match_members").
		Select("status, COUNT(*) AS n").
		Where("group_match_id = ?", groupID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[lifecycle.MemberStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// AcceptedCount counts accepted members of a group.
func (r *GroupMatchRepository) AcceptedCount(ctx context.Context, groupID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.GroupMatchMember{}).
		Where("group_match_id = ? AND status = ?", groupID, lifecycle.MemberAccepted).
		Count(&count).Error
	return int(count), err
}

// ApplyMemberStatus writes the member's new status with the timestamp
// bookkeeping the lifecycle requires: responded_at on accept/decline,
// joined_at once on first accept, left_at on leave.
func (r *GroupMatchRepository) ApplyMemberStatus(ctx context.Context, member *db.GroupMatchMember, status lifecycle.MemberStatus) error {
	now := time.Now().UTC()
	member.Status = status
	switch status {
	case lifecycle.MemberAccepted:
		member.RespondedAt = &now
		if member.JoinedAt == nil {
			member.JoinedAt = &now
		}
	case lifecycle.MemberDeclined:
		member.RespondedAt = &now
	case lifecycle.MemberLeft:
		member.LeftAt = &now
	}
	return r.db.WithContext(ctx).Save(member).Error
}

// SaveGroup persists group mutations (status, chat room key).
func (r *GroupMatchRepository) SaveGroup(ctx context.Context, group *db.GroupMatch) error {
	return r.db.WithContext(ctx).Save(group).Error
}

// CreateMessage appends one chat message to the group's log.
func (r *GroupMatchRepository) CreateMessage(ctx context.Context, groupID, senderID uuid.UUID, body string) (*db.GroupChatMessage, error) {
	msg := db.GroupChatMessage{
		GroupMatchID: groupID,
		SenderUserID: senderID,
		Body:         body,
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns the group's chat log, newest first, with cursor-based
// pagination.
func (r *GroupMatchRepository) ListMessages(ctx context.Context, groupID uuid.UUID, paginationToken *string, limit int) ([]db.GroupChatMessage, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("group_match_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if cursor.MessageID != "" && cursor.CreatedUnix > 0 {
		ts := time.UnixMilli(cursor.CreatedUnix)
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.MessageID,
		)
	}

	var messages []db.GroupChatMessage
	if err := query.Find(&messages).Error; err != nil {
		return nil, nil, err
	}

	var nextToken *string
	if len(messages) > limit {
		last := messages[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			MessageID:   last.ID.String(),
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		messages = messages[:limit]
	}

	return messages, nextToken, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
