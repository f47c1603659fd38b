package repository

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/proximityhq/proximity-backend/internal/db"
	"github.com/proximityhq/proximity-backend/internal/lifecycle"
	"github.com/proximityhq/proximity-backend/internal/matching"
)

// UserRepository reads user profiles and aggregates the matching signals.
// Pure read projection; it never mutates state.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// GetByID loads a single user.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.User, error) {
	var user db.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail loads a single user by email. Backs login.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var user db.User
	if err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListEligibleUsers returns discoverable users matching the mode filter
// (open_to_meetups for in_person, its negation for chat_only) in stable order:
// created_at asc, id asc. Stability guarantees deterministic formation runs.
func (r *UserRepository) ListEligibleUsers(ctx context.Context, mode lifecycle.GroupMode) ([]db.User, error) {
	query := r.db.WithContext(ctx).Where("discoverable = ?", true)
	switch mode {
	case lifecycle.ModeInPerson:
		query = query.Where("open_to_meetups = ?", true)
	case lifecycle.ModeChatOnly:
		query = query.Where("open_to_meetups = ?", false)
	}

	var users []db.User
	err := query.Order("created_at ASC, id ASC").Find(&users).Error
	return users, err
}

// ListActiveGroupedUserIDs returns the ids of users holding an invited or
// accepted membership in any forming/confirmed/scheduled group. These users
// are excluded from the eligibility pool.
func (r *UserRepository) ListActiveGroupedUserIDs(ctx context.Context) (map[uuid.UUID]struct{}, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Table("group_match_members m").
		Select("m.user_id").
		Joins("JOIN group_matches g ON g.id = m.group_match_id").
		Where("g.status IN ?", []lifecycle.GroupStatus{lifecycle.GroupForming, lifecycle.GroupConfirmed, lifecycle.GroupScheduled}).
		Where("m.status IN ?", []lifecycle.MemberStatus{lifecycle.MemberInvited, lifecycle.MemberAccepted}).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}

	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// ListDiscoverableExcluding returns discoverable users minus the excluded
// set, newest first. Backs the per-request match list.
func (r *UserRepository) ListDiscoverableExcluding(ctx context.Context, excluded []uuid.UUID, limit, offset int) ([]db.User, error) {
	query := r.db.WithContext(ctx).Where("discoverable = ?", true)
	if len(excluded) > 0 {
		query = query.Where("id NOT IN ?", excluded)
	}

	var users []db.User
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// BuildSignals aggregates the scorer inputs for the given users: sorted
// hobby codes plus liked restaurants and cuisines, where a rating row counts
// as liked iff rating >= 4 or would_return is true. Users without rows get no
// entry; the zero UserSignals scores as empty.
func (r *UserRepository) BuildSignals(ctx context.Context, userIDs []uuid.UUID) (matching.SignalSet, error) {
	sigs := matching.SignalSet{}
	if len(userIDs) == 0 {
		return sigs, nil
	}

	type hobbyRow struct {
		UserID uuid.UUID
		Code   string
	}
	var hobbies []hobbyRow
	err := r.db.WithContext(ctx).
		Table("user_hobbies uh").
		Select("uh.user_id, h.code").
		Joins("JOIN hobbies h ON h.id = uh.hobby_id").
		Where("uh.user_id IN ?", userIDs).
		Order("uh.user_id ASC, h.code ASC").
		Scan(&hobbies).Error
	if err != nil {
		return nil, err
	}

	type likedRow struct {
		UserID       uuid.UUID
		RestaurantID uint
		Cuisine      string
	}
	var liked []likedRow
	err = r.db.WithContext(ctx).
		Table("restaurant_ratings rr").
		Select("rr.user_id, rr.restaurant_id, r.cuisine").
		Joins("JOIN restaurants r ON r.id = rr.restaurant_id").
		Where("rr.user_id IN ?", userIDs).
		Where("rr.rating >= ? OR rr.would_return = ?", 4, true).
		Scan(&liked).Error
	if err != nil {
		return nil, err
	}

	get := func(id uuid.UUID) matching.UserSignals {
		s, ok := sigs[id]
		if !ok {
			s = matching.UserSignals{
				LikedRestaurants: map[uint]struct{}{},
				LikedCuisines:    map[string]struct{}{},
			}
		}
		return s
	}

	for _, row := range hobbies {
		s := get(row.UserID)
		s.HobbyCodes = append(s.HobbyCodes, row.Code)
		sigs[row.UserID] = s
	}
	for _, row := range liked {
		s := get(row.UserID)
		s.LikedRestaurants[row.RestaurantID] = struct{}{}
		if row.Cuisine != "" {
			s.LikedCuisines[row.Cuisine] = struct{}{}
		}
		sigs[row.UserID] = s
	}

	// The scorer's merge intersection requires sorted hobby codes.
	for id, s := range sigs {
		sort.Strings(s.HobbyCodes)
		sigs[id] = s
	}
	return sigs, nil
}
