package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/proximityhq/proximity-backend/internal/lifecycle"
)

// User profile. Owned by the profile subsystem; the matching core reads it.
type User struct {
	ID            uuid.UUID `gorm:"type:char(36);primaryKey"`
	Email         string    `gorm:"uniqueIndex;size:255;not null"`
	DisplayName   string    `gorm:"size:32"`
	PasswordHash  string    `gorm:"size:255;not null"`
	Neighborhood  string    `gorm:"size:255"`
	Gender        string    `gorm:"size:32"`
	BirthYear     int
	Discoverable  bool      `gorm:"not null;default:true"`
	OpenToMeetups bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index:idx_users_created_id,priority:1"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Hobby catalog entry. Users link to hobbies through UserHobby.
type Hobby struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Code  string `gorm:"uniqueIndex;size:64;not null"`
	Label string `gorm:"size:128;not null"`
}

// UserHobby joins users to catalog hobbies.
// Composite PK keeps a single row per (user, hobby) pair.
type UserHobby struct {
	UserID  uuid.UUID `gorm:"type:char(36);primaryKey"`
	HobbyID uint      `gorm:"primaryKey"`
}

// Restaurant is a rated venue with a cuisine used for affinity scoring.
type Restaurant struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"size:255;not null"`
	Neighborhood string `gorm:"size:255"`
	Cuisine      string `gorm:"size:64;index"`
	PriceLevel   int
	Latitude     float64
	Longitude    float64
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// RestaurantRating is a user's rating of a restaurant.
// A row counts as "liked" when Rating >= 4 or WouldReturn is true.
type RestaurantRating struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	UserID       uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:uq_ratings_user_restaurant,priority:1;index"`
	RestaurantID uint      `gorm:"not null;uniqueIndex:uq_ratings_user_restaurant,priority:2;index"`
	Rating       int       `gorm:"not null"`
	Visited      bool      `gorm:"not null;default:true"`
	WouldReturn  *bool
	Notes        string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// GroupMatch is a forming/confirmed/scheduled/completed/cancelled/expired
// cluster of users. Never physically deleted by the core.
//
// Invariant: chat_only groups are never scheduled or completed.
type GroupMatch struct {
	ID              uuid.UUID               `gorm:"type:char(36);primaryKey"`
	Status          lifecycle.GroupStatus   `gorm:"size:16;not null;default:forming;index"`
	Mode            lifecycle.GroupMode     `gorm:"column:group_match_mode;size:16;not null;default:in_person;index"`
	CreatedSource   lifecycle.CreatedSource `gorm:"size:16;not null;default:system"`
	CreatedByUserID *uuid.UUID              `gorm:"type:char(36);index"`
	ChatRoomKey     *string                 `gorm:"size:255;uniqueIndex:uq_group_matches_chat_room_key"`
	ScheduledFor    *time.Time              `gorm:"index"`
	ExpiresAt       *time.Time              `gorm:"index"`
	CancelReason    *string                 `gorm:"type:text"`
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (g *GroupMatch) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// GroupMatchMember joins a GroupMatch and a User.
//
// Unique (group, user) index: a membership row is never re-created for the
// same pair, and the constraint doubles as the concurrency guard against two
// generation runs grabbing the same user.
type GroupMatchMember struct {
	ID           uuid.UUID              `gorm:"type:char(36);primaryKey"`
	GroupMatchID uuid.UUID              `gorm:"type:char(36);not null;uniqueIndex:uq_group_members_group_user,priority:1;index"`
	UserID       uuid.UUID              `gorm:"type:char(36);not null;uniqueIndex:uq_group_members_group_user,priority:2;index"`
	Status       lifecycle.MemberStatus `gorm:"size:16;not null;default:invited;index"`
	SlotNumber   *int
	InvitedAt    time.Time `gorm:"autoCreateTime"`
	RespondedAt  *time.Time
	JoinedAt     *time.Time
	LeftAt       *time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (m *GroupMatchMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// GroupMatchVenue is the denormalized venue snapshot chosen at proposal time.
// At most one per group; immutable once written by the core.
type GroupMatchVenue struct {
	ID                   uuid.UUID `gorm:"type:char(36);primaryKey"`
	GroupMatchID         uuid.UUID `gorm:"type:char(36);not null;uniqueIndex:uq_group_match_venue_group"`
	VenueKind            string    `gorm:"size:32;not null"`
	Source               string    `gorm:"size:32;not null"`
	RestaurantID         *uint     `gorm:"index"`
	ExternalPlaceID      *string   `gorm:"size:255;index"`
	NameSnapshot         string    `gorm:"size:255;not null"`
	AddressSnapshot      *string   `gorm:"size:255"`
	Latitude             *float64
	Longitude            *float64
	NeighborhoodSnapshot *string `gorm:"size:255"`
	PriceLevel           *int
	CreatedAt            time.Time `gorm:"autoCreateTime"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

func (v *GroupMatchVenue) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// GroupChatMessage is a plain append-only log row; delivery semantics live
// elsewhere.
type GroupChatMessage struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey"`
	GroupMatchID uuid.UUID `gorm:"type:char(36);not null;index:idx_chat_messages_group_created,priority:1"`
	SenderUserID uuid.UUID `gorm:"type:char(36);not null;index"`
	Body         string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index:idx_chat_messages_group_created,priority:2"`
}

func (m *GroupChatMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
