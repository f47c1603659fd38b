package groupmatch

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/proximityhq/proximity-backend/internal/app"
	"github.com/proximityhq/proximity-backend/internal/db"
	svcErr "github.com/proximityhq/proximity-backend/internal/errors"
	"github.com/proximityhq/proximity-backend/internal/lifecycle"
	"github.com/proximityhq/proximity-backend/internal/matching"
	"github.com/proximityhq/proximity-backend/internal/repository"
	"github.com/proximityhq/proximity-backend/internal/vecstore"
)

// Skip-reason keys reported by Generate. Stable, machine-readable.
const (
	SkipAlreadyInActiveGroup   = "already_in_active_group"
	SkipMaxGroupsCapReached    = "max_groups_cap_reached"
	SkipInsufficientCandidates = "insufficient_candidates"
)

const (
	defaultMaxGroups = 5
	maxMaxGroups     = 50
	defaultPageSize  = 20
	maxPageSize      = 100
)

// Service owns the group-match domain: generation runs, member lifecycle
// actions, member-facing views and the per-request match list.
type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
	groups *repository.GroupMatchRepository
	engine *matching.Engine
}

// NewService creates the service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
		groups: repository.NewGroupMatchRepository(appCtx.DB),
		engine: matching.NewEngine(matching.NewScorer(), matching.NewVenuePicker(), appCtx.Similarity, appCtx.Logger),
	}
}

// GenerateRequest configures one generation run. Zero values fall back to
// defaults: in_person mode, heuristic strategy, 5 groups of 4 with the
// neighborhood preference on.
type GenerateRequest struct {
	Mode                      string `json:"mode"`
	Strategy                  string `json:"strategy"`
	MaxGroups                 int    `json:"max_groups"`
	TargetGroupSize           int    `json:"target_group_size"`
	SameNeighborhoodPreferred *bool  `json:"same_neighborhood_preferred"`
	DryRun                    bool   `json:"dry_run"`
}

// GeneratedGroup is one formed group in a generation response. ID is nil on
// dry runs.
type GeneratedGroup struct {
	ID        *uuid.UUID            `json:"id"`
	MemberIDs []uuid.UUID           `json:"member_ids"`
	VenueName *string               `json:"venue_name"`
	Status    lifecycle.GroupStatus `json:"status"`
	Mode      lifecycle.GroupMode   `json:"mode"`
	Summary   matching.ScoreSummary `json:"score_summary"`
}

// GenerateResponse reports what a run did and why users were skipped.
type GenerateResponse struct {
	StrategyUsed  string           `json:"strategy_used"`
	DryRun        bool             `json:"dry_run"`
	CreatedGroups int              `json:"created_groups"`
	SkippedUsers  int              `json:"skipped_users"`
	SkipReasons   map[string]int   `json:"skip_reasons"`
	Groups        []GeneratedGroup `json:"groups"`
}

// Generate runs one formation pass: builds the eligibility pool, aggregates
// signals, forms groups and persists them in a single transaction. Dry runs
// form but never persist.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	s.appCtx.Logger.Debug("Generate called",
		"mode", req.Mode, "strategy", req.Strategy, "max_groups", req.MaxGroups, "dry_run", req.DryRun)

	mode, strategy, params, err := s.normalizeParams(req)
	if err != nil {
		return nil, err
	}

	eligible, err := s.users.ListEligibleUsers(ctx, mode)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	activeIDs, err := s.users.ListActiveGroupedUserIDs(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	skipReasons := map[string]int{}
	pool := make([]matching.Candidate, 0, len(eligible))
	for _, u := range eligible {
		if _, taken := activeIDs[u.ID]; taken {
			skipReasons[SkipAlreadyInActiveGroup]++
			continue
		}
		pool = append(pool, matching.Candidate{ID: u.ID, Neighborhood: u.Neighborhood})
	}

	poolIDs := make([]uuid.UUID, len(pool))
	for i, c := range pool {
		poolIDs[i] = c.ID
	}
	sigs, err := s.users.BuildSignals(ctx, poolIDs)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	proposed, unassigned, err := s.engine.Propose(ctx, pool, sigs, params)
	if err != nil {
		if errors.Is(err, matching.ErrUnsupportedGroupSize) {
			return nil, svcErr.InvalidArgument(err.Error())
		}
		return nil, svcErr.Map(err)
	}

	if unassigned > 0 {
		if len(proposed) == params.MaxGroups {
			skipReasons[SkipMaxGroupsCapReached] = unassigned
		} else {
			skipReasons[SkipInsufficientCandidates] = unassigned
		}
	}

	resp := &GenerateResponse{
		StrategyUsed: string(strategy),
		DryRun:       req.DryRun,
		SkippedUsers: skipReasons[SkipAlreadyInActiveGroup] + unassigned,
		SkipReasons:  skipReasons,
	}
	for _, g := range proposed {
		resp.Groups = append(resp.Groups, GeneratedGroup{
			MemberIDs: g.MemberIDs,
			VenueName: g.VenueName,
			Status:    g.Status,
			Mode:      g.Mode,
			Summary:   g.Summary,
		})
	}

	if req.DryRun || len(proposed) == 0 {
		s.appCtx.Logger.Info("generation run finished",
			"dry_run", req.DryRun, "proposed", len(proposed), "skipped", resp.SkippedUsers)
		return resp, nil
	}

	created := 0
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txGroups := s.groups.WithTx(tx)

		// Re-check the active-membership guard under the transaction: a
		// concurrent run may have grouped some of these users since the pool
		// was computed.
		activeNow, err := s.users.WithTx(tx).ListActiveGroupedUserIDs(ctx)
		if err != nil {
			return err
		}

		kept := resp.Groups[:0]
		for _, g := range proposed {
			if taken := countActive(g.MemberIDs, activeNow); taken > 0 {
				skipReasons[SkipAlreadyInActiveGroup] += len(g.MemberIDs)
				resp.SkippedUsers += len(g.MemberIDs)
				continue
			}
			row, err := txGroups.CreateProposedGroup(ctx, g, lifecycle.SourceSystem)
			if err != nil {
				return err
			}
			id := row.ID
			kept = append(kept, GeneratedGroup{
				ID:        &id,
				MemberIDs: g.MemberIDs,
				VenueName: g.VenueName,
				Status:    g.Status,
				Mode:      g.Mode,
				Summary:   g.Summary,
			})
			for _, m := range g.MemberIDs {
				activeNow[m] = struct{}{}
			}
			created++
		}
		resp.Groups = kept
		return nil
	})
	if err != nil {
		s.appCtx.Logger.Error("generation persist failed", "err", err)
		return nil, svcErr.Map(err)
	}

	resp.CreatedGroups = created
	s.appCtx.Logger.Info("generation run finished",
		"dry_run", false, "created", resp.CreatedGroups, "skipped", resp.SkippedUsers)
	return resp, nil
}

func (s *Service) normalizeParams(req GenerateRequest) (lifecycle.GroupMode, matching.Strategy, matching.Params, error) {
	mode := lifecycle.ModeInPerson
	switch req.Mode {
	case "", string(lifecycle.ModeInPerson):
	case string(lifecycle.ModeChatOnly):
		mode = lifecycle.ModeChatOnly
	default:
		return "", "", matching.Params{}, svcErr.InvalidArgument("mode must be in_person or chat_only")
	}

	strategy := matching.StrategyHeuristic
	switch req.Strategy {
	case "", string(matching.StrategyHeuristic):
	case string(matching.StrategyVectorHybrid):
		strategy = matching.StrategyVectorHybrid
	default:
		return "", "", matching.Params{}, svcErr.InvalidArgument("strategy must be heuristic or vector_hybrid")
	}
	if strategy == matching.StrategyVectorHybrid && s.appCtx.Similarity == nil {
		strategy = matching.StrategyHeuristic
	}

	maxGroups := req.MaxGroups
	if maxGroups == 0 {
		maxGroups = defaultMaxGroups
	}
	if maxGroups < 1 || maxGroups > maxMaxGroups {
		return "", "", matching.Params{}, svcErr.InvalidArgument("max_groups must be between 1 and 50")
	}

	size := req.TargetGroupSize
	if size == 0 {
		size = matching.SupportedGroupSize
	}

	preferred := true
	if req.SameNeighborhoodPreferred != nil {
		preferred = *req.SameNeighborhoodPreferred
	}

	return mode, strategy, matching.Params{
		Mode:                      mode,
		Strategy:                  strategy,
		MaxGroups:                 maxGroups,
		TargetGroupSize:           size,
		SameNeighborhoodPreferred: preferred,
	}, nil
}

// MemberView is one membership row in a group detail.
type MemberView struct {
	UserID       uuid.UUID              `json:"user_id"`
	DisplayName  string                 `json:"display_name"`
	Neighborhood string                 `json:"neighborhood"`
	Status       lifecycle.MemberStatus `json:"status"`
	SlotNumber   *int                   `json:"slot_number"`
}

// VenueView is the venue snapshot exposed to members.
type VenueView struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// GroupDetail is the member-facing view of one group.
type GroupDetail struct {
	ID            uuid.UUID                      `json:"id"`
	Status        lifecycle.GroupStatus          `json:"status"`
	Mode          lifecycle.GroupMode            `json:"mode"`
	ChatRoomKey   *string                        `json:"chat_room_key"`
	ScheduledFor  *time.Time                     `json:"scheduled_for"`
	AcceptedCount int                            `json:"accepted_count"`
	StatusCounts  map[lifecycle.MemberStatus]int `json:"status_counts"`
	YourStatus    lifecycle.MemberStatus         `json:"your_status"`
	Members       []MemberView                   `json:"members"`
	Venue         *VenueView                     `json:"venue"`
	CreatedAt     time.Time                      `json:"created_at"`
}

// GroupListItem is one row in a member's group list.
type GroupListItem struct {
	ID            uuid.UUID             `json:"id"`
	Status        lifecycle.GroupStatus `json:"status"`
	Mode          lifecycle.GroupMode   `json:"mode"`
	ChatRoomKey   *string               `json:"chat_room_key"`
	AcceptedCount int                   `json:"accepted_count"`
	CreatedAt     time.Time             `json:"created_at"`
}

// List returns the caller's groups, most recently updated first. Groups where
// the membership was declined, left, removed or replaced are hidden unless
// includeInactive is set.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int, includeInactive bool) ([]GroupListItem, error) {
	limit = clampPageSize(limit)
	groups, err := s.groups.ListForUser(ctx, userID, limit, offset, includeInactive)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	items := make([]GroupListItem, 0, len(groups))
	for _, g := range groups {
		accepted, err := s.acceptedCount(ctx, g.ID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		items = append(items, GroupListItem{
			ID:            g.ID,
			Status:        g.Status,
			Mode:          g.Mode,
			ChatRoomKey:   g.ChatRoomKey,
			AcceptedCount: accepted,
			CreatedAt:     g.CreatedAt,
		})
	}
	return items, nil
}

// Get returns the full view of one group to one of its members. Non-members
// get NOT_FOUND, never a hint that the group exists.
func (s *Service) Get(ctx context.Context, groupID, userID uuid.UUID) (*GroupDetail, error) {
	group, err := s.groups.GetForUser(ctx, groupID, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.buildDetail(ctx, group, userID)
}

func (s *Service) buildDetail(ctx context.Context, group *db.GroupMatch, userID uuid.UUID) (*GroupDetail, error) {
	members, err := s.groups.ListMembersWithUsers(ctx, group.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	venue, err := s.groups.GetVenue(ctx, group.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	accepted, err := s.acceptedCount(ctx, group.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	statusCounts, err := s.groups.MemberStatusCounts(ctx, group.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	detail := &GroupDetail{
		ID:            group.ID,
		Status:        group.Status,
		Mode:          group.Mode,
		ChatRoomKey:   group.ChatRoomKey,
		ScheduledFor:  group.ScheduledFor,
		AcceptedCount: accepted,
		StatusCounts:  statusCounts,
		CreatedAt:     group.CreatedAt,
	}
	for _, m := range members {
		if m.Member.UserID == userID {
			detail.YourStatus = m.Member.Status
		}
		detail.Members = append(detail.Members, MemberView{
			UserID:       m.User.ID,
			DisplayName:  m.User.DisplayName,
			Neighborhood: m.User.Neighborhood,
			Status:       m.Member.Status,
			SlotNumber:   m.Member.SlotNumber,
		})
	}
	if venue != nil {
		detail.Venue = &VenueView{Name: venue.NameSnapshot, Kind: venue.VenueKind}
	}
	return detail, nil
}

// MemberAction applies accept/decline/leave for the caller's membership and
// recomputes the group status inside one transaction.
func (s *Service) MemberAction(ctx context.Context, groupID, userID uuid.UUID, action lifecycle.MemberAction) (*GroupDetail, error) {
	s.appCtx.Logger.Debug("MemberAction called", "group", groupID, "user", userID, "action", action)

	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txGroups := s.groups.WithTx(tx)

		member, err := txGroups.GetMemberForUpdate(ctx, groupID, userID)
		if err != nil {
			return err
		}
		group, err := txGroups.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}

		newStatus, err := lifecycle.ValidateMemberAction(group.Status, member.Status, action)
		if err != nil {
			var conflict *lifecycle.ConflictError
			if errors.As(err, &conflict) {
				return svcErr.Conflict(conflict.Reason)
			}
			return err
		}
		if err := txGroups.ApplyMemberStatus(ctx, member, newStatus); err != nil {
			return err
		}

		accepted, err := txGroups.AcceptedCount(ctx, groupID)
		if err != nil {
			return err
		}
		venue, err := txGroups.GetVenue(ctx, groupID)
		if err != nil {
			return err
		}

		next := lifecycle.NextGroupStatus(lifecycle.GroupSnapshot{
			Status:        group.Status,
			Mode:          group.Mode,
			AcceptedCount: accepted,
			HasVenue:      venue != nil,
		})
		if next != group.Status {
			group.Status = next
			if next == lifecycle.GroupConfirmed && group.ChatRoomKey == nil {
				key := lifecycle.ChatRoomKey(group.ID.String())
				group.ChatRoomKey = &key
			}
			if err := txGroups.SaveGroup(ctx, group); err != nil {
				return err
			}
			s.appCtx.Logger.Info("group status changed",
				"group", group.ID, "status", next, "accepted", accepted)
		}
		return nil
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}

	_ = s.appCtx.RedisCache.InvalidateAcceptedCount(ctx, groupID)
	return s.Get(ctx, groupID, userID)
}

// MatchItem is one candidate in the per-request match list.
type MatchItem struct {
	UserID           uuid.UUID `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	Neighborhood     string    `json:"neighborhood"`
	Score            int       `json:"score"`
	SharedHobbies    []string  `json:"shared_hobbies"`
	SameNeighborhood bool      `json:"same_neighborhood"`
}

// Matches scores discoverable users against the caller and returns them best
// first. Read-only; shares signal aggregation with formation but not weights.
func (s *Service) Matches(ctx context.Context, userID uuid.UUID, limit, offset int) ([]MatchItem, error) {
	limit = clampPageSize(limit)

	current, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	candidates, err := s.users.ListDiscoverableExcluding(ctx, []uuid.UUID{userID}, limit, offset)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	ids := make([]uuid.UUID, 0, len(candidates)+1)
	ids = append(ids, userID)
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	sigs, err := s.users.BuildSignals(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	me := matching.Candidate{ID: current.ID, Neighborhood: current.Neighborhood}
	items := make([]MatchItem, 0, len(candidates))
	for _, c := range candidates {
		other := matching.Candidate{ID: c.ID, Neighborhood: c.Neighborhood}
		score, overlap, sameHood := matching.MatchScore(me, other, sigs)
		items = append(items, MatchItem{
			UserID:           c.ID,
			DisplayName:      c.DisplayName,
			Neighborhood:     c.Neighborhood,
			Score:            score,
			SharedHobbies:    overlap,
			SameNeighborhood: sameHood,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	return items, nil
}

// ReindexProfiles rebuilds the vector index from current profiles and
// signals. Returns the number of indexed users.
func (s *Service) ReindexProfiles(ctx context.Context) (int, error) {
	if s.appCtx.Vectors == nil {
		return 0, svcErr.Conflict("vector store is disabled")
	}

	users, err := s.users.ListDiscoverableExcluding(ctx, nil, 1000, 0)
	if err != nil {
		return 0, svcErr.Map(err)
	}
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	sigs, err := s.users.BuildSignals(ctx, ids)
	if err != nil {
		return 0, svcErr.Map(err)
	}

	indexed := 0
	for _, u := range users {
		sig := sigs[u.ID]
		cuisines := make([]string, 0, len(sig.LikedCuisines))
		for c := range sig.LikedCuisines {
			cuisines = append(cuisines, c)
		}
		sort.Strings(cuisines)

		profile := vecstore.Profile{
			Neighborhood:    u.Neighborhood,
			OpenToMeetups:   u.OpenToMeetups,
			HobbyCodes:      sig.HobbyCodes,
			LikedCuisines:   cuisines,
			LikedRestaurant: len(sig.LikedRestaurants),
		}
		if err := s.appCtx.Vectors.UpsertProfile(ctx, u.ID, profile.Text()); err != nil {
			s.appCtx.Logger.Error("profile reindex failed", "user", u.ID, "err", err)
			return indexed, svcErr.Map(err)
		}
		indexed++
	}

	s.appCtx.Logger.Info("vector reindex finished", "indexed", indexed)
	return indexed, nil
}

// acceptedCount is cache-first: Redis hit wins, DB is fallback and refreshes
// the cache.
func (s *Service) acceptedCount(ctx context.Context, groupID uuid.UUID) (int, error) {
	if n, ok := s.appCtx.RedisCache.GetAcceptedCount(ctx, groupID); ok {
		return n, nil
	}
	n, err := s.groups.AcceptedCount(ctx, groupID)
	if err != nil {
		return 0, err
	}
	_ = s.appCtx.RedisCache.SetAcceptedCount(ctx, groupID, n)
	return n, nil
}

func countActive(ids []uuid.UUID, active map[uuid.UUID]struct{}) int {
	n := 0
	for _, id := range ids {
		if _, ok := active[id]; ok {
			n++
		}
	}
	return n
}

func clampPageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
