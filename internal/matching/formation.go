package matching

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/proximityhq/proximity-backend/internal/lifecycle"
)

// Strategy selects how candidates are ranked during formation.
type Strategy string

const (
	StrategyHeuristic    Strategy = "heuristic"
	StrategyVectorHybrid Strategy = "vector_hybrid"
)

// SupportedGroupSize is the only target group size currently accepted.
const SupportedGroupSize = 4

// ErrUnsupportedGroupSize rejects any target size other than
// SupportedGroupSize before any work begins.
var ErrUnsupportedGroupSize = errors.New("only target_group_size=4 is supported right now")

// Params configure one formation run.
type Params struct {
	Mode                      lifecycle.GroupMode
	Strategy                  Strategy
	MaxGroups                 int
	TargetGroupSize           int
	SameNeighborhoodPreferred bool
}

// ProposedGroup is a fully formed, not yet persisted group.
type ProposedGroup struct {
	MemberIDs []uuid.UUID
	VenueName *string
	Status    lifecycle.GroupStatus
	Mode      lifecycle.GroupMode
	Summary   ScoreSummary
}

// SimilarityProvider is the optional vector-store collaborator consulted by
// the hybrid strategy. Implementations may fail or be absent; the engine
// degrades to heuristic ordering either way.
type SimilarityProvider interface {
	SimilarUsers(ctx context.Context, anchorID uuid.UUID, candidateIDs []uuid.UUID) (map[uuid.UUID]float64, error)
}

// VenuePicker chooses a venue name for a finished group. The default is a
// name-only heuristic; a real recommendation service can be substituted
// without touching the formation loop.
type VenuePicker interface {
	PickVenueName(group []Candidate, mode lifecycle.GroupMode) *string
}

type neighborhoodVenuePicker struct{}

// NewVenuePicker returns the default name-heuristic picker: first non-empty
// member neighborhood plus " Meetup Spot", a generic default otherwise, and
// no venue at all for chat-only groups.
func NewVenuePicker() VenuePicker { return neighborhoodVenuePicker{} }

func (neighborhoodVenuePicker) PickVenueName(group []Candidate, mode lifecycle.GroupMode) *string {
	if mode == lifecycle.ModeChatOnly {
		return nil
	}
	name := "Proximity Meetup Spot"
	for _, c := range group {
		if normalizeNeighborhood(c.Neighborhood) != "" {
			name = c.Neighborhood + " Meetup Spot"
			break
		}
	}
	return &name
}

// Engine partitions an eligible pool into fixed-size candidate groups using a
// greedy anchor loop. Stateless between runs; determinism comes from the
// caller-supplied stable pool order and the total order on rankKey.
type Engine struct {
	scorer     Scorer
	venues     VenuePicker
	similarity SimilarityProvider
	log        *slog.Logger
}

// NewEngine builds a formation engine. similarity may be nil, in which case
// the hybrid strategy silently behaves like the heuristic one.
func NewEngine(scorer Scorer, venues VenuePicker, similarity SimilarityProvider, log *slog.Logger) *Engine {
	if venues == nil {
		venues = NewVenuePicker()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{scorer: scorer, venues: venues, similarity: similarity, log: log}
}

// Propose forms groups one at a time until maxGroups is reached or the pool
// can no longer fill a group. The pool must be in stable order (created_at
// asc, id asc). Returns the proposed groups and the count of users left
// unassigned.
func (e *Engine) Propose(ctx context.Context, pool []Candidate, sigs SignalSet, p Params) ([]ProposedGroup, int, error) {
	if p.TargetGroupSize != SupportedGroupSize {
		return nil, 0, ErrUnsupportedGroupSize
	}

	remaining := make([]Candidate, len(pool))
	copy(remaining, pool)

	var proposed []ProposedGroup
	for len(remaining) > 0 && len(proposed) < p.MaxGroups {
		anchor := remaining[0]
		group := []Candidate{anchor}
		candidates := remaining[1:]

		vectorScores := e.vectorScores(ctx, p.Strategy, anchor, candidates)

		// Pool of not-yet-chosen candidates for this group.
		open := make([]Candidate, len(candidates))
		copy(open, candidates)

		for len(group) < p.TargetGroupSize && len(open) > 0 {
			best := e.pickBest(open, group, sigs, vectorScores, p.SameNeighborhoodPreferred)
			group = append(group, open[best])
			open = append(open[:best], open[best+1:]...)
		}

		if len(group) < p.TargetGroupSize {
			// Not enough users left to fill another group; the partial group
			// dissolves back into the remaining pool.
			break
		}

		proposed = append(proposed, ProposedGroup{
			MemberIDs: memberIDs(group),
			VenueName: e.venues.PickVenueName(group, p.Mode),
			Status:    lifecycle.GroupForming,
			Mode:      p.Mode,
			Summary:   e.scorer.Summarize(group, sigs),
		})

		assigned := make(map[uuid.UUID]struct{}, len(group))
		for _, c := range group {
			assigned[c.ID] = struct{}{}
		}
		next := remaining[:0]
		for _, c := range remaining {
			if _, ok := assigned[c.ID]; !ok {
				next = append(next, c)
			}
		}
		remaining = next
	}

	return proposed, len(remaining), nil
}

// vectorScores queries the similarity collaborator once per anchor. Any
// failure degrades to heuristic-only scoring; generation never aborts here.
func (e *Engine) vectorScores(ctx context.Context, strategy Strategy, anchor Candidate, candidates []Candidate) map[uuid.UUID]float64 {
	if strategy != StrategyVectorHybrid || e.similarity == nil || len(candidates) == 0 {
		return nil
	}
	ids := memberIDs(candidates)
	scores, err := e.similarity.SimilarUsers(ctx, anchor.ID, ids)
	if err != nil {
		e.log.Warn("vector similarity lookup failed, falling back to heuristic scoring",
			"anchor", anchor.ID, "err", err)
		return nil
	}
	return scores
}

func (e *Engine) pickBest(open, group []Candidate, sigs SignalSet, vectorScores map[uuid.UUID]float64, neighborhoodPreferred bool) int {
	bestIdx := 0
	bestKey := e.rank(open[0], group, sigs, vectorScores, neighborhoodPreferred)
	for i := 1; i < len(open); i++ {
		key := e.rank(open[i], group, sigs, vectorScores, neighborhoodPreferred)
		if key.betterThan(bestKey) {
			bestIdx, bestKey = i, key
		}
	}
	return bestIdx
}

func (e *Engine) rank(c Candidate, group []Candidate, sigs SignalSet, vectorScores map[uuid.UUID]float64, neighborhoodPreferred bool) rankKey {
	key := rankKey{
		Vector:   noVectorScore(),
		ScoreKey: e.scorer.CandidateScore(c, group, sigs, neighborhoodPreferred),
		ID:       c.ID.String(),
	}
	if score, ok := vectorScores[c.ID]; ok {
		key.Vector = score
	}
	return key
}

func memberIDs(group []Candidate) []uuid.UUID {
	ids := make([]uuid.UUID, len(group))
	for i, c := range group {
		ids[i] = c.ID
	}
	return ids
}
