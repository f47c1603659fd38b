package matching

import "math"

// Neighborhood bonus weights. The per-request match scorer and the group
// formation scorer intentionally weigh the same signal differently (pairwise
// candidate ranking vs group cohesion); they stay separately configurable.
const (
	DefaultPairNeighborhoodBonus  = 1
	DefaultGroupNeighborhoodBonus = 2
)

// Scorer computes compatibility scores from aggregated signals. Pure; safe
// for concurrent use.
type Scorer struct {
	// GroupNeighborhoodBonus is added per same-neighborhood pair when the
	// caller enabled neighborhood preference during formation.
	GroupNeighborhoodBonus int
}

// NewScorer returns a Scorer with the default formation weights.
func NewScorer() Scorer {
	return Scorer{GroupNeighborhoodBonus: DefaultGroupNeighborhoodBonus}
}

// ScoreKey is the aggregate candidate score against a partially built group.
// Field order is the literal sort key of the formation engine.
type ScoreKey struct {
	Weighted              int
	RatingAffinity        int
	HobbyOverlap          int
	SameNeighborhoodPairs int
}

// ScoreSummary describes a finished group. Descriptive only; it never feeds
// back into scoring decisions.
type ScoreSummary struct {
	AvgPairHobbyOverlap   float64 `json:"avg_pair_hobby_overlap"`
	SameNeighborhoodPairs int     `json:"same_neighborhood_pairs"`
}

// RatingAffinity scores shared liked restaurants at weight 2 and shared liked
// cuisines at weight 1.
func RatingAffinity(a, b UserSignals) int {
	shared := 0
	for id := range a.LikedRestaurants {
		if _, ok := b.LikedRestaurants[id]; ok {
			shared++
		}
	}
	cuisines := 0
	for c := range a.LikedCuisines {
		if _, ok := b.LikedCuisines[c]; ok {
			cuisines++
		}
	}
	return 2*shared + cuisines
}

// PairScore is the symmetric pairwise compatibility of two users.
func (s Scorer) PairScore(a, b Candidate, sigs SignalSet, neighborhoodPreferred bool) int {
	sa, sb := sigs[a.ID], sigs[b.ID]
	score := hobbyOverlap(sa.HobbyCodes, sb.HobbyCodes) + RatingAffinity(sa, sb)
	if neighborhoodPreferred && SameNeighborhood(a, b) {
		score += s.GroupNeighborhoodBonus
	}
	return score
}

// CandidateScore aggregates a candidate against every current group member.
func (s Scorer) CandidateScore(c Candidate, group []Candidate, sigs SignalSet, neighborhoodPreferred bool) ScoreKey {
	var key ScoreKey
	cs := sigs[c.ID]
	for _, member := range group {
		ms := sigs[member.ID]
		key.HobbyOverlap += hobbyOverlap(cs.HobbyCodes, ms.HobbyCodes)
		key.RatingAffinity += RatingAffinity(cs, ms)
		if neighborhoodPreferred && SameNeighborhood(c, member) {
			key.SameNeighborhoodPairs++
		}
	}
	key.Weighted = key.HobbyOverlap + key.RatingAffinity
	if neighborhoodPreferred {
		key.Weighted += s.GroupNeighborhoodBonus * key.SameNeighborhoodPairs
	}
	return key
}

// Summarize computes the descriptive summary of a finished group: average
// pairwise hobby overlap across all C(n,2) pairs rounded to 3 decimals, and
// the count of same-neighborhood pairs.
func (s Scorer) Summarize(group []Candidate, sigs SignalSet) ScoreSummary {
	var summary ScoreSummary
	total, pairs := 0, 0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			total += hobbyOverlap(sigs[group[i].ID].HobbyCodes, sigs[group[j].ID].HobbyCodes)
			if SameNeighborhood(group[i], group[j]) {
				summary.SameNeighborhoodPairs++
			}
			pairs++
		}
	}
	if pairs > 0 {
		summary.AvgPairHobbyOverlap = math.Round(float64(total)/float64(pairs)*1000) / 1000
	}
	return summary
}

// MatchScore is the simple per-request scorer behind GET /matches: hobby
// overlap plus a weight-1 neighborhood bonus. It does not share weights with
// the formation scorer.
func MatchScore(current, candidate Candidate, sigs SignalSet) (score int, overlap []string, sameNeighborhood bool) {
	cs, xs := sigs[current.ID], sigs[candidate.ID]
	i, j := 0, 0
	for i < len(cs.HobbyCodes) && j < len(xs.HobbyCodes) {
		switch {
		case cs.HobbyCodes[i] == xs.HobbyCodes[j]:
			overlap = append(overlap, cs.HobbyCodes[i])
			i++
			j++
		case cs.HobbyCodes[i] < xs.HobbyCodes[j]:
			i++
		default:
			j++
		}
	}
	sameNeighborhood = SameNeighborhood(current, candidate)
	score = len(overlap)
	if sameNeighborhood {
		score += DefaultPairNeighborhoodBonus
	}
	return score, overlap, sameNeighborhood
}

// rankKey is the composite selection key: vector similarity first (absent
// candidates rank at -Inf), then the heuristic tuple, then the identity
// string. All components descending.
type rankKey struct {
	Vector float64
	ScoreKey
	ID string
}

func noVectorScore() float64 { return math.Inf(-1) }

// betterThan defines the total order used by the formation engine.
func (k rankKey) betterThan(o rankKey) bool {
	if k.Vector != o.Vector {
		return k.Vector > o.Vector
	}
	if k.Weighted != o.Weighted {
		return k.Weighted > o.Weighted
	}
	if k.RatingAffinity != o.RatingAffinity {
		return k.RatingAffinity > o.RatingAffinity
	}
	if k.HobbyOverlap != o.HobbyOverlap {
		return k.HobbyOverlap > o.HobbyOverlap
	}
	if k.SameNeighborhoodPairs != o.SameNeighborhoodPairs {
		return k.SameNeighborhoodPairs > o.SameNeighborhoodPairs
	}
	return k.ID > o.ID
}
