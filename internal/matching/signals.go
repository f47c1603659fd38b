package matching

import (
	"strings"

	"github.com/google/uuid"
)

// UserSignals are the per-user inputs to the scorer: sorted hobby codes plus
// the restaurants and cuisines the user has rated positively. A rating counts
// as liked when rating >= 4 or would_return is true.
type UserSignals struct {
	HobbyCodes       []string
	LikedRestaurants map[uint]struct{}
	LikedCuisines    map[string]struct{}
}

// SignalSet maps user IDs to their signals. Users without data simply have no
// entry; the zero UserSignals scores as empty.
type SignalSet map[uuid.UUID]UserSignals

// Candidate is the slice of a user profile the formation engine needs.
type Candidate struct {
	ID           uuid.UUID
	Neighborhood string
}

func normalizeNeighborhood(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// SameNeighborhood reports whether both candidates carry the same non-empty
// normalized neighborhood.
func SameNeighborhood(a, b Candidate) bool {
	na := normalizeNeighborhood(a.Neighborhood)
	return na != "" && na == normalizeNeighborhood(b.Neighborhood)
}

// hobbyOverlap counts common codes between two sorted slices.
func hobbyOverlap(a, b []string) int {
	i, j, n := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}
