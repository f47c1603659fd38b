package vecstore

import (
	"fmt"
	"strings"
)

// Profile is the projection of a user that feeds the embedder. It is a small,
// stable text rendering; two users with the same preferences embed
// identically.
type Profile struct {
	Neighborhood    string
	OpenToMeetups   bool
	HobbyCodes      []string
	LikedCuisines   []string
	LikedRestaurant int
}

// Text renders the profile into the embedding input.
func (p Profile) Text() string {
	mode := "chat_only"
	if p.OpenToMeetups {
		mode = "in_person"
	}
	lines := []string{
		"Proximity user preference profile",
		"meetup_mode_preference: " + mode,
		"neighborhood: " + orNone(p.Neighborhood),
		"hobbies: " + csv(p.HobbyCodes),
		"liked_cuisines: " + csv(p.LikedCuisines),
		fmt.Sprintf("liked_restaurant_count: %d", p.LikedRestaurant),
	}
	return strings.Join(lines, "\n")
}

func csv(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

func orNone(v string) string {
	if strings.TrimSpace(v) == "" {
		return "none"
	}
	return v
}
