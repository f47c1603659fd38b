package db

import (
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedNeighborhoods = []string{"Downtown", "Midtown", "Uptown", "Riverside"}

var seedHobbies = []Hobby{
	{Code: "hiking", Label: "Hiking"},
	{Code: "board_games", Label: "Board Games"},
	{Code: "cooking", Label: "Cooking"},
	{Code: "live_music", Label: "Live Music"},
	{Code: "photography", Label: "Photography"},
	{Code: "bouldering", Label: "Bouldering"},
	{Code: "wine_tasting", Label: "Wine Tasting"},
	{Code: "trivia", Label: "Trivia Nights"},
}

var seedRestaurants = []Restaurant{
	{Name: "Harbor Noodle Bar", Neighborhood: "Downtown", Cuisine: "ramen", PriceLevel: 2},
	{Name: "La Placita", Neighborhood: "Downtown", Cuisine: "mexican", PriceLevel: 1},
	{Name: "Midtown Grill", Neighborhood: "Midtown", Cuisine: "american", PriceLevel: 3},
	{Name: "Saffron House", Neighborhood: "Midtown", Cuisine: "indian", PriceLevel: 2},
	{Name: "Uptown Trattoria", Neighborhood: "Uptown", Cuisine: "italian", PriceLevel: 3},
	{Name: "Pho Corner", Neighborhood: "Uptown", Cuisine: "vietnamese", PriceLevel: 1},
	{Name: "Riverside Sushi", Neighborhood: "Riverside", Cuisine: "japanese", PriceLevel: 3},
	{Name: "The Falafel Stop", Neighborhood: "Riverside", Cuisine: "middle_eastern", PriceLevel: 1},
}

// SeedDemoData resets the database and populates it with demo users ready for
// group-match generation.
//
// Behavior:
//  1. Clears all tables touched by the matching core.
//  2. Creates the hobby catalog and a set of restaurants across four
//     neighborhoods.
//  3. Creates 16 discoverable users, 4 per neighborhood, all open to meetups,
//     with overlapping hobby sets and patterned restaurant ratings so that
//     same-neighborhood groups score highest.
//
// Compatible with both MySQL and SQLite.
func SeedDemoData(db *gorm.DB) error {
	tables := []string{
		"group_chat_messages",
		"group_match_venues",
		"group_match_members",
		"group_matches",
		"restaurant_ratings",
		"user_hobbies",
		"restaurants",
		"hobbies",
		"users",
	}
	for _, table := range tables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Println("Cleared existing data")

	hobbies := make([]Hobby, len(seedHobbies))
	copy(hobbies, seedHobbies)
	if err := db.Create(&hobbies).Error; err != nil {
		return fmt.Errorf("failed to seed hobbies: %w", err)
	}

	restaurants := make([]Restaurant, len(seedRestaurants))
	copy(restaurants, seedRestaurants)
	if err := db.Create(&restaurants).Error; err != nil {
		return fmt.Errorf("failed to seed restaurants: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	wouldReturn := true
	for i := 0; i < 16; i++ {
		neighborhood := seedNeighborhoods[i/4]
		user := User{
			Email:         fmt.Sprintf("user%d@example.com", i+1),
			DisplayName:   fmt.Sprintf("Demo User %d", i+1),
			PasswordHash:  string(hash),
			Neighborhood:  neighborhood,
			Discoverable:  true,
			OpenToMeetups: true,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		// Neighbors share two hobbies; a third rotates per user.
		picks := []Hobby{
			hobbies[(i/4)*2%len(hobbies)],
			hobbies[((i/4)*2+1)%len(hobbies)],
			hobbies[i%len(hobbies)],
		}
		for _, h := range picks {
			link := UserHobby{UserID: user.ID, HobbyID: h.ID}
			if err := db.Where(&link).FirstOrCreate(&link).Error; err != nil {
				return fmt.Errorf("failed to seed user hobby: %w", err)
			}
		}

		// Everyone loves the two restaurants in their own neighborhood and is
		// lukewarm on one elsewhere.
		local := restaurants[(i/4)*2 : (i/4)*2+2]
		for _, r := range local {
			rating := RestaurantRating{
				UserID:       user.ID,
				RestaurantID: r.ID,
				Rating:       4 + i%2,
				Visited:      true,
				WouldReturn:  &wouldReturn,
			}
			if err := db.Create(&rating).Error; err != nil {
				return fmt.Errorf("failed to seed rating: %w", err)
			}
		}
		elsewhere := restaurants[((i/4)*2+3)%len(restaurants)]
		rating := RestaurantRating{
			UserID:       user.ID,
			RestaurantID: elsewhere.ID,
			Rating:       2 + i%2,
			Visited:      true,
		}
		if err := db.Create(&rating).Error; err != nil {
			return fmt.Errorf("failed to seed rating: %w", err)
		}
	}

	log.Println("Seeded 16 users with hobbies and ratings.")
	return nil
}
