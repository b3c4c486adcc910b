package domain

import (
	"strings"
)

// PlaceCategory groups points of interest on the map.
type PlaceCategory string

const (
	CategoryMonuments   PlaceCategory = "monumenti"
	CategoryStadiums    PlaceCategory = "stadi"
	CategoryBars        PlaceCategory = "locali"
	CategoryRestaurants PlaceCategory = "ristoranti"
	CategoryMuseums     PlaceCategory = "musei"
	CategoryShopping    PlaceCategory = "shopping"
	CategoryChurches    PlaceCategory = "chiese"
	CategorySquares     PlaceCategory = "piazze"
)

// CategoryInfo is the display metadata of a place category.
type CategoryInfo struct {
	ID    PlaceCategory `json:"id"`
	Label string        `json:"label"`
	Color string        `json:"color"`
}

var placeCategories = []CategoryInfo{
	{ID: CategoryMonuments, Label: "Monumenti", Color: "#8B0000"},
	{ID: CategoryStadiums, Label: "Stadi", Color: "#FFD700"},
	{ID: CategoryBars, Label: "Locali", Color: "#FF6B35"},
	{ID: CategoryRestaurants, Label: "Ristoranti", Color: "#CD853F"},
	{ID: CategoryMuseums, Label: "Musei", Color: "#4169E1"},
	{ID: CategoryShopping, Label: "Shopping", Color: "#228B22"},
	{ID: CategoryChurches, Label: "Chiese", Color: "#9932CC"},
	{ID: CategorySquares, Label: "Piazze", Color: "#FF69B4"},
}

// PlaceCategories returns the category catalogue in display order.
func PlaceCategories() []CategoryInfo {
	return append([]CategoryInfo(nil), placeCategories...)
}

// LookupCategory returns the metadata for id.
func LookupCategory(id PlaceCategory) (CategoryInfo, bool) {
	for _, c := range placeCategories {
		if c.ID == id {
			return c, true
		}
	}
	return CategoryInfo{}, false
}

// Place is a point of interest on the map.
type Place struct {
	ID          string        `json:"id" firestore:"-"`
	Name        string        `json:"name" firestore:"name"`
	Category    PlaceCategory `json:"category" firestore:"category"`
	Lat         float64       `json:"lat" firestore:"lat"`
	Lng         float64       `json:"lng" firestore:"lng"`
	Description string        `json:"description" firestore:"description"`
	Address     string        `json:"address" firestore:"address"`
	Image       string        `json:"image" firestore:"image"`
}

// ValidatePlace requires a name, a known category and plausible coordinates.
func ValidatePlace(p Place) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "is required")
	}
	if _, ok := LookupCategory(p.Category); !ok {
		return invalid("category", "%q is not supported", p.Category)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return invalid("lat", "out of range")
	}
	if p.Lng < -180 || p.Lng > 180 {
		return invalid("lng", "out of range")
	}
	return nil
}

// PlacesByCategory filters places. An empty category returns every place.
func PlacesByCategory(places []Place, category PlaceCategory) []Place {
	out := make([]Place, 0, len(places))
	for _, p := range places {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// CountByCategory tallies places per category.
func CountByCategory(places []Place) map[PlaceCategory]int {
	counts := make(map[PlaceCategory]int, len(placeCategories))
	for _, p := range places {
		counts[p.Category]++
	}
	return counts
}
