package domain

// SponsorDetails overlays partner information on a restaurant place. ID is the place id.
type SponsorDetails struct {
	ID           string `json:"id" firestore:"-"`
	Phone        string `json:"phone,omitempty" firestore:"phone,omitempty"`
	Website      string `json:"website,omitempty" firestore:"website,omitempty"`
	OpeningHours string `json:"openingHours,omitempty" firestore:"openingHours,omitempty"`
	Discount     string `json:"discount,omitempty" firestore:"discount,omitempty"`
	IsSponsor    bool   `json:"isSponsor" firestore:"isSponsor"`
}

// Restaurant is a restaurant place joined with its sponsor overlay.
type Restaurant struct {
	Place
	Phone        string `json:"phone,omitempty"`
	Website      string `json:"website,omitempty"`
	OpeningHours string `json:"openingHours,omitempty"`
	Discount     string `json:"discount,omitempty"`
	IsSponsor    bool   `json:"isSponsor"`
}

// JoinRestaurants merges restaurant places with their overlay entries. Sponsors come first.
func JoinRestaurants(places []Place, overlay []SponsorDetails) []Restaurant {
	byID := make(map[string]SponsorDetails, len(overlay))
	for _, d := range overlay {
		byID[d.ID] = d
	}
	var sponsors, others []Restaurant
	for _, p := range places {
		if p.Category != CategoryRestaurants {
			continue
		}
		d := byID[p.ID]
		r := Restaurant{
			Place:        p,
			Phone:        d.Phone,
			Website:      d.Website,
			OpeningHours: d.OpeningHours,
			Discount:     d.Discount,
			IsSponsor:    d.IsSponsor,
		}
		if r.IsSponsor {
			sponsors = append(sponsors, r)
		} else {
			others = append(others, r)
		}
	}
	return append(append(make([]Restaurant, 0, len(sponsors)+len(others)), sponsors...), others...)
}
