package screening

// Rating is one level of the six-point ordinal risk scale officers assign
// per category.
type Rating string

const (
	RatingNA       Rating = "N/A"
	RatingVeryLow  Rating = "Very Low"
	RatingLow      Rating = "Low"
	RatingModerate Rating = "Moderate"
	RatingHigh     Rating = "High"
	RatingVeryHigh Rating = "Very High"
)

// Coefficient maps a rating to its numeric weight. Unknown strings read as
// zero, same as N/A.
func (r Rating) Coefficient() float64 {
	switch r {
	case RatingVeryLow:
		return 0.2
	case RatingLow:
		return 0.4
	case RatingModerate:
		return 0.6
	case RatingHigh:
		return 0.8
	case RatingVeryHigh:
		return 1.0
	}
	return 0
}

// Valid reports whether r is one of the six scale levels.
func (r Rating) Valid() bool {
	switch r {
	case RatingNA, RatingVeryLow, RatingLow, RatingModerate, RatingHigh, RatingVeryHigh:
		return true
	}
	return false
}

// RiskRating holds the three per-category ratings for one designated
// activity.
type RiskRating struct {
	Nature   Rating `json:"nature"`
	Scale    Rating `json:"scale"`
	Location Rating `json:"location"`
}

// Unrated is the initial rating row for a newly selected activity.
func Unrated() RiskRating {
	return RiskRating{Nature: RatingNA, Scale: RatingNA, Location: RatingNA}
}
