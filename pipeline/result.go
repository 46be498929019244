package pipeline

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Label is the verdict shown to callers.
type Label string

const (
	LabelHealthy   Label = "HEALTHY"
	LabelUnhealthy Label = "UNHEALTHY"
)

// LabelFor maps a raw class index to a Label. Only class 1 is healthy;
// every other index, including ones a binary model should never emit, is
// unhealthy.
func LabelFor(class int) Label {
	if class == 1 {
		return LabelHealthy
	}
	return LabelUnhealthy
}

// Result is the outcome of one inference call.
type Result struct {
	Label      Label
	Prediction int
	// Score is the classifier confidence; valid only when Scored is true.
	Score  float64
	Scored bool
}

func (r Result) Healthy() bool { return r.Label == LabelHealthy }

// FoodMetadata is descriptive input that never reaches the model. Times are
// bounded to one week so their sum cannot overflow.
type FoodMetadata struct {
	Name          string `json:"name"`
	Cuisine       string `json:"cuisine"`
	MealType      string `json:"meal_type"`
	DietType      string `json:"diet_type"`
	CookingMethod string `json:"cooking_method"`
	PrepMinutes   int    `json:"prep_minutes" validate:"gte=0,lte=10080"`
	CookMinutes   int    `json:"cook_minutes" validate:"gte=0,lte=10080"`
	Rating        int    `json:"rating" validate:"omitempty,min=1,max=5"`
}

// Summary echoes FoodMetadata next to a verdict.
type Summary struct {
	Name          string `json:"name"`
	Cuisine       string `json:"cuisine,omitempty"`
	MealType      string `json:"meal_type,omitempty"`
	DietType      string `json:"diet_type,omitempty"`
	CookingMethod string `json:"cooking_method,omitempty"`
	TotalMinutes  int    `json:"total_minutes"`
	Rating        int    `json:"rating"`
}

const (
	defaultRating = 3
	blankName     = "-"
)

// Summarize normalizes metadata for display next to a verdict.
func Summarize(meta FoodMetadata) Summary {
	name := strings.TrimSpace(norm.NFC.String(meta.Name))
	if name == "" {
		name = blankName
	}
	rating := meta.Rating
	if rating == 0 {
		rating = defaultRating
	}
	return Summary{
		Name:          name,
		Cuisine:       strings.TrimSpace(meta.Cuisine),
		MealType:      strings.TrimSpace(meta.MealType),
		DietType:      strings.TrimSpace(meta.DietType),
		CookingMethod: strings.TrimSpace(meta.CookingMethod),
		TotalMinutes:  meta.PrepMinutes + meta.CookMinutes,
		Rating:        rating,
	}
}
