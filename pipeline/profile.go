package pipeline

// FeatureCount is the width of the assembled vector.
const FeatureCount = 9

// Vector is an assembled nutrient vector in FeatureNames order.
type Vector [FeatureCount]float64

func (v Vector) Slice() []float64 {
	return append([]float64(nil), v[:]...)
}

// NutrientProfile holds the nutrient values for one food. A nil field is
// missing.
type NutrientProfile struct {
	Calories     *float64 `json:"calories"`     // kcal
	Protein      *float64 `json:"protein"`      // g
	Carbohydrate *float64 `json:"carbohydrate"` // g
	Fat          *float64 `json:"fat"`          // g
	Fiber        *float64 `json:"fiber"`        // g
	Sugar        *float64 `json:"sugar"`        // g
	Sodium       *float64 `json:"sodium"`       // mg
	Cholesterol  *float64 `json:"cholesterol"`  // mg
	ServingSize  *float64 `json:"serving_size"` // g
}

// NewNutrientProfile builds a profile with every field present.
func NewNutrientProfile(calories, protein, carbohydrate, fat, fiber, sugar, sodium, cholesterol, servingSize float64) NutrientProfile {
	return NutrientProfile{
		Calories:     &calories,
		Protein:      &protein,
		Carbohydrate: &carbohydrate,
		Fat:          &fat,
		Fiber:        &fiber,
		Sugar:        &sugar,
		Sodium:       &sodium,
		Cholesterol:  &cholesterol,
		ServingSize:  &servingSize,
	}
}

// FeatureNames returns the fixed order the fitted artifacts expect.
func FeatureNames() []string {
	return []string{
		"calories",
		"protein",
		"carbohydrate",
		"fat",
		"fiber",
		"sugar",
		"sodium",
		"cholesterol",
		"serving_size",
	}
}

func (p NutrientProfile) fields() [FeatureCount]*float64 {
	return [FeatureCount]*float64{
		p.Calories,
		p.Protein,
		p.Carbohydrate,
		p.Fat,
		p.Fiber,
		p.Sugar,
		p.Sodium,
		p.Cholesterol,
		p.ServingSize,
	}
}
