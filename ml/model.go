package ml

// Transform is a fitted normalization stage. Implementations are immutable
// after construction and safe for concurrent use.
type Transform interface {
	Transform(vector []float64) ([]float64, error)
	InputWidth() int
	Kind() string
}

// Classifier is a fitted model that maps a normalized vector to a class
// index. The returned score is only meaningful when HasScore reports true.
type Classifier interface {
	Predict(features []float64) (int, float64, error)
	InputWidth() int
	HasScore() bool
	Kind() string
}
