package ml

import (
	"errors"
	"fmt"
	"math"
)

const (
	KindStandardScaler = "standard"
	KindMinMaxScaler   = "minmax"
)

// StandardScaler applies fitted z-score standardization: (x - mean) / scale.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

// NewStandardScaler copies mean and scale, which must be finite and of
// equal length.
func NewStandardScaler(mean, scale []float64) (*StandardScaler, error) {
	if len(mean) == 0 {
		return nil, errors.New("mean is empty")
	}
	if len(mean) != len(scale) {
		return nil, fmt.Errorf("mean/scale length mismatch: %d vs %d", len(mean), len(scale))
	}
	if err := checkFinite("mean", mean); err != nil {
		return nil, err
	}
	if err := checkFinite("scale", scale); err != nil {
		return nil, err
	}
	return &StandardScaler{
		mean:  append([]float64(nil), mean...),
		scale: append([]float64(nil), scale...),
	}, nil
}

func (s *StandardScaler) Transform(vector []float64) ([]float64, error) {
	if len(vector) != len(s.mean) {
		return nil, fmt.Errorf("%w: transform expects %d features, got %d", ErrDimensionMismatch, len(s.mean), len(vector))
	}
	result := make([]float64, len(vector))
	for i := range vector {
		result[i] = StandardizeFeature(vector[i], s.mean[i], s.scale[i])
	}
	return result, nil
}

func (s *StandardScaler) InputWidth() int { return len(s.mean) }

func (s *StandardScaler) Kind() string { return KindStandardScaler }

// MinMaxScaler applies the fitted min-max form x*scale + min, where scale and
// min already encode the target feature range.
type MinMaxScaler struct {
	scale []float64
	min   []float64
}

// NewMinMaxScaler builds a scaler computing x*scale + min.
func NewMinMaxScaler(scale, min []float64) (*MinMaxScaler, error) {
	if len(scale) == 0 {
		return nil, errors.New("scale is empty")
	}
	if len(scale) != len(min) {
		return nil, fmt.Errorf("scale/min length mismatch: %d vs %d", len(scale), len(min))
	}
	if err := checkFinite("scale", scale); err != nil {
		return nil, err
	}
	if err := checkFinite("min", min); err != nil {
		return nil, err
	}
	return &MinMaxScaler{
		scale: append([]float64(nil), scale...),
		min:   append([]float64(nil), min...),
	}, nil
}

// MinMaxScalerFromRange builds the scaler from per-feature data bounds,
// mapping each feature onto [0, 1].
func MinMaxScalerFromRange(dataMin, dataMax []float64) (*MinMaxScaler, error) {
	if len(dataMin) != len(dataMax) {
		return nil, fmt.Errorf("data_min/data_max length mismatch: %d vs %d", len(dataMin), len(dataMax))
	}
	scale := make([]float64, len(dataMin))
	min := make([]float64, len(dataMin))
	for i := range dataMin {
		span := dataMax[i] - dataMin[i]
		if span == 0 {
			span = 1
		}
		scale[i] = 1 / span
		min[i] = -dataMin[i] * scale[i]
	}
	return NewMinMaxScaler(scale, min)
}

func (s *MinMaxScaler) Transform(vector []float64) ([]float64, error) {
	if len(vector) != len(s.scale) {
		return nil, fmt.Errorf("%w: transform expects %d features, got %d", ErrDimensionMismatch, len(s.scale), len(vector))
	}
	result := make([]float64, len(vector))
	for i := range vector {
		result[i] = vector[i]*s.scale[i] + s.min[i]
	}
	return result, nil
}

func (s *MinMaxScaler) InputWidth() int { return len(s.scale) }

func (s *MinMaxScaler) Kind() string { return KindMinMaxScaler }

// StandardizeFeature treats a zero scale as 1, matching how constant
// features are fitted.
func StandardizeFeature(value, mean, scale float64) float64 {
	if scale == 0 {
		scale = 1
	}
	return (value - mean) / scale
}

func checkFinite(name string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite", ErrCorruptArtifact, name, i)
		}
	}
	return nil
}
