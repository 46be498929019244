package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

type envelope struct {
	Kind        string `json:"kind"`
	NFeaturesIn int    `json:"n_features_in"`
}

type transformArtifact struct {
	envelope
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
	Min     []float64 `json:"min"`
	DataMin []float64 `json:"data_min"`
	DataMax []float64 `json:"data_max"`
}

type classifierArtifact struct {
	envelope
	Nodes        []TreeNode   `json:"nodes"`
	Trees        [][]TreeNode `json:"trees"`
	Init         float64      `json:"init"`
	LearningRate float64      `json:"learning_rate"`
}

// LoadTransform reads a transform artifact from location through src.
func LoadTransform(ctx context.Context, src Source, location string) (Transform, error) {
	rc, err := src.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	t, err := DecodeTransform(rc)
	if err != nil {
		return nil, fmt.Errorf("load transform %s: %w", location, err)
	}
	return t, nil
}

// LoadModel reads a classifier artifact from location through src.
func LoadModel(ctx context.Context, src Source, location string) (Classifier, error) {
	rc, err := src.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	m, err := DecodeClassifier(rc)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", location, err)
	}
	return m, nil
}

// DecodeTransform parses a transform artifact and dispatches on its kind.
func DecodeTransform(r io.Reader) (Transform, error) {
	var a transformArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}

	var (
		t   Transform
		err error
	)
	switch a.Kind {
	case KindStandardScaler:
		t, err = NewStandardScaler(a.Mean, a.Scale)
	case KindMinMaxScaler:
		if len(a.Scale) == 0 && len(a.DataMin) > 0 {
			t, err = MinMaxScalerFromRange(a.DataMin, a.DataMax)
		} else {
			t, err = NewMinMaxScaler(a.Scale, a.Min)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, a.Kind)
	}
	if err != nil {
		return nil, err
	}
	if a.NFeaturesIn != 0 && a.NFeaturesIn != t.InputWidth() {
		return nil, fmt.Errorf("%w: n_features_in %d but parameters cover %d", ErrCorruptArtifact, a.NFeaturesIn, t.InputWidth())
	}
	return t, nil
}

// DecodeClassifier parses a classifier artifact and dispatches on its kind.
func DecodeClassifier(r io.Reader) (Classifier, error) {
	var a classifierArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}

	var (
		m   Classifier
		err error
	)
	switch a.Kind {
	case KindDecisionTree:
		m, err = NewDecisionTree(a.Nodes, a.NFeaturesIn)
	case KindRandomForest:
		m, err = NewRandomForest(a.Trees, a.NFeaturesIn)
	case KindGradientBoosting:
		m, err = NewGradientBoosting(a.Trees, a.NFeaturesIn, a.Init, a.LearningRate)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, a.Kind)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
