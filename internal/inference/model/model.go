// Package model holds the in-process regressors served from the native
// (gob) and portable (JSON) artifact formats.
package model

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidModel is returned when an artifact cannot be decoded into a usable model
	ErrInvalidModel = errors.New("invalid model artifact")

	// ErrFeatureOrder is returned when a model was trained on a different column order
	ErrFeatureOrder = errors.New("model feature order mismatch")
)

// Model kinds
const (
	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"
)

// Regressor predicts from a flat feature vector
type Regressor interface {
	Predict(features []float64) ([]float64, error)
	NumFeatures() int
}

// Artifact is the serialized form shared by both formats. FeatureOrder records
// the column order the model was trained on.
type Artifact struct {
	Kind         string        `json:"kind"`
	FeatureOrder []string      `json:"feature_order"`
	Linear       *Linear       `json:"linear,omitempty"`
	TreeEnsemble *TreeEnsemble `json:"tree_ensemble,omitempty"`
}

// Regressor validates the artifact and returns its model
func (a *Artifact) Regressor() (Regressor, error) {
	var r Regressor
	switch a.Kind {
	case KindLinear:
		if a.Linear == nil {
			return nil, fmt.Errorf("%w: linear body missing", ErrInvalidModel)
		}
		r = a.Linear
	case KindTreeEnsemble:
		if a.TreeEnsemble == nil {
			return nil, fmt.Errorf("%w: tree ensemble body missing", ErrInvalidModel)
		}
		if err := a.TreeEnsemble.validate(); err != nil {
			return nil, err
		}
		r = a.TreeEnsemble
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidModel, a.Kind)
	}

	if len(a.FeatureOrder) != r.NumFeatures() {
		return nil, fmt.Errorf("%w: %d feature names for a model of %d features",
			ErrInvalidModel, len(a.FeatureOrder), r.NumFeatures())
	}
	return r, nil
}

// CheckFeatureOrder fails unless the training order equals the serving order
func (a *Artifact) CheckFeatureOrder(serving []string) error {
	if !slices.Equal(a.FeatureOrder, serving) {
		return fmt.Errorf("%w: trained on %v, serving %v", ErrFeatureOrder, a.FeatureOrder, serving)
	}
	return nil
}

// Linear is y = intercept + coefficients . x
type Linear struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func (m *Linear) NumFeatures() int {
	return len(m.Coefficients)
}

func (m *Linear) Predict(features []float64) ([]float64, error) {
	if len(features) != len(m.Coefficients) {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrInvalidModel, len(features), len(m.Coefficients))
	}
	y := m.Intercept
	for i, x := range features {
		y += m.Coefficients[i] * x
	}
	return []float64{y}, nil
}
