package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stump splits feature 0 at 10: left leaf 100, right leaf 200
func stump(left, right float64) Tree {
	return Tree{
		Feature:   []int{0, -2, -2},
		Threshold: []float64{10, 0, 0},
		Left:      []int{1, -1, -1},
		Right:     []int{2, -1, -1},
		Value:     []float64{0, left, right},
	}
}

func forestArtifact() *Artifact {
	return &Artifact{
		Kind:         KindTreeEnsemble,
		FeatureOrder: []string{"kilometers", "fuel_type"},
		TreeEnsemble: &TreeEnsemble{
			Features:    2,
			Aggregation: AggregateMean,
			Trees:       []Tree{stump(100, 200), stump(300, 400)},
		},
	}
}

func TestTreeEnsemble_Predict(t *testing.T) {
	tests := []struct {
		name        string
		aggregation string
		baseScore   float64
		x           []float64
		want        float64
	}{
		{name: "mean goes left", aggregation: AggregateMean, x: []float64{5, 0}, want: 200},
		{name: "mean on threshold goes left", aggregation: AggregateMean, x: []float64{10, 0}, want: 200},
		{name: "mean goes right", aggregation: AggregateMean, x: []float64{11, 0}, want: 300},
		{name: "sum with base score", aggregation: AggregateSum, baseScore: 50, x: []float64{11, 0}, want: 650},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := forestArtifact()
			a.TreeEnsemble.Aggregation = tt.aggregation
			a.TreeEnsemble.BaseScore = tt.baseScore

			r, err := a.Regressor()
			require.NoError(t, err)

			got, err := r.Predict(tt.x)
			require.NoError(t, err)
			assert.Equal(t, []float64{tt.want}, got)
		})
	}
}

func TestLinear_Predict(t *testing.T) {
	a := &Artifact{
		Kind:         KindLinear,
		FeatureOrder: []string{"model", "kilometers"},
		Linear:       &Linear{Intercept: 1000, Coefficients: []float64{2, -0.01}},
	}

	r, err := a.Regressor()
	require.NoError(t, err)

	got, err := r.Predict([]float64{100, 5000})
	require.NoError(t, err)
	assert.InDelta(t, 1150.0, got[0], 1e-9)

	_, err = r.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestArtifact_RegressorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{name: "unknown kind", mutate: func(a *Artifact) { a.Kind = "svm" }},
		{name: "missing body", mutate: func(a *Artifact) { a.TreeEnsemble = nil }},
		{name: "no trees", mutate: func(a *Artifact) { a.TreeEnsemble.Trees = nil }},
		{name: "bad aggregation", mutate: func(a *Artifact) { a.TreeEnsemble.Aggregation = "max" }},
		{name: "feature names mismatch", mutate: func(a *Artifact) { a.FeatureOrder = a.FeatureOrder[:1] }},
		{name: "child points back", mutate: func(a *Artifact) { a.TreeEnsemble.Trees[0].Left[0] = 0 }},
		{name: "split feature out of range", mutate: func(a *Artifact) { a.TreeEnsemble.Trees[1].Feature[0] = 7 }},
		{name: "ragged arrays", mutate: func(a *Artifact) { a.TreeEnsemble.Trees[0].Threshold = []float64{1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := forestArtifact()
			tt.mutate(a)
			_, err := a.Regressor()
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestArtifact_CheckFeatureOrder(t *testing.T) {
	a := forestArtifact()

	assert.NoError(t, a.CheckFeatureOrder([]string{"kilometers", "fuel_type"}))
	assert.ErrorIs(t, a.CheckFeatureOrder([]string{"fuel_type", "kilometers"}), ErrFeatureOrder)
}

func TestCodecs(t *testing.T) {
	for _, codec := range []Codec{GobCodec{}, JSONCodec{}} {
		t.Run(codec.Ext(), func(t *testing.T) {
			data, err := codec.Encode(forestArtifact())
			require.NoError(t, err)

			a, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, forestArtifact(), a)

			_, err = codec.Decode([]byte("garbage"))
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}
