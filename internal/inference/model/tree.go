package model

import "fmt"

// Aggregations for combining tree outputs
const (
	AggregateMean = "mean" // random forest
	AggregateSum  = "sum"  // gradient boosting
)

// Tree is a binary regression tree in flat array form. Node i is a leaf when
// Left[i] == -1; otherwise x[Feature[i]] <= Threshold[i] goes Left, else Right.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

// TreeEnsemble combines trees by mean or by sum plus a base score
type TreeEnsemble struct {
	Features    int     `json:"n_features"`
	Aggregation string  `json:"aggregation"`
	BaseScore   float64 `json:"base_score"`
	Trees       []Tree  `json:"trees"`
}

func (m *TreeEnsemble) NumFeatures() int {
	return m.Features
}

func (m *TreeEnsemble) validate() error {
	if len(m.Trees) == 0 {
		return fmt.Errorf("%w: ensemble has no trees", ErrInvalidModel)
	}
	if m.Aggregation != AggregateMean && m.Aggregation != AggregateSum {
		return fmt.Errorf("%w: unknown aggregation %q", ErrInvalidModel, m.Aggregation)
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(m.Features); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// validate checks array lengths and that children always point forward,
// which rules out cycles
func (t *Tree) validate(features int) error {
	n := len(t.Value)
	if n == 0 {
		return fmt.Errorf("%w: empty tree", ErrInvalidModel)
	}
	if len(t.Feature) != n || len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n {
		return fmt.Errorf("%w: node arrays differ in length", ErrInvalidModel)
	}

	for i := 0; i < n; i++ {
		if t.Left[i] == -1 {
			continue
		}
		if t.Left[i] <= i || t.Left[i] >= n || t.Right[i] <= i || t.Right[i] >= n {
			return fmt.Errorf("%w: node %d has invalid children", ErrInvalidModel, i)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= features {
			return fmt.Errorf("%w: node %d splits on feature %d of %d", ErrInvalidModel, i, t.Feature[i], features)
		}
	}
	return nil
}

func (t *Tree) predict(x []float64) float64 {
	node := 0
	for t.Left[node] != -1 {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

func (m *TreeEnsemble) Predict(features []float64) ([]float64, error) {
	if len(features) != m.Features {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrInvalidModel, len(features), m.Features)
	}

	var sum float64
	for i := range m.Trees {
		sum += m.Trees[i].predict(features)
	}

	if m.Aggregation == AggregateMean {
		return []float64{sum / float64(len(m.Trees))}, nil
	}
	return []float64{m.BaseScore + sum}, nil
}
