package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultColumns() Columns {
	return Columns{
		Features: []string{
			"model", "kilometers", "fuel_type", "gear_type", "vehicle_type", "age_in_months",
			"color", "line", "doors", "seats", "climate",
		},
		Categorical: []string{"fuel_type", "gear_type", "vehicle_type", "color", "line", "doors", "seats", "climate"},
		Numerical:   []string{"model", "kilometers", "age_in_months"},
	}
}

func requestFields() []string {
	return defaultColumns().Features
}

func TestValidateColumns(t *testing.T) {
	tests := []struct {
		name        string
		features    int
		categorical int
		numerical   int
		wantErr     bool
	}{
		{name: "exact split", features: 11, categorical: 8, numerical: 3},
		{name: "one feature too many", features: 12, categorical: 8, numerical: 3, wantErr: true},
		{name: "one feature too few", features: 10, categorical: 8, numerical: 3, wantErr: true},
		{name: "all categorical", features: 4, categorical: 4, numerical: 0},
		{name: "all empty", features: 0, categorical: 0, numerical: 0},
		{name: "no features declared", features: 0, categorical: 1, numerical: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateColumns(make([]string, tt.features), make([]string, tt.categorical), make([]string, tt.numerical))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrColumnMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Columns)
		fields  []string
		wantMsg string
	}{
		{name: "default layout"},
		{
			name:    "length mismatch",
			mutate:  func(c *Columns) { c.Features = c.Features[:10] },
			wantMsg: "10 features",
		},
		{
			name: "duplicate categorical",
			mutate: func(c *Columns) {
				c.Categorical[1] = "fuel_type"
			},
			wantMsg: `lists "fuel_type" twice`,
		},
		{
			name: "column in both lists",
			mutate: func(c *Columns) {
				c.Numerical[0] = "color"
				c.Features[0] = "colour"
			},
			wantMsg: "both categorical and numerical",
		},
		{
			name:    "feature not declared",
			mutate:  func(c *Columns) { c.Features[0] = "engine_size" },
			wantMsg: "features differ",
		},
		{
			name:    "request field missing from config",
			fields:  append(requestFields(), "engine_size"),
			wantMsg: "request fields not declared [engine_size]",
		},
		{
			name:    "declared column with no request field",
			fields:  requestFields()[1:],
			wantMsg: "without a request field [model]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := defaultColumns()
			if tt.mutate != nil {
				tt.mutate(&cols)
			}
			fields := tt.fields
			if fields == nil {
				fields = requestFields()
			}

			err := Reconcile(cols, fields)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrColumnMismatch)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestColumns_Order(t *testing.T) {
	cols := defaultColumns()

	assert.Equal(t, []string{
		"model", "kilometers", "age_in_months",
		"fuel_type", "gear_type", "vehicle_type", "color", "line", "doors", "seats", "climate",
	}, cols.Order())

	// Order must not alias the numerical slice
	order := cols.Order()
	order[0] = "changed"
	assert.Equal(t, "model", cols.Numerical[0])
}
