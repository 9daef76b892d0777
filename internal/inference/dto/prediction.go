package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Category is a categorical feature value. JSON strings and numbers are both
// accepted, since spreadsheet cells like doors=5 arrive as numbers.
type Category string

func (c *Category) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Category(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*c = Category(canonicalNumber(n))
		return nil
	default:
		return fmt.Errorf("category must be a string or a number, got %s", data)
	}
}

// canonicalNumber renders 4.0 as "4" so float encoded integers match their category
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return n.String()
}

// PredictionRequest is the fixed feature schema accepted by the gateway
type PredictionRequest struct {
	ModelGroup string `json:"model_group" binding:"required"`

	Model       *float64 `json:"model" binding:"required"`
	Kilometers  *float64 `json:"kilometers" binding:"required"`
	AgeInMonths *float64 `json:"age_in_months" binding:"required"`

	FuelType    Category `json:"fuel_type" binding:"required"`
	GearType    Category `json:"gear_type" binding:"required"`
	VehicleType Category `json:"vehicle_type" binding:"required"`
	Color       Category `json:"color" binding:"required"`
	Line        Category `json:"line" binding:"required"`
	Doors       Category `json:"doors" binding:"required"`
	Seats       Category `json:"seats" binding:"required"`
	Climate     Category `json:"climate" binding:"required"`
}

// PredictionResponse is the single response shape of every format
type PredictionResponse struct {
	PredictedPrice float64 `json:"predicted_price"`
}

// ErrorResponse is returned with every non-200 status
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrUnknownField is returned when a column has no request field
var ErrUnknownField = errors.New("unknown request field")

var numericalFields = map[string]func(*PredictionRequest) *float64{
	"model":         func(r *PredictionRequest) *float64 { return r.Model },
	"kilometers":    func(r *PredictionRequest) *float64 { return r.Kilometers },
	"age_in_months": func(r *PredictionRequest) *float64 { return r.AgeInMonths },
}

var categoricalFields = map[string]func(*PredictionRequest) Category{
	"fuel_type":    func(r *PredictionRequest) Category { return r.FuelType },
	"gear_type":    func(r *PredictionRequest) Category { return r.GearType },
	"vehicle_type": func(r *PredictionRequest) Category { return r.VehicleType },
	"color":        func(r *PredictionRequest) Category { return r.Color },
	"line":         func(r *PredictionRequest) Category { return r.Line },
	"doors":        func(r *PredictionRequest) Category { return r.Doors },
	"seats":        func(r *PredictionRequest) Category { return r.Seats },
	"climate":      func(r *PredictionRequest) Category { return r.Climate },
}

// FeatureFields lists every feature field of the request, model_group excluded
func FeatureFields() []string {
	fields := make([]string, 0, len(numericalFields)+len(categoricalFields))
	for name := range numericalFields {
		fields = append(fields, name)
	}
	for name := range categoricalFields {
		fields = append(fields, name)
	}
	return fields
}

// Numerical returns the value of a numerical field
func (r *PredictionRequest) Numerical(name string) (float64, error) {
	get, ok := numericalFields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q is not numerical", ErrUnknownField, name)
	}
	v := get(r)
	if v == nil {
		return 0, fmt.Errorf("field %q is missing", name)
	}
	return *v, nil
}

// Categorical returns the value of a categorical field
func (r *PredictionRequest) Categorical(name string) (string, error) {
	get, ok := categoricalFields[name]
	if !ok {
		return "", fmt.Errorf("%w: %q is not categorical", ErrUnknownField, name)
	}
	return string(get(r)), nil
}
