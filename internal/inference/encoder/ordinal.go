// Package encoder implements the fitted categorical-to-ordinal mapping
// applied to request features before prediction.
package encoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownCategory is returned for a value the encoder was not fitted on
	ErrUnknownCategory = errors.New("unknown category")

	// ErrInvalidEncoder is returned when an encoder artifact is malformed
	ErrInvalidEncoder = errors.New("invalid encoder artifact")
)

// Ordinal maps each category of each column to its index in the fitted category list
type Ordinal struct {
	// Columns in fitted order
	Columns []string `json:"columns"`
	// Categories[i] lists the known values of Columns[i]
	Categories [][]string `json:"categories"`
	// UnknownValue, when set, encodes unseen categories instead of failing
	UnknownValue *float64 `json:"unknown_value,omitempty"`

	index []map[string]int
}

// Decode parses a JSON encoder artifact
func Decode(data []byte) (*Ordinal, error) {
	var enc Ordinal
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEncoder, err)
	}
	if err := enc.init(); err != nil {
		return nil, err
	}
	return &enc, nil
}

// New builds an encoder from fitted columns and categories
func New(columns []string, categories [][]string) (*Ordinal, error) {
	enc := &Ordinal{Columns: columns, Categories: categories}
	if err := enc.init(); err != nil {
		return nil, err
	}
	return enc, nil
}

// Encode serializes the encoder as a JSON artifact
func (e *Ordinal) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func (e *Ordinal) init() error {
	if len(e.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidEncoder)
	}
	if len(e.Columns) != len(e.Categories) {
		return fmt.Errorf("%w: %d columns but %d category lists", ErrInvalidEncoder, len(e.Columns), len(e.Categories))
	}

	e.index = make([]map[string]int, len(e.Categories))
	for i, cats := range e.Categories {
		idx := make(map[string]int, len(cats))
		for code, cat := range cats {
			if _, dup := idx[cat]; dup {
				return fmt.Errorf("%w: column %q lists %q twice", ErrInvalidEncoder, e.Columns[i], cat)
			}
			idx[cat] = code
		}
		e.index[i] = idx
	}
	return nil
}

// CheckColumns fails unless the fitted column order equals want
func (e *Ordinal) CheckColumns(want []string) error {
	if !slices.Equal(e.Columns, want) {
		return fmt.Errorf("%w: encoder fitted on %v, serving expects %v", ErrInvalidEncoder, e.Columns, want)
	}
	return nil
}

// Transform encodes values given in fitted column order
func (e *Ordinal) Transform(values []string) ([]float64, error) {
	if len(values) != len(e.Columns) {
		return nil, fmt.Errorf("%w: got %d values for %d columns", ErrInvalidEncoder, len(values), len(e.Columns))
	}

	codes := make([]float64, len(values))
	for i, v := range values {
		code, ok := e.index[i][v]
		if !ok {
			if e.UnknownValue == nil {
				return nil, fmt.Errorf("%w: %q for column %q", ErrUnknownCategory, v, e.Columns[i])
			}
			codes[i] = *e.UnknownValue
			continue
		}
		codes[i] = float64(code)
	}
	return codes, nil
}
