// Package schema holds the feature column configuration of the gateway and
// the checks that must pass before the service starts.
package schema

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ErrColumnMismatch is returned when the column configuration is inconsistent
var ErrColumnMismatch = errors.New("column configuration mismatch")

// Columns is the declared feature layout
type Columns struct {
	Features    []string `yaml:"features"`
	Categorical []string `yaml:"categorical"`
	Numerical   []string `yaml:"numerical"`
}

// ValidateColumns passes iff the feature list is exactly as long as the
// categorical and numerical lists together
func ValidateColumns(features, categorical, numerical []string) error {
	if len(features) != len(categorical)+len(numerical) {
		return fmt.Errorf("%w: %d features but %d categorical + %d numerical",
			ErrColumnMismatch, len(features), len(categorical), len(numerical))
	}
	return nil
}

// Reconcile checks the declared columns against each other and against the
// request schema: no duplicates, no column both categorical and numerical,
// features equal to their union and every request field declared exactly once.
func Reconcile(cols Columns, requestFields []string) error {
	if err := ValidateColumns(cols.Features, cols.Categorical, cols.Numerical); err != nil {
		return err
	}

	for name, list := range map[string][]string{
		"features":    cols.Features,
		"categorical": cols.Categorical,
		"numerical":   cols.Numerical,
	} {
		if dup := firstDuplicate(list); dup != "" {
			return fmt.Errorf("%w: %s lists %q twice", ErrColumnMismatch, name, dup)
		}
	}

	for _, c := range cols.Categorical {
		if slices.Contains(cols.Numerical, c) {
			return fmt.Errorf("%w: %q is both categorical and numerical", ErrColumnMismatch, c)
		}
	}

	declared := append(slices.Clone(cols.Numerical), cols.Categorical...)

	if missing, extra := diff(declared, cols.Features); len(missing)+len(extra) > 0 {
		return fmt.Errorf("%w: features differ from categorical+numerical (missing %v, extra %v)",
			ErrColumnMismatch, missing, extra)
	}

	if missing, extra := diff(requestFields, declared); len(missing)+len(extra) > 0 {
		return fmt.Errorf("%w: request fields not declared %v, declared columns without a request field %v",
			ErrColumnMismatch, missing, extra)
	}

	return nil
}

// Order is the feature vector layout: numerical columns, then categorical columns
func (c Columns) Order() []string {
	return append(slices.Clone(c.Numerical), c.Categorical...)
}

// String renders the layout for logs and error messages
func (c Columns) String() string {
	return strings.Join(c.Order(), ",")
}

// diff returns the names of want absent from have, and of have absent from want
func diff(want, have []string) (missing, extra []string) {
	for _, w := range want {
		if !slices.Contains(have, w) {
			missing = append(missing, w)
		}
	}
	for _, h := range have {
		if !slices.Contains(want, h) {
			extra = append(extra, h)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return missing, extra
}

func firstDuplicate(list []string) string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		if seen[s] {
			return s
		}
		seen[s] = true
	}
	return ""
}
