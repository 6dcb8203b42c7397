package query

import (
	"fmt"
	"regexp"
)

// Operator represents a filter operator
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// Filter represents a single filter condition
type Filter struct {
	Field    string
	Operator Operator
	Value    any // scalar, or []any for in
}

var validOperators = map[string]Operator{
	"eq":  OpEq,
	"ne":  OpNe,
	"gt":  OpGt,
	"gte": OpGte,
	"lt":  OpLt,
	"lte": OpLte,
	"in":  OpIn,
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether a name is safe to interpolate as a
// table or column identifier. Values never go through this path, they
// are always parameter-bound.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// FiltersFromMap converts a caller-supplied filter map into typed
// filters. Three value shapes are recognized:
//   - scalar          -> equality
//   - []any           -> set membership
//   - map[string]any  -> comparison operators, e.g. {"gte": 10}
func FiltersFromMap(m map[string]any) ([]Filter, error) {
	var filters []Filter
	for field, value := range m {
		if !ValidIdentifier(field) {
			return nil, fmt.Errorf("invalid filter field %q", field)
		}

		switch v := value.(type) {
		case []any:
			filters = append(filters, Filter{Field: field, Operator: OpIn, Value: v})
		case map[string]any:
			for opName, opValue := range v {
				op, ok := validOperators[opName]
				if !ok || op == OpIn {
					return nil, fmt.Errorf("invalid filter operator %q on field %q", opName, field)
				}
				filters = append(filters, Filter{Field: field, Operator: op, Value: opValue})
			}
		default:
			filters = append(filters, Filter{Field: field, Operator: OpEq, Value: value})
		}
	}
	return filters, nil
}

// buildFilterClause renders one filter as a parameter-bound SQL
// fragment.
func buildFilterClause(f Filter) (string, []any, error) {
	switch f.Operator {
	case OpEq:
		return fmt.Sprintf("%s = ?", f.Field), []any{f.Value}, nil
	case OpNe:
		return fmt.Sprintf("%s != ?", f.Field), []any{f.Value}, nil
	case OpGt:
		return fmt.Sprintf("%s > ?", f.Field), []any{f.Value}, nil
	case OpGte:
		return fmt.Sprintf("%s >= ?", f.Field), []any{f.Value}, nil
	case OpLt:
		return fmt.Sprintf("%s < ?", f.Field), []any{f.Value}, nil
	case OpLte:
		return fmt.Sprintf("%s <= ?", f.Field), []any{f.Value}, nil
	case OpIn:
		values, ok := f.Value.([]any)
		if !ok || len(values) == 0 {
			return "", nil, fmt.Errorf("in filter on %q requires a non-empty list", f.Field)
		}
		placeholders := ""
		for i := range values {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
		}
		return fmt.Sprintf("%s IN (%s)", f.Field, placeholders), values, nil
	default:
		return "", nil, fmt.Errorf("unknown filter operator %q", f.Operator)
	}
}
