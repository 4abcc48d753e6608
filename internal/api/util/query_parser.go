package util

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidQuery marks a malformed or disallowed list query.
var ErrInvalidQuery = errors.New("invalid list query")

// QueryOperator is a comparison in a filter condition.
type QueryOperator string

const (
	OpEq        QueryOperator = "eq"
	OpNe        QueryOperator = "ne"
	OpGt        QueryOperator = "gt"
	OpGte       QueryOperator = "gte"
	OpLt        QueryOperator = "lt"
	OpLte       QueryOperator = "lte"
	OpIn        QueryOperator = "in"
	OpNin       QueryOperator = "nin"
	OpIsNull    QueryOperator = "isnull"
	OpIsNotNull QueryOperator = "isnotnull"
)

// unary operators take no value
func (op QueryOperator) unary() bool {
	return op == OpIsNull || op == OpIsNotNull
}

// list operators take a ';' separated value list
func (op QueryOperator) list() bool {
	return op == OpIn || op == OpNin
}

func parseOperator(s string) (QueryOperator, bool) {
	switch op := QueryOperator(strings.ToLower(s)); op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpIsNull, OpIsNotNull:
		return op, true
	}
	return "", false
}

// QueryFilter is one filter condition. Value is nil for unary operators,
// []string for list operators and string otherwise.
type QueryFilter struct {
	Field    string
	Operator QueryOperator
	Value    interface{}
}

type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

type OrderClause struct {
	Field     string
	Direction OrderDirection
}

// ParseQueryString parses comma separated conditions:
//
//	field|value              equality
//	field|isnull             null checks (also isnotnull)
//	field|operator|value     explicit operator
//	field|in|a;b;c           list membership (also nin)
func ParseQueryString(queryStr string) ([]QueryFilter, error) {
	var filters []QueryFilter
	for _, cond := range splitList(queryStr) {
		f, err := parseCondition(cond)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func parseCondition(cond string) (QueryFilter, error) {
	parts := strings.Split(cond, "|")
	if parts[0] == "" {
		return QueryFilter{}, fmt.Errorf("%w: missing field in %q", ErrInvalidQuery, cond)
	}

	switch len(parts) {
	case 2:
		if op, ok := parseOperator(parts[1]); ok && op.unary() {
			return QueryFilter{Field: parts[0], Operator: op}, nil
		}
		return QueryFilter{Field: parts[0], Operator: OpEq, Value: parts[1]}, nil
	case 3:
		op, ok := parseOperator(parts[1])
		if !ok {
			return QueryFilter{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, parts[1])
		}
		switch {
		case op.unary():
			return QueryFilter{}, fmt.Errorf("%w: %s takes no value", ErrInvalidQuery, op)
		case op.list():
			return QueryFilter{Field: parts[0], Operator: op, Value: strings.Split(parts[2], ";")}, nil
		}
		return QueryFilter{Field: parts[0], Operator: op, Value: parts[2]}, nil
	}
	return QueryFilter{}, fmt.Errorf("%w: %q (expected field|value or field|operator|value)", ErrInvalidQuery, cond)
}

// ParseOrderString parses comma separated field|asc or field|desc clauses.
func ParseOrderString(orderStr string) ([]OrderClause, error) {
	var orders []OrderClause
	for _, clause := range splitList(orderStr) {
		field, dir, ok := strings.Cut(clause, "|")
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: %q (expected field|direction)", ErrInvalidQuery, clause)
		}
		direction := OrderDirection(strings.ToLower(dir))
		if direction != OrderAsc && direction != OrderDesc {
			return nil, fmt.Errorf("%w: order direction %q (expected asc or desc)", ErrInvalidQuery, dir)
		}
		orders = append(orders, OrderClause{Field: field, Direction: direction})
	}
	return orders, nil
}

// ValidateFilterFields rejects filters on fields outside allowedFields.
// Field names end up in SQL, so every list must pass through this.
func ValidateFilterFields(filters []QueryFilter, allowedFields []string) error {
	for _, f := range filters {
		if !slices.Contains(allowedFields, f.Field) {
			return fmt.Errorf("%w: query field %q (valid fields: %s)", ErrInvalidQuery, f.Field, strings.Join(allowedFields, ", "))
		}
	}
	return nil
}

// ValidateOrderFields rejects ordering on fields outside allowedFields.
func ValidateOrderFields(orders []OrderClause, allowedFields []string) error {
	for _, o := range orders {
		if !slices.Contains(allowedFields, o.Field) {
			return fmt.Errorf("%w: order field %q (valid fields: %s)", ErrInvalidQuery, o.Field, strings.Join(allowedFields, ", "))
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
