package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Condition operators supported by switch nodes.
const (
	OpEquals     = "eq"
	OpNotEquals  = "neq"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpGreater    = "gt"
	OpGreaterEq  = "gte"
	OpLess       = "lt"
	OpLessEq     = "lte"
	OpExists     = "exists"
	OpEmpty      = "empty"
	OpRegex      = "regex"
	OpIn         = "in"
)

var knownOperators = map[string]struct{}{
	OpEquals: {}, OpNotEquals: {}, OpContains: {}, OpStartsWith: {},
	OpGreater: {}, OpGreaterEq: {}, OpLess: {}, OpLessEq: {},
	OpExists: {}, OpEmpty: {}, OpRegex: {}, OpIn: {},
}

// Condition compares a variable against a value.
type Condition struct {
	Variable string `mapstructure:"variable"`
	Operator string `mapstructure:"operator"`
	Value    string `mapstructure:"value"`
	Handle   string `mapstructure:"handle"`
}

func (c Condition) validate() error {
	if strings.TrimSpace(c.Variable) == "" {
		return fmt.Errorf("condition variable is required")
	}
	if _, ok := knownOperators[c.Operator]; !ok {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if c.Operator == OpRegex {
		if _, err := regexp.Compile(c.Value); err != nil {
			return fmt.Errorf("invalid regex %q: %w", c.Value, err)
		}
	}
	return nil
}

// Evaluate applies the operator. String comparisons are case-insensitive;
// ordering operators compare numerically when both sides are numbers.
func (c Condition) Evaluate(actual any, present bool) bool {
	left := strings.TrimSpace(Stringify(actual))
	right := strings.TrimSpace(c.Value)

	switch c.Operator {
	case OpExists:
		return present && left != ""
	case OpEmpty:
		return !present || left == ""
	case OpEquals:
		return present && equalFold(left, right)
	case OpNotEquals:
		return !present || !equalFold(left, right)
	case OpContains:
		return present && strings.Contains(strings.ToLower(left), strings.ToLower(right))
	case OpStartsWith:
		return present && strings.HasPrefix(strings.ToLower(left), strings.ToLower(right))
	case OpRegex:
		re, err := regexp.Compile(right)
		return err == nil && present && re.MatchString(left)
	case OpIn:
		if !present {
			return false
		}
		for _, option := range strings.Split(right, ",") {
			if strings.EqualFold(strings.TrimSpace(option), left) {
				return true
			}
		}
		return false
	case OpGreater, OpGreaterEq, OpLess, OpLessEq:
		if !present {
			return false
		}
		return compareOrdered(c.Operator, left, right)
	}
	return false
}

func equalFold(a, b string) bool {
	if x, errA := strconv.ParseFloat(a, 64); errA == nil {
		if y, errB := strconv.ParseFloat(b, 64); errB == nil {
			return x == y
		}
	}
	return strings.EqualFold(a, b)
}

func compareOrdered(op, left, right string) bool {
	var cmp int
	x, errA := strconv.ParseFloat(left, 64)
	y, errB := strconv.ParseFloat(right, 64)
	if errA == nil && errB == nil {
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(strings.ToLower(left), strings.ToLower(right))
	}

	switch op {
	case OpGreater:
		return cmp > 0
	case OpGreaterEq:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	default:
		return cmp <= 0
	}
}
