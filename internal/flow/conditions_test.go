package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConditionEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		cond    Condition
		actual  any
		present bool
		want    bool
	}{
		{"eq case-insensitive", Condition{Operator: OpEquals, Value: "YES"}, "yes", true, true},
		{"eq numeric", Condition{Operator: OpEquals, Value: "10"}, 10.0, true, true},
		{"eq missing", Condition{Operator: OpEquals, Value: ""}, nil, false, false},
		{"neq", Condition{Operator: OpNotEquals, Value: "a"}, "b", true, true},
		{"neq missing", Condition{Operator: OpNotEquals, Value: "a"}, nil, false, true},
		{"contains", Condition{Operator: OpContains, Value: "PRICE"}, "what is the price?", true, true},
		{"starts_with", Condition{Operator: OpStartsWith, Value: "hel"}, "Hello", true, true},
		{"gt numeric", Condition{Operator: OpGreater, Value: "9"}, "10", true, true},
		{"gte equal", Condition{Operator: OpGreaterEq, Value: "10"}, 10.0, true, true},
		{"lt", Condition{Operator: OpLess, Value: "2"}, 1.0, true, true},
		{"lte false", Condition{Operator: OpLessEq, Value: "2"}, 3.0, true, false},
		{"gt missing", Condition{Operator: OpGreater, Value: "1"}, nil, false, false},
		{"exists", Condition{Operator: OpExists}, "x", true, true},
		{"exists blank", Condition{Operator: OpExists}, "", true, false},
		{"empty missing", Condition{Operator: OpEmpty}, nil, false, true},
		{"regex", Condition{Operator: OpRegex, Value: `^\d{3}$`}, "123", true, true},
		{"regex miss", Condition{Operator: OpRegex, Value: `^\d{3}$`}, "12a", true, false},
		{"in", Condition{Operator: OpIn, Value: "red, Green ,blue"}, "green", true, true},
		{"in miss", Condition{Operator: OpIn, Value: "red,blue"}, "green", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.cond.Evaluate(tc.actual, tc.present))
		})
	}
}

func TestConditionValidate(t *testing.T) {
	require.Error(t, Condition{Operator: OpEquals}.validate())
	require.Error(t, Condition{Variable: "x", Operator: "like"}.validate())
	require.Error(t, Condition{Variable: "x", Operator: OpRegex, Value: "("}.validate())
	require.NoError(t, Condition{Variable: "x", Operator: OpIn, Value: "a,b"}.validate())
}

func TestSwitchConfigDefaultsHandles(t *testing.T) {
	cfg, err := decodeConfig[SwitchConfig](map[string]any{
		"conditions": []any{
			map[string]any{"variable": "a", "operator": "eq", "value": "1"},
			map[string]any{"variable": "b", "operator": "exists", "handle": "has-b"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "condition-1", cfg.Conditions[0].Handle)
	require.Equal(t, "has-b", cfg.Conditions[1].Handle)
}
