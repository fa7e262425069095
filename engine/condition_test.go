package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/flowforge/types"
)

func TestCompileCondition_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"missing key", `== "x"`},
		{"missing literal", "score >"},
		{"bare key with spaces", "two words"},
		{"unparseable literal", "score > banana"},
		{"ordering against string", `score > "high"`},
		{"ordering against bool", "score >= true"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := CompileCondition(tc.expr)
			require.Error(t, err)
			assert.Equal(t, types.ErrWorkflowInvalid, types.GetErrorCode(err))
		})
	}
}

func TestCondition_Eval(t *testing.T) {
	t.Parallel()

	scope := map[string]any{
		"approved":   true,
		"rejected":   false,
		"sentiment":  "negative",
		"confidence": 0.93,
		"retries":    3,
		"note":       "",
	}

	cases := []struct {
		expr string
		want string
	}{
		{"approved", "yes"},
		{"rejected", "no"},
		{"note", ""},
		{"sentiment", "negative"},
		{`sentiment == "negative"`, "yes"},
		{`sentiment != "negative"`, "no"},
		{`sentiment == 'positive'`, "no"},
		{"confidence > 0.8", "yes"},
		{"confidence >= 0.93", "yes"},
		{"confidence < 0.5", "no"},
		{"retries <= 3", "yes"},
		{"retries != 3", "no"},
		{"approved == true", "yes"},
		{"approved != false", "yes"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.expr, func(t *testing.T) {
			t.Parallel()
			cond, err := CompileCondition(tc.expr)
			require.NoError(t, err)
			got, err := cond.Eval(scope)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCondition_EvalMissingKey(t *testing.T) {
	t.Parallel()

	cond, err := CompileCondition(`verdict == "spam"`)
	require.NoError(t, err)

	_, err = cond.Eval(map[string]any{"other": 1})
	require.Error(t, err)
	assert.Equal(t, types.ErrDecisionNoMatch, types.GetErrorCode(err))
}

func TestCondition_EvalNonNumericOrdering(t *testing.T) {
	t.Parallel()

	cond, err := CompileCondition("score > 10")
	require.NoError(t, err)

	_, err = cond.Eval(map[string]any{"score": "high"})
	require.Error(t, err)
	assert.Equal(t, types.ErrDecisionNoMatch, types.GetErrorCode(err))
}

func TestCondition_Holds(t *testing.T) {
	t.Parallel()

	scope := map[string]any{"urgent": true, "count": 12, "tag": "ops"}

	cases := []struct {
		expr string
		want bool
	}{
		{"urgent", true},
		{"count > 10", true},
		{"count < 10", false},
		{`tag == "ops"`, true},
		{"missing", false},
		{"missing > 5", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.expr, func(t *testing.T) {
			t.Parallel()
			cond, err := CompileCondition(tc.expr)
			require.NoError(t, err)
			got, err := cond.Holds(scope)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCondition_String(t *testing.T) {
	t.Parallel()

	cond, err := CompileCondition(`  sentiment == "negative"  `)
	require.NoError(t, err)
	assert.Equal(t, `sentiment == "negative"`, cond.String())
}
