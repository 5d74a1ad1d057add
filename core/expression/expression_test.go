package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudcost/internal/errors"
)

func eval(t *testing.T, text string, vars map[string]float64) float64 {
	t.Helper()
	e, err := Compile(text)
	require.NoError(t, err)
	return e.Eval(vars)
}

func TestPrecedence(t *testing.T) {
	assert.Equal(t, 7.0, eval(t, "1 + 2 * 3", nil))
	assert.Equal(t, 9.0, eval(t, "(1 + 2) * 3", nil))
	assert.Equal(t, 1.0, eval(t, "7 - 2 * 3", nil))
	assert.Equal(t, 2.5, eval(t, "10 / 2 / 2", nil))
	assert.Equal(t, -4.0, eval(t, "-(1 + 3)", nil))
}

func TestOperandReferences(t *testing.T) {
	vars := map[string]float64{"in": 300.0, "total": 1000.0}
	assert.InDelta(t, 0.3, eval(t, "${in} / ${total}", vars), 1e-9)
	assert.InDelta(t, 150.0, eval(t, "${in} * 0.5", vars), 1e-9)

	e, err := Compile("${in} * ${operand} / ${in}")
	require.NoError(t, err)
	assert.Equal(t, []string{"in", "operand"}, e.Refs)
}

func TestMissingOperandIsZero(t *testing.T) {
	assert.Equal(t, 0.0, eval(t, "${absent} * 10", nil))
}

func TestDivisionByZero(t *testing.T) {
	assert.Equal(t, 0.0, eval(t, "1 / 0", nil))
	assert.Equal(t, 0.0, eval(t, "${in} / ${total}", map[string]float64{"in": 5}))
	// Only the zero quotient collapses, not the whole expression.
	assert.Equal(t, 3.0, eval(t, "1 / 0 + 3", nil))
}

func TestCompileErrors(t *testing.T) {
	for _, text := range []string{
		"", "1 +", "(1 + 2", "${", "${}", "${in", "1 ? 2", "$in", "1..2",
	} {
		_, err := Compile(text)
		require.Error(t, err, "expression %q", text)
		assert.True(t, errors.IsType(err, errors.TypeExpression), "expression %q", text)
	}
}
