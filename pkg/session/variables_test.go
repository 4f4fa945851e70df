package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeclarations() []VariableDeclaration {
	return []VariableDeclaration{
		{Name: "test_integer", Type: SignedInteger, Default: int64(123)},
		{Name: "test_unsigned", Type: UnsignedInteger},
		{Name: "test_float", Type: Float, Default: 1.5},
		{Name: "test_bool", Type: Boolean, Default: true},
		{Name: "test_string", Type: String, Default: "abc"},
	}
}

func TestVariableDefaults(t *testing.T) {
	vars := NewVariableSet(testDeclarations())

	v, ok := vars.Get("test_integer")
	require.True(t, ok)
	assert.Equal(t, int64(123), v)

	v, ok = vars.Get("test_unsigned")
	require.True(t, ok)
	assert.Nil(t, v)

	v, ok = vars.Get("test_string")
	require.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestVariableSetMatchingType(t *testing.T) {
	vars := NewVariableSet(testDeclarations())

	require.NoError(t, vars.Set("test_integer", int64(456)))
	v, _ := vars.Get("test_integer")
	assert.Equal(t, int64(456), v)

	// plain ints coerce to the declared signed type
	require.NoError(t, vars.Set("test_integer", 789))
	v, _ = vars.Get("test_integer")
	assert.Equal(t, int64(789), v)
}

func TestVariableSetTypeMismatch(t *testing.T) {
	vars := NewVariableSet(testDeclarations())

	assert.Error(t, vars.Set("test_integer", "not a number"))
	assert.Error(t, vars.Set("test_bool", int64(1)))
	assert.Error(t, vars.Set("test_string", 3.14))

	// value untouched after a failed assignment
	v, _ := vars.Get("test_bool")
	assert.Equal(t, true, v)
}

func TestVariableUndeclared(t *testing.T) {
	vars := NewVariableSet(testDeclarations())

	assert.Error(t, vars.Set("undeclared", int64(1)))
	_, ok := vars.Get("undeclared")
	assert.False(t, ok)
	assert.False(t, vars.Declared("undeclared"))
	assert.True(t, vars.Declared("test_float"))
}
