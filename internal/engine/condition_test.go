package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, expr string) Condition {
	t.Helper()
	c, err := CompileCondition(expr)
	require.NoError(t, err)
	return c
}

func TestCompileConditionEmptyIsAlwaysTrue(t *testing.T) {
	c, err := CompileCondition("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestConditionStringEquality(t *testing.T) {
	b := NewBag("x", false)
	b.Set("Currency", "USD")

	c := compile(t, `Currency == "USD"`)
	assert.True(t, c.Eval(b))

	c = compile(t, `Currency != "EUR"`)
	assert.True(t, c.Eval(b))
}

func TestConditionNumericComparison(t *testing.T) {
	b := NewBag("x", false)
	b.Set("Price", "19.99")

	assert.True(t, compile(t, "Price > 10").Eval(b))
	assert.False(t, compile(t, "Price > 100").Eval(b))
	assert.True(t, compile(t, "Price <= 19.99").Eval(b))
}

func TestConditionNullChecks(t *testing.T) {
	b := NewBag("x", false)

	assert.True(t, compile(t, "Missing == null").Eval(b))
	assert.False(t, compile(t, "Missing != null").Eval(b))

	b.Set("Present", "value")
	assert.False(t, compile(t, "Present == null").Eval(b))
	assert.True(t, compile(t, "Present != null").Eval(b))
}

func TestConditionAndOrPrecedence(t *testing.T) {
	b := NewBag("x", false)
	b.Set("A", "1")
	b.Set("B", "2")
	b.Set("C", "3")

	c := compile(t, `A == "1" && B == "2" || C == "9"`)
	assert.True(t, c.Eval(b))

	c = compile(t, `A == "9" && (B == "2" || C == "3")`)
	assert.False(t, c.Eval(b))
}

func TestConditionDotSuffixes(t *testing.T) {
	b := NewBag("SKU-1 extra", false)
	b.Set("Sku", "SKU-1 extra")
	b.SetClean("Sku", "extra")

	assert.True(t, compile(t, `Sku.Clean == "extra"`).Eval(b))
	assert.True(t, compile(t, `Sku.Valid == "true"`).Eval(b))
	assert.True(t, compile(t, `Missing.Valid == "false"`).Eval(b))
}

func TestCompileConditionSyntaxErrors(t *testing.T) {
	_, err := CompileCondition(`A ==`)
	assert.Error(t, err)

	_, err = CompileCondition(`A == "unterminated`)
	assert.Error(t, err)

	_, err = CompileCondition(`(A == "1"`)
	assert.Error(t, err)
}
