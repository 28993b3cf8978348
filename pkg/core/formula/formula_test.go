package formula

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestEvalArithmetic(t *testing.T) {
	b := Binding{Basic: dec("1000"), Gross: dec("1500")}

	cases := []struct {
		formula string
		want    string
	}{
		{"basic * 0.1", "100.00"},
		{"basic + gross", "2500.00"},
		{"(basic + gross) / 2", "1250.00"},
		{"gross - basic", "500.00"},
		{"basic * 10 / 100", "100.00"},
		{"-basic + 1200", "200.00"},
		{"2 + 3 * 4", "14.00"},
		{"(2 + 3) * 4", "20.00"},
	}
	for _, tc := range cases {
		got, err := Eval(tc.formula, b)
		require.NoError(t, err, tc.formula)
		assert.Equal(t, tc.want, got.StringFixed(2), tc.formula)
	}
}

func TestEvalConditional(t *testing.T) {
	b := Binding{Basic: dec("5000"), Gross: dec("6700")}

	got, err := Eval("basic * 0.05 if basic > 3000 else basic * 0.1", b)
	require.NoError(t, err)
	assert.Equal(t, "250.00", got.StringFixed(2))

	got, err = Eval("basic * 0.05 if basic > 9000 else basic * 0.1", b)
	require.NoError(t, err)
	assert.Equal(t, "500.00", got.StringFixed(2))

	// Nested alternative.
	got, err = Eval("1 if gross < 1000 else 2 if gross < 5000 else 3", b)
	require.NoError(t, err)
	assert.Equal(t, "3.00", got.StringFixed(2))
}

func TestEvalFunctions(t *testing.T) {
	b := Binding{Basic: dec("1000"), Gross: dec("1800")}

	got, err := Eval("min(basic, gross)", b)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", got.StringFixed(2))

	got, err = Eval("max(basic * 0.5, 600)", b)
	require.NoError(t, err)
	assert.Equal(t, "600.00", got.StringFixed(2))

	got, err = Eval("round(basic / 3, 2)", b)
	require.NoError(t, err)
	assert.Equal(t, "333.33", got.StringFixed(2))

	got, err = Eval("abs(basic - gross)", b)
	require.NoError(t, err)
	assert.Equal(t, "800.00", got.StringFixed(2))
}

func TestEvalRejections(t *testing.T) {
	b := Binding{Basic: dec("1000"), Gross: dec("1000")}

	bad := []string{
		"basic; drop table",   // disallowed character
		"import os",           // unknown identifier
		"salary * 2",          // variable outside vocabulary
		"basic +",             // incomplete
		"foo(basic)",          // unknown function
		"min(basic)",          // wrong arity
		"basic > ",            // incomplete comparison
		"basic if gross",      // conditional missing else
		"true + 1",            // arithmetic on boolean
		"basic / 0",           // division by zero
		"= basic",             // bare equals
		"basic == true",       // mixed comparison
	}
	for _, f := range bad {
		_, err := Eval(f, b)
		assert.Error(t, err, f)
		assert.True(t, EvalOrZero(f, b).IsZero(), f)
	}
}

// Random garbage must come back as exactly zero, never panic.
func TestEvalOrZeroNeverPanics(t *testing.T) {
	b := Binding{Basic: dec("123.45"), Gross: dec("678.90")}
	inputs := []string{
		"", " ", "(((((", ")", "1..2..3", "______", "if if if",
		"else", "min(,,,)", "basic gross", "1 2 3", "==", "!=!",
		"round()", "abs(1,2,3)", "max()", "9999999999999999999999 * 2",
	}
	for _, f := range inputs {
		assert.NotPanics(t, func() { _ = EvalOrZero(f, b) }, f)
	}
}

func TestQuantisation(t *testing.T) {
	b := Binding{Basic: dec("1000"), Gross: dec("0")}
	got, err := Eval("basic / 3", b)
	require.NoError(t, err)
	assert.Equal(t, "333.33", got.StringFixed(2))

	got, err = Eval("basic * 0.005", b)
	require.NoError(t, err)
	assert.Equal(t, "5.00", got.StringFixed(2))

	// HALF_UP at the boundary.
	got, err = Eval("0.125 * 100", b)
	require.NoError(t, err)
	assert.Equal(t, "12.50", got.StringFixed(2))
}
