package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_IsMissing(t *testing.T) {
	assert.True(t, Null().IsMissing())
	assert.True(t, String("").IsMissing())
	assert.True(t, String("   ").IsMissing())
	assert.False(t, String("x").IsMissing())
	assert.False(t, Number(0).IsMissing())
	assert.False(t, Bool(false).IsMissing())
}

func TestValue_Float(t *testing.T) {
	tests := []struct {
		name   string
		value  Value
		want   float64
		wantOK bool
	}{
		{"number", Number(4.5), 4.5, true},
		{"numeric string", String(" 12 "), 12, true},
		{"negative string", String("-0.25"), -0.25, true},
		{"word", String("abc"), 0, false},
		{"blank", String(""), 0, false},
		{"nan string", String("NaN"), 0, false},
		{"inf number", Number(math.Inf(1)), math.Inf(1), false},
		{"bool", Bool(true), 0, false},
		{"null", Null(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.value.Float()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValue_Equivalent(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"numeric text and number", String("0.0"), Number(0), true},
		{"integer text and number", String("20"), Number(20), true},
		{"different numbers", String("20"), Number(21), false},
		{"bool and text", Bool(true), String("true"), true},
		{"null and blank", Null(), String(" "), true},
		{"null and zero", Null(), Number(0), false},
		{"words", String("Oslo"), String("Oslo"), true},
		{"word and number", String("Oslo"), Number(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equivalent(tt.b))
			assert.Equal(t, tt.want, tt.b.Equivalent(tt.a))
		})
	}
}

func TestValue_Text(t *testing.T) {
	assert.Equal(t, "5", Number(5).Text())
	assert.Equal(t, "2.5", Number(2.5).Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, "Paris", String("Paris").Text())
	assert.Equal(t, "", Null().Text())
}

func TestValue_JSON(t *testing.T) {
	row := []Value{Number(1.5), String("a"), Bool(false), Null()}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5,"a",false,null]`, string(data))

	var decoded []Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, row, decoded)
}

func TestValue_NonFiniteMarshalsAsNull(t *testing.T) {
	data, err := json.Marshal(Number(math.NaN()))
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestValueOf(t *testing.T) {
	assert.Equal(t, Number(3), ValueOf(3))
	assert.Equal(t, Number(3), ValueOf(json.Number("3")))
	assert.Equal(t, String("x"), ValueOf("x"))
	assert.Equal(t, Bool(true), ValueOf(true))
	assert.Equal(t, Null(), ValueOf(nil))
	assert.Equal(t, String(`{"a":1}`), ValueOf(map[string]int{"a": 1}))
}
