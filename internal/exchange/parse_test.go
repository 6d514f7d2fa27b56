package exchange

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "quoted number", raw: `"8300000.5"`, want: "8300000.5"},
		{name: "bare number", raw: `99000`, want: "99000"},
		{name: "empty", raw: ``, want: "0"},
		{name: "null", raw: `null`, want: "0"},
		{name: "not numeric", raw: `"abc"`, want: "0"},
		{name: "empty string", raw: `""`, want: "0"},
		{name: "negative", raw: `"-1"`, want: "0"},
		{name: "object", raw: `{"a":1}`, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDecimal(json.RawMessage(tt.raw))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseString(t *testing.T) {
	assert.Equal(t, "BTCINR", ParseString(json.RawMessage(`"BTCINR"`)))
	assert.Equal(t, "", ParseString(json.RawMessage(`null`)))
	assert.Equal(t, "42", ParseString(json.RawMessage(`42`)))
}
