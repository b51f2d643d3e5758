package convert

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"string", " 430.25 ", 430.25, true},
		{"number", json.Number("12"), 12, true},
		{"uint64", uint64(7), 7, true},
		{"bad string", "abc", 0, false},
		{"nan", math.NaN(), 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Float(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want, ToFloat64(tc.in))
		})
	}
}
