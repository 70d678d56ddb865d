package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.250,50 kr", "1250.5"},
		{"€100", "100.0"},
		{"100 SEK", "100.0"},
		{"25.00", "25.0"},
		{"299,00", "299.0"},
		{"1 234,56", "1234.56"},
		{"", ""},
		{"free", "free"},       // unparseable, returned unchanged
		{"ca 100 kr", "100.0"}, // letters stripped
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanAmount(tc.in), "input %q", tc.in)
	}
}

func TestCleanDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2025-01-15", "2025-01-15"},
		{"2025-1-5", "2025-01-05"},
		{"01/15/2025", "2025-01-15"}, // slash dates are US order
		{"15.01.2025", "2025-01-15"}, // dot dates are European order
		{"20250115", "2025-01-15"},
		{"", ""},
		{"next Tuesday", "next Tuesday"}, // unparseable, returned unchanged
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanDate(tc.in), "input %q", tc.in)
	}
}
