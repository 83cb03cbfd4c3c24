package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "iso", raw: "1985-03-12", want: "1985-03-12"},
		{name: "us slashes", raw: "03/12/1985", want: "1985-03-12"},
		{name: "us single digits", raw: "3/2/1985", want: "1985-03-02"},
		{name: "us dashes", raw: "3-2-1985", want: "1985-03-02"},
		{name: "two digit year", raw: "3/2/85", want: "1985-03-02"},
		{name: "rfc3339", raw: "1985-03-12T00:00:00Z", want: "1985-03-12"},
		{name: "month name", raw: "Mar 12, 1985", want: "1985-03-12"},
		{name: "compact", raw: "19850312", want: "1985-03-12"},
		{name: "excel serial", raw: "31118", want: "1985-03-12"},
		{name: "surrounding space", raw: "  1985-03-12 ", want: "1985-03-12"},
		{name: "garbage", raw: "not a date", wantErr: true},
		{name: "impossible day", raw: "02/30/1985", wantErr: true},
		{name: "empty", raw: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"5551234567", "(555) 123-4567"},
		{"555-123-4567", "(555) 123-4567"},
		{"(555) 123 4567", "(555) 123-4567"},
		{"1-555-123-4567", "(555) 123-4567"},
		{"+1 555.123.4567", "(555) 123-4567"},
		{"123-4567", "123-4567"},
		{"25551234567", "25551234567"},
		{" ext 12 ", "ext 12"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.raw))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Smith, John", NormalizeName("  Smith,   John "))
	// decomposed e + combining acute composes to a single rune
	assert.Equal(t, "Jos\u00e9 Diaz", NormalizeName("Jose\u0301 Diaz"))
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "Patient", NormalizeHeader("\ufeff Patient \t"))
	assert.Equal(t, "DOB", NormalizeHeader("DOB"))
}

func TestNilIfEmpty(t *testing.T) {
	assert.Nil(t, NilIfEmpty("  "))
	require.NotNil(t, NilIfEmpty(" x "))
	assert.Equal(t, "x", *NilIfEmpty(" x "))
}
