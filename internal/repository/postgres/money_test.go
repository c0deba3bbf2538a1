package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericStringToKobo_Success(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"whole naira", "100", 10000},
		{"naira with kobo", "100.50", 10050},
		{"kobo only", "0.99", 99},
		{"zero", "0", 0},
		{"zero with decimals", "0.00", 0},
		{"small amount", "1.23", 123},
		{"large amount", "9999.99", 999999},
		{"rounding needed", "99.999", 10000},
		{"rounding down", "99.994", 9999},
		{"with whitespace", "  50.25  ", 5025},
		{"negative amount", "-10.50", -1050},
		{"single decimal", "5.5", 550},
		{"three decimals", "5.555", 556},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := numericStringToKobo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestNumericStringToKobo_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"invalid format", "abc"},
		{"special characters", "₦100.00"},
		{"multiple decimals", "10.5.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := numericStringToKobo(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestKoboToNumericString_Success(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{"whole naira", 10000, "100.00"},
		{"naira with kobo", 10050, "100.50"},
		{"kobo only", 99, "0.99"},
		{"zero", 0, "0.00"},
		{"small amount", 123, "1.23"},
		{"large amount", 999999, "9999.99"},
		{"negative amount", -1050, "-10.50"},
		{"negative kobo", -99, "-0.99"},
		{"single kobo", 1, "0.01"},
		{"ten kobo", 10, "0.10"},
		{"exact naira", 5000, "50.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := koboToNumericString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMoneyConversion_RoundTrip(t *testing.T) {
	tests := []int64{
		0,
		1,
		10,
		100,
		999,
		1000,
		10000,
		12345,
		999999,
		-100,
		-12345,
	}

	for _, original := range tests {
		t.Run("roundtrip", func(t *testing.T) {
			str := koboToNumericString(original)
			kobo, err := numericStringToKobo(str)
			require.NoError(t, err)
			assert.Equal(t, original, kobo, "kobo=%d, str=%s, back=%d", original, str, kobo)
		})
	}
}

func TestMoneyConversion_EdgeCases(t *testing.T) {
	t.Run("very large amount", func(t *testing.T) {
		kobo := int64(999999999999)
		str := koboToNumericString(kobo)
		back, err := numericStringToKobo(str)
		require.NoError(t, err)
		assert.Equal(t, kobo, back)
	})

	t.Run("very small negative", func(t *testing.T) {
		kobo := int64(-1)
		str := koboToNumericString(kobo)
		assert.Equal(t, "-0.01", str)
	})
}
