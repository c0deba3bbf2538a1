package postgres

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Amounts are stored as NUMERIC(14,2) in naira/major units and carried as
// int64 kobo in the domain.

func numericStringToKobo(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty numeric string")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}

	return int64(math.Round(f * 100)), nil
}

func koboToNumericString(kobo int64) string {
	sign := ""
	if kobo < 0 {
		sign = "-"
		kobo = -kobo
	}

	whole := kobo / 100
	frac := kobo % 100

	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}
