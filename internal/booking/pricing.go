package booking

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DepositAmountCents resolves the deposit for a booking through the fixed
// fallback chain: professional-linked service price, any clinic service
// price, clinic default price setting, system default. Unparseable values at
// one step fall through to the next.
func (s *Service) DepositAmountCents(ctx context.Context, clinicID, professionalID string) int64 {
	lookups := []func() (string, bool, error){
		func() (string, bool, error) { return s.store.ProfessionalPrice(ctx, clinicID, professionalID) },
		func() (string, bool, error) { return s.store.ClinicPrice(ctx, clinicID) },
		func() (string, bool, error) { return s.store.ClinicDefaultPrice(ctx, clinicID) },
	}
	for _, lookup := range lookups {
		raw, ok, err := lookup()
		if err != nil {
			s.logger.Warn("price lookup failed", "error", err, "clinic_id", clinicID)
			continue
		}
		if !ok {
			continue
		}
		cents, err := NormalizeAmountCents(raw)
		if err != nil {
			s.logger.Warn("unparseable price value", "value", raw, "clinic_id", clinicID)
			continue
		}
		return cents
	}
	return s.defaultDepositCents
}

// NormalizeAmountCents converts heterogeneous legacy price inputs to minor
// currency units. Values with a fractional part are whole currency units;
// integers below 1000 are whole currency units and are multiplied by 100;
// integers at or above 1000 are already cents.
//
// The 1000 boundary is ambiguous for amounts near it (R$ 1.000,00 entered as
// "1000" reads as 1000 cents); an explicit unit tag would remove the
// guesswork.
func NormalizeAmountCents(raw string) (int64, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "R$")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("booking: empty amount")
	}

	// Brazilian formatting: "." as thousands separator, "," as decimal. A
	// decimal marker makes the input unambiguously whole currency units.
	hasDecimals := false
	if strings.Contains(cleaned, ",") {
		hasDecimals = true
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else if dot := strings.LastIndex(cleaned, "."); dot >= 0 {
		if len(cleaned)-dot-1 <= 2 {
			hasDecimals = true
		} else {
			// "1.500" style thousands grouping.
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("booking: parse amount %q: %w", raw, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("booking: negative amount %q", raw)
	}

	if hasDecimals {
		return int64(math.Round(value * 100)), nil
	}
	if value < 1000 {
		return int64(value) * 100, nil
	}
	return int64(value), nil
}
