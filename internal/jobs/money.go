package jobs

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// decimalString coerces an extracted monetary value into an exact
// fixed-point string. Driver representations vary (floats from SQLite,
// numerics from Postgres, strings from fixtures), so everything funnels
// through decimal rather than float64 arithmetic.
func decimalString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "0", nil
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return "", fmt.Errorf("parse amount %q: %w", val, err)
		}
		return d.String(), nil
	case float64:
		return decimal.NewFromFloat(val).String(), nil
	case float32:
		return decimal.NewFromFloat32(val).String(), nil
	case int64:
		return decimal.NewFromInt(val).String(), nil
	case int:
		return decimal.NewFromInt(int64(val)).String(), nil
	case decimal.Decimal:
		return val.String(), nil
	default:
		d, err := decimal.NewFromString(fmt.Sprint(v))
		if err != nil {
			return "", fmt.Errorf("parse amount %v (%T): %w", v, v, err)
		}
		return d.String(), nil
	}
}

type errMissingField string

func (e errMissingField) Error() string {
	return fmt.Sprintf("required field %q is missing", string(e))
}
