package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// DisplayValue coerces a scalar into its display string.
func DisplayValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case bool:
		if x {
			return "Yes"
		}
		return "No"
	case float32:
		if s, ok := currency(decimal.NewFromFloat32(x)); ok {
			return s
		}
	case float64:
		if s, ok := currency(decimal.NewFromFloat(x)); ok {
			return s
		}
	case string:
		if strings.Contains(x, ".") {
			if d, err := decimal.NewFromString(x); err == nil {
				if s, ok := currency(d); ok {
					return s
				}
			}
		}
		return x
	}
	return RawValue(v)
}

// RawValue renders a value without display formatting. nil becomes "".
func RawValue(v interface{}) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// currency formats d as $1,234.50 when it has at most two meaningful decimals
// and a magnitude of at least one.
func currency(d decimal.Decimal) (string, bool) {
	if d.Abs().LessThan(decimal.NewFromInt(1)) || !d.Equal(d.Round(2)) {
		return "", false
	}
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	out := "$" + groupThousands(whole) + "." + frac
	if d.IsNegative() {
		out = "-" + out
	}
	return out, true
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
