package writer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/fmp-data/internal/model"
)

// Layouts accepted for date and timestamp fields, tried in order.
var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// coerce converts a decoded JSON value to the Go type stored for the
// field kind. Empty strings become nil for non-string kinds.
//
// Result types: string, float64, int64, decimal.Decimal, bool, time.Time.
func coerce(f model.FieldDef, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && f.Kind != model.KindString && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch f.Kind {
	case model.KindString:
		return toString(v)
	case model.KindNumber:
		return toFloat(v)
	case model.KindInteger:
		return toInt(v)
	case model.KindDecimal:
		return toDecimal(v)
	case model.KindBool:
		return toBool(v)
	case model.KindDate:
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	case model.KindTimestamp:
		return toTime(v)
	}
	return nil, fmt.Errorf("unknown field kind %d", f.Kind)
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	return nil, fmt.Errorf("cannot use %T as string", v)
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return nil, fmt.Errorf("cannot use %T as number", v)
}

func toInt(v any) (any, error) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	case float64:
		return int64(math.Round(x)), nil
	case int64:
		return x, nil
	default:
		return nil, fmt.Errorf("cannot use %T as integer", v)
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	// FMP sends large volumes and caps in exponent form (2.6E+12).
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse integer %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return nil, fmt.Errorf("integer %q out of range", s)
	}
	return int64(math.Round(f)), nil
}

func toDecimal(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		return decimal.NewFromString(x.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	case float64:
		return decimal.NewFromFloat(x), nil
	case decimal.Decimal:
		return x, nil
	}
	return nil, fmt.Errorf("cannot use %T as decimal", v)
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	case json.Number:
		return x.String() != "0", nil
	}
	return nil, fmt.Errorf("cannot use %T as bool", v)
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("parse unix time %q: %w", x, err)
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	return time.Time{}, fmt.Errorf("cannot use %T as time", v)
}

// keyPart renders a coerced value for natural key encoding.
func keyPart(kind model.FieldKind, v any) string {
	switch x := v.(type) {
	case time.Time:
		if kind == model.KindDate {
			return x.Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		return x.String()
	}
	return fmt.Sprint(v)
}
