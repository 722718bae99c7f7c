package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"cryptostrat/internal/apperr"
	"cryptostrat/internal/indicator"
)

// ErrUnknownSpecKey is returned for a key that names neither a parameter nor
// a trigger field.
var ErrUnknownSpecKey = fmt.Errorf("%w: unknown indicator key", apperr.ErrValidation)

// AddIndicatorSpec appends the indicator described by a compact text spec:
//
//	NAME[:key=value,...]
//
// Keys are parameter names, or trigger, value, compare, lower and upper for
// the trigger condition. Parameter names match ignoring case and
// underscores, so fast_period and fastperiod both name fastPeriod. The
// result is the same as the equivalent sequence of AddIndicator,
// SetTriggerType, SetParam, SetThresholds and UpdateIndicator calls; on any
// error b is returned unchanged.
func (b Builder) AddIndicatorSpec(spec string) (Builder, error) {
	name, rest, _ := strings.Cut(spec, ":")
	next, err := b.AddIndicator(strings.TrimSpace(name))
	if err != nil {
		return b, err
	}
	idx := len(next.Indicators()) - 1
	_, def, err := next.resolve(idx)
	if err != nil {
		return b, err
	}

	var (
		trigger        indicator.TriggerType
		value, compare *float64
		lower, upper   *float64
		params         [][2]string
	)
	for _, kv := range strings.Split(rest, ",") {
		if strings.TrimSpace(kv) == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return b, fmt.Errorf("%w: indicator %s: expected key=value, got %q", apperr.ErrValidation, name, kv)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if strings.EqualFold(k, "trigger") {
			trigger = indicator.TriggerType(strings.ToUpper(v))
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return b, fmt.Errorf("%w: indicator %s: %s: %v", apperr.ErrValidation, name, k, err)
		}
		switch strings.ToLower(k) {
		case "value":
			value = &f
		case "compare":
			compare = &f
		case "lower":
			lower = &f
		case "upper":
			upper = &f
		default:
			param, ok := paramName(def, k)
			if !ok {
				return b, fmt.Errorf("%w %q for %s", ErrUnknownSpecKey, k, def.Name)
			}
			params = append(params, [2]string{param, v})
		}
	}

	if trigger != "" {
		if next, err = next.SetTriggerType(idx, trigger); err != nil {
			return b, err
		}
	}
	for _, p := range params {
		f, _ := strconv.ParseFloat(p[1], 64)
		if next, err = next.SetParam(idx, p[0], f); err != nil {
			return b, err
		}
	}
	if lower != nil || upper != nil {
		if next, err = next.SetThresholds(idx, lower, upper); err != nil {
			return b, err
		}
	}
	if value != nil || compare != nil {
		inst, err := next.Indicator(idx)
		if err != nil {
			return b, err
		}
		if value != nil {
			inst.Trigger.Value = *value
		}
		if compare != nil {
			inst.Trigger.CompareValue = compare
		}
		if next, err = next.UpdateIndicator(idx, inst); err != nil {
			return b, err
		}
	}
	return next, nil
}

// paramName resolves a user-typed key to the catalog parameter name.
func paramName(def indicator.Definition, key string) (string, bool) {
	want := foldKey(key)
	for _, p := range def.Params {
		if foldKey(p.Name) == want {
			return p.Name, true
		}
	}
	return "", false
}

func foldKey(s string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(s))
}
