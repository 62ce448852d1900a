package payload

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// numericFields lists the TradingView fields coerced to float64. Everything
// else in a payload is passed through untouched.
var numericFields = map[string]struct{}{
	"open":                       {},
	"close":                      {},
	"high":                       {},
	"low":                        {},
	"volume":                     {},
	"kernel_regression_estimate": {},
	"buy":                        {},
	"sell":                       {},
	"stopbuy":                    {},
	"stopsell":                   {},
	"backtest_stream":            {},
	"plot_0":                     {},
	"plot_1":                     {},
	"plot_2":                     {},
	"plot_3":                     {},
	"plot_4":                     {},
	"plot_5":                     {},
}

// IsNumeric reports whether field belongs to the numeric field set.
func IsNumeric(field string) bool {
	_, ok := numericFields[field]
	return ok
}

// NumericFields returns the numeric field set in sorted order.
func NumericFields() []string {
	out := make([]string, 0, len(numericFields))
	for k := range numericFields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type normState uint8

const (
	statePassthrough normState = iota
	stateNumber
	stateUnparseable
)

// Normalized is the result of normalizing one payload field: a float, the
// Unparseable marker, or the original value passed through.
type Normalized struct {
	state normState
	num   float64
	val   Value
}

// Unparseable is the marker for a numeric field that could not be coerced.
var Unparseable = Normalized{state: stateUnparseable}

// Parsed wraps a coerced number.
func Parsed(f float64) Normalized { return Normalized{state: stateNumber, num: f} }

// Passthrough wraps an opaque field value.
func Passthrough(v Value) Normalized { return Normalized{state: statePassthrough, val: v} }

// Float returns the coerced number, if any.
func (n Normalized) Float() (float64, bool) {
	if n.state != stateNumber {
		return 0, false
	}
	return n.num, true
}

// IsUnparseable reports whether n is the Unparseable marker.
func (n Normalized) IsUnparseable() bool { return n.state == stateUnparseable }

// Value returns the passed-through value, if any.
func (n Normalized) Value() (Value, bool) {
	if n.state != statePassthrough {
		return Value{}, false
	}
	return n.val, true
}

// Text renders n for log lines; Unparseable renders as "None" like the
// platform's own debug output.
func (n Normalized) Text() string {
	switch n.state {
	case stateNumber:
		return strconv.FormatFloat(n.num, 'f', -1, 64)
	case stateUnparseable:
		return "None"
	default:
		if n.val.IsNull() {
			return "None"
		}
		return n.val.Text()
	}
}

// Equal compares two normalized values.
func (n Normalized) Equal(o Normalized) bool {
	if n.state != o.state {
		return false
	}
	switch n.state {
	case stateNumber:
		return n.num == o.num || (math.IsNaN(n.num) && math.IsNaN(o.num))
	case statePassthrough:
		return n.val.Equal(o.val)
	default:
		return true
	}
}

// MarshalJSON encodes Unparseable and non-finite numbers as null.
func (n Normalized) MarshalJSON() ([]byte, error) {
	switch n.state {
	case stateNumber:
		if math.IsNaN(n.num) || math.IsInf(n.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(n.num)
	case stateUnparseable:
		return []byte("null"), nil
	default:
		return n.val.MarshalJSON()
	}
}

// UnmarshalJSON reads a normalized value back from a stored record. Numbers
// come back as Parsed, everything else as Passthrough; a stored null cannot be
// told apart from an Unparseable marker and decodes as a passed-through null.
func (n *Normalized) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if num, ok := v.Num(); ok {
		f, err := num.Float64()
		if err != nil {
			*n = Unparseable
			return nil
		}
		*n = Parsed(f)
		return nil
	}
	*n = Passthrough(v)
	return nil
}

// NormalizedPayload has the same keys as the Payload it was derived from.
type NormalizedPayload map[string]Normalized

// Get returns the named field, or a passed-through null when absent.
func (p NormalizedPayload) Get(field string) Normalized {
	if v, ok := p[field]; ok {
		return v
	}
	return Passthrough(Null())
}

// Normalize coerces a single field. It never fails: numeric fields that do not
// parse yield Unparseable.
func Normalize(field string, v Value) Normalized {
	if !IsNumeric(field) {
		return Passthrough(v)
	}

	switch v.Kind() {
	case KindNumber:
		num, _ := v.Num()
		if f, err := strconv.ParseFloat(num.String(), 64); err == nil {
			return Parsed(f)
		}
		return Unparseable
	case KindString:
		s, _ := v.Str()
		return parseText(s)
	default:
		return Unparseable
	}
}

func parseText(s string) Normalized {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if cleaned == "" {
		return Unparseable
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return Unparseable
	}
	return Parsed(f)
}

// NormalizePayload applies Normalize to every key of p.
func NormalizePayload(p Payload) NormalizedPayload {
	out := make(NormalizedPayload, len(p))
	for k, v := range p {
		out[k] = Normalize(k, v)
	}
	return out
}
