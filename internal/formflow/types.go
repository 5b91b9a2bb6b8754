package formflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Answers is the flat field id -> value map every evaluator reads from.
// Composite screens contribute one key per sub-field, so keys are not
// necessarily screen ids.
type Answers map[string]any

// Clone returns a shallow copy of the map.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Filled reports whether the answer for id holds a non-empty value.
func (a Answers) Filled(id string) bool {
	return isFilled(a[id])
}

// Calculations maps a calculation id to its derived value. A nil entry means
// the calculation ran but its inputs were missing or unparsable.
type Calculations map[string]*float64

// Value returns the numeric value of calculation id, if known.
func (c Calculations) Value(id string) (float64, bool) {
	v, ok := c[id]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Merge copies every entry of other into c.
func (c Calculations) Merge(other Calculations) {
	for k, v := range other {
		c[k] = v
	}
}

func (c Calculations) Clone() Calculations {
	out := make(Calculations, len(c))
	for k, v := range c {
		if v == nil {
			out[k] = nil
			continue
		}
		n := *v
		out[k] = &n
	}
	return out
}

// FlagSet is the set of eligibility flags raised during a session.
type FlagSet map[string]struct{}

func NewFlagSet(flags ...string) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s.Add(f)
	}
	return s
}

func (s FlagSet) Add(flag string) {
	if flag == "" {
		return
	}
	s[flag] = struct{}{}
}

func (s FlagSet) Has(flag string) bool {
	_, ok := s[flag]
	return ok
}

// Sorted returns the flags in lexical order.
func (s FlagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Union returns a new set holding the flags of both s and other.
func (s FlagSet) Union(other FlagSet) FlagSet {
	out := make(FlagSet, len(s)+len(other))
	for f := range s {
		out[f] = struct{}{}
	}
	for f := range other {
		out[f] = struct{}{}
	}
	return out
}

func (s FlagSet) Clone() FlagSet {
	return s.Union(nil)
}

func (s FlagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var flags []string
	if err := json.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("decode flags: %w", err)
	}
	*s = NewFlagSet(flags...)
	return nil
}

// isFilled implements the "non-empty" test used by skip rules: nil is empty,
// strings must be non-blank after trimming, collections must be non-empty,
// and any boolean or number counts as filled.
func isFilled(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return true
	case json.Number:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return isFilled(rv.Elem().Interface())
	}
	return true
}

// toNumber converts answer values (JSON numbers, YAML ints, numeric strings)
// into a float64.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// stringify renders a value the way conditions compare it.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	if items, ok := asSlice(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	}
	if f, ok := toNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// asSlice returns the elements of any slice or array value.
func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	case string, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
