package formflow

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
)

// FormulaFunc evaluates a named formula call such as AGE(dob). args are the
// trimmed argument names inside the parentheses. A nil result means unknown.
type FormulaFunc func(args []string, answers Answers, now time.Time) *float64

var (
	formulasMu sync.RWMutex
	formulas   = map[string]FormulaFunc{
		"AGE": ageFormula,
		"BMI": bmiFormula,
	}
)

// RegisterFormula adds a named formula callable as NAME(arg, ...). Existing
// names are replaced.
func RegisterFormula(name string, fn FormulaFunc) {
	formulasMu.Lock()
	defer formulasMu.Unlock()
	formulas[strings.ToUpper(name)] = fn
}

var (
	callPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_]*)\s*\(([^()]*)\)\s*$`)
	// 703 * weight / ((height_ft * 12 + height_in) ** 2)
	bmiTemplate = regexp.MustCompile(`^\s*703\s*\*\s*([A-Za-z_][\w.]*)\s*/\s*\(\s*\(\s*([A-Za-z_][\w.]*)\s*\*\s*12\s*\+\s*([A-Za-z_][\w.]*)\s*\)\s*\*\*\s*2\s*\)\s*$`)
)

// resolveFormula maps a formula string to its evaluator and arguments.
func resolveFormula(formula string) (FormulaFunc, []string, bool) {
	if m := bmiTemplate.FindStringSubmatch(formula); m != nil {
		return bmiFormula, m[1:4], true
	}
	m := callPattern.FindStringSubmatch(formula)
	if m == nil {
		return nil, nil, false
	}
	formulasMu.RLock()
	fn, ok := formulas[strings.ToUpper(m[1])]
	formulasMu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	var args []string
	for _, a := range strings.Split(m[2], ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return fn, args, true
}

// KnownFormula reports whether formula is recognised by Compute.
func KnownFormula(formula string) bool {
	_, _, ok := resolveFormula(formula)
	return ok
}

// Compute evaluates each calculation against answers. Unrecognised formulas
// and unusable inputs produce a nil entry rather than an error.
func Compute(calcs []Calculation, answers Answers, now time.Time) Calculations {
	out := make(Calculations, len(calcs))
	for _, c := range calcs {
		if c.ID == "" {
			continue
		}
		fn, args, ok := resolveFormula(c.Formula)
		if !ok {
			out[c.ID] = nil
			continue
		}
		out[c.ID] = fn(args, answers, now)
	}
	return out
}

var dateLayouts = []string{
	"1/2/2006",
	"2006-01-02",
	time.RFC3339,
}

func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

// ageOn returns whole years between dob and now by calendar date.
func ageOn(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

func ageFormula(args []string, answers Answers, now time.Time) *float64 {
	if len(args) != 1 {
		return nil
	}
	dob, ok := parseDate(answers[args[0]])
	if !ok {
		return nil
	}
	age := ageOn(dob, now)
	if age < 0 {
		return nil
	}
	v := float64(age)
	return &v
}

// bmiFormula computes 703 * weight / ((height_ft * 12 + height_in) ** 2),
// rounded to one decimal.
func bmiFormula(args []string, answers Answers, _ time.Time) *float64 {
	if len(args) != 3 {
		return nil
	}
	weight, ok := toNumber(answers[args[0]])
	if !ok {
		return nil
	}
	feet, ok := toNumber(answers[args[1]])
	if !ok {
		return nil
	}
	inches, ok := toNumber(answers[args[2]])
	if !ok {
		return nil
	}
	total := feet*12 + inches
	if total == 0 {
		return nil
	}
	bmi := math.Round(703*weight/(total*total)*10) / 10
	if math.IsInf(bmi, 0) || math.IsNaN(bmi) {
		return nil
	}
	return &bmi
}
