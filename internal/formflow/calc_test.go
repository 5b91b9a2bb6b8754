package formflow

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestCompute_Age(t *testing.T) {
	ageCalc := []Calculation{{ID: "age", Formula: "AGE(dob)"}}

	tests := []struct {
		name string
		dob  any
		now  time.Time
		want *float64
	}{
		{"day before birthday", "01/15/2000", day(2024, time.January, 14), ptr(23)},
		{"on birthday", "01/15/2000", day(2024, time.January, 15), ptr(24)},
		{"iso date", "2000-01-15", day(2024, time.January, 15), ptr(24)},
		{"rfc3339", "2000-01-15T00:00:00Z", day(2024, time.January, 14), ptr(23)},
		{"unpadded", "1/5/2010", day(2024, time.June, 1), ptr(14)},
		{"leap day in non-leap year", "02/29/2004", day(2023, time.February, 28), ptr(18)},
		{"time value", day(1990, time.March, 3), day(2024, time.March, 3), ptr(34)},
		{"empty", "", day(2024, time.January, 15), nil},
		{"garbage", "not a date", day(2024, time.January, 15), nil},
		{"number", 20000115, day(2024, time.January, 15), nil},
		{"future", "01/15/2030", day(2024, time.January, 15), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(ageCalc, Answers{"dob": tt.dob}, tt.now)
			require.Contains(t, got, "age")
			if tt.want == nil {
				assert.Nil(t, got["age"])
				return
			}
			require.NotNil(t, got["age"])
			assert.Equal(t, *tt.want, *got["age"])
		})
	}
}

func TestCompute_MissingAgeIsNotMinor(t *testing.T) {
	calcs := Compute([]Calculation{{ID: "age", Formula: "AGE(dob)"}}, Answers{}, day(2024, time.January, 15))
	assert.Nil(t, calcs["age"])
	assert.False(t, Evaluate("calc.age < 18", nil, nil, calcs, nil))
	assert.False(t, Evaluate("calc.age >= 18", nil, nil, calcs, nil))
}

func TestCompute_BMI(t *testing.T) {
	want := math.Round(703*180.0/(70*70)*10) / 10
	require.Equal(t, 25.8, want)

	formulas := []string{
		"703 * weight / ((height_ft * 12 + height_in) ** 2)",
		"703*weight/((height_ft*12+height_in)**2)",
		"BMI(weight, height_ft, height_in)",
	}
	for _, formula := range formulas {
		t.Run(formula, func(t *testing.T) {
			answers := Answers{"weight": 180, "height_ft": "5", "height_in": 10.0}
			got := Compute([]Calculation{{ID: "bmi", Formula: formula}}, answers, fixedNow)
			require.NotNil(t, got["bmi"])
			assert.Equal(t, want, *got["bmi"])
		})
	}
}

func TestCompute_BMIUnknownInputs(t *testing.T) {
	calc := []Calculation{{ID: "bmi", Formula: "BMI(weight, height_ft, height_in)"}}

	tests := []struct {
		name    string
		answers Answers
	}{
		{"missing inches", Answers{"weight": 180, "height_ft": 5}},
		{"blank weight", Answers{"weight": " ", "height_ft": 5, "height_in": 10}},
		{"zero height", Answers{"weight": 180, "height_ft": 0, "height_in": 0}},
		{"non numeric", Answers{"weight": "heavy", "height_ft": 5, "height_in": 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(calc, tt.answers, fixedNow)
			require.Contains(t, got, "bmi")
			assert.Nil(t, got["bmi"])
		})
	}
}

func TestCompute_UnknownFormula(t *testing.T) {
	got := Compute([]Calculation{
		{ID: "score", Formula: "PHQ9(q1, q2)"},
		{ID: "expr", Formula: "weight * 2"},
		{ID: "", Formula: "AGE(dob)"},
	}, Answers{"weight": 100}, fixedNow)

	assert.Len(t, got, 2)
	assert.Nil(t, got["score"])
	assert.Nil(t, got["expr"])
	assert.False(t, KnownFormula("PHQ9(q1)"))
	assert.True(t, KnownFormula("age(dob)"))
}

func TestRegisterFormula(t *testing.T) {
	RegisterFormula("double_of", func(args []string, answers Answers, _ time.Time) *float64 {
		if len(args) != 1 {
			return nil
		}
		n, ok := toNumber(answers[args[0]])
		if !ok {
			return nil
		}
		v := n * 2
		return &v
	})

	require.True(t, KnownFormula("DOUBLE_OF(x)"))
	got := Compute([]Calculation{{ID: "d", Formula: "DOUBLE_OF(x)"}}, Answers{"x": "21"}, fixedNow)
	require.NotNil(t, got["d"])
	assert.Equal(t, 42.0, *got["d"])
}

func ptr(v float64) *float64 { return &v }
