package formflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggered(t *testing.T) {
	age := 16.0
	rules := testForm().EligibilityRules
	rules = append(rules,
		EligibilityRule{ID: "broken", If: "calc.age <<< 18", Action: "flag_broken"},
		EligibilityRule{ID: "noop", If: "calc.age < 18"},
	)

	hits := Triggered(rules, Answers{"history.conditions": []any{"pancreatitis"}}, Calculations{"age": &age}, nil)

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	assert.Equal(t, []string{"minor", "high_risk"}, ids)
}

func TestTriggered_IgnoresCurrentAnswer(t *testing.T) {
	rules := []EligibilityRule{{ID: "r", If: "answer == 'yes'", Action: "flag_r"}}
	assert.Empty(t, Triggered(rules, Answers{"answer": "yes"}, nil, nil))
}

func TestAccumulate_NeverRemoves(t *testing.T) {
	rules := testForm().EligibilityRules
	existing := NewFlagSet("flag_minor", "flag_manual")

	got := Accumulate(rules, Answers{"takes_medication": "no"}, nil, existing)

	assert.Equal(t, []string{"flag_manual", "flag_minor", "flag_no_medication"}, got.Sorted())
	assert.Equal(t, []string{"flag_manual", "flag_minor"}, existing.Sorted(), "input set is not mutated")
}

func TestFlagSet(t *testing.T) {
	s := NewFlagSet("b", "a", "", "b")
	assert.Equal(t, []string{"a", "b"}, s.Sorted())

	raw, err := s.MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(raw))

	var back FlagSet
	assert.NoError(t, back.UnmarshalJSON([]byte(`["c","a"]`)))
	assert.True(t, back.Has("c"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Union(back).Sorted())
}
