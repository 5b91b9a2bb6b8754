package formconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/intake/internal/formflow"
)

func findIssue(issues []Issue, severity, screenID, fragment string) bool {
	for _, i := range issues {
		if i.Severity == severity && i.ScreenID == screenID && strings.Contains(i.Message, fragment) {
			return true
		}
	}
	return false
}

func TestLint_Defects(t *testing.T) {
	form := &formflow.Form{
		ID: "broken", Program: "broken",
		Screens: []formflow.Screen{
			{ID: "start", Type: formflow.ScreenContent, NextLogic: []formflow.NextRule{
				{Else: true, GoTo: "b"},
				{If: "calc.age <", GoTo: "b"},
				{If: "answer == 'x'", GoTo: "ghost"},
				{Else: true, GoTo: "b"},
				{If: "answer == 'y'"},
			}},
			{ID: "b", Type: "carousel", Next: "nowhere", Calculations: []formflow.Calculation{
				{ID: "score", Formula: "PHQ9(a)"},
				{Formula: "AGE(dob)"},
			}},
			{ID: "b", Type: formflow.ScreenText, Next: "end"},
			{ID: "stuck", Type: formflow.ScreenText},
			{ID: "box", Type: formflow.ScreenComposite, Next: "end"},
			{ID: "end", Type: formflow.ScreenTerminal},
			{ID: "", Type: formflow.ScreenContent},
		},
		EligibilityRules: []formflow.EligibilityRule{
			{ID: "r1", If: "calc.bmi >= 40"},
			{ID: "r1", If: "calc.bmi >=", Action: "flag_x", Severity: "urgent"},
			{If: "x == 1", Action: "flag_y"},
		},
	}
	form.Index()

	issues := Lint(form)
	require.True(t, HasErrors(issues))

	assert.True(t, findIssue(issues, SeverityError, "b", "duplicate screen id"))
	assert.True(t, findIssue(issues, SeverityError, "", "empty id"))
	assert.True(t, findIssue(issues, SeverityError, "b", `unknown screen type "carousel"`))
	assert.True(t, findIssue(issues, SeverityError, "b", `next points to unknown screen "nowhere"`))
	assert.True(t, findIssue(issues, SeverityError, "start", `unknown screen "ghost"`))
	assert.True(t, findIssue(issues, SeverityError, "start", "without go_to"))
	assert.True(t, findIssue(issues, SeverityError, "start", "invalid condition"))
	assert.True(t, findIssue(issues, SeverityWarning, "start", "else entry precedes if entries"))
	assert.True(t, findIssue(issues, SeverityWarning, "start", "2 else entries"))
	assert.True(t, findIssue(issues, SeverityError, "b", `unknown formula "PHQ9(a)"`))
	assert.True(t, findIssue(issues, SeverityError, "b", "calculation without id"))
	assert.True(t, findIssue(issues, SeverityWarning, "stuck", "no next or next_logic"))
	assert.True(t, findIssue(issues, SeverityWarning, "stuck", "unreachable"))
	assert.True(t, findIssue(issues, SeverityWarning, "box", "no fields"))

	var ruleMsgs []string
	for _, i := range issues {
		if i.RuleID != "" {
			ruleMsgs = append(ruleMsgs, i.RuleID+": "+i.Message)
		}
	}
	joined := strings.Join(ruleMsgs, "\n")
	assert.Contains(t, joined, "r1: eligibility rule without action")
	assert.Contains(t, joined, "r1: duplicate eligibility rule id")
	assert.Contains(t, joined, `r1: unknown severity "urgent"`)
	assert.Contains(t, joined, "#3: eligibility rule without id")
}

func TestLint_ElseLastIsClean(t *testing.T) {
	form := &formflow.Form{
		ID: "ok", Program: "ok",
		Screens: []formflow.Screen{
			{ID: "q", Type: formflow.ScreenSingleSelect, NextLogic: []formflow.NextRule{
				{If: "answer == 'a'", GoTo: "a"},
				{Else: true, GoTo: "b"},
			}},
			{ID: "a", Type: formflow.ScreenTerminal},
			{ID: "b", Type: formflow.ScreenReview},
		},
	}
	form.Index()
	assert.Empty(t, Lint(form))
}

func TestLint_Nil(t *testing.T) {
	issues := Lint(nil)
	require.Len(t, issues, 1)
	assert.True(t, HasErrors(issues))
}

func TestIssue_String(t *testing.T) {
	assert.Equal(t, "error [screen a] boom", Issue{Severity: SeverityError, ScreenID: "a", Message: "boom"}.String())
	assert.Equal(t, "warning [rule r] hm", Issue{Severity: SeverityWarning, RuleID: "r", Message: "hm"}.String())
}
