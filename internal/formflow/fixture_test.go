package formflow

import "time"

var fixedNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// testForm is a trimmed weight-loss style intake covering every branch the
// engine tests walk.
func testForm() *Form {
	f := &Form{
		ID:             "wl-test",
		Program:        "weight_loss",
		Version:        "1",
		EstimatedSteps: 12,
		Screens: []Screen{
			{ID: "intro", Type: ScreenContent, Next: "qualify.state"},
			{
				ID: "qualify.state", Type: ScreenSingleSelect, FieldID: "state", Required: true,
				NextLogic: []NextRule{
					{Else: true, GoTo: "profile.dob"},
					{If: "answer in ['AK', 'HI']", GoTo: "end.unavailable"},
				},
			},
			{
				ID: "profile.dob", Type: ScreenDate, Required: true,
				Calculations: []Calculation{{ID: "age", Formula: "AGE(profile.dob)"}},
				NextLogic: []NextRule{
					{If: "calc.age < 18", GoTo: "end.minor"},
					{Else: true, GoTo: "profile.body"},
				},
			},
			{
				ID: "profile.body", Type: ScreenComposite,
				Fields: []Field{
					{ID: "height_ft", Type: "number", Required: true},
					{ID: "height_in", Type: "number", Required: true},
					{ID: "weight", Type: "number", Required: true},
				},
				Calculations: []Calculation{{ID: "bmi", Formula: "703 * weight / ((height_ft * 12 + height_in) ** 2)"}},
				NextLogic: []NextRule{
					{If: "calc.bmi < 25", GoTo: "end.bmi_low"},
					{Else: true, GoTo: EmailCaptureScreenID},
				},
			},
			{ID: EmailCaptureScreenID, Type: ScreenText, FieldID: EmailFieldID, Required: true, Next: "account.name"},
			{
				ID: "account.name", Type: ScreenComposite, Next: "history.conditions",
				Fields: []Field{
					{ID: "first_name", Type: "text", Required: true},
					{ID: "last_name", Type: "text", Required: true},
				},
			},
			{
				ID: "history.conditions", Type: ScreenMultiSelect, Required: true,
				NextLogic: []NextRule{
					{If: "answer contains 'none'", GoTo: "consent"},
					{Else: true, GoTo: "history.medications"},
				},
			},
			{
				ID: "history.medications", Type: ScreenComposite, Next: "consent",
				Fields: []Field{
					{ID: "takes_medication", Type: "select", Required: true},
					{ID: "medication", Type: FieldMedicationDetailsGroup, SubFields: []Field{
						{ID: "medication_name", Type: "text", Required: true},
						{ID: "medication_dose", Type: "text"},
					}},
				},
			},
			{ID: "consent", Type: ScreenConsent, Required: true, Next: "review"},
			{ID: "review", Type: ScreenReview, Next: "done", ClearOnBack: []string{"discount_code"}},
			{ID: "done", Type: ScreenTerminal},
			{ID: "end.unavailable", Type: ScreenTerminal},
			{ID: "end.minor", Type: ScreenTerminal},
			{ID: "end.bmi_low", Type: ScreenTerminal},
			{ID: "signin", Type: ScreenContent, Next: "intro"},
			{ID: "broken.dangling", Type: ScreenContent, Next: "does.not.exist"},
			{ID: "broken.deadend", Type: ScreenContent},
		},
		EligibilityRules: []EligibilityRule{
			{ID: "minor", If: "calc.age < 18", Action: "flag_minor", Severity: SeverityCritical},
			{ID: "high_risk", If: "history.conditions contains ['diabetes_t1', 'pancreatitis']", Action: "flag_high_risk_requires_review", Severity: SeverityHigh},
			{ID: "severe_bmi", If: "calc.bmi >= 40", Action: "flag_bmi_severe", Severity: SeverityWarning},
			{ID: "no_meds", If: "takes_medication == 'no'", Action: "flag_no_medication", Severity: SeverityInfo},
		},
	}
	f.Index()
	return f
}

func newTestEngine(opts ...Option) *Engine {
	base := []Option{WithClock(fixedClock), WithDerivedSkipRules()}
	return New(testForm(), append(base, opts...)...)
}

// walkToBody answers the qualification and date-of-birth screens for an
// adult in CA and leaves the engine on profile.body.
func walkToBody(e *Engine) {
	e.GoToNext()
	e.UpdateAnswer("state", "CA")
	e.GoToNext()
	e.UpdateAnswer("profile.dob", "01/15/1990")
	e.GoToNext()
}
