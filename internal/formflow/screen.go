// Package formflow implements the intake form-flow engine: condition
// evaluation, calculated fields, skip rules, eligibility flags, and the
// navigation state machine that composes them.
package formflow

// ScreenType discriminates how a screen renders and which answers it owns.
type ScreenType string

const (
	ScreenContent       ScreenType = "content"
	ScreenSingleSelect  ScreenType = "single_select"
	ScreenMultiSelect   ScreenType = "multi_select"
	ScreenAutocomplete  ScreenType = "autocomplete"
	ScreenComposite     ScreenType = "composite"
	ScreenText          ScreenType = "text"
	ScreenNumber        ScreenType = "number"
	ScreenDate          ScreenType = "date"
	ScreenConsent       ScreenType = "consent"
	ScreenReview        ScreenType = "review"
	ScreenTerminal      ScreenType = "terminal"
	ScreenInterstitial  ScreenType = "interstitial"
	ScreenPlanSelection ScreenType = "plan_selection"
)

var knownScreenTypes = map[ScreenType]bool{
	ScreenContent: true, ScreenSingleSelect: true, ScreenMultiSelect: true,
	ScreenAutocomplete: true, ScreenComposite: true, ScreenText: true,
	ScreenNumber: true, ScreenDate: true, ScreenConsent: true,
	ScreenReview: true, ScreenTerminal: true, ScreenInterstitial: true,
	ScreenPlanSelection: true,
}

// Valid reports whether t is one of the known screen types.
func (t ScreenType) Valid() bool {
	return knownScreenTypes[t]
}

// Presentational reports whether screens of this type collect no answers of
// their own and therefore never get a derived skip rule.
func (t ScreenType) Presentational() bool {
	switch t {
	case ScreenContent, ScreenInterstitial, ScreenTerminal, ScreenReview, ScreenPlanSelection:
		return true
	}
	return false
}

// Selection reports whether t picks from a list of options.
func (t ScreenType) Selection() bool {
	return t == ScreenSingleSelect || t == ScreenMultiSelect || t == ScreenAutocomplete
}

// FieldMedicationDetailsGroup is a composite field whose sub-fields describe
// one medication (name, dose, frequency).
const FieldMedicationDetailsGroup = "medication_details_group"

// NextRule is one entry of a screen's next_logic list. The first matching
// If entry wins; an Else entry is the fallback wherever it appears.
type NextRule struct {
	If   string `json:"if,omitempty" yaml:"if,omitempty"`
	Else bool   `json:"else,omitempty" yaml:"else,omitempty"`
	GoTo string `json:"go_to" yaml:"go_to"`
}

// IsElse reports whether the rule is a fallback entry.
func (r NextRule) IsElse() bool {
	return r.Else || r.If == ""
}

// Calculation declares a named formula evaluated when the user leaves the
// screen that carries it.
type Calculation struct {
	ID      string `json:"id" yaml:"id"`
	Formula string `json:"formula" yaml:"formula"`
}

// Choice is one selectable value on a selection screen or field.
type Choice struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Field is one input on a composite screen. Fields nest: a group may hold
// Fields, and a medication_details_group holds SubFields.
type Field struct {
	ID        string   `json:"id" yaml:"id"`
	Type      string   `json:"type" yaml:"type"`
	Label     string   `json:"label,omitempty" yaml:"label,omitempty"`
	Required  bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Options   []Choice `json:"options,omitempty" yaml:"options,omitempty"`
	Fields    []Field  `json:"fields,omitempty" yaml:"fields,omitempty"`
	SubFields []Field  `json:"sub_fields,omitempty" yaml:"sub_fields,omitempty"`
}

func (f Field) hasChildren() bool {
	return len(f.Fields) > 0 || len(f.SubFields) > 0
}

// Screen is a node in the form graph. The base attributes (ID, Type, Next,
// NextLogic, Calculations, FieldID, Required) apply to every type; Options
// only matter to selection screens and Fields only to composite screens.
type Screen struct {
	ID           string        `json:"id" yaml:"id"`
	Type         ScreenType    `json:"type" yaml:"type"`
	Title        string        `json:"title,omitempty" yaml:"title,omitempty"`
	Body         string        `json:"body,omitempty" yaml:"body,omitempty"`
	Next         string        `json:"next,omitempty" yaml:"next,omitempty"`
	NextLogic    []NextRule    `json:"next_logic,omitempty" yaml:"next_logic,omitempty"`
	Calculations []Calculation `json:"calculations,omitempty" yaml:"calculations,omitempty"`
	FieldID      string        `json:"field_id,omitempty" yaml:"field_id,omitempty"`
	Required     bool          `json:"required,omitempty" yaml:"required,omitempty"`
	ClearOnBack  []string      `json:"clear_on_back,omitempty" yaml:"clear_on_back,omitempty"`
	Options      []Choice      `json:"options,omitempty" yaml:"options,omitempty"`
	Fields       []Field       `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// AnswerKey is the answer map key holding "the answer to this screen".
func (s *Screen) AnswerKey() string {
	if s.FieldID != "" {
		return s.FieldID
	}
	return s.ID
}

// RequiredFieldIDs returns every required field id nested anywhere under a
// composite screen, in declaration order.
func (s *Screen) RequiredFieldIDs() []string {
	var ids []string
	collectRequired(s.Fields, &ids)
	return ids
}

func collectRequired(fields []Field, ids *[]string) {
	for _, f := range fields {
		if f.hasChildren() {
			collectRequired(f.Fields, ids)
			collectRequired(f.SubFields, ids)
			continue
		}
		if f.Required && f.ID != "" {
			*ids = append(*ids, f.ID)
		}
	}
}

// Severity tags an eligibility rule for the provider summary.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// EligibilityRule raises Action as a flag whenever If holds against the
// full answer and calculation state.
type EligibilityRule struct {
	ID       string `json:"id" yaml:"id"`
	If       string `json:"if" yaml:"if"`
	Action   string `json:"action" yaml:"action"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`
}

const defaultEstimatedSteps = 20

// Form is an immutable form configuration. The first screen is the start.
type Form struct {
	ID               string            `json:"id" yaml:"id"`
	Program          string            `json:"program" yaml:"program"`
	Version          string            `json:"version" yaml:"version"`
	Title            string            `json:"title,omitempty" yaml:"title,omitempty"`
	EstimatedSteps   int               `json:"estimated_steps,omitempty" yaml:"estimated_steps,omitempty"`
	Screens          []Screen          `json:"screens" yaml:"screens"`
	EligibilityRules []EligibilityRule `json:"eligibility_rules,omitempty" yaml:"eligibility_rules,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	index map[string]int
}

// Index builds the id lookup table. Loaders call it once before the form is
// shared; lookups on an unindexed form fall back to a linear scan.
func (f *Form) Index() {
	f.index = make(map[string]int, len(f.Screens))
	for i, s := range f.Screens {
		if _, dup := f.index[s.ID]; !dup {
			f.index[s.ID] = i
		}
	}
}

// Screen returns the screen with the given id, or nil.
func (f *Form) Screen(id string) *Screen {
	if f == nil || id == "" {
		return nil
	}
	if f.index != nil {
		if i, ok := f.index[id]; ok {
			return &f.Screens[i]
		}
		return nil
	}
	for i := range f.Screens {
		if f.Screens[i].ID == id {
			return &f.Screens[i]
		}
	}
	return nil
}

// Start returns the first screen, or nil for an empty form.
func (f *Form) Start() *Screen {
	if f == nil || len(f.Screens) == 0 {
		return nil
	}
	return &f.Screens[0]
}

// StepEstimate is the fixed step estimate used by progress computation.
func (f *Form) StepEstimate() int {
	if f == nil || f.EstimatedSteps <= 0 {
		return defaultEstimatedSteps
	}
	return f.EstimatedSteps
}
