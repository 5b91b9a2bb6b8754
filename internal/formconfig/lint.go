package formconfig

import (
	"fmt"

	"github.com/ehr/intake/internal/formflow"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one defect found in a form configuration.
type Issue struct {
	Severity string `json:"severity"`
	ScreenID string `json:"screen_id,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`
	Message  string `json:"message"`
}

func (i Issue) String() string {
	switch {
	case i.ScreenID != "":
		return fmt.Sprintf("%s [screen %s] %s", i.Severity, i.ScreenID, i.Message)
	case i.RuleID != "":
		return fmt.Sprintf("%s [rule %s] %s", i.Severity, i.RuleID, i.Message)
	}
	return fmt.Sprintf("%s %s", i.Severity, i.Message)
}

// HasErrors reports whether any issue is an error rather than a warning.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownSeverities = map[string]bool{
	"":                        true,
	formflow.SeverityInfo:     true,
	formflow.SeverityWarning:  true,
	formflow.SeverityHigh:     true,
	formflow.SeverityCritical: true,
}

type linter struct {
	form   *formflow.Form
	ids    map[string]int
	issues []Issue
}

func (l *linter) errorf(screenID, format string, args ...any) {
	l.issues = append(l.issues, Issue{Severity: SeverityError, ScreenID: screenID, Message: fmt.Sprintf(format, args...)})
}

func (l *linter) warnf(screenID, format string, args ...any) {
	l.issues = append(l.issues, Issue{Severity: SeverityWarning, ScreenID: screenID, Message: fmt.Sprintf(format, args...)})
}

func (l *linter) ruleIssue(severity, ruleID, format string, args ...any) {
	l.issues = append(l.issues, Issue{Severity: severity, RuleID: ruleID, Message: fmt.Sprintf(format, args...)})
}

// Lint checks form for configuration defects: duplicate or empty ids,
// unknown screen types, dangling next and go_to targets, else entries listed
// before if entries, conditions that do not parse, unknown formulas,
// eligibility rules without an action, and screens unreachable from the
// start screen. Issues are returned in screen order, rules last.
func Lint(form *formflow.Form) []Issue {
	if form == nil {
		return []Issue{{Severity: SeverityError, Message: "form is nil"}}
	}
	l := &linter{form: form, ids: make(map[string]int, len(form.Screens))}

	for _, s := range form.Screens {
		if s.ID == "" {
			l.errorf("", "screen with empty id")
			continue
		}
		l.ids[s.ID]++
		if l.ids[s.ID] == 2 {
			l.errorf(s.ID, "duplicate screen id")
		}
	}

	for i := range form.Screens {
		l.screen(&form.Screens[i])
	}
	l.rules()
	l.reachability()
	return l.issues
}

func (l *linter) known(id string) bool {
	return l.ids[id] > 0
}

func (l *linter) screen(s *formflow.Screen) {
	if s.ID == "" {
		return
	}
	if !s.Type.Valid() {
		l.errorf(s.ID, "unknown screen type %q", s.Type)
	}

	if s.Next != "" && !l.known(s.Next) {
		l.errorf(s.ID, "next points to unknown screen %q", s.Next)
	}

	seenIf, elses := false, 0
	for _, rule := range s.NextLogic {
		switch {
		case rule.GoTo == "":
			l.errorf(s.ID, "next_logic entry without go_to")
		case !l.known(rule.GoTo):
			l.errorf(s.ID, "next_logic go_to points to unknown screen %q", rule.GoTo)
		}
		if rule.IsElse() {
			elses++
			if rule.If != "" {
				l.warnf(s.ID, "next_logic entry sets both else and if %q; the condition is ignored", rule.If)
			}
			continue
		}
		if elses > 0 && !seenIf {
			l.warnf(s.ID, "next_logic else entry precedes if entries; else is always evaluated last")
		}
		seenIf = true
		if err := formflow.ParseError(rule.If); err != nil {
			l.errorf(s.ID, "next_logic: %v", err)
		}
	}
	if elses > 1 {
		l.warnf(s.ID, "next_logic has %d else entries; only the first is used", elses)
	}

	if s.Next == "" && len(s.NextLogic) == 0 && s.Type != formflow.ScreenTerminal && s.Type != formflow.ScreenReview {
		l.warnf(s.ID, "screen has no next or next_logic; forward navigation stops here")
	}

	for _, c := range s.Calculations {
		if c.ID == "" {
			l.errorf(s.ID, "calculation without id")
			continue
		}
		if !formflow.KnownFormula(c.Formula) {
			l.errorf(s.ID, "calculation %s: unknown formula %q", c.ID, c.Formula)
		}
	}

	if s.Type == formflow.ScreenComposite && len(s.Fields) == 0 {
		l.warnf(s.ID, "composite screen has no fields")
	}
}

func (l *linter) rules() {
	seen := make(map[string]bool, len(l.form.EligibilityRules))
	for i, r := range l.form.EligibilityRules {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("#%d", i+1)
			l.ruleIssue(SeverityWarning, id, "eligibility rule without id")
		} else if seen[id] {
			l.ruleIssue(SeverityWarning, id, "duplicate eligibility rule id")
		}
		seen[id] = true

		if r.Action == "" {
			l.ruleIssue(SeverityError, id, "eligibility rule without action never raises a flag")
		}
		if err := formflow.ParseError(r.If); err != nil {
			l.ruleIssue(SeverityError, id, "%v", err)
		}
		if !knownSeverities[r.Severity] {
			l.ruleIssue(SeverityWarning, id, "unknown severity %q", r.Severity)
		}
	}
}

// reachability walks next and go_to edges from the start screen.
func (l *linter) reachability() {
	start := l.form.Start()
	if start == nil {
		l.errorf("", "form has no screens")
		return
	}
	reached := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		s := l.form.Screen(queue[0])
		queue = queue[1:]
		if s == nil {
			continue
		}
		targets := []string{s.Next}
		for _, rule := range s.NextLogic {
			targets = append(targets, rule.GoTo)
		}
		for _, t := range targets {
			if t == "" || reached[t] || !l.known(t) {
				continue
			}
			reached[t] = true
			queue = append(queue, t)
		}
	}
	for _, s := range l.form.Screens {
		if s.ID != "" && !reached[s.ID] {
			l.warnf(s.ID, "screen is unreachable from %s", start.ID)
		}
	}
}
