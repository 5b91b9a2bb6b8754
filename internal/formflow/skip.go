package formflow

import (
	"regexp"
	"strings"
)

// SkipPredicate reports whether a screen's answers are already known.
type SkipPredicate func(Answers) bool

// SkipRule bypasses ScreenID during navigation while Predicate holds.
type SkipRule struct {
	ScreenID  string
	Predicate SkipPredicate
	Source    string
}

const (
	SkipSourceStatic  = "static"
	SkipSourceDerived = "derived"
)

// Email capture screen and field targeted by the default static rule.
const (
	EmailCaptureScreenID = "account.email"
	EmailFieldID         = "email"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether v is a syntactically plausible email address.
func ValidEmail(v any) bool {
	s, ok := v.(string)
	return ok && emailPattern.MatchString(strings.TrimSpace(s))
}

// DefaultSkipRules returns the static rules applied when the caller supplies
// none: skip email capture when a valid email is already known.
func DefaultSkipRules() []SkipRule {
	return []SkipRule{{
		ScreenID: EmailCaptureScreenID,
		Source:   SkipSourceStatic,
		Predicate: func(a Answers) bool {
			return ValidEmail(a[EmailFieldID])
		},
	}}
}

// DeriveSkipRules synthesizes one rule per answer-collecting screen whose
// predicate holds when all of that screen's required answers are filled.
func DeriveSkipRules(screens []Screen) []SkipRule {
	var rules []SkipRule
	for i := range screens {
		s := screens[i]
		if s.Type.Presentational() {
			continue
		}
		var pred SkipPredicate
		switch {
		case s.Type.Selection():
			key, required := s.AnswerKey(), s.Required
			pred = func(a Answers) bool { return required && a.Filled(key) }
		case s.Type == ScreenComposite:
			ids := s.RequiredFieldIDs()
			pred = func(a Answers) bool {
				if len(ids) == 0 {
					return false
				}
				for _, id := range ids {
					if !a.Filled(id) {
						return false
					}
				}
				return true
			}
		case s.Type == ScreenText || s.Type == ScreenNumber || s.Type == ScreenDate:
			key, required := s.ID, s.Required
			pred = func(a Answers) bool { return required && a.Filled(key) }
		case s.Type == ScreenConsent:
			pred = func(Answers) bool { return false }
		default:
			continue
		}
		rules = append(rules, SkipRule{ScreenID: s.ID, Predicate: pred, Source: SkipSourceDerived})
	}
	return rules
}

// MergeSkipRules combines static and derived rules. A derived rule is
// dropped when a static rule already targets the same screen.
func MergeSkipRules(static, derived []SkipRule) []SkipRule {
	seen := make(map[string]bool, len(static))
	out := make([]SkipRule, 0, len(static)+len(derived))
	for _, r := range static {
		seen[r.ScreenID] = true
		out = append(out, r)
	}
	for _, r := range derived {
		if seen[r.ScreenID] {
			continue
		}
		seen[r.ScreenID] = true
		out = append(out, r)
	}
	return out
}

// ShouldSkip reports whether the first rule targeting screenID holds.
func ShouldSkip(screenID string, answers Answers, rules []SkipRule) bool {
	for _, r := range rules {
		if r.ScreenID != screenID {
			continue
		}
		return r.Predicate != nil && r.Predicate(answers)
	}
	return false
}

// ResolveSkips walks forward from id along static next links while the
// current candidate is skippable. It stops at a dead end (no next, or next
// unknown) and on revisiting a screen, returning the last candidate.
func ResolveSkips(form *Form, id string, answers Answers, rules []SkipRule) string {
	seen := map[string]bool{id: true}
	current := id
	for ShouldSkip(current, answers, rules) {
		s := form.Screen(current)
		if s == nil || s.Next == "" || form.Screen(s.Next) == nil || seen[s.Next] {
			break
		}
		current = s.Next
		seen[current] = true
	}
	return current
}
