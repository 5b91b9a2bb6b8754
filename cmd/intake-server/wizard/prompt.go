package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/ehr/intake/internal/formflow"
)

// HuhPrompter renders each screen as a huh form.
type HuhPrompter struct {
	Program    string
	Accessible bool
}

// binding ties one huh field's storage to an answer key.
type binding struct {
	key  string
	kind string
	str  *string
	strs *[]string
	b    *bool
}

func (b binding) value() (any, error) {
	switch {
	case b.strs != nil:
		return append([]string(nil), (*b.strs)...), nil
	case b.b != nil:
		return *b.b, nil
	}
	return ParseInput(b.kind, *b.str)
}

func (p *HuhPrompter) Prompt(ctx context.Context, step Step) (Reply, error) {
	s := step.Screen
	fields, bindings := screenFields(step)

	header := huh.NewNote().
		Title(Header(p.Program, step)).
		Description(screenTitle(s))
	groupFields := append([]huh.Field{header}, fields...)

	action := ActionNext
	var groups []*huh.Group
	groups = append(groups, huh.NewGroup(groupFields...))
	if s.Type != formflow.ScreenTerminal {
		groups = append(groups, huh.NewGroup(navSelect(step, &action)))
	}

	form := huh.NewForm(groups...).
		WithTheme(huh.ThemeCharm()).
		WithAccessible(p.Accessible)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Reply{Action: ActionQuit}, nil
		}
		return Reply{}, err
	}

	reply := Reply{Action: action, Answers: map[string]any{}}
	if action != ActionNext {
		return reply, nil
	}
	for _, b := range bindings {
		v, err := b.value()
		if err != nil {
			return Reply{}, fmt.Errorf("%s: %w", b.key, err)
		}
		if v != nil {
			reply.Answers[b.key] = v
		}
	}
	return reply, nil
}

func screenTitle(s *formflow.Screen) string {
	if s.Body == "" {
		return s.Title
	}
	return s.Title + "\n\n" + s.Body
}

func navSelect(step Step, action *Action) huh.Field {
	opts := []huh.Option[Action]{huh.NewOption("Continue", ActionNext)}
	if step.CanGoBack {
		opts = append(opts, huh.NewOption("Back", ActionBack))
	}
	opts = append(opts, huh.NewOption("Save and quit", ActionQuit))
	return huh.NewSelect[Action]().
		Title("Next").
		Options(opts...).
		Value(action)
}

func screenFields(step Step) ([]huh.Field, []binding) {
	s := step.Screen
	key := s.AnswerKey()

	switch s.Type {
	case formflow.ScreenReview:
		return []huh.Field{huh.NewNote().Description(AnswerSummary(step.Answers, step.Calculations))}, nil

	case formflow.ScreenContent, formflow.ScreenInterstitial, formflow.ScreenTerminal:
		return nil, nil

	case formflow.ScreenSingleSelect, formflow.ScreenAutocomplete, formflow.ScreenPlanSelection:
		val := stringAnswer(step.Answers[key])
		sel := huh.NewSelect[string]().
			Options(huhOptions(s.Options)...).
			Value(&val).
			Filtering(s.Type == formflow.ScreenAutocomplete)
		return []huh.Field{sel}, []binding{{key: key, kind: string(s.Type), str: &val}}

	case formflow.ScreenMultiSelect:
		vals := stringsAnswer(step.Answers[key])
		ms := huh.NewMultiSelect[string]().
			Options(huhOptions(s.Options)...).
			Value(&vals)
		return []huh.Field{ms}, []binding{{key: key, kind: string(s.Type), strs: &vals}}

	case formflow.ScreenConsent:
		agreed, _ := step.Answers[key].(bool)
		c := huh.NewConfirm().
			Affirmative("I agree").
			Negative("No").
			Value(&agreed)
		return []huh.Field{c}, []binding{{key: key, kind: string(s.Type), b: &agreed}}

	case formflow.ScreenComposite:
		var fields []huh.Field
		var bindings []binding
		for _, f := range LeafFields(s.Fields) {
			if len(f.Options) > 0 {
				val := stringAnswer(step.Answers[f.ID])
				fields = append(fields, huh.NewSelect[string]().
					Title(fieldLabel(f)).
					Options(huhOptions(f.Options)...).
					Value(&val))
				bindings = append(bindings, binding{key: f.ID, kind: f.Type, str: &val})
				continue
			}
			val := stringAnswer(step.Answers[f.ID])
			fields = append(fields, textInput(fieldLabel(f), f.Type, &val))
			bindings = append(bindings, binding{key: f.ID, kind: f.Type, str: &val})
		}
		return fields, bindings
	}

	// text, number, date
	val := stringAnswer(step.Answers[key])
	return []huh.Field{textInput("", string(s.Type), &val)}, []binding{{key: key, kind: string(s.Type), str: &val}}
}

func textInput(title, kind string, val *string) *huh.Input {
	in := huh.NewInput().Title(title).Value(val).Validate(func(v string) error {
		_, err := ParseInput(kind, v)
		return err
	})
	if kind == "date" {
		in = in.Placeholder("YYYY-MM-DD")
	}
	return in
}

func fieldLabel(f formflow.Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

func huhOptions(opts []formflow.Choice) []huh.Option[string] {
	out := make([]huh.Option[string], 0, len(opts))
	for _, o := range opts {
		label := o.Label
		if label == "" {
			label = o.Value
		}
		out = append(out, huh.NewOption(label, o.Value))
	}
	return out
}

// LeafFields flattens nested groups into the inputs a user actually fills.
func LeafFields(fields []formflow.Field) []formflow.Field {
	var out []formflow.Field
	for _, f := range fields {
		if len(f.Fields) > 0 || len(f.SubFields) > 0 {
			out = append(out, LeafFields(f.Fields)...)
			out = append(out, LeafFields(f.SubFields)...)
			continue
		}
		out = append(out, f)
	}
	return out
}

// ParseInput converts typed text into an answer value. Blank input is nil so
// that optional fields stay unanswered.
func ParseInput(kind, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}
	switch kind {
	case "number":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return f, nil
	case "date":
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return nil, fmt.Errorf("%q is not a YYYY-MM-DD date", s)
		}
	}
	return s, nil
}

func stringAnswer(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func stringsAnswer(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
