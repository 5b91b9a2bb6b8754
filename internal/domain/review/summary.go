package review

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ehr/intake/internal/formflow"
)

// Raw HTML in answers is dropped by goldmark's default renderer.
var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderSummary renders the provider summary for sub as an HTML fragment.
// form labels the answers and may be nil.
func RenderSummary(sub *Submission, form *formflow.Form) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(SummaryMarkdown(sub, form)), &buf); err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	return buf.Bytes(), nil
}

// SummaryMarkdown lays out a submission for the reviewing clinician: the
// flags first, then calculated values, then every answer.
func SummaryMarkdown(sub *Submission, form *formflow.Form) string {
	var b strings.Builder

	title := sub.Program
	if form != nil && form.Title != "" {
		title = form.Title
	}
	fmt.Fprintf(&b, "# %s intake\n\n", cell(title))
	fmt.Fprintf(&b, "- **Submission:** %s\n", sub.ID)
	fmt.Fprintf(&b, "- **Patient:** %s\n", cell(sub.PatientID))
	fmt.Fprintf(&b, "- **Form version:** %s\n", cell(sub.FormVersion))
	if !sub.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- **Submitted:** %s\n", sub.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "- **Priority:** %s\n", sub.Priority)
	fmt.Fprintf(&b, "- **Status:** %s\n", sub.Status)
	if sub.Note != nil {
		fmt.Fprintf(&b, "- **Reviewer note:** %s\n", cell(*sub.Note))
	}

	b.WriteString("\n## Flags\n\n")
	if len(sub.Flags) == 0 {
		b.WriteString("No eligibility flags were raised.\n")
	} else {
		events := make(map[string]formflow.FlagEvent, len(sub.FlagEvents))
		for _, ev := range sub.FlagEvents {
			events[ev.Flag] = ev
		}
		b.WriteString("| Flag | Rule | Severity | Raised on |\n|---|---|---|---|\n")
		for _, flag := range sub.Flags.Sorted() {
			ev := events[flag]
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(flag), cell(ev.RuleID), cell(ev.Severity), cell(ev.ScreenID))
		}
	}

	if len(sub.Calculations) > 0 {
		b.WriteString("\n## Calculations\n\n| Calculation | Value |\n|---|---|\n")
		ids := make([]string, 0, len(sub.Calculations))
		for id := range sub.Calculations {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			value := "unknown"
			if v, ok := sub.Calculations.Value(id); ok {
				value = strconv.FormatFloat(v, 'f', -1, 64)
			}
			fmt.Fprintf(&b, "| %s | %s |\n", cell(id), value)
		}
	}

	b.WriteString("\n## Answers\n\n")
	if len(sub.Answers) == 0 {
		b.WriteString("No answers recorded.\n")
		return b.String()
	}
	labels, order := answerLabels(form)
	b.WriteString("| Question | Answer |\n|---|---|\n")
	for _, key := range answerOrder(sub.Answers, order) {
		label := labels[key]
		if label == "" {
			label = key
		}
		fmt.Fprintf(&b, "| %s | %s |\n", cell(label), cell(formatValue(sub.Answers[key])))
	}
	return b.String()
}

// answerLabels maps answer keys to human labels in form order.
func answerLabels(form *formflow.Form) (map[string]string, []string) {
	labels := map[string]string{}
	var order []string
	if form == nil {
		return labels, order
	}
	add := func(key, label string) {
		if key == "" {
			return
		}
		if _, seen := labels[key]; !seen {
			order = append(order, key)
		}
		if label != "" || labels[key] == "" {
			labels[key] = label
		}
	}
	var walk func(fields []formflow.Field)
	walk = func(fields []formflow.Field) {
		for _, f := range fields {
			add(f.ID, f.Label)
			walk(f.Fields)
			walk(f.SubFields)
		}
	}
	for _, s := range form.Screens {
		if s.Type == formflow.ScreenComposite {
			walk(s.Fields)
			continue
		}
		if !s.Type.Presentational() {
			add(s.AnswerKey(), s.Title)
		}
	}
	return labels, order
}

func answerOrder(answers formflow.Answers, formOrder []string) []string {
	out := make([]string, 0, len(answers))
	seen := make(map[string]bool, len(answers))
	for _, key := range formOrder {
		if _, ok := answers[key]; ok {
			out = append(out, key)
			seen[key] = true
		}
	}
	var rest []string
	for key := range answers {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + formatValue(t[k])
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Sprint(v)
}

// cell makes s safe inside a single Markdown table cell or list item.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
