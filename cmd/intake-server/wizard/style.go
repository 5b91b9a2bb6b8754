package wizard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ehr/intake/internal/formflow"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	barFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))

	problemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// ProgressBar draws pct (0..100) as a bar of width cells.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	full := int(pct / 100 * float64(width))
	return barFullStyle.Render(strings.Repeat("█", full)) +
		barEmptyStyle.Render(strings.Repeat("░", width-full))
}

// Header renders the program title, step counter and progress bar shown
// above every screen.
func Header(program string, step Step) string {
	lines := []string{
		titleStyle.Render(program),
		subtitleStyle.Render(fmt.Sprintf("Step %d of %d", step.CurrentStep, step.TotalSteps)) +
			"  " + ProgressBar(step.Progress, 30),
	}
	if step.Problem != "" {
		lines = append(lines, problemStyle.Render(step.Problem))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// AnswerSummary lists answers and calculations in key order for review
// screens.
func AnswerSummary(answers formflow.Answers, calcs formflow.Calculations) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, formatAnswer(answers[k]))
	}
	calcKeys := make([]string, 0, len(calcs))
	for k := range calcs {
		calcKeys = append(calcKeys, k)
	}
	sort.Strings(calcKeys)
	for _, k := range calcKeys {
		v := "unknown"
		if n, ok := calcs.Value(k); ok {
			v = fmt.Sprintf("%g", n)
		}
		fmt.Fprintf(&b, "calc.%s: %s\n", k, v)
	}
	return summaryStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func formatAnswer(v any) string {
	switch t := v.(type) {
	case nil:
		return "-"
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, len(t))
		for i, p := range t {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ", ")
	case bool:
		if t {
			return "yes"
		}
		return "no"
	}
	return fmt.Sprint(v)
}
