package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/intake/internal/formconfig"
	"github.com/ehr/intake/internal/formflow"
)

func formsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Inspect and check form configurations",
	}
	cmd.PersistentFlags().String("dir", os.Getenv("FORMS_DIR"), "Directory of extra form configurations")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered programs",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			printFormList(cmd.OutOrStdout(), registry.List())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "lint [file...]",
		Short: "Report defects in form configurations",
		Long:  "Lints the given files, or every registered program when no file is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []lintResult
			if len(args) == 0 {
				registry, err := loadRegistry(cmd)
				if err != nil {
					return err
				}
				results = lintRegistry(registry)
			} else {
				for _, file := range args {
					form, err := formconfig.LoadFile(file)
					if err != nil {
						return err
					}
					results = append(results, lintResult{Form: form, Issues: formconfig.Lint(form)})
				}
			}

			failed := printLint(cmd.OutOrStdout(), results)
			if failed > 0 {
				return fmt.Errorf("%d form configuration(s) have errors", failed)
			}
			return nil
		},
	})

	walk := &cobra.Command{
		Use:   "walk <program>",
		Short: "Replay an answer file through a program and print the path taken",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			form, ok := registry.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown program %q (known: %s)", args[0], strings.Join(registry.Programs(), ", "))
			}

			answersFile, _ := cmd.Flags().GetString("answers")
			answers, err := readAnswers(answersFile)
			if err != nil {
				return err
			}
			printWalk(cmd.OutOrStdout(), walkForm(form, answers))
			return nil
		},
	}
	walk.Flags().String("answers", "", "YAML file mapping field ids to answers")
	_ = walk.MarkFlagRequired("answers")
	cmd.AddCommand(walk)

	return cmd
}

func loadRegistry(cmd *cobra.Command) (*formconfig.Registry, error) {
	dir, _ := cmd.Flags().GetString("dir")
	return formconfig.Load(dir, zerolog.Nop())
}

type lintResult struct {
	Form   *formflow.Form
	Issues []formconfig.Issue
}

func (r lintResult) errors() int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == formconfig.SeverityError {
			n++
		}
	}
	return n
}

func lintRegistry(registry *formconfig.Registry) []lintResult {
	var out []lintResult
	for _, program := range registry.Programs() {
		form, ok := registry.Get(program)
		if !ok {
			continue
		}
		out = append(out, lintResult{Form: form, Issues: formconfig.Lint(form)})
	}
	return out
}

func printFormList(w io.Writer, forms []formconfig.Summary) {
	bold := color.New(color.Bold)
	gray := color.New(color.FgHiBlack)

	bold.Fprintf(w, "%-22s %-12s %-8s %s\n", "PROGRAM", "VERSION", "SCREENS", "TITLE")
	for _, f := range forms {
		fmt.Fprintf(w, "%-22s %-12s %-8d %s\n", f.Program, f.Version, f.Screens, f.Title)
	}
	gray.Fprintf(w, "%d program(s)\n", len(forms))
}

// printLint writes every issue and returns how many forms have errors.
func printLint(w io.Writer, results []lintResult) int {
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	failed := 0
	for _, r := range results {
		cyan.Fprintf(w, "%s (%s@%s)\n", r.Form.Program, r.Form.ID, r.Form.Version)
		if len(r.Issues) == 0 {
			green.Fprintln(w, "  ok")
			continue
		}
		for _, i := range r.Issues {
			c := yellow
			if i.Severity == formconfig.SeverityError {
				c = red
			}
			c.Fprintf(w, "  %s\n", i)
		}
		if r.errors() > 0 {
			failed++
		}
	}
	return failed
}

func readAnswers(path string) (formflow.Answers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	answers := formflow.Answers{}
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("decode answers %s: %w", path, err)
	}
	return answers, nil
}

type walkResult struct {
	Path         []string
	Final        string
	Terminal     bool
	Calculations formflow.Calculations
	Flags        []string
	Events       []formflow.FlagEvent
	Progress     float64
}

// walkForm feeds all answers up front and advances until the engine stops.
// Screens whose answers are present are still visited so the path shows
// every branch decision.
func walkForm(form *formflow.Form, answers formflow.Answers) walkResult {
	e := formflow.New(form)
	e.UpdateAnswers(answers)

	path := []string{e.CurrentScreenID()}
	limit := 2*len(form.Screens) + 1
	for i := 0; i < limit; i++ {
		s := e.CurrentScreen()
		if s == nil || s.Type == formflow.ScreenTerminal {
			break
		}
		if !e.GoToNext() {
			break
		}
		path = append(path, e.CurrentScreenID())
	}

	final := e.CurrentScreen()
	return walkResult{
		Path:         path,
		Final:        e.CurrentScreenID(),
		Terminal:     final != nil && final.Type == formflow.ScreenTerminal,
		Calculations: e.Calculations(),
		Flags:        e.Flags().Sorted(),
		Events:       e.FlagEvents(),
		Progress:     e.Progress(),
	}
}

func printWalk(w io.Writer, r walkResult) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Fprintln(w, "Path")
	for i, id := range r.Path {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, id)
	}
	if r.Terminal {
		green.Fprintf(w, "Reached terminal screen %s (%.0f%%)\n", r.Final, r.Progress)
	} else {
		yellow.Fprintf(w, "Stopped at %s (%.0f%%): no next target\n", r.Final, r.Progress)
	}

	cyan.Fprintln(w, "Calculations")
	if len(r.Calculations) == 0 {
		gray.Fprintln(w, "  none")
	}
	for _, id := range sortedCalcIDs(r.Calculations) {
		if v, ok := r.Calculations.Value(id); ok {
			fmt.Fprintf(w, "  %s = %g\n", id, v)
		} else {
			fmt.Fprintf(w, "  %s = unknown\n", id)
		}
	}

	cyan.Fprintln(w, "Flags")
	if len(r.Events) == 0 {
		gray.Fprintln(w, "  none")
	}
	for _, ev := range r.Events {
		sev := ev.Severity
		if sev == "" {
			sev = "-"
		}
		yellow.Fprintf(w, "  %s", ev.Flag)
		gray.Fprintf(w, " rule=%s severity=%s screen=%s\n", ev.RuleID, sev, ev.ScreenID)
	}
}

func sortedCalcIDs(c formflow.Calculations) []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
