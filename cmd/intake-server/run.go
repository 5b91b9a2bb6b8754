package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ehr/intake/cmd/intake-server/wizard"
	"github.com/ehr/intake/internal/formflow"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Fill in a program's intake interactively in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accessible, _ := cmd.Flags().GetBool("accessible")
			stateFile, _ := cmd.Flags().GetString("state")

			if !accessible && !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				return errors.New("run needs an interactive terminal; pass --accessible for line-based prompts")
			}

			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			form, ok := registry.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown program %q (known: %s)", args[0], strings.Join(registry.Programs(), ", "))
			}

			engine, err := resumeEngine(form, stateFile)
			if err != nil {
				return err
			}

			prompter := &wizard.HuhPrompter{Program: titleOf(form), Accessible: accessible}
			outcome, err := wizard.NewRunner(engine, prompter).Run(cmd.Context())
			if err != nil {
				return err
			}

			if stateFile != "" {
				if err := saveState(stateFile, engine.Snapshot()); err != nil {
					return err
				}
			}
			printOutcome(cmd, outcome, stateFile)
			return nil
		},
	}
	cmd.Flags().String("dir", os.Getenv("FORMS_DIR"), "Directory of extra form configurations")
	cmd.Flags().Bool("accessible", false, "Use plain line-based prompts")
	cmd.Flags().String("state", "", "JSON file to resume from and save progress to")
	return cmd
}

func titleOf(form *formflow.Form) string {
	if form.Title != "" {
		return form.Title
	}
	return form.Program
}

// resumeEngine restores a saved session when stateFile exists, otherwise
// starts fresh.
func resumeEngine(form *formflow.Form, stateFile string) (*formflow.Engine, error) {
	opts := []formflow.Option{formflow.WithDerivedSkipRules()}
	if stateFile == "" {
		return formflow.New(form, opts...), nil
	}
	data, err := os.ReadFile(stateFile)
	if errors.Is(err, os.ErrNotExist) {
		return formflow.New(form, opts...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st formflow.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", stateFile, err)
	}
	return formflow.Restore(form, st, opts...), nil
}

func saveState(path string, st formflow.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func printOutcome(cmd *cobra.Command, o wizard.Outcome, stateFile string) {
	w := cmd.OutOrStdout()
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)

	if o.Completed {
		green.Fprintf(w, "Finished at %s\n", o.FinalScreen)
	} else {
		yellow.Fprintf(w, "Stopped at %s\n", o.FinalScreen)
		if stateFile != "" {
			fmt.Fprintf(w, "Progress saved to %s\n", stateFile)
		}
	}
	if len(o.Flags) > 0 {
		yellow.Fprintf(w, "Flags: %s\n", strings.Join(o.Flags, ", "))
	}
}
