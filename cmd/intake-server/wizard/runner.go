// Package wizard runs an intake form in the terminal. It drives the same
// formflow.Engine as the HTTP API, one screen at a time, so clinicians can
// rehearse a program configuration without a browser.
package wizard

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/intake/internal/formflow"
)

type Action int

const (
	ActionNext Action = iota
	ActionBack
	ActionQuit
)

// ErrStuck means the engine refused to leave a non-terminal screen, which
// only happens when the configuration has no usable next target.
var ErrStuck = errors.New("wizard: screen has no next target")

// Step is everything a prompter needs to render one screen.
type Step struct {
	Screen       *formflow.Screen
	Answers      formflow.Answers
	Calculations formflow.Calculations
	Progress     float64
	CurrentStep  int
	TotalSteps   int
	CanGoBack    bool
	// Problem is set when the previous reply left required answers empty.
	Problem string
}

type Reply struct {
	Action  Action
	Answers map[string]any
}

type Prompter interface {
	Prompt(ctx context.Context, step Step) (Reply, error)
}

// Outcome summarises a finished or abandoned run.
type Outcome struct {
	Completed    bool
	FinalScreen  string
	Path         []string
	Answers      formflow.Answers
	Calculations formflow.Calculations
	Flags        []string
}

type Runner struct {
	engine   *formflow.Engine
	prompter Prompter
	maxSteps int
}

func NewRunner(engine *formflow.Engine, prompter Prompter) *Runner {
	return &Runner{engine: engine, prompter: prompter, maxSteps: 500}
}

// Run prompts screen by screen until a terminal screen has been shown or the
// user quits.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	e := r.engine
	path := []string{e.CurrentScreenID()}
	problem := ""

	for i := 0; i < r.maxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return r.outcome(path, false), err
		}

		screen := e.CurrentScreen()
		if screen == nil {
			return r.outcome(path, false), fmt.Errorf("wizard: current screen %q not in form", e.CurrentScreenID())
		}

		reply, err := r.prompter.Prompt(ctx, Step{
			Screen:       screen,
			Answers:      e.Answers(),
			Calculations: e.Calculations(),
			Progress:     e.Progress(),
			CurrentStep:  e.CurrentStep(),
			TotalSteps:   e.TotalSteps(),
			CanGoBack:    len(e.History()) > 0,
			Problem:      problem,
		})
		if err != nil {
			return r.outcome(path, false), err
		}
		problem = ""

		if screen.Type == formflow.ScreenTerminal {
			return r.outcome(path, true), nil
		}

		switch reply.Action {
		case ActionQuit:
			return r.outcome(path, false), nil
		case ActionBack:
			if e.GoToPrev() {
				path = append(path, e.CurrentScreenID())
			}
			continue
		}

		e.UpdateAnswers(reply.Answers)
		if missing := MissingRequired(screen, e.Answers()); len(missing) > 0 {
			problem = fmt.Sprintf("please answer: %v", missing)
			continue
		}
		if !e.GoToNext() {
			return r.outcome(path, false), fmt.Errorf("%w: %s", ErrStuck, screen.ID)
		}
		path = append(path, e.CurrentScreenID())
	}
	return r.outcome(path, false), fmt.Errorf("wizard: gave up after %d steps", r.maxSteps)
}

func (r *Runner) outcome(path []string, completed bool) Outcome {
	return Outcome{
		Completed:    completed,
		FinalScreen:  r.engine.CurrentScreenID(),
		Path:         path,
		Answers:      r.engine.Answers(),
		Calculations: r.engine.Calculations(),
		Flags:        r.engine.Flags().Sorted(),
	}
}

// MissingRequired lists the required answer keys the screen still lacks.
// Consent screens additionally require an affirmative answer.
func MissingRequired(screen *formflow.Screen, answers formflow.Answers) []string {
	var missing []string
	switch {
	case screen.Type == formflow.ScreenComposite:
		for _, id := range screen.RequiredFieldIDs() {
			if !answers.Filled(id) {
				missing = append(missing, id)
			}
		}
	case screen.Type == formflow.ScreenConsent && screen.Required:
		if v, _ := answers[screen.AnswerKey()].(bool); !v {
			missing = append(missing, screen.AnswerKey())
		}
	case screen.Required && !screen.Type.Presentational():
		if !answers.Filled(screen.AnswerKey()) {
			missing = append(missing, screen.AnswerKey())
		}
	}
	return missing
}
