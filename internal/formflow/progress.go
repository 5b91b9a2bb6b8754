package formflow

const (
	defaultProgressBuffer = 3
	progressFloor         = 5.0
	progressCeiling       = 95.0
)

// ProgressState is the displayed progress plus the high-water marks that
// keep it from moving backwards.
type ProgressState struct {
	Percent    float64 `json:"percent"`
	MaxPercent float64 `json:"max_percent"`
	Step       int     `json:"step"`
	TotalSteps int     `json:"total_steps"`
	MaxStep    int     `json:"max_step"`
}

// Progress returns the displayed completion percentage.
func (e *Engine) Progress() float64 { return e.progress.Percent }

// CurrentStep is the 1-based step number shown to the user.
func (e *Engine) CurrentStep() int { return e.progress.Step }

// TotalSteps is the estimated step count shown next to CurrentStep.
func (e *Engine) TotalSteps() int { return e.progress.TotalSteps }

func (e *Engine) ProgressState() ProgressState { return e.progress }

// refreshProgress recomputes progress after a transition. Terminal screens
// read 100% with the step count pinned to the furthest step reached.
// Elsewhere progress is visited/expected scaled into [5, 95], and neither
// the percentage nor the total step count ever drops below an earlier value.
func (e *Engine) refreshProgress() {
	p := &e.progress
	visited := len(e.history) + 1
	if visited > p.MaxStep {
		p.MaxStep = visited
	}

	if s := e.CurrentScreen(); s != nil && s.Type == ScreenTerminal {
		p.Percent, p.MaxPercent = 100, 100
		p.Step, p.TotalSteps = p.MaxStep, p.MaxStep
		return
	}

	total := e.form.StepEstimate()
	if visited+e.progressBuffer > total {
		total = visited + e.progressBuffer
	}
	if p.TotalSteps > total {
		total = p.TotalSteps
	}

	pct := float64(visited) / float64(total) * progressCeiling
	if pct > progressCeiling {
		pct = progressCeiling
	}
	if pct < progressFloor {
		pct = progressFloor
	}
	if pct < p.MaxPercent {
		pct = p.MaxPercent
	}

	p.Percent, p.MaxPercent = pct, pct
	p.Step, p.TotalSteps = visited, total
}
