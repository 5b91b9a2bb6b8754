package formflow

// State is a serialisable snapshot of an Engine.
type State struct {
	FormID          string        `json:"form_id"`
	FormVersion     string        `json:"form_version"`
	CurrentScreenID string        `json:"current_screen_id"`
	Answers         Answers       `json:"answers"`
	Calculations    Calculations  `json:"calculations"`
	History         []string      `json:"history"`
	Flags           FlagSet       `json:"flags"`
	FlagEvents      []FlagEvent   `json:"flag_events,omitempty"`
	Direction       Direction     `json:"direction"`
	ReturnTo        string        `json:"return_to,omitempty"`
	Progress        ProgressState `json:"progress"`
}

// Snapshot captures the engine's state.
func (e *Engine) Snapshot() State {
	st := State{
		CurrentScreenID: e.current,
		Answers:         e.answers.Clone(),
		Calculations:    e.calcs.Clone(),
		History:         e.History(),
		Flags:           e.flags.Clone(),
		FlagEvents:      e.FlagEvents(),
		Direction:       e.direction,
		ReturnTo:        e.returnTo,
		Progress:        e.progress,
	}
	if e.form != nil {
		st.FormID, st.FormVersion = e.form.ID, e.form.Version
	}
	if st.History == nil {
		st.History = []string{}
	}
	return st
}

// Restore rebuilds an engine from a snapshot. A snapshot taken against a
// different form version, or pointing at a screen the form no longer has,
// starts a fresh session instead. History entries naming unknown screens
// are dropped.
func Restore(form *Form, st State, opts ...Option) *Engine {
	e := New(form, opts...)
	if form == nil {
		return e
	}
	if st.FormID != form.ID || st.FormVersion != form.Version {
		e.logger.Warn().Str("form_id", form.ID).Str("form_version", form.Version).
			Str("state_version", st.FormVersion).Msg("restore: form changed, starting fresh session")
		return e
	}
	if form.Screen(st.CurrentScreenID) == nil {
		e.logger.Warn().Str("screen_id", st.CurrentScreenID).Msg("restore: unknown current screen, starting fresh session")
		return e
	}
	e.current = st.CurrentScreenID
	if st.Answers != nil {
		e.answers = st.Answers.Clone()
	}
	if st.Calculations != nil {
		e.calcs = st.Calculations.Clone()
	}
	for _, id := range st.History {
		if form.Screen(id) == nil {
			e.logger.Warn().Str("screen_id", id).Msg("restore: dropping unknown history entry")
			continue
		}
		e.history = append(e.history, id)
	}
	if st.Flags != nil {
		e.flags = st.Flags.Clone()
	}
	e.events = append([]FlagEvent(nil), st.FlagEvents...)
	if st.Direction == Backward {
		e.direction = Backward
	}
	if form.Screen(st.ReturnTo) != nil {
		e.returnTo = st.ReturnTo
	}
	e.progress = st.Progress
	return e
}
