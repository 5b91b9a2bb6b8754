package formflow

import (
	"time"

	"github.com/rs/zerolog"
)

// Direction of the last transition; renderers use it to pick an animation.
type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

// FlagEvent records the first time a flag was raised and by which rule.
type FlagEvent struct {
	Flag     string    `json:"flag"`
	RuleID   string    `json:"rule_id"`
	Severity string    `json:"severity,omitempty"`
	ScreenID string    `json:"screen_id"`
	RaisedAt time.Time `json:"raised_at"`
}

// Engine is the navigation state machine for one intake session. It owns
// the current screen, answers, calculations, history, flags and the
// one-shot return pointer. Navigation never fails loudly: a request that
// cannot be honoured leaves state untouched and logs a warning.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	form           *Form
	skipRules      func(*Form) []SkipRule
	rules          []SkipRule
	logger         zerolog.Logger
	now            func() time.Time
	progressBuffer int

	current   string
	answers   Answers
	calcs     Calculations
	history   []string
	flags     FlagSet
	events    []FlagEvent
	direction Direction
	returnTo  string
	progress  ProgressState
}

type Option func(*Engine)

// WithSkipRules uses a fixed rule set for every form.
func WithSkipRules(rules []SkipRule) Option {
	return func(e *Engine) {
		e.skipRules = func(*Form) []SkipRule { return rules }
	}
}

// WithDerivedSkipRules merges DefaultSkipRules with rules derived from each
// form's screens, static rules winning.
func WithDerivedSkipRules() Option {
	return func(e *Engine) {
		e.skipRules = func(f *Form) []SkipRule {
			if f == nil {
				return DefaultSkipRules()
			}
			return MergeSkipRules(DefaultSkipRules(), DeriveSkipRules(f.Screens))
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithProgressBuffer sets how many steps beyond the visited count the
// progress estimate always assumes remain.
func WithProgressBuffer(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.progressBuffer = n
		}
	}
}

// New starts a fresh session on form's first screen.
func New(form *Form, opts ...Option) *Engine {
	e := &Engine{
		skipRules:      func(*Form) []SkipRule { return DefaultSkipRules() },
		logger:         zerolog.Nop(),
		now:            time.Now,
		progressBuffer: defaultProgressBuffer,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Reset(form)
	return e
}

// Reset discards all session state and restarts on form's first screen.
func (e *Engine) Reset(form *Form) {
	e.form = form
	e.rules = e.skipRules(form)
	e.current = ""
	if start := form.Start(); start != nil {
		e.current = start.ID
	}
	e.answers = Answers{}
	e.calcs = Calculations{}
	e.history = nil
	e.flags = FlagSet{}
	e.events = nil
	e.direction = Forward
	e.returnTo = ""
	e.progress = ProgressState{}
	e.refreshProgress()
}

func (e *Engine) Form() *Form { return e.form }

// CurrentScreen returns the active screen, or nil for an empty form.
func (e *Engine) CurrentScreen() *Screen { return e.form.Screen(e.current) }

func (e *Engine) CurrentScreenID() string { return e.current }

// Answers returns a copy of the answer map.
func (e *Engine) Answers() Answers { return e.answers.Clone() }

// Answer returns the stored value for id.
func (e *Engine) Answer(id string) (any, bool) {
	v, ok := e.answers[id]
	return v, ok
}

func (e *Engine) Calculations() Calculations { return e.calcs.Clone() }

func (e *Engine) Flags() FlagSet { return e.flags.Clone() }

func (e *Engine) FlagEvents() []FlagEvent {
	return append([]FlagEvent(nil), e.events...)
}

func (e *Engine) History() []string {
	return append([]string(nil), e.history...)
}

func (e *Engine) Direction() Direction { return e.direction }

func (e *Engine) ReturnTo() string { return e.returnTo }

// UpdateAnswer stores value under id. No validation happens here.
func (e *Engine) UpdateAnswer(id string, value any) {
	if id == "" {
		e.logger.Warn().Msg("ignoring answer with empty field id")
		return
	}
	e.answers[id] = value
}

func (e *Engine) UpdateAnswers(values map[string]any) {
	for id, v := range values {
		e.UpdateAnswer(id, v)
	}
}

// ClearAnswer removes id from the answer map.
func (e *Engine) ClearAnswer(id string) {
	delete(e.answers, id)
}

// Prefill merges answers known ahead of time (for example from an account
// lookup). It does not navigate; later skip resolution bypasses screens
// whose answers are now complete.
func (e *Engine) Prefill(values map[string]any) {
	e.UpdateAnswers(values)
}

// GoToScreen jumps straight to id and remembers the current screen so the
// next forward or backward move returns there. A detour taken from inside
// another detour returns to the screen it left, not to the first one.
func (e *Engine) GoToScreen(id string) bool {
	if e.form.Screen(id) == nil {
		e.logger.Warn().Str("screen_id", id).Msg("goto: unknown screen")
		return false
	}
	if id == e.current {
		return false
	}
	e.returnTo = e.current
	e.current = id
	e.direction = Forward
	e.refreshProgress()
	return true
}

// GoToNext advances the session. A pending detour return wins; otherwise
// calculations are merged, eligibility flags accumulated, the next screen
// resolved from next_logic or next, and skip rules applied.
func (e *Engine) GoToNext() bool {
	if e.returnTo != "" {
		e.consumeReturn(Forward)
		return true
	}

	screen := e.CurrentScreen()
	if screen == nil {
		e.logger.Warn().Str("screen_id", e.current).Msg("next: no current screen")
		return false
	}

	if len(screen.Calculations) > 0 {
		e.calcs.Merge(Compute(screen.Calculations, e.answers, e.now()))
	}
	e.accumulateFlags(screen.ID)

	nextID := e.resolveNext(screen)
	if nextID == "" {
		e.logger.Warn().Str("screen_id", screen.ID).Msg("next: screen has no next target")
		return false
	}
	if e.form.Screen(nextID) == nil {
		e.logger.Warn().Str("screen_id", screen.ID).Str("next_id", nextID).Msg("next: target screen not found")
		return false
	}

	target := ResolveSkips(e.form, nextID, e.answers, e.rules)
	if target != nextID {
		e.logger.Debug().Str("next_id", nextID).Str("target", target).Msg("next: skipped answered screens")
	}

	e.history = append(e.history, screen.ID)
	e.current = target
	e.direction = Forward
	e.refreshProgress()
	return true
}

// GoToPrev returns from a detour if one is pending, otherwise pops history.
// Leaving a screen backwards clears its clear_on_back answers.
func (e *Engine) GoToPrev() bool {
	if e.returnTo != "" {
		e.consumeReturn(Backward)
		return true
	}
	if len(e.history) == 0 {
		return false
	}
	if screen := e.CurrentScreen(); screen != nil {
		for _, id := range screen.ClearOnBack {
			delete(e.answers, id)
		}
	}
	last := len(e.history) - 1
	e.current = e.history[last]
	e.history = e.history[:last]
	e.direction = Backward
	e.refreshProgress()
	return true
}

func (e *Engine) consumeReturn(dir Direction) {
	e.current = e.returnTo
	e.returnTo = ""
	e.direction = dir
	e.refreshProgress()
}

// resolveNext picks the first matching if entry, then the else entry, then
// the static next.
func (e *Engine) resolveNext(screen *Screen) string {
	if len(screen.NextLogic) > 0 {
		current := e.answers[screen.AnswerKey()]
		fallback := ""
		for _, rule := range screen.NextLogic {
			if rule.IsElse() {
				if fallback == "" {
					fallback = rule.GoTo
				}
				continue
			}
			if Evaluate(rule.If, current, e.answers, e.calcs, e.flags) {
				return rule.GoTo
			}
		}
		if fallback != "" {
			return fallback
		}
	}
	return screen.Next
}

func (e *Engine) accumulateFlags(screenID string) {
	if e.form == nil {
		return
	}
	for _, rule := range Triggered(e.form.EligibilityRules, e.answers, e.calcs, e.flags) {
		if e.flags.Has(rule.Action) {
			continue
		}
		e.flags.Add(rule.Action)
		e.events = append(e.events, FlagEvent{
			Flag:     rule.Action,
			RuleID:   rule.ID,
			Severity: rule.Severity,
			ScreenID: screenID,
			RaisedAt: e.now().UTC(),
		})
		e.logger.Info().Str("flag", rule.Action).Str("rule_id", rule.ID).Str("screen_id", screenID).Msg("eligibility flag raised")
	}
}
