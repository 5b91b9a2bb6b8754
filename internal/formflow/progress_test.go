package formflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// walkToDone completes the happy path and leaves the engine on "done".
func walkToDone(t *testing.T, e *Engine) {
	t.Helper()
	walkToBody(e)
	e.UpdateAnswers(map[string]any{"height_ft": 5, "height_in": 10, "weight": 180})
	require.True(t, e.GoToNext())
	e.UpdateAnswer(EmailFieldID, "pat@example.com")
	require.True(t, e.GoToNext())
	e.UpdateAnswers(map[string]any{"first_name": "Pat", "last_name": "Lee"})
	require.True(t, e.GoToNext())
	e.UpdateAnswer("history.conditions", []any{"none"})
	require.True(t, e.GoToNext())
	e.UpdateAnswer("consent", true)
	require.True(t, e.GoToNext())
	require.Equal(t, "review", e.CurrentScreenID())
	require.True(t, e.GoToNext())
	require.Equal(t, "done", e.CurrentScreenID())
}

func TestProgress_Monotonic(t *testing.T) {
	e := newTestEngine()
	last := e.ProgressState()

	check := func(step string) {
		t.Helper()
		cur := e.ProgressState()
		assert.GreaterOrEqual(t, cur.Percent, last.Percent, "percent dropped after %s", step)
		assert.GreaterOrEqual(t, cur.TotalSteps, last.TotalSteps, "total dropped after %s", step)
		assert.GreaterOrEqual(t, cur.Percent, 5.0)
		last = cur
	}

	e.GoToNext()
	check("next")
	e.GoToPrev()
	check("prev")
	walkToBody(e)
	check("walk")
	e.GoToPrev()
	check("prev")
	e.GoToPrev()
	check("prev")
	e.GoToScreen("signin")
	check("goto")
	e.GoToPrev()
	check("return")
	e.GoToNext()
	check("next")
}

func TestProgress_BoundedBelowTerminal(t *testing.T) {
	e := newTestEngine()
	walkToBody(e)
	e.UpdateAnswers(map[string]any{"height_ft": 5, "height_in": 10, "weight": 180})
	e.GoToNext()

	p := e.ProgressState()
	assert.Equal(t, 5, p.Step)
	assert.Equal(t, 12, p.TotalSteps)
	assert.InDelta(t, 5.0/12*95, p.Percent, 1e-9)
	assert.LessOrEqual(t, p.Percent, 95.0)
}

func TestProgress_TerminalPinsToFurthestStep(t *testing.T) {
	e := newTestEngine()
	walkToDone(t, e)

	p := e.ProgressState()
	assert.Equal(t, 100.0, p.Percent)
	assert.Equal(t, p.MaxStep, p.Step)
	assert.Equal(t, p.MaxStep, p.TotalSteps)
	assert.Equal(t, len(e.History())+1, p.MaxStep)
}

func TestProgress_BufferGrowsTotal(t *testing.T) {
	form := testForm()
	form.EstimatedSteps = 2
	e := New(form, WithClock(fixedClock), WithProgressBuffer(1))

	assert.Equal(t, 2, e.TotalSteps())
	e.GoToNext()
	assert.Equal(t, 3, e.TotalSteps(), "visited plus buffer exceeds the estimate")
	assert.Equal(t, 2, e.CurrentStep())
	assert.InDelta(t, 2.0/3*95, e.Progress(), 1e-9)
}

func TestProgress_DefaultEstimate(t *testing.T) {
	form := testForm()
	form.EstimatedSteps = 0
	e := New(form)
	assert.Equal(t, 20, e.TotalSteps())
	assert.Equal(t, 5.0, e.Progress())
}
