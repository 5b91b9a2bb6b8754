package formflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	e := newTestEngine()
	walkToBody(e)
	e.UpdateAnswers(map[string]any{"height_ft": 5, "height_in": 10, "weight": 290})
	require.True(t, e.GoToNext())
	require.True(t, e.GoToScreen("signin"))

	raw, err := json.Marshal(e.Snapshot())
	require.NoError(t, err)

	var st State
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, "wl-test", st.FormID)
	assert.Equal(t, []string{"flag_bmi_severe"}, st.Flags.Sorted())

	restored := Restore(testForm(), st, WithClock(fixedClock), WithDerivedSkipRules())
	assert.Equal(t, "signin", restored.CurrentScreenID())
	assert.Equal(t, EmailCaptureScreenID, restored.ReturnTo())
	assert.Equal(t, e.History(), restored.History())
	assert.Equal(t, e.ProgressState(), restored.ProgressState())
	assert.Equal(t, e.FlagEvents(), restored.FlagEvents())
	bmi, ok := restored.Calculations().Value("bmi")
	require.True(t, ok)
	assert.Equal(t, 41.6, bmi)

	require.True(t, restored.GoToNext())
	assert.Equal(t, EmailCaptureScreenID, restored.CurrentScreenID())
}

func TestSnapshot_EmptyHistoryIsArray(t *testing.T) {
	raw, err := json.Marshal(newTestEngine().Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"history":[]`)
	assert.Contains(t, string(raw), `"flags":[]`)
}

func TestRestore_FormChangedStartsFresh(t *testing.T) {
	e := newTestEngine()
	walkToBody(e)
	st := e.Snapshot()

	changed := testForm()
	changed.Version = "2"
	fresh := Restore(changed, st)
	assert.Equal(t, "intro", fresh.CurrentScreenID())
	assert.Empty(t, fresh.Answers())

	st.CurrentScreenID = "removed.screen"
	fresh = Restore(testForm(), st)
	assert.Equal(t, "intro", fresh.CurrentScreenID())
	assert.Empty(t, fresh.History())
}

func TestRestore_DropsUnknownReturnTo(t *testing.T) {
	e := newTestEngine()
	st := e.Snapshot()
	st.ReturnTo = "gone"
	assert.Empty(t, Restore(testForm(), st).ReturnTo())
}

func TestRestore_DropsUnknownHistory(t *testing.T) {
	e := newTestEngine()
	walkToBody(e)
	st := e.Snapshot()
	require.Equal(t, []string{"intro", "qualify.state", "profile.dob"}, st.History)
	st.History = []string{"intro", "tampered", "qualify.state", "profile.dob"}

	restored := Restore(testForm(), st, WithClock(fixedClock), WithDerivedSkipRules())
	assert.Equal(t, []string{"intro", "qualify.state", "profile.dob"}, restored.History())

	for restored.GoToPrev() {
		require.NotNil(t, restored.CurrentScreen(), "landed on %q", restored.CurrentScreenID())
	}
	assert.Equal(t, "intro", restored.CurrentScreenID())
}
